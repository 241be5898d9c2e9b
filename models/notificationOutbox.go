package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/config"
	"bitbucket.org/mmdatafocus/budget_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// NotificationRecord is the transactional outbox for workflow and deviation
// events: written inside the caller's DB transaction, published to Pub/Sub
// asynchronously by the dispatcher after commit.
type NotificationRecord struct {
	ID            int               `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	Event         NotificationEvent `gorm:"size:64;index;not null" json:"event"`
	ReferenceId   int               `gorm:"index" json:"reference_id"`
	ReferenceType string            `gorm:"size:64" json:"reference_type"`
	RecipientRole UserRole          `gorm:"size:20" json:"recipient_role"`
	Recipients    []byte            `gorm:"type:blob" json:"recipients"`
	Payload       []byte            `gorm:"type:blob" json:"payload"`

	// Publish metadata (publish happens after commit via dispatcher).
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// NotificationRecipient is the delivery target snapshot stored with the outbox
// row, so downstream channels need no user lookup of their own.
type NotificationRecipient struct {
	UserId int    `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

func resolveRecipients(tx *gorm.DB, role UserRole) ([]byte, error) {
	users, err := GetActiveUsersByRole(tx, role)
	if err != nil {
		return nil, err
	}
	recipients := make([]NotificationRecipient, 0, len(users))
	for _, u := range users {
		recipients = append(recipients, NotificationRecipient{
			UserId: u.ID,
			Name:   u.Name,
			Email:  u.Email,
			Phone:  u.Phone,
		})
	}
	return json.Marshal(recipients)
}

// PublishNotification writes the outbox row inside the caller's DB transaction
// but does NOT publish to Pub/Sub. Publishing is performed asynchronously by
// the notification dispatcher after commit. The active users holding the
// recipient role are resolved here and frozen into the row.
func PublishNotification(ctx context.Context, tx *gorm.DB,
	event NotificationEvent,
	referenceId int,
	referenceType string,
	recipientRole UserRole,
	payload interface{}) error {

	payloadInByte, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	recipients, err := resolveRecipients(tx, recipientRole)
	if err != nil {
		return err
	}

	record := NotificationRecord{
		Event:         event,
		ReferenceId:   referenceId,
		ReferenceType: referenceType,
		RecipientRole: recipientRole,
		Recipients:    recipients,
		Payload:       payloadInByte,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func ConvertToNotificationMessage(record NotificationRecord) config.NotificationMessage {
	return config.NotificationMessage{
		ID:            record.ID,
		Event:         string(record.Event),
		ReferenceId:   record.ReferenceId,
		ReferenceType: record.ReferenceType,
		RecipientRole: string(record.RecipientRole),
		Recipients:    record.Recipients,
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
		OccurredAt:    record.CreatedAt,
	}
}
