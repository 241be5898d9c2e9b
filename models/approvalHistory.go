package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/config"
	"gorm.io/gorm"
)

// ApprovalHistory is the append-only audit ledger of realization transitions.
// Rows are written inside the same transaction as the status change, making
// this the canonical audit source. Rows are never updated or deleted.
type ApprovalHistory struct {
	ID              int            `gorm:"primary_key" json:"id"`
	RealizationId   int            `gorm:"index;not null" json:"realization_id"`
	FromStatus      ApprovalStatus `gorm:"size:20;not null" json:"from_status"`
	ToStatus        ApprovalStatus `gorm:"size:20;not null" json:"to_status"`
	Action          ApprovalAction `gorm:"size:20;not null" json:"action"`
	Notes           string         `gorm:"type:text" json:"notes"`
	PerformedBy     int            `gorm:"index;not null" json:"performed_by"`
	PerformedByName string         `gorm:"size:100" json:"performed_by_name"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// SaveApprovalHistory appends one ledger row through the caller's transaction.
func SaveApprovalHistory(tx *gorm.DB, history *ApprovalHistory) error {
	return tx.Create(history).Error
}

func GetApprovalHistories(ctx context.Context, realizationId *int, performedBy *int) ([]*ApprovalHistory, error) {
	db := config.GetDB()
	var results []*ApprovalHistory

	dbCtx := db.WithContext(ctx)
	if realizationId != nil && *realizationId > 0 {
		dbCtx = dbCtx.Where("realization_id = ?", *realizationId)
	}
	if performedBy != nil && *performedBy > 0 {
		dbCtx = dbCtx.Where("performed_by = ?", *performedBy)
	}
	err := dbCtx.Order("id ASC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
