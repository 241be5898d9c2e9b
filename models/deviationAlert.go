package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/config"
	"bitbucket.org/mmdatafocus/budget_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DeviationAlert is keyed by (budget_item, month, year, alert_type): at most
// one row with a non-terminal status may exist per key. Rescans update that
// row in place instead of inserting a duplicate.
type DeviationAlert struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	BudgetItemId        int             `gorm:"index:idx_alert_key;not null" json:"budget_item_id"`
	Month               int             `gorm:"index:idx_alert_key;not null" json:"month"`
	Year                int             `gorm:"index:idx_alert_key;not null" json:"year"`
	AlertType           AlertType       `gorm:"index:idx_alert_key;type:enum('NOT_REALIZED','UNDER_REALIZATION','OVER_REALIZATION','DEADLINE_APPROACHING');not null" json:"alert_type"`
	Severity            AlertSeverity   `gorm:"type:enum('MEDIUM','HIGH','CRITICAL');not null" json:"severity"`
	PlannedAmount       decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"planned_amount"`
	RealizedAmount      decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"realized_amount"`
	DeviationPercentage decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"deviation_percentage"`
	Message             string          `gorm:"type:text;not null" json:"message"`
	Status              AlertStatus     `gorm:"type:enum('ACTIVE','ACKNOWLEDGED','RESOLVED','DISMISSED');default:ACTIVE" json:"status"`
	AcknowledgedBy      int             `gorm:"default:null" json:"acknowledged_by"`
	AcknowledgedAt      *time.Time      `gorm:"default:null" json:"acknowledged_at"`
	ResolvedBy          int             `gorm:"default:null" json:"resolved_by"`
	ResolvedAt          *time.Time      `gorm:"default:null" json:"resolved_at"`
	ResolutionNotes     string          `gorm:"type:text" json:"resolution_notes"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// AlertUpsertInput carries one scan finding into the upsert.
type AlertUpsertInput struct {
	BudgetItemId        int
	Month               int
	Year                int
	AlertType           AlertType
	Severity            AlertSeverity
	PlannedAmount       decimal.Decimal
	RealizedAmount      decimal.Decimal
	DeviationPercentage decimal.Decimal
	Message             string
}

// refreshFrom overwrites the scan-derived fields with a newer finding for the
// same natural key. Status and the acknowledge/resolve stamps are untouched,
// so an ACKNOWLEDGED alert stays acknowledged across rescans.
func (a *DeviationAlert) refreshFrom(input AlertUpsertInput) {
	a.Severity = input.Severity
	a.PlannedAmount = input.PlannedAmount
	a.RealizedAmount = input.RealizedAmount
	a.DeviationPercentage = input.DeviationPercentage
	a.Message = input.Message
}

// newDeviationAlert builds the ACTIVE row for a finding with no live alert.
func newDeviationAlert(input AlertUpsertInput) DeviationAlert {
	return DeviationAlert{
		BudgetItemId:        input.BudgetItemId,
		Month:               input.Month,
		Year:                input.Year,
		AlertType:           input.AlertType,
		Severity:            input.Severity,
		PlannedAmount:       input.PlannedAmount,
		RealizedAmount:      input.RealizedAmount,
		DeviationPercentage: input.DeviationPercentage,
		Message:             input.Message,
		Status:              AlertStatusActive,
	}
}

// UpsertDeviationAlert inserts a new ACTIVE alert or refreshes the existing
// non-terminal row for the same natural key. Returns true when a new row was
// created.
func UpsertDeviationAlert(tx *gorm.DB, input AlertUpsertInput) (bool, error) {
	var existing DeviationAlert
	err := tx.
		Where("budget_item_id = ? AND month = ? AND year = ? AND alert_type = ?",
			input.BudgetItemId, input.Month, input.Year, input.AlertType).
		Where("status IN ?", []AlertStatus{AlertStatusActive, AlertStatusAcknowledged}).
		First(&existing).Error
	if err == nil {
		existing.refreshFrom(input)
		return false, tx.Save(&existing).Error
	}
	if err != gorm.ErrRecordNotFound {
		return false, err
	}

	alert := newDeviationAlert(input)
	return true, tx.Create(&alert).Error
}

func GetDeviationAlert(ctx context.Context, id int) (*DeviationAlert, error) {
	db := config.GetDB()
	var result DeviationAlert

	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetDeviationAlerts(ctx context.Context, status *AlertStatus, severity *AlertSeverity, year *int, month *int) ([]*DeviationAlert, error) {
	db := config.GetDB()
	var results []*DeviationAlert

	dbCtx := db.WithContext(ctx)
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if severity != nil && *severity != "" {
		dbCtx = dbCtx.Where("severity = ?", *severity)
	}
	if year != nil && *year > 0 {
		dbCtx = dbCtx.Where("year = ?", *year)
	}
	if month != nil && *month > 0 {
		dbCtx = dbCtx.Where("month = ?", *month)
	}
	err := dbCtx.Order("severity DESC, id ASC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func AcknowledgeAlert(ctx context.Context, id int, userId int) (*DeviationAlert, error) {
	db := config.GetDB()
	var alert DeviationAlert

	if err := db.WithContext(ctx).First(&alert, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if alert.Status != AlertStatusActive {
		return nil, utils.NewStateConflictError("acknowledge alert", string(AlertStatusActive), string(alert.Status))
	}

	now := time.Now()
	alert.Status = AlertStatusAcknowledged
	alert.AcknowledgedBy = userId
	alert.AcknowledgedAt = &now
	if err := db.WithContext(ctx).Save(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

func ResolveAlert(ctx context.Context, id int, userId int, resolutionNotes string) (*DeviationAlert, error) {
	db := config.GetDB()
	var alert DeviationAlert

	if resolutionNotes == "" {
		return nil, utils.NewValidationError("resolution notes are required")
	}
	if err := db.WithContext(ctx).First(&alert, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if alert.Status.IsTerminal() {
		return nil, utils.NewStateConflictError("resolve alert", "ACTIVE or ACKNOWLEDGED", string(alert.Status))
	}

	now := time.Now()
	alert.Status = AlertStatusResolved
	alert.ResolvedBy = userId
	alert.ResolvedAt = &now
	alert.ResolutionNotes = resolutionNotes
	if err := db.WithContext(ctx).Save(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

func DismissAlert(ctx context.Context, id int, userId int) (*DeviationAlert, error) {
	db := config.GetDB()
	var alert DeviationAlert

	if err := db.WithContext(ctx).First(&alert, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if alert.Status.IsTerminal() {
		return nil, utils.NewStateConflictError("dismiss alert", "ACTIVE or ACKNOWLEDGED", string(alert.Status))
	}

	now := time.Now()
	alert.Status = AlertStatusDismissed
	alert.ResolvedBy = userId
	alert.ResolvedAt = &now
	if err := db.WithContext(ctx).Save(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// DeleteDeviationAlert is an unconditional hard delete, independent of status.
func DeleteDeviationAlert(ctx context.Context, id int) (*DeviationAlert, error) {
	db := config.GetDB()
	var result DeviationAlert

	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}
