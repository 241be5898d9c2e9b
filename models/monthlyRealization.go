package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/config"
	"bitbucket.org/mmdatafocus/budget_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MonthlyRealization records actual spend against one MonthlyPlan.
// At most one realization may exist per plan. Once LockedAt is set the row is
// immutable regardless of status.
type MonthlyRealization struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	MonthlyPlanId       int             `gorm:"not null;uniqueIndex" json:"monthly_plan_id" binding:"required"`
	RealizedVolume      decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"realized_volume"`
	RealizedAmount      decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"realized_amount"`
	DeviationVolume     decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"deviation_volume"`
	DeviationAmount     decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"deviation_amount"`
	DeviationPercentage decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"deviation_percentage"`
	Status              ApprovalStatus  `gorm:"type:enum('DRAFT','SUBMITTED','VERIFIED','APPROVED','REJECTED');default:DRAFT" json:"status"`
	Notes               string          `gorm:"type:text" json:"notes"`
	RejectionReason     string          `gorm:"type:text" json:"rejection_reason"`
	SubmittedBy         int             `gorm:"default:null" json:"submitted_by"`
	SubmittedAt         *time.Time      `gorm:"default:null" json:"submitted_at"`
	VerifiedBy          int             `gorm:"default:null" json:"verified_by"`
	VerifiedAt          *time.Time      `gorm:"default:null" json:"verified_at"`
	ApprovedBy          int             `gorm:"default:null" json:"approved_by"`
	ApprovedAt          *time.Time      `gorm:"default:null" json:"approved_at"`
	LockedBy            int             `gorm:"default:null" json:"locked_by"`
	LockedAt            *time.Time      `gorm:"default:null" json:"locked_at"`
	Documents           []RealizationDocument `gorm:"constraint:OnDelete:CASCADE" json:"documents,omitempty"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMonthlyRealization struct {
	MonthlyPlanId  int             `json:"monthly_plan_id" binding:"required"`
	RealizedVolume decimal.Decimal `json:"realized_volume"`
	RealizedAmount decimal.Decimal `json:"realized_amount"`
	Notes          string          `json:"notes"`
}

func (r *MonthlyRealization) IsLocked() bool {
	return r.LockedAt != nil
}

// ComputeDeviationPercentage returns (realized - planned) / planned * 100,
// or zero when there is no positive plan to compare against.
func ComputeDeviationPercentage(planned decimal.Decimal, realized decimal.Decimal) decimal.Decimal {
	if planned.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return realized.Sub(planned).
		Div(planned).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}

// applyDeviation recomputes the derived deviation fields from the plan.
func (r *MonthlyRealization) applyDeviation(plan *MonthlyPlan) {
	r.DeviationVolume = r.RealizedVolume.Sub(plan.PlannedVolume)
	r.DeviationAmount = r.RealizedAmount.Sub(plan.PlannedAmount)
	r.DeviationPercentage = ComputeDeviationPercentage(plan.PlannedAmount, r.RealizedAmount)
}

// guardEditable fails with Immutable unless the realization is in an editable
// status and not locked.
func (r *MonthlyRealization) guardEditable() error {
	if r.IsLocked() {
		return utils.NewImmutableError("realization %d is locked", r.ID)
	}
	if !r.Status.IsEditable() {
		return utils.NewImmutableError("realization %d in status %s cannot be modified", r.ID, r.Status)
	}
	return nil
}

func CreateMonthlyRealization(ctx context.Context, input *NewMonthlyRealization) (*MonthlyRealization, error) {
	db := config.GetDB()

	var plan MonthlyPlan
	if err := db.WithContext(ctx).First(&plan, input.MonthlyPlanId).Error; err != nil {
		return nil, utils.NewNotFoundError("monthly plan not found")
	}

	count, err := utils.ResourceCountWhere[MonthlyRealization](ctx, "monthly_plan_id = ?", plan.ID)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewDuplicateError("realization already exists for plan %d", plan.ID)
	}

	realization := MonthlyRealization{
		MonthlyPlanId:  plan.ID,
		RealizedVolume: input.RealizedVolume,
		RealizedAmount: input.RealizedAmount,
		Notes:          input.Notes,
		Status:         ApprovalStatusDraft,
	}
	realization.applyDeviation(&plan)

	if err := db.WithContext(ctx).Create(&realization).Error; err != nil {
		return nil, err
	}
	return &realization, nil
}

func GetMonthlyRealization(ctx context.Context, id int) (*MonthlyRealization, error) {
	db := config.GetDB()
	var result MonthlyRealization

	err := db.WithContext(ctx).Preload("Documents").First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

// GetRealizationByPlanId returns the plan's realization through tx, or
// gorm.ErrRecordNotFound when none exists.
func GetRealizationByPlanId(tx *gorm.DB, planId int) (*MonthlyRealization, error) {
	var result MonthlyRealization
	err := tx.Where("monthly_plan_id = ?", planId).First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func GetMonthlyRealizations(ctx context.Context, status *ApprovalStatus, year *int, month *int) ([]*MonthlyRealization, error) {
	db := config.GetDB()
	var results []*MonthlyRealization

	dbCtx := db.WithContext(ctx).
		Joins("JOIN monthly_plans ON monthly_plans.id = monthly_realizations.monthly_plan_id")
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("monthly_realizations.status = ?", *status)
	}
	if year != nil && *year > 0 {
		dbCtx = dbCtx.Where("monthly_plans.year = ?", *year)
	}
	if month != nil && *month > 0 {
		dbCtx = dbCtx.Where("monthly_plans.month = ?", *month)
	}
	err := dbCtx.Order("monthly_realizations.id ASC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateMonthlyRealization changes the recorded figures. Permitted only while
// the realization is editable (DRAFT or REJECTED, and not locked).
func UpdateMonthlyRealization(ctx context.Context, id int, input *NewMonthlyRealization) (*MonthlyRealization, error) {
	db := config.GetDB()
	var realization MonthlyRealization

	if err := db.WithContext(ctx).First(&realization, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := realization.guardEditable(); err != nil {
		return nil, err
	}

	var plan MonthlyPlan
	if err := db.WithContext(ctx).First(&plan, realization.MonthlyPlanId).Error; err != nil {
		return nil, utils.NewNotFoundError("monthly plan not found")
	}

	realization.RealizedVolume = input.RealizedVolume
	realization.RealizedAmount = input.RealizedAmount
	realization.Notes = input.Notes
	realization.applyDeviation(&plan)

	if err := db.WithContext(ctx).Save(&realization).Error; err != nil {
		return nil, err
	}
	return &realization, nil
}

func DeleteMonthlyRealization(ctx context.Context, id int) (*MonthlyRealization, error) {
	db := config.GetDB()
	var result MonthlyRealization

	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := result.guardEditable(); err != nil {
		return nil, err
	}

	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}
