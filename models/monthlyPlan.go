package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/config"
	"bitbucket.org/mmdatafocus/budget_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MonthlyPlan is the PLGK allocation for one budget item and month.
// The composite unique index is the natural key; importers must upsert
// against it instead of inserting duplicates.
type MonthlyPlan struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BudgetItemId  int             `gorm:"not null;uniqueIndex:idx_plan_item_period" json:"budget_item_id" binding:"required"`
	Month         int             `gorm:"not null;uniqueIndex:idx_plan_item_period" json:"month" binding:"required,min=1,max=12"`
	Year          int             `gorm:"not null;uniqueIndex:idx_plan_item_period" json:"year" binding:"required"`
	PlannedVolume decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"planned_volume"`
	PlannedAmount decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"planned_amount"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMonthlyPlan struct {
	BudgetItemId  int             `json:"budget_item_id" binding:"required"`
	Month         int             `json:"month" binding:"required,min=1,max=12"`
	Year          int             `json:"year" binding:"required"`
	PlannedVolume decimal.Decimal `json:"planned_volume"`
	PlannedAmount decimal.Decimal `json:"planned_amount"`
}

func CreateMonthlyPlan(ctx context.Context, input *NewMonthlyPlan) (*MonthlyPlan, error) {
	db := config.GetDB()

	if err := utils.ValidateResourceId[BudgetItem](ctx, input.BudgetItemId); err != nil {
		return nil, utils.NewNotFoundError("budget item not found")
	}

	count, err := utils.ResourceCountWhere[MonthlyPlan](ctx,
		"budget_item_id = ? AND month = ? AND year = ?",
		input.BudgetItemId, input.Month, input.Year)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewDuplicateError("plan already exists for budget item %d, %s %d",
			input.BudgetItemId, utils.MonthName(input.Month), input.Year)
	}

	plan := MonthlyPlan{
		BudgetItemId:  input.BudgetItemId,
		Month:         input.Month,
		Year:          input.Year,
		PlannedVolume: input.PlannedVolume,
		PlannedAmount: input.PlannedAmount,
	}
	if err := db.WithContext(ctx).Create(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func GetMonthlyPlan(ctx context.Context, id int) (*MonthlyPlan, error) {
	db := config.GetDB()
	var result MonthlyPlan

	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetMonthlyPlans(ctx context.Context, budgetItemId *int, year *int, month *int) ([]*MonthlyPlan, error) {
	db := config.GetDB()
	var results []*MonthlyPlan

	dbCtx := db.WithContext(ctx)
	if budgetItemId != nil && *budgetItemId > 0 {
		dbCtx = dbCtx.Where("budget_item_id = ?", *budgetItemId)
	}
	if year != nil && *year > 0 {
		dbCtx = dbCtx.Where("year = ?", *year)
	}
	if month != nil && *month > 0 {
		dbCtx = dbCtx.Where("month = ?", *month)
	}
	err := dbCtx.Order("year ASC, month ASC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// PlanHasRealization reports whether a realization row exists against the plan.
// A plan with a realization is frozen.
func PlanHasRealization(tx *gorm.DB, planId int) (bool, error) {
	var count int64
	err := tx.Model(&MonthlyRealization{}).Where("monthly_plan_id = ?", planId).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func UpdateMonthlyPlan(ctx context.Context, id int, input *NewMonthlyPlan) (*MonthlyPlan, error) {
	db := config.GetDB()
	var plan MonthlyPlan

	if err := db.WithContext(ctx).First(&plan, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	realized, err := PlanHasRealization(db.WithContext(ctx), plan.ID)
	if err != nil {
		return nil, err
	}
	if realized {
		return nil, utils.NewImmutableError("plan %d has a realization and can no longer change", plan.ID)
	}

	plan.PlannedVolume = input.PlannedVolume
	plan.PlannedAmount = input.PlannedAmount
	if err := db.WithContext(ctx).Save(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func DeleteMonthlyPlan(ctx context.Context, id int) (*MonthlyPlan, error) {
	db := config.GetDB()
	var result MonthlyPlan

	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	realized, err := PlanHasRealization(db.WithContext(ctx), result.ID)
	if err != nil {
		return nil, err
	}
	if realized {
		return nil, utils.NewImmutableError("plan %d has a realization and can no longer change", result.ID)
	}

	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// UpsertMonthlyPlan writes an imported plan row, updating in place when the
// (item, month, year) key already exists. Frozen plans are left untouched.
func UpsertMonthlyPlan(tx *gorm.DB, budgetItemId int, month int, year int, volume decimal.Decimal, amount decimal.Decimal) error {
	var existing MonthlyPlan
	err := tx.Where("budget_item_id = ? AND month = ? AND year = ?", budgetItemId, month, year).
		First(&existing).Error
	if err == nil {
		realized, rerr := PlanHasRealization(tx, existing.ID)
		if rerr != nil {
			return rerr
		}
		if realized {
			return utils.NewImmutableError("plan %d has a realization and can no longer change", existing.ID)
		}
		return tx.Model(&existing).Updates(map[string]interface{}{
			"planned_volume": volume,
			"planned_amount": amount,
		}).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	plan := MonthlyPlan{
		BudgetItemId:  budgetItemId,
		Month:         month,
		Year:          year,
		PlannedVolume: volume,
		PlannedAmount: amount,
	}
	return tx.Create(&plan).Error
}
