package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/config"
	"bitbucket.org/mmdatafocus/budget_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BudgetItem is the leaf of the hierarchy and the unit DPA figures attach to.
type BudgetItem struct {
	ID            int             `gorm:"primary_key" json:"id"`
	SubActivityId int             `gorm:"index;not null" json:"sub_activity_id" binding:"required"`
	Code          string          `gorm:"size:50;not null" json:"code" binding:"required"`
	Name          string          `gorm:"size:255;not null" json:"name" binding:"required"`
	Unit          string          `gorm:"size:50" json:"unit"`
	Volume        decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"volume"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"unit_price"`
	TotalBudget   decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_budget"`
	Plans         []MonthlyPlan   `gorm:"constraint:OnDelete:CASCADE" json:"plans,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBudgetItem struct {
	SubActivityId int             `json:"sub_activity_id" binding:"required"`
	Code          string          `json:"code" binding:"required"`
	Name          string          `json:"name" binding:"required"`
	Unit          string          `json:"unit"`
	Volume        decimal.Decimal `json:"volume"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

func CreateBudgetItem(ctx context.Context, input *NewBudgetItem) (*BudgetItem, error) {
	db := config.GetDB()

	if err := utils.ValidateResourceId[SubActivity](ctx, input.SubActivityId); err != nil {
		return nil, utils.NewNotFoundError("sub activity not found")
	}

	item := BudgetItem{
		SubActivityId: input.SubActivityId,
		Code:          input.Code,
		Name:          input.Name,
		Unit:          input.Unit,
		Volume:        input.Volume,
		UnitPrice:     input.UnitPrice,
		TotalBudget:   input.Volume.Mul(input.UnitPrice),
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		return RecomputeHierarchyTotals(tx, item.SubActivityId)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func GetBudgetItem(ctx context.Context, id int) (*BudgetItem, error) {
	db := config.GetDB()
	var result BudgetItem

	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetBudgetItemByCode(ctx context.Context, tx *gorm.DB, code string) (*BudgetItem, error) {
	var result BudgetItem
	err := tx.WithContext(ctx).Where("code = ?", code).First(&result).Error
	if err != nil {
		return nil, utils.NewNotFoundError("budget item with code %s not found", code)
	}
	return &result, nil
}

func GetBudgetItems(ctx context.Context, subActivityId *int) ([]*BudgetItem, error) {
	db := config.GetDB()
	var results []*BudgetItem

	dbCtx := db.WithContext(ctx)
	if subActivityId != nil && *subActivityId > 0 {
		dbCtx = dbCtx.Where("sub_activity_id = ?", *subActivityId)
	}
	err := dbCtx.Order("code ASC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func UpdateBudgetItem(ctx context.Context, id int, input *NewBudgetItem) (*BudgetItem, error) {
	db := config.GetDB()
	var item BudgetItem

	if err := db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := utils.ValidateResourceId[SubActivity](ctx, input.SubActivityId); err != nil {
		return nil, utils.NewNotFoundError("sub activity not found")
	}

	oldSubActivityId := item.SubActivityId
	item.SubActivityId = input.SubActivityId
	item.Code = input.Code
	item.Name = input.Name
	item.Unit = input.Unit
	item.Volume = input.Volume
	item.UnitPrice = input.UnitPrice
	item.TotalBudget = input.Volume.Mul(input.UnitPrice)

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&item).Error; err != nil {
			return err
		}
		if err := RecomputeHierarchyTotals(tx, item.SubActivityId); err != nil {
			return err
		}
		if oldSubActivityId != item.SubActivityId {
			return RecomputeHierarchyTotals(tx, oldSubActivityId)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func DeleteBudgetItem(ctx context.Context, id int) (*BudgetItem, error) {
	db := config.GetDB()
	var result BudgetItem

	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&result).Error; err != nil {
			return err
		}
		return RecomputeHierarchyTotals(tx, result.SubActivityId)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// RecomputeHierarchyTotals rolls summed budget figures bottom-up:
// item -> sub-activity -> activity -> program. Callers run it inside the
// transaction that changed the items so totals never drift.
func RecomputeHierarchyTotals(tx *gorm.DB, subActivityId int) error {
	var subActivity SubActivity
	if err := tx.First(&subActivity, subActivityId).Error; err != nil {
		return err
	}

	if err := tx.Model(&SubActivity{}).Where("id = ?", subActivityId).
		Update("total_budget", tx.Model(&BudgetItem{}).
			Select("COALESCE(SUM(total_budget), 0)").
			Where("sub_activity_id = ?", subActivityId)).Error; err != nil {
		return err
	}

	if err := tx.Model(&Activity{}).Where("id = ?", subActivity.ActivityId).
		Update("total_budget", tx.Model(&SubActivity{}).
			Select("COALESCE(SUM(total_budget), 0)").
			Where("activity_id = ?", subActivity.ActivityId)).Error; err != nil {
		return err
	}

	var activity Activity
	if err := tx.First(&activity, subActivity.ActivityId).Error; err != nil {
		return err
	}
	return tx.Model(&Program{}).Where("id = ?", activity.ProgramId).
		Update("total_budget", tx.Model(&Activity{}).
			Select("COALESCE(SUM(total_budget), 0)").
			Where("program_id = ?", activity.ProgramId)).Error
}
