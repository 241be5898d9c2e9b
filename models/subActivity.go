package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/config"
	"bitbucket.org/mmdatafocus/budget_backend/utils"
	"github.com/shopspring/decimal"
)

type SubActivity struct {
	ID          int             `gorm:"primary_key" json:"id"`
	ActivityId  int             `gorm:"index;not null" json:"activity_id" binding:"required"`
	Code        string          `gorm:"size:50;not null" json:"code" binding:"required"`
	Name        string          `gorm:"size:255;not null" json:"name" binding:"required"`
	TotalBudget decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_budget"`
	BudgetItems []BudgetItem    `gorm:"constraint:OnDelete:CASCADE" json:"budget_items,omitempty"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSubActivity struct {
	ActivityId int    `json:"activity_id" binding:"required"`
	Code       string `json:"code" binding:"required"`
	Name       string `json:"name" binding:"required"`
}

func CreateSubActivity(ctx context.Context, input *NewSubActivity) (*SubActivity, error) {
	db := config.GetDB()

	if err := utils.ValidateResourceId[Activity](ctx, input.ActivityId); err != nil {
		return nil, utils.NewNotFoundError("activity not found")
	}

	subActivity := SubActivity{
		ActivityId: input.ActivityId,
		Code:       input.Code,
		Name:       input.Name,
	}
	err := db.WithContext(ctx).Create(&subActivity).Error
	if err != nil {
		return nil, err
	}
	return &subActivity, nil
}

func GetSubActivity(ctx context.Context, id int) (*SubActivity, error) {
	db := config.GetDB()
	var result SubActivity

	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetSubActivities(ctx context.Context, activityId *int) ([]*SubActivity, error) {
	db := config.GetDB()
	var results []*SubActivity

	dbCtx := db.WithContext(ctx)
	if activityId != nil && *activityId > 0 {
		dbCtx = dbCtx.Where("activity_id = ?", *activityId)
	}
	err := dbCtx.Order("code ASC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func UpdateSubActivity(ctx context.Context, id int, input *NewSubActivity) (*SubActivity, error) {
	db := config.GetDB()
	var subActivity SubActivity

	if err := db.WithContext(ctx).First(&subActivity, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := utils.ValidateResourceId[Activity](ctx, input.ActivityId); err != nil {
		return nil, utils.NewNotFoundError("activity not found")
	}

	subActivity.ActivityId = input.ActivityId
	subActivity.Code = input.Code
	subActivity.Name = input.Name
	if err := db.WithContext(ctx).Save(&subActivity).Error; err != nil {
		return nil, err
	}
	return &subActivity, nil
}

func DeleteSubActivity(ctx context.Context, id int) (*SubActivity, error) {
	db := config.GetDB()
	var result SubActivity

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
