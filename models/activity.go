package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/config"
	"bitbucket.org/mmdatafocus/budget_backend/utils"
	"github.com/shopspring/decimal"
)

type Activity struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ProgramId     int             `gorm:"index;not null" json:"program_id" binding:"required"`
	Code          string          `gorm:"size:50;not null" json:"code" binding:"required"`
	Name          string          `gorm:"size:255;not null" json:"name" binding:"required"`
	TotalBudget   decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_budget"`
	SubActivities []SubActivity   `gorm:"constraint:OnDelete:CASCADE" json:"sub_activities,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewActivity struct {
	ProgramId int    `json:"program_id" binding:"required"`
	Code      string `json:"code" binding:"required"`
	Name      string `json:"name" binding:"required"`
}

func CreateActivity(ctx context.Context, input *NewActivity) (*Activity, error) {
	db := config.GetDB()

	if err := utils.ValidateResourceId[Program](ctx, input.ProgramId); err != nil {
		return nil, utils.NewNotFoundError("program not found")
	}

	activity := Activity{
		ProgramId: input.ProgramId,
		Code:      input.Code,
		Name:      input.Name,
	}
	err := db.WithContext(ctx).Create(&activity).Error
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

func GetActivity(ctx context.Context, id int) (*Activity, error) {
	db := config.GetDB()
	var result Activity

	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetActivities(ctx context.Context, programId *int) ([]*Activity, error) {
	db := config.GetDB()
	var results []*Activity

	dbCtx := db.WithContext(ctx)
	if programId != nil && *programId > 0 {
		dbCtx = dbCtx.Where("program_id = ?", *programId)
	}
	err := dbCtx.Order("code ASC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func UpdateActivity(ctx context.Context, id int, input *NewActivity) (*Activity, error) {
	db := config.GetDB()
	var activity Activity

	if err := db.WithContext(ctx).First(&activity, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := utils.ValidateResourceId[Program](ctx, input.ProgramId); err != nil {
		return nil, utils.NewNotFoundError("program not found")
	}

	activity.ProgramId = input.ProgramId
	activity.Code = input.Code
	activity.Name = input.Name
	if err := db.WithContext(ctx).Save(&activity).Error; err != nil {
		return nil, err
	}
	return &activity, nil
}

func DeleteActivity(ctx context.Context, id int) (*Activity, error) {
	db := config.GetDB()
	var result Activity

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
