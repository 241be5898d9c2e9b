package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/config"
	"bitbucket.org/mmdatafocus/budget_backend/utils"
	"github.com/shopspring/decimal"
)

// Program is the top of the budget hierarchy, owned by one SKPD work unit.
type Program struct {
	ID          int             `gorm:"primary_key" json:"id"`
	SkpdName    string          `gorm:"size:255;not null" json:"skpd_name" binding:"required"`
	Code        string          `gorm:"size:50;not null;uniqueIndex" json:"code" binding:"required"`
	Name        string          `gorm:"size:255;not null" json:"name" binding:"required"`
	FiscalYear  int             `gorm:"index;not null" json:"fiscal_year" binding:"required"`
	TotalBudget decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"total_budget"`
	Activities  []Activity      `gorm:"constraint:OnDelete:CASCADE" json:"activities,omitempty"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProgram struct {
	SkpdName   string `json:"skpd_name" binding:"required"`
	Code       string `json:"code" binding:"required"`
	Name       string `json:"name" binding:"required"`
	FiscalYear int    `json:"fiscal_year" binding:"required"`
}

func CreateProgram(ctx context.Context, input *NewProgram) (*Program, error) {
	db := config.GetDB()

	if err := utils.ValidateUnique[Program](ctx, "code", input.Code, 0); err != nil {
		return nil, err
	}

	program := Program{
		SkpdName:   input.SkpdName,
		Code:       input.Code,
		Name:       input.Name,
		FiscalYear: input.FiscalYear,
	}
	err := db.WithContext(ctx).Create(&program).Error
	if err != nil {
		return nil, err
	}
	return &program, nil
}

func GetProgram(ctx context.Context, id int) (*Program, error) {
	db := config.GetDB()
	var result Program

	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetPrograms(ctx context.Context, fiscalYear *int) ([]*Program, error) {
	db := config.GetDB()
	var results []*Program

	dbCtx := db.WithContext(ctx)
	if fiscalYear != nil && *fiscalYear > 0 {
		dbCtx = dbCtx.Where("fiscal_year = ?", *fiscalYear)
	}
	err := dbCtx.Order("code ASC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func UpdateProgram(ctx context.Context, id int, input *NewProgram) (*Program, error) {
	db := config.GetDB()
	var program Program

	if err := db.WithContext(ctx).First(&program, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := utils.ValidateUnique[Program](ctx, "code", input.Code, id); err != nil {
		return nil, err
	}

	program.SkpdName = input.SkpdName
	program.Code = input.Code
	program.Name = input.Name
	program.FiscalYear = input.FiscalYear
	if err := db.WithContext(ctx).Save(&program).Error; err != nil {
		return nil, err
	}
	return &program, nil
}

func DeleteProgram(ctx context.Context, id int) (*Program, error) {
	db := config.GetDB()
	var result Program

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
