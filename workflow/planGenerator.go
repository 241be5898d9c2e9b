package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/budget_backend/config"
	"bitbucket.org/mmdatafocus/budget_backend/models"
	"bitbucket.org/mmdatafocus/budget_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	volumeTolerance = decimal.NewFromFloat(0.01)
	amountTolerance = decimal.NewFromInt(1)
	twelve          = decimal.NewFromInt(12)
)

// MonthlyAllocation is one month's slice of a yearly figure.
type MonthlyAllocation struct {
	Month  int             `json:"month" binding:"required,min=1,max=12"`
	Volume decimal.Decimal `json:"volume"`
	Amount decimal.Decimal `json:"amount"`
}

// PlanDiscrepancy reports a budget item whose monthly plans do not cover all
// twelve months or do not add up to its yearly figures.
type PlanDiscrepancy struct {
	BudgetItemId   int             `json:"budget_item_id"`
	BudgetItemCode string          `json:"budget_item_code"`
	MonthsPlanned  int             `json:"months_planned"`
	VolumeDelta    decimal.Decimal `json:"volume_delta"`
	AmountDelta    decimal.Decimal `json:"amount_delta"`
}

// EqualSplit divides a yearly figure across 12 months. Months 1-11 carry the
// figure divided by 12 rounded to 2 decimals; month 12 absorbs the rounding
// remainder so the twelve slices sum back to the total exactly.
func EqualSplit(total decimal.Decimal) [12]decimal.Decimal {
	var out [12]decimal.Decimal
	slice := total.Div(twelve).Round(2)
	running := decimal.Zero
	for i := 0; i < 11; i++ {
		out[i] = slice
		running = running.Add(slice)
	}
	out[11] = total.Sub(running)
	return out
}

// GenerateEqualPlans replaces the budget item's plans for the year with an
// equal 12-way split of its yearly volume and budget.
func GenerateEqualPlans(ctx context.Context, budgetItemId int, year int) ([]*models.MonthlyPlan, error) {
	item, err := models.GetBudgetItem(ctx, budgetItemId)
	if err != nil {
		return nil, err
	}

	volumes := EqualSplit(item.Volume)
	amounts := EqualSplit(item.TotalBudget)

	allocations := make([]MonthlyAllocation, 12)
	for i := 0; i < 12; i++ {
		allocations[i] = MonthlyAllocation{Month: i + 1, Volume: volumes[i], Amount: amounts[i]}
	}
	return writePlans(ctx, item, year, allocations)
}

// GenerateCustomPlans replaces the budget item's plans for the year with the
// caller's 12 allocations. The allocations must cover each month exactly once
// and sum back to the item's yearly figures within tolerance; nothing is
// written when they do not.
func GenerateCustomPlans(ctx context.Context, budgetItemId int, year int, allocations []MonthlyAllocation) ([]*models.MonthlyPlan, error) {
	item, err := models.GetBudgetItem(ctx, budgetItemId)
	if err != nil {
		return nil, err
	}

	if len(allocations) != 12 {
		return nil, utils.NewValidationError("expected 12 monthly allocations, got %d", len(allocations))
	}
	seen := map[int]bool{}
	volumeSum, amountSum := decimal.Zero, decimal.Zero
	for _, a := range allocations {
		if a.Month < 1 || a.Month > 12 {
			return nil, utils.NewValidationError("invalid month %d", a.Month)
		}
		if seen[a.Month] {
			return nil, utils.NewValidationError("duplicate allocation for %s", utils.MonthName(a.Month))
		}
		seen[a.Month] = true
		if a.Volume.IsNegative() || a.Amount.IsNegative() {
			return nil, utils.NewValidationError("allocation for %s is negative", utils.MonthName(a.Month))
		}
		volumeSum = volumeSum.Add(a.Volume)
		amountSum = amountSum.Add(a.Amount)
	}
	if volumeSum.Sub(item.Volume).Abs().GreaterThan(volumeTolerance) {
		return nil, utils.NewValidationError("allocated volume %s does not match yearly volume %s",
			volumeSum.String(), item.Volume.String())
	}
	if amountSum.Sub(item.TotalBudget).Abs().GreaterThan(amountTolerance) {
		return nil, utils.NewValidationError("allocated amount %s does not match yearly budget %s",
			amountSum.String(), item.TotalBudget.String())
	}

	return writePlans(ctx, item, year, allocations)
}

// GenerateFromPreviousYear distributes this year's figures using last year's
// monthly proportions. Items without plans last year fall back to the equal
// split.
func GenerateFromPreviousYear(ctx context.Context, budgetItemId int, year int) ([]*models.MonthlyPlan, error) {
	item, err := models.GetBudgetItem(ctx, budgetItemId)
	if err != nil {
		return nil, err
	}

	previousYear := year - 1
	previous, err := models.GetMonthlyPlans(ctx, &budgetItemId, &previousYear, nil)
	if err != nil {
		return nil, err
	}
	if len(previous) == 0 {
		return GenerateEqualPlans(ctx, budgetItemId, year)
	}

	previousTotal := decimal.Zero
	byMonth := map[int]decimal.Decimal{}
	for _, p := range previous {
		byMonth[p.Month] = p.PlannedAmount
		previousTotal = previousTotal.Add(p.PlannedAmount)
	}
	if previousTotal.LessThanOrEqual(decimal.Zero) {
		return GenerateEqualPlans(ctx, budgetItemId, year)
	}

	allocations := make([]MonthlyAllocation, 12)
	volumeRunning, amountRunning := decimal.Zero, decimal.Zero
	for i := 0; i < 12; i++ {
		month := i + 1
		proportion := byMonth[month].Div(previousTotal)
		volume := item.Volume.Mul(proportion).Round(2)
		amount := item.TotalBudget.Mul(proportion).Round(2)
		if month == 12 {
			volume = item.Volume.Sub(volumeRunning)
			amount = item.TotalBudget.Sub(amountRunning)
		}
		allocations[i] = MonthlyAllocation{Month: month, Volume: volume, Amount: amount}
		volumeRunning = volumeRunning.Add(volume)
		amountRunning = amountRunning.Add(amount)
	}
	return writePlans(ctx, item, year, allocations)
}

// writePlans swaps out the item's plans for the year in one transaction. Any
// plan with a recorded realization blocks the whole replacement.
func writePlans(ctx context.Context, item *models.BudgetItem, year int, allocations []MonthlyAllocation) ([]*models.MonthlyPlan, error) {
	db := config.GetDB()

	plans := make([]*models.MonthlyPlan, 0, len(allocations))
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []*models.MonthlyPlan
		if err := tx.Where("budget_item_id = ? AND year = ?", item.ID, year).Find(&existing).Error; err != nil {
			return err
		}
		for _, plan := range existing {
			realized, err := models.PlanHasRealization(tx, plan.ID)
			if err != nil {
				return err
			}
			if realized {
				return utils.NewImmutableError("plan for %s %d has a realization and blocks regeneration",
					utils.MonthName(plan.Month), year)
			}
		}
		if len(existing) > 0 {
			if err := tx.Where("budget_item_id = ? AND year = ?", item.ID, year).
				Delete(&models.MonthlyPlan{}).Error; err != nil {
				return err
			}
		}
		for _, a := range allocations {
			plan := &models.MonthlyPlan{
				BudgetItemId:  item.ID,
				Month:         a.Month,
				Year:          year,
				PlannedVolume: a.Volume,
				PlannedAmount: a.Amount,
			}
			if err := tx.Create(plan).Error; err != nil {
				return err
			}
			plans = append(plans, plan)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plans, nil
}

// planDiscrepancyFor checks one budget item against its monthly plans for a
// year. It returns nil when every one of the twelve months has a plan row and
// the planned sums match the item's yearly figures within tolerance.
func planDiscrepancyFor(item *models.BudgetItem, plans []*models.MonthlyPlan) *PlanDiscrepancy {
	months := map[int]bool{}
	volumeSum, amountSum := decimal.Zero, decimal.Zero
	for _, p := range plans {
		months[p.Month] = true
		volumeSum = volumeSum.Add(p.PlannedVolume)
		amountSum = amountSum.Add(p.PlannedAmount)
	}
	volumeDelta := item.Volume.Sub(volumeSum)
	amountDelta := item.TotalBudget.Sub(amountSum)
	if len(months) == 12 &&
		!volumeDelta.Abs().GreaterThan(volumeTolerance) &&
		!amountDelta.Abs().GreaterThan(amountTolerance) {
		return nil
	}
	return &PlanDiscrepancy{
		BudgetItemId:   item.ID,
		BudgetItemCode: fmt.Sprintf("%s %s", item.Code, item.Name),
		MonthsPlanned:  len(months),
		VolumeDelta:    volumeDelta,
		AmountDelta:    amountDelta,
	}
}

// ValidatePlans compares each budget item under the sub activity against its
// monthly plans for the year and reports the ones that miss a month or drift
// beyond tolerance. Items with no plans at all are reported with full deltas.
func ValidatePlans(ctx context.Context, subActivityId int, year int) ([]*PlanDiscrepancy, error) {
	items, err := models.GetBudgetItems(ctx, &subActivityId)
	if err != nil {
		return nil, err
	}

	discrepancies := []*PlanDiscrepancy{}
	for _, item := range items {
		plans, err := models.GetMonthlyPlans(ctx, &item.ID, &year, nil)
		if err != nil {
			return nil, err
		}
		if d := planDiscrepancyFor(item, plans); d != nil {
			discrepancies = append(discrepancies, d)
		}
	}
	return discrepancies, nil
}
