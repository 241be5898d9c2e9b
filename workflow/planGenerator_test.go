package workflow

import (
	"testing"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/budget_backend/models"
)

func TestEqualSplit_SumsBackExactly(t *testing.T) {
	totals := []string{"1200000", "100", "999999.99", "0.01", "7", "123456789.55"}
	for _, raw := range totals {
		total := decimal.RequireFromString(raw)
		slices := EqualSplit(total)

		sum := decimal.Zero
		for _, s := range slices {
			sum = sum.Add(s)
		}
		if !sum.Equal(total) {
			t.Fatalf("total %s: slices sum to %s", raw, sum)
		}
	}
}

func TestEqualSplit_MonthTwelveAbsorbsRemainder(t *testing.T) {
	// 100 / 12 = 8.33 rounded; month 12 takes 100 - 11*8.33 = 8.37.
	slices := EqualSplit(decimal.NewFromInt(100))

	slice := decimal.RequireFromString("8.33")
	for i := 0; i < 11; i++ {
		if !slices[i].Equal(slice) {
			t.Fatalf("month %d: got %s, want %s", i+1, slices[i], slice)
		}
	}
	if want := decimal.RequireFromString("8.37"); !slices[11].Equal(want) {
		t.Fatalf("month 12: got %s, want %s", slices[11], want)
	}
}

func TestEqualSplit_EvenTotalHasNoRemainder(t *testing.T) {
	slices := EqualSplit(decimal.NewFromInt(1200000))
	want := decimal.NewFromInt(100000)
	for i, s := range slices {
		if !s.Equal(want) {
			t.Fatalf("month %d: got %s, want %s", i+1, s, want)
		}
	}
}

func TestEqualSplit_ZeroTotal(t *testing.T) {
	for i, s := range EqualSplit(decimal.Zero) {
		if !s.IsZero() {
			t.Fatalf("month %d: expected zero, got %s", i+1, s)
		}
	}
}

func plansForItem(item *models.BudgetItem, year int, months ...int) []*models.MonthlyPlan {
	slices := EqualSplit(item.TotalBudget)
	volumes := EqualSplit(item.Volume)
	plans := make([]*models.MonthlyPlan, 0, len(months))
	for _, m := range months {
		plans = append(plans, &models.MonthlyPlan{
			BudgetItemId:  item.ID,
			Month:         m,
			Year:          year,
			PlannedVolume: volumes[m-1],
			PlannedAmount: slices[m-1],
		})
	}
	return plans
}

func TestPlanDiscrepancyFor_FullYearWithinTolerance(t *testing.T) {
	item := &models.BudgetItem{
		ID:          7,
		Code:        "5.1.02.01",
		Name:        "Belanja Bahan",
		Volume:      decimal.NewFromInt(12),
		TotalBudget: decimal.NewFromInt(1200000),
	}
	plans := plansForItem(item, 2026, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)

	if d := planDiscrepancyFor(item, plans); d != nil {
		t.Fatalf("expected no discrepancy, got %+v", d)
	}
}

func TestPlanDiscrepancyFor_MissingMonthFlaggedEvenWhenSumsMatch(t *testing.T) {
	// A zero-budget item whose plans cover only part of the year sums to its
	// yearly figures exactly, but the missing months must still be reported.
	item := &models.BudgetItem{
		ID:          8,
		Code:        "5.1.02.02",
		Name:        "Belanja Cadangan",
		Volume:      decimal.Zero,
		TotalBudget: decimal.Zero,
	}
	plans := plansForItem(item, 2026, 1, 2, 3)

	d := planDiscrepancyFor(item, plans)
	if d == nil {
		t.Fatalf("expected a discrepancy for an item with 3 of 12 months planned")
	}
	if d.MonthsPlanned != 3 {
		t.Fatalf("months planned: got %d, want 3", d.MonthsPlanned)
	}
	if !d.VolumeDelta.IsZero() || !d.AmountDelta.IsZero() {
		t.Fatalf("deltas should be zero, got volume %s amount %s", d.VolumeDelta, d.AmountDelta)
	}
}

func TestPlanDiscrepancyFor_NoPlansReportsFullDeltas(t *testing.T) {
	item := &models.BudgetItem{
		ID:          9,
		Code:        "5.1.02.03",
		Name:        "Belanja Modal",
		Volume:      decimal.NewFromInt(4),
		TotalBudget: decimal.NewFromInt(500000),
	}

	d := planDiscrepancyFor(item, nil)
	if d == nil {
		t.Fatalf("expected a discrepancy for an item with no plans")
	}
	if d.MonthsPlanned != 0 {
		t.Fatalf("months planned: got %d, want 0", d.MonthsPlanned)
	}
	if !d.AmountDelta.Equal(item.TotalBudget) {
		t.Fatalf("amount delta: got %s, want %s", d.AmountDelta, item.TotalBudget)
	}
}

func TestPlanDiscrepancyFor_SumDriftBeyondTolerance(t *testing.T) {
	item := &models.BudgetItem{
		ID:          10,
		Code:        "5.1.02.04",
		Name:        "Belanja Jasa",
		Volume:      decimal.NewFromInt(12),
		TotalBudget: decimal.NewFromInt(1200000),
	}
	plans := plansForItem(item, 2026, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)
	plans[5].PlannedAmount = plans[5].PlannedAmount.Add(decimal.NewFromInt(2))

	d := planDiscrepancyFor(item, plans)
	if d == nil {
		t.Fatalf("expected a discrepancy for a 2-unit amount drift")
	}
	if d.MonthsPlanned != 12 {
		t.Fatalf("months planned: got %d, want 12", d.MonthsPlanned)
	}
	if want := decimal.NewFromInt(-2); !d.AmountDelta.Equal(want) {
		t.Fatalf("amount delta: got %s, want %s", d.AmountDelta, want)
	}
}
