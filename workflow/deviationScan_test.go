package workflow

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/models"
	"bitbucket.org/mmdatafocus/budget_backend/utils"
	"github.com/shopspring/decimal"
)

func TestClassifyDeviation(t *testing.T) {
	cases := []struct {
		pct          float64
		wantType     models.AlertType
		wantSeverity models.AlertSeverity
		wantAlert    bool
	}{
		{-40, models.AlertTypeUnderRealization, models.AlertSeverityHigh, true},
		{-55, models.AlertTypeUnderRealization, models.AlertSeverityCritical, true},
		{-50, models.AlertTypeUnderRealization, models.AlertSeverityHigh, true},
		{-30, "", "", false},
		{-29.99, "", "", false},
		{-30.01, models.AlertTypeUnderRealization, models.AlertSeverityHigh, true},
		{0, "", "", false},
		{10, "", "", false},
		{10.01, models.AlertTypeOverRealization, models.AlertSeverityHigh, true},
		{15, models.AlertTypeOverRealization, models.AlertSeverityHigh, true},
		{30, models.AlertTypeOverRealization, models.AlertSeverityHigh, true},
		{31, models.AlertTypeOverRealization, models.AlertSeverityCritical, true},
		{100, models.AlertTypeOverRealization, models.AlertSeverityCritical, true},
	}
	for _, tc := range cases {
		alertType, severity, ok := ClassifyDeviation(decimal.NewFromFloat(tc.pct))
		if ok != tc.wantAlert {
			t.Fatalf("pct %v: alert=%v, want %v", tc.pct, ok, tc.wantAlert)
		}
		if !ok {
			continue
		}
		if alertType != tc.wantType {
			t.Fatalf("pct %v: type %s, want %s", tc.pct, alertType, tc.wantType)
		}
		if severity != tc.wantSeverity {
			t.Fatalf("pct %v: severity %s, want %s", tc.pct, severity, tc.wantSeverity)
		}
	}
}

func TestDeadlineDaysLeft(t *testing.T) {
	// 2026-03-24: 7 days left in March.
	now := time.Date(2026, time.March, 24, 10, 0, 0, 0, time.UTC)
	if got := DeadlineDaysLeft(3, 2026, now); got != 7 {
		t.Fatalf("expected 7 days left, got %d", got)
	}

	// Last day of the month: 0 days left, outside the warning window.
	now = time.Date(2026, time.March, 31, 10, 0, 0, 0, time.UTC)
	if got := DeadlineDaysLeft(3, 2026, now); got != 0 {
		t.Fatalf("expected 0 days left, got %d", got)
	}

	// February in a leap year.
	now = time.Date(2028, time.February, 27, 0, 0, 0, 0, time.UTC)
	if got := DeadlineDaysLeft(2, 2028, now); got != 2 {
		t.Fatalf("expected 2 days left, got %d", got)
	}
}

func TestScanInProgressIsStateConflict(t *testing.T) {
	// A scan refused because another one holds the lock must surface as a
	// state conflict (409), not as an internal error.
	if !utils.IsKind(ErrScanInProgress, utils.ErrorKindStateConflict) {
		t.Fatalf("expected STATE_CONFLICT, got kind %s", utils.KindOf(ErrScanInProgress))
	}
}
