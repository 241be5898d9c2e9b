package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func scanFinding(severity AlertSeverity, pct string) AlertUpsertInput {
	return AlertUpsertInput{
		BudgetItemId:        21,
		Month:               4,
		Year:                2026,
		AlertType:           AlertTypeUnderRealization,
		Severity:            severity,
		PlannedAmount:       decimal.NewFromInt(100000),
		RealizedAmount:      decimal.NewFromInt(40000),
		DeviationPercentage: decimal.RequireFromString(pct),
		Message:             "realisasi di bawah rencana",
	}
}

func TestNewDeviationAlertStartsActive(t *testing.T) {
	alert := newDeviationAlert(scanFinding(AlertSeverityHigh, "-60"))

	if alert.Status != AlertStatusActive {
		t.Fatalf("new alert status: got %s, want ACTIVE", alert.Status)
	}
	if alert.AcknowledgedAt != nil || alert.ResolvedAt != nil {
		t.Fatal("new alert must carry no acknowledge or resolve stamps")
	}
	if alert.BudgetItemId != 21 || alert.Month != 4 || alert.Year != 2026 {
		t.Fatalf("natural key not carried over: %+v", alert)
	}
}

func TestAlertRefreshPreservesStatus(t *testing.T) {
	ackAt := time.Date(2026, time.April, 10, 8, 0, 0, 0, time.UTC)
	alert := newDeviationAlert(scanFinding(AlertSeverityHigh, "-40"))
	alert.Status = AlertStatusAcknowledged
	alert.AcknowledgedBy = 5
	alert.AcknowledgedAt = &ackAt

	// The deviation worsened on rescan; the row is refreshed in place.
	alert.refreshFrom(scanFinding(AlertSeverityCritical, "-60"))

	if alert.Status != AlertStatusAcknowledged {
		t.Fatalf("rescan must preserve status, got %s", alert.Status)
	}
	if alert.AcknowledgedBy != 5 || alert.AcknowledgedAt == nil {
		t.Fatal("rescan must preserve the acknowledge stamp")
	}
	if alert.Severity != AlertSeverityCritical {
		t.Fatalf("severity not refreshed, got %s", alert.Severity)
	}
	if want := decimal.NewFromInt(-60); !alert.DeviationPercentage.Equal(want) {
		t.Fatalf("deviation not refreshed, got %s", alert.DeviationPercentage)
	}
}

func TestAlertRefreshIsIdempotent(t *testing.T) {
	input := scanFinding(AlertSeverityCritical, "-55")
	alert := newDeviationAlert(input)
	before := alert

	alert.refreshFrom(input)
	if alert != before {
		t.Fatalf("refresh with identical finding changed the row:\n got %+v\nwant %+v", alert, before)
	}
}
