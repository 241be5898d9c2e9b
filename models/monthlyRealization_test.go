package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeDeviationPercentage(t *testing.T) {
	cases := []struct {
		planned  string
		realized string
		want     string
	}{
		{"100", "60", "-40"},
		{"100", "45", "-55"},
		{"100", "100", "0"},
		{"100", "110", "10"},
		{"100", "135", "35"},
		{"1000000", "700000", "-30"},
		{"3", "2", "-33.33"},
		{"0", "500", "0"},
		{"-10", "500", "0"},
	}
	for _, tc := range cases {
		planned := decimal.RequireFromString(tc.planned)
		realized := decimal.RequireFromString(tc.realized)
		got := ComputeDeviationPercentage(planned, realized)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("planned %s realized %s: got %s, want %s", tc.planned, tc.realized, got, tc.want)
		}
	}
}

func TestComputeDeviationPercentage_RoundsToTwoDecimals(t *testing.T) {
	got := ComputeDeviationPercentage(decimal.NewFromInt(7), decimal.NewFromInt(5))
	if got.Exponent() < -2 {
		t.Fatalf("expected at most 2 decimal places, got %s", got)
	}
}

func TestPresentationLookups(t *testing.T) {
	if got := ApprovalStatusLabel(ApprovalStatusSubmitted); got != "Waiting Verification" {
		t.Fatalf("SUBMITTED label: got %q", got)
	}
	if got := ApprovalStatusColor(ApprovalStatusApproved); got != "green" {
		t.Fatalf("APPROVED color: got %q", got)
	}
	if got := AlertSeverityColor(AlertSeverityCritical); got != "red" {
		t.Fatalf("CRITICAL color: got %q", got)
	}
	// Unknown values fall back instead of panicking.
	if got := ApprovalStatusLabel(ApprovalStatus("UNKNOWN")); got != "UNKNOWN" {
		t.Fatalf("unknown status label: got %q", got)
	}
	if got := AlertSeverityColor(AlertSeverity("NONE")); got != "gray" {
		t.Fatalf("unknown severity color: got %q", got)
	}
}
