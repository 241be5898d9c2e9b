package models

import "testing"

func TestParseApprovalStatus(t *testing.T) {
	for _, valid := range []string{"DRAFT", "SUBMITTED", "VERIFIED", "APPROVED", "REJECTED"} {
		status, err := ParseApprovalStatus(valid)
		if err != nil {
			t.Fatalf("%s: %v", valid, err)
		}
		if string(status) != valid {
			t.Fatalf("%s: got %s", valid, status)
		}
	}
	if _, err := ParseApprovalStatus("draft"); err == nil {
		t.Fatal("lowercase status should not parse")
	}
	if _, err := ParseApprovalStatus("PENDING"); err == nil {
		t.Fatal("unknown status should not parse")
	}
}

func TestApprovalStatusIsEditable(t *testing.T) {
	editable := map[ApprovalStatus]bool{
		ApprovalStatusDraft:     true,
		ApprovalStatusRejected:  true,
		ApprovalStatusSubmitted: false,
		ApprovalStatusVerified:  false,
		ApprovalStatusApproved:  false,
	}
	for status, want := range editable {
		if got := status.IsEditable(); got != want {
			t.Fatalf("%s: editable=%v, want %v", status, got, want)
		}
	}
}

func TestParseUserRole(t *testing.T) {
	for _, valid := range []string{"Admin", "Head", "Finance", "Planning", "Execution"} {
		role, err := ParseUserRole(valid)
		if err != nil {
			t.Fatalf("%s: %v", valid, err)
		}
		if string(role) != valid {
			t.Fatalf("%s: got %s", valid, role)
		}
	}
	if _, err := ParseUserRole("admin"); err == nil {
		t.Fatal("lowercase role should not parse")
	}
}

func TestAlertStatusIsTerminal(t *testing.T) {
	terminal := map[AlertStatus]bool{
		AlertStatusActive:       false,
		AlertStatusAcknowledged: false,
		AlertStatusResolved:     true,
		AlertStatusDismissed:    true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Fatalf("%s: terminal=%v, want %v", status, got, want)
		}
	}
}
