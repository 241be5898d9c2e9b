package workflow

import (
	"errors"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/models"
	"bitbucket.org/mmdatafocus/budget_backend/utils"
)

// NOTE: These tests are intentionally DB-free. They validate the guard table
// the transition commands enforce before touching any row. Full DB
// integration tests should be added in an environment that can run MySQL.

func TestCheckTransition_AllowedPaths(t *testing.T) {
	cases := []struct {
		action models.ApprovalAction
		from   models.ApprovalStatus
		want   models.ApprovalStatus
	}{
		{models.ApprovalActionSubmit, models.ApprovalStatusDraft, models.ApprovalStatusSubmitted},
		{models.ApprovalActionSubmit, models.ApprovalStatusRejected, models.ApprovalStatusSubmitted},
		{models.ApprovalActionVerify, models.ApprovalStatusSubmitted, models.ApprovalStatusVerified},
		{models.ApprovalActionReject, models.ApprovalStatusSubmitted, models.ApprovalStatusRejected},
		{models.ApprovalActionReject, models.ApprovalStatusVerified, models.ApprovalStatusRejected},
		{models.ApprovalActionApprove, models.ApprovalStatusVerified, models.ApprovalStatusApproved},
	}
	for _, tc := range cases {
		got, err := CheckTransition(tc.action, tc.from)
		if err != nil {
			t.Fatalf("%s from %s: unexpected error: %v", tc.action, tc.from, err)
		}
		if got != tc.want {
			t.Fatalf("%s from %s: got %s, want %s", tc.action, tc.from, got, tc.want)
		}
	}
}

func TestCheckTransition_BlockedPaths(t *testing.T) {
	cases := []struct {
		action models.ApprovalAction
		from   models.ApprovalStatus
	}{
		{models.ApprovalActionSubmit, models.ApprovalStatusSubmitted},
		{models.ApprovalActionSubmit, models.ApprovalStatusApproved},
		{models.ApprovalActionVerify, models.ApprovalStatusDraft},
		{models.ApprovalActionVerify, models.ApprovalStatusVerified},
		{models.ApprovalActionReject, models.ApprovalStatusDraft},
		{models.ApprovalActionReject, models.ApprovalStatusApproved},
		{models.ApprovalActionApprove, models.ApprovalStatusDraft},
		{models.ApprovalActionApprove, models.ApprovalStatusSubmitted},
		{models.ApprovalActionApprove, models.ApprovalStatusApproved},
	}
	for _, tc := range cases {
		_, err := CheckTransition(tc.action, tc.from)
		if err == nil {
			t.Fatalf("%s from %s: expected error, got nil", tc.action, tc.from)
		}
		if !utils.IsKind(err, utils.ErrorKindStateConflict) {
			t.Fatalf("%s from %s: expected STATE_CONFLICT, got %v", tc.action, tc.from, utils.KindOf(err))
		}
	}
}

func TestCheckTransition_ConflictMessageNamesExpectedStatus(t *testing.T) {
	_, err := CheckTransition(models.ApprovalActionApprove, models.ApprovalStatusDraft)
	if err == nil {
		t.Fatal("expected error approving a draft")
	}
	msg := err.Error()
	if !strings.Contains(msg, "VERIFIED") {
		t.Fatalf("conflict message should name the expected status VERIFIED, got %q", msg)
	}
	if !strings.Contains(msg, "DRAFT") {
		t.Fatalf("conflict message should name the current status DRAFT, got %q", msg)
	}
}

func TestCheckTransition_UnknownAction(t *testing.T) {
	_, err := CheckTransition(models.ApprovalAction("archive"), models.ApprovalStatusDraft)
	if err == nil {
		t.Fatal("expected error for unknown action")
	}
	if !utils.IsKind(err, utils.ErrorKindValidation) {
		t.Fatalf("expected VALIDATION, got %v", utils.KindOf(err))
	}
}

func TestCheckTransition_RejectLoopReachesSubmittedAgain(t *testing.T) {
	// DRAFT -> SUBMITTED -> REJECTED -> SUBMITTED -> VERIFIED -> APPROVED
	status := models.ApprovalStatusDraft
	steps := []models.ApprovalAction{
		models.ApprovalActionSubmit,
		models.ApprovalActionReject,
		models.ApprovalActionSubmit,
		models.ApprovalActionVerify,
		models.ApprovalActionApprove,
	}
	for _, action := range steps {
		next, err := CheckTransition(action, status)
		if err != nil {
			t.Fatalf("%s from %s: %v", action, status, err)
		}
		status = next
	}
	if status != models.ApprovalStatusApproved {
		t.Fatalf("expected APPROVED at end of loop, got %s", status)
	}
}

func testActor() Actor {
	return Actor{ID: 3, Name: "Siti Verifikator", Role: models.UserRoleFinance}
}

func TestApplyTransition_ApproveStampsLockWithApproval(t *testing.T) {
	r := &models.MonthlyRealization{ID: 11, Status: models.ApprovalStatusVerified}
	actor := testActor()
	now := time.Date(2026, time.April, 2, 9, 0, 0, 0, time.UTC)

	history, err := applyTransition(r, models.ApprovalActionApprove, actor, now, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if r.Status != models.ApprovalStatusApproved {
		t.Fatalf("status: got %s, want APPROVED", r.Status)
	}
	if r.ApprovedBy != actor.ID || r.ApprovedAt == nil || !r.ApprovedAt.Equal(now) {
		t.Fatalf("approval stamp missing: by=%d at=%v", r.ApprovedBy, r.ApprovedAt)
	}
	if r.LockedBy != actor.ID || r.LockedAt == nil || !r.LockedAt.Equal(now) {
		t.Fatalf("approval must lock in the same step: by=%d at=%v", r.LockedBy, r.LockedAt)
	}
	if history.Action != models.ApprovalActionApprove || history.ToStatus != models.ApprovalStatusApproved {
		t.Fatalf("history row: %+v", history)
	}
}

func TestApplyTransition_OneHistoryRowPerStep(t *testing.T) {
	r := &models.MonthlyRealization{ID: 12, Status: models.ApprovalStatusDraft}
	actor := testActor()
	now := time.Now()

	steps := []struct {
		action models.ApprovalAction
		notes  string
	}{
		{models.ApprovalActionSubmit, ""},
		{models.ApprovalActionReject, "volume salah"},
		{models.ApprovalActionSubmit, ""},
		{models.ApprovalActionVerify, ""},
		{models.ApprovalActionApprove, ""},
	}

	histories := []*models.ApprovalHistory{}
	for _, step := range steps {
		from := r.Status
		history, err := applyTransition(r, step.action, actor, now, step.notes)
		if err != nil {
			t.Fatalf("%s from %s: %v", step.action, from, err)
		}
		if history == nil {
			t.Fatalf("%s from %s: no history row", step.action, from)
		}
		if history.FromStatus != from || history.ToStatus != r.Status {
			t.Fatalf("%s: history records %s -> %s, realization went %s -> %s",
				step.action, history.FromStatus, history.ToStatus, from, r.Status)
		}
		if history.RealizationId != r.ID || history.PerformedBy != actor.ID {
			t.Fatalf("%s: history attribution %+v", step.action, history)
		}
		histories = append(histories, history)
	}
	if len(histories) != len(steps) {
		t.Fatalf("expected exactly %d history rows, got %d", len(steps), len(histories))
	}
}

func TestApplyTransition_SubmitClearsRejectionReason(t *testing.T) {
	r := &models.MonthlyRealization{
		ID:              13,
		Status:          models.ApprovalStatusRejected,
		RejectionReason: "bukti kurang",
	}

	if _, err := applyTransition(r, models.ApprovalActionSubmit, testActor(), time.Now(), ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.RejectionReason != "" {
		t.Fatalf("resubmit should clear the rejection reason, got %q", r.RejectionReason)
	}
	if r.SubmittedBy == 0 || r.SubmittedAt == nil {
		t.Fatal("submit stamp missing")
	}
}

func TestApplyTransition_RejectStampsReviewerByStage(t *testing.T) {
	actor := testActor()
	now := time.Now()

	fromSubmitted := &models.MonthlyRealization{ID: 14, Status: models.ApprovalStatusSubmitted}
	if _, err := applyTransition(fromSubmitted, models.ApprovalActionReject, actor, now, "salah input"); err != nil {
		t.Fatalf("reject from SUBMITTED: %v", err)
	}
	if fromSubmitted.VerifiedBy != actor.ID || fromSubmitted.ApprovedBy != 0 {
		t.Fatalf("reject from SUBMITTED should stamp the verifier, got verified_by=%d approved_by=%d",
			fromSubmitted.VerifiedBy, fromSubmitted.ApprovedBy)
	}

	fromVerified := &models.MonthlyRealization{ID: 15, Status: models.ApprovalStatusVerified}
	if _, err := applyTransition(fromVerified, models.ApprovalActionReject, actor, now, "anggaran ganda"); err != nil {
		t.Fatalf("reject from VERIFIED: %v", err)
	}
	if fromVerified.ApprovedBy != actor.ID {
		t.Fatalf("reject from VERIFIED should stamp the approver, got approved_by=%d", fromVerified.ApprovedBy)
	}
	if fromVerified.RejectionReason != "anggaran ganda" {
		t.Fatalf("rejection reason: got %q", fromVerified.RejectionReason)
	}

	_, err := applyTransition(fromVerified, models.ApprovalActionReject, actor, now, "lagi")
	if !utils.IsKind(err, utils.ErrorKindStateConflict) {
		t.Fatalf("rejecting a REJECTED realization should conflict, got %v", err)
	}
}

func TestBatchStep_Counting(t *testing.T) {
	result := &BatchResult{}
	lockedAt := time.Now()
	ok := func() error { return nil }

	// Row that could not be loaded.
	if err := batchStep(result, nil, utils.NewNotFoundError("realization 9 not found"), ok); err != nil {
		t.Fatalf("missing row must not be fatal: %v", err)
	}
	// Locked row.
	locked := &models.MonthlyRealization{ID: 1, Status: models.ApprovalStatusApproved, LockedBy: 2, LockedAt: &lockedAt}
	if err := batchStep(result, locked, nil, ok); err != nil {
		t.Fatalf("locked row must not be fatal: %v", err)
	}
	// Row failing the state guard.
	draft := &models.MonthlyRealization{ID: 2, Status: models.ApprovalStatusDraft}
	guard := func() error {
		_, err := CheckTransition(models.ApprovalActionVerify, draft.Status)
		return err
	}
	if err := batchStep(result, draft, nil, guard); err != nil {
		t.Fatalf("state conflict must not be fatal: %v", err)
	}
	// Eligible row.
	eligible := &models.MonthlyRealization{ID: 3, Status: models.ApprovalStatusSubmitted}
	if err := batchStep(result, eligible, nil, ok); err != nil {
		t.Fatalf("eligible row: %v", err)
	}

	if result.Processed != 1 || result.Skipped != 3 {
		t.Fatalf("got {processed %d, skipped %d}, want {1, 3}", result.Processed, result.Skipped)
	}

	// Any other error aborts the batch.
	boom := errors.New("deadlock detected")
	if err := batchStep(result, eligible, nil, func() error { return boom }); err != boom {
		t.Fatalf("unexpected errors must be fatal, got %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("fatal error must not count as processed, got %d", result.Processed)
	}
}
