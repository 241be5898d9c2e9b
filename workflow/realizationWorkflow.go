package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/config"
	"bitbucket.org/mmdatafocus/budget_backend/models"
	"bitbucket.org/mmdatafocus/budget_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Actor identifies who performs a transition. It is passed explicitly into
// every command so the state machine never reads auth state from globals.
type Actor struct {
	ID      int
	Name    string
	Role    models.UserRole
	IsAdmin bool
}

type transitionRule struct {
	from     []models.ApprovalStatus
	to       models.ApprovalStatus
	expected string
}

// approvalTransitions is the closed guard table for the realization workflow.
// Lock/unlock are layered on top of APPROVED and do not change status.
var approvalTransitions = map[models.ApprovalAction]transitionRule{
	models.ApprovalActionSubmit: {
		from:     []models.ApprovalStatus{models.ApprovalStatusDraft, models.ApprovalStatusRejected},
		to:       models.ApprovalStatusSubmitted,
		expected: "DRAFT or REJECTED",
	},
	models.ApprovalActionVerify: {
		from:     []models.ApprovalStatus{models.ApprovalStatusSubmitted},
		to:       models.ApprovalStatusVerified,
		expected: "SUBMITTED",
	},
	models.ApprovalActionReject: {
		from:     []models.ApprovalStatus{models.ApprovalStatusSubmitted, models.ApprovalStatusVerified},
		to:       models.ApprovalStatusRejected,
		expected: "SUBMITTED or VERIFIED",
	},
	models.ApprovalActionApprove: {
		from:     []models.ApprovalStatus{models.ApprovalStatusVerified},
		to:       models.ApprovalStatusApproved,
		expected: "VERIFIED",
	},
}

// CheckTransition validates the guard table for one action from one status.
// It returns the resulting status, or a StateConflict naming the expected
// status set.
func CheckTransition(action models.ApprovalAction, from models.ApprovalStatus) (models.ApprovalStatus, error) {
	rule, ok := approvalTransitions[action]
	if !ok {
		return "", utils.NewValidationError("unknown approval action %q", action)
	}
	for _, s := range rule.from {
		if s == from {
			return rule.to, nil
		}
	}
	return "", utils.NewStateConflictError(string(action), rule.expected, string(from))
}

// lockForTransition re-reads the realization with a row lock so two
// concurrent transitions cannot both pass the guard.
func lockForTransition(tx *gorm.DB, id int) (*models.MonthlyRealization, error) {
	var realization models.MonthlyRealization
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&realization, id).Error
	if err != nil {
		return nil, utils.NewNotFoundError("realization %d not found", id)
	}
	return &realization, nil
}

func notifyPayload(r *models.MonthlyRealization, actor Actor) map[string]interface{} {
	return map[string]interface{}{
		"realization_id":  r.ID,
		"monthly_plan_id": r.MonthlyPlanId,
		"status":          r.Status,
		"actor_id":        actor.ID,
		"actor_name":      actor.Name,
	}
}

func historyRow(r *models.MonthlyRealization, fromStatus models.ApprovalStatus,
	action models.ApprovalAction, notes string, actor Actor) *models.ApprovalHistory {
	return &models.ApprovalHistory{
		RealizationId:   r.ID,
		FromStatus:      fromStatus,
		ToStatus:        r.Status,
		Action:          action,
		Notes:           notes,
		PerformedBy:     actor.ID,
		PerformedByName: actor.Name,
	}
}

// applyTransition mutates the realization in memory for one guard-table action
// and returns the single ledger row recording it. Nothing is written here; the
// caller persists both in one transaction. Approve also stamps the lock so a
// realization can never be APPROVED yet unlocked.
func applyTransition(r *models.MonthlyRealization, action models.ApprovalAction,
	actor Actor, now time.Time, notes string) (*models.ApprovalHistory, error) {

	fromStatus := r.Status
	toStatus, err := CheckTransition(action, fromStatus)
	if err != nil {
		return nil, err
	}

	r.Status = toStatus
	switch action {
	case models.ApprovalActionSubmit:
		r.RejectionReason = ""
		r.SubmittedBy = actor.ID
		r.SubmittedAt = &now
	case models.ApprovalActionVerify:
		r.VerifiedBy = actor.ID
		r.VerifiedAt = &now
	case models.ApprovalActionReject:
		r.RejectionReason = notes
		if fromStatus == models.ApprovalStatusSubmitted {
			r.VerifiedBy = actor.ID
			r.VerifiedAt = &now
		} else {
			r.ApprovedBy = actor.ID
			r.ApprovedAt = &now
		}
	case models.ApprovalActionApprove:
		r.ApprovedBy = actor.ID
		r.ApprovedAt = &now
		r.LockedBy = actor.ID
		r.LockedAt = &now
	}
	return historyRow(r, fromStatus, action, notes, actor), nil
}

// SubmitRealization moves a DRAFT or REJECTED realization to SUBMITTED,
// clearing any previous rejection reason.
func SubmitRealization(ctx context.Context, id int, actor Actor) (*models.MonthlyRealization, error) {
	db := config.GetDB()
	var result *models.MonthlyRealization

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		realization, err := lockForTransition(tx, id)
		if err != nil {
			return err
		}
		if realization.IsLocked() {
			return utils.NewImmutableError("realization %d is locked", realization.ID)
		}
		history, err := applyTransition(realization, models.ApprovalActionSubmit, actor, time.Now(), "")
		if err != nil {
			return err
		}
		if err := tx.Save(realization).Error; err != nil {
			return err
		}
		if err := models.SaveApprovalHistory(tx, history); err != nil {
			return err
		}
		if err := models.PublishNotification(ctx, tx, models.NotificationEventSubmitted,
			realization.ID, "MonthlyRealization", models.UserRoleFinance,
			notifyPayload(realization, actor)); err != nil {
			return err
		}
		result = realization
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// verifyInTx applies the verify effects against an already-locked row.
// Shared by the single and batch operations.
func verifyInTx(ctx context.Context, tx *gorm.DB, realization *models.MonthlyRealization, actor Actor) error {
	history, err := applyTransition(realization, models.ApprovalActionVerify, actor, time.Now(), "")
	if err != nil {
		return err
	}
	if err := tx.Save(realization).Error; err != nil {
		return err
	}
	if err := models.SaveApprovalHistory(tx, history); err != nil {
		return err
	}
	return models.PublishNotification(ctx, tx, models.NotificationEventVerified,
		realization.ID, "MonthlyRealization", models.UserRoleHead,
		notifyPayload(realization, actor))
}

func VerifyRealization(ctx context.Context, id int, actor Actor) (*models.MonthlyRealization, error) {
	db := config.GetDB()
	var result *models.MonthlyRealization

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		realization, err := lockForTransition(tx, id)
		if err != nil {
			return err
		}
		if realization.IsLocked() {
			return utils.NewImmutableError("realization %d is locked", realization.ID)
		}
		if err := verifyInTx(ctx, tx, realization, actor); err != nil {
			return err
		}
		result = realization
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RejectRealization sends a SUBMITTED or VERIFIED realization back with a
// mandatory reason. The reviewer stamp records which stage rejected it.
func RejectRealization(ctx context.Context, id int, actor Actor, reason string) (*models.MonthlyRealization, error) {
	if reason == "" {
		return nil, utils.NewValidationError("rejection reason is required")
	}

	db := config.GetDB()
	var result *models.MonthlyRealization

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		realization, err := lockForTransition(tx, id)
		if err != nil {
			return err
		}
		if realization.IsLocked() {
			return utils.NewImmutableError("realization %d is locked", realization.ID)
		}
		history, err := applyTransition(realization, models.ApprovalActionReject, actor, time.Now(), reason)
		if err != nil {
			return err
		}
		if err := tx.Save(realization).Error; err != nil {
			return err
		}
		if err := models.SaveApprovalHistory(tx, history); err != nil {
			return err
		}
		if err := models.PublishNotification(ctx, tx, models.NotificationEventRejected,
			realization.ID, "MonthlyRealization", models.UserRoleExecution,
			notifyPayload(realization, actor)); err != nil {
			return err
		}
		result = realization
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// approveInTx applies the approve effects against an already-locked row.
// Approval always locks the realization in the same transaction.
func approveInTx(ctx context.Context, tx *gorm.DB, realization *models.MonthlyRealization, actor Actor) error {
	history, err := applyTransition(realization, models.ApprovalActionApprove, actor, time.Now(), "")
	if err != nil {
		return err
	}
	if err := tx.Save(realization).Error; err != nil {
		return err
	}
	if err := models.SaveApprovalHistory(tx, history); err != nil {
		return err
	}
	return models.PublishNotification(ctx, tx, models.NotificationEventApproved,
		realization.ID, "MonthlyRealization", models.UserRoleExecution,
		notifyPayload(realization, actor))
}

func ApproveRealization(ctx context.Context, id int, actor Actor) (*models.MonthlyRealization, error) {
	db := config.GetDB()
	var result *models.MonthlyRealization

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		realization, err := lockForTransition(tx, id)
		if err != nil {
			return err
		}
		if realization.IsLocked() {
			return utils.NewImmutableError("realization %d is locked", realization.ID)
		}
		if err := approveInTx(ctx, tx, realization, actor); err != nil {
			return err
		}
		result = realization
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LockRealization is an idempotent safety net: approval already locks, but a
// missed lock on an APPROVED realization can be stamped here.
func LockRealization(ctx context.Context, id int, actor Actor) (*models.MonthlyRealization, error) {
	db := config.GetDB()
	var result *models.MonthlyRealization

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		realization, err := lockForTransition(tx, id)
		if err != nil {
			return err
		}
		if realization.Status != models.ApprovalStatusApproved {
			return utils.NewStateConflictError(string(models.ApprovalActionLock), "APPROVED", string(realization.Status))
		}
		if realization.IsLocked() {
			result = realization
			return nil
		}

		now := time.Now()
		realization.LockedBy = actor.ID
		realization.LockedAt = &now
		if err := tx.Save(realization).Error; err != nil {
			return err
		}
		if err := models.SaveApprovalHistory(tx,
			historyRow(realization, realization.Status, models.ApprovalActionLock, "", actor)); err != nil {
			return err
		}
		result = realization
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UnlockRealization clears the lock without changing status. Admin override
// only; this is the single escape hatch for correcting approved records.
func UnlockRealization(ctx context.Context, id int, actor Actor, notes string) (*models.MonthlyRealization, error) {
	if !actor.IsAdmin && actor.Role != models.UserRoleAdmin {
		return nil, utils.NewValidationError("unlock requires an admin override")
	}

	db := config.GetDB()
	var result *models.MonthlyRealization

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		realization, err := lockForTransition(tx, id)
		if err != nil {
			return err
		}
		if !realization.IsLocked() {
			result = realization
			return nil
		}

		realization.LockedBy = 0
		realization.LockedAt = nil
		if err := tx.Save(realization).Error; err != nil {
			return err
		}
		if err := models.SaveApprovalHistory(tx,
			historyRow(realization, realization.Status, models.ApprovalActionUnlock, notes, actor)); err != nil {
			return err
		}
		result = realization
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BatchResult distinguishes "nothing eligible" from partial success.
type BatchResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}

// batchStep folds one item into the batch counters. Missing rows, locked rows
// and state-guard conflicts are counted as skipped; any other error is fatal
// and rolls the whole batch back.
func batchStep(result *BatchResult, realization *models.MonthlyRealization, loadErr error,
	fn func() error) error {

	if loadErr != nil {
		result.Skipped++
		return nil
	}
	if realization.IsLocked() {
		result.Skipped++
		return nil
	}
	if err := fn(); err != nil {
		if utils.IsKind(err, utils.ErrorKindStateConflict) {
			result.Skipped++
			return nil
		}
		return err
	}
	result.Processed++
	return nil
}

// batchTransition runs fn per item inside one encompassing transaction.
func batchTransition(ctx context.Context, ids []int,
	fn func(tx *gorm.DB, realization *models.MonthlyRealization) error) (*BatchResult, error) {

	db := config.GetDB()
	result := &BatchResult{}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range utils.UniqueSlice(ids) {
			realization, loadErr := lockForTransition(tx, id)
			err := batchStep(result, realization, loadErr, func() error {
				return fn(tx, realization)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func BatchVerifyRealizations(ctx context.Context, ids []int, actor Actor) (*BatchResult, error) {
	return batchTransition(ctx, ids, func(tx *gorm.DB, realization *models.MonthlyRealization) error {
		return verifyInTx(ctx, tx, realization, actor)
	})
}

func BatchApproveRealizations(ctx context.Context, ids []int, actor Actor) (*BatchResult, error) {
	return batchTransition(ctx, ids, func(tx *gorm.DB, realization *models.MonthlyRealization) error {
		return approveInTx(ctx, tx, realization, actor)
	})
}
