package models

import "errors"

type ApprovalStatus string

const (
	ApprovalStatusDraft     ApprovalStatus = "DRAFT"
	ApprovalStatusSubmitted ApprovalStatus = "SUBMITTED"
	ApprovalStatusVerified  ApprovalStatus = "VERIFIED"
	ApprovalStatusApproved  ApprovalStatus = "APPROVED"
	ApprovalStatusRejected  ApprovalStatus = "REJECTED"
)

func ParseApprovalStatus(s string) (ApprovalStatus, error) {
	statuses := map[string]ApprovalStatus{
		"DRAFT":     ApprovalStatusDraft,
		"SUBMITTED": ApprovalStatusSubmitted,
		"VERIFIED":  ApprovalStatusVerified,
		"APPROVED":  ApprovalStatusApproved,
		"REJECTED":  ApprovalStatusRejected,
	}
	status, ok := statuses[s]
	if !ok {
		return "", errors.New("invalid approval status")
	}
	return status, nil
}

// IsEditable reports whether realization fields may still change in this
// status. The locked flag is checked separately.
func (s ApprovalStatus) IsEditable() bool {
	return s == ApprovalStatusDraft || s == ApprovalStatusRejected
}

type ApprovalAction string

const (
	ApprovalActionSubmit  ApprovalAction = "submit"
	ApprovalActionVerify  ApprovalAction = "verify"
	ApprovalActionReject  ApprovalAction = "reject"
	ApprovalActionApprove ApprovalAction = "approve"
	ApprovalActionLock    ApprovalAction = "lock"
	ApprovalActionUnlock  ApprovalAction = "unlock"
)

type UserRole string

const (
	UserRoleAdmin     UserRole = "Admin"
	UserRoleHead      UserRole = "Head"
	UserRoleFinance   UserRole = "Finance"
	UserRolePlanning  UserRole = "Planning"
	UserRoleExecution UserRole = "Execution"
)

func ParseUserRole(s string) (UserRole, error) {
	roles := map[string]UserRole{
		"Admin":     UserRoleAdmin,
		"Head":      UserRoleHead,
		"Finance":   UserRoleFinance,
		"Planning":  UserRolePlanning,
		"Execution": UserRoleExecution,
	}
	role, ok := roles[s]
	if !ok {
		return "", errors.New("invalid user role")
	}
	return role, nil
}

type AlertType string

const (
	AlertTypeNotRealized         AlertType = "NOT_REALIZED"
	AlertTypeUnderRealization    AlertType = "UNDER_REALIZATION"
	AlertTypeOverRealization     AlertType = "OVER_REALIZATION"
	AlertTypeDeadlineApproaching AlertType = "DEADLINE_APPROACHING"
)

type AlertSeverity string

const (
	AlertSeverityMedium   AlertSeverity = "MEDIUM"
	AlertSeverityHigh     AlertSeverity = "HIGH"
	AlertSeverityCritical AlertSeverity = "CRITICAL"
)

type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "ACTIVE"
	AlertStatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertStatusResolved     AlertStatus = "RESOLVED"
	AlertStatusDismissed    AlertStatus = "DISMISSED"
)

// IsTerminal reports whether the alert can no longer change status.
func (s AlertStatus) IsTerminal() bool {
	return s == AlertStatusResolved || s == AlertStatusDismissed
}

type NotificationEvent string

const (
	NotificationEventSubmitted  NotificationEvent = "realization.submitted"
	NotificationEventVerified   NotificationEvent = "realization.verified"
	NotificationEventRejected   NotificationEvent = "realization.rejected"
	NotificationEventApproved   NotificationEvent = "realization.approved"
	NotificationEventAlertBatch NotificationEvent = "deviation.alert_batch"
)
