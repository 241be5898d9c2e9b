package models

// Presentation metadata for enums lives here as pure lookups, kept apart from
// the enum definitions so domain code never depends on display concerns.

func ApprovalStatusLabel(s ApprovalStatus) string {
	labels := map[ApprovalStatus]string{
		ApprovalStatusDraft:     "Draft",
		ApprovalStatusSubmitted: "Waiting Verification",
		ApprovalStatusVerified:  "Waiting Approval",
		ApprovalStatusApproved:  "Approved",
		ApprovalStatusRejected:  "Rejected",
	}
	if label, ok := labels[s]; ok {
		return label
	}
	return string(s)
}

func ApprovalStatusColor(s ApprovalStatus) string {
	colors := map[ApprovalStatus]string{
		ApprovalStatusDraft:     "gray",
		ApprovalStatusSubmitted: "yellow",
		ApprovalStatusVerified:  "blue",
		ApprovalStatusApproved:  "green",
		ApprovalStatusRejected:  "red",
	}
	if color, ok := colors[s]; ok {
		return color
	}
	return "gray"
}

func UserRoleLabel(r UserRole) string {
	labels := map[UserRole]string{
		UserRoleAdmin:     "Administrator",
		UserRoleHead:      "Department Head",
		UserRoleFinance:   "Finance Officer",
		UserRolePlanning:  "Planning Officer",
		UserRoleExecution: "Execution Officer",
	}
	if label, ok := labels[r]; ok {
		return label
	}
	return string(r)
}

func AlertSeverityColor(s AlertSeverity) string {
	colors := map[AlertSeverity]string{
		AlertSeverityMedium:   "yellow",
		AlertSeverityHigh:     "orange",
		AlertSeverityCritical: "red",
	}
	if color, ok := colors[s]; ok {
		return color
	}
	return "gray"
}
