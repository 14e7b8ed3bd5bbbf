package dto

import "github.com/clearspend/expense-approval-api/internal/models"

// ApprovalDecisionRequest records one approver's verdict on an expense.
type ApprovalDecisionRequest struct {
	Decision string  `json:"decision" validate:"required,oneof=approved rejected"`
	Comment  *string `json:"comment,omitempty"`
}

// ApprovalDecisionResponse reports the chain state after the decision.
type ApprovalDecisionResponse struct {
	ExpenseID     string                   `json:"expense_id"`
	ExpenseStatus models.ExpenseStatus     `json:"expense_status"`
	Decision      *models.WorkflowDecision `json:"decision"`
}

// PendingApprovalItem is one queue entry awaiting the authenticated approver.
type PendingApprovalItem struct {
	ExpenseID   string                `json:"expense_id"`
	Source      models.ApprovalSource `json:"source"`
	StepNumber  *int                  `json:"step_number,omitempty"`
	RuleID      *string               `json:"rule_id,omitempty"`
	Description string                `json:"description"`
	Amount      string                `json:"amount"`
	Currency    string                `json:"currency"`
	SubmittedBy string                `json:"submitted_by"`
}
