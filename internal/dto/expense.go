package dto

import (
	"time"

	"github.com/clearspend/expense-approval-api/internal/models"
)

// SubmitExpenseRequest creates an expense claim and initialises its chain.
type SubmitExpenseRequest struct {
	Description string  `json:"description" validate:"required"`
	Amount      string  `json:"amount" validate:"required"`
	Currency    string  `json:"currency" validate:"required,len=3"`
	ExpenseDate string  `json:"expense_date" validate:"required"`
	WorkflowID  *string `json:"workflow_id,omitempty"`
}

// SubmitExpenseResponse returns the created claim plus the routing outcome.
type SubmitExpenseResponse struct {
	Expense  *models.Expense          `json:"expense"`
	Decision *models.WorkflowDecision `json:"decision"`
}

// ExpenseListResponse wraps paginated listing output.
type ExpenseListResponse struct {
	Items      []models.Expense  `json:"items"`
	Pagination models.Pagination `json:"pagination"`
}

// ApprovalHistoryResponse is the chronological record of decisions.
type ApprovalHistoryResponse struct {
	ExpenseID string                        `json:"expense_id"`
	Entries   []models.ApprovalHistoryEntry `json:"entries"`
}

// ApprovalStatsResponse tallies an expense's records, superseded excluded.
type ApprovalStatsResponse struct {
	ExpenseID          string               `json:"expense_id"`
	Steps              models.ApprovalStats `json:"steps"`
	Rules              models.ApprovalStats `json:"rules"`
	ApprovedPercentage string               `json:"approved_percentage"`
	GeneratedAt        time.Time            `json:"generated_at"`
}
