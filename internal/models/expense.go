package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExpenseStatus is the overall lifecycle of an expense claim.
type ExpenseStatus string

const (
	ExpensePending  ExpenseStatus = "pending"
	ExpenseApproved ExpenseStatus = "approved"
	ExpenseRejected ExpenseStatus = "rejected"
)

// Expense is the claim routed through an approval workflow. The engine reads
// amount/workflow and mutates the routing and finalisation fields; amounts
// are stored in the company's base currency, already converted upstream.
type Expense struct {
	ID                string          `db:"id" json:"id"`
	CompanyID         string          `db:"company_id" json:"company_id"`
	UserID            string          `db:"user_id" json:"user_id"`
	Description       string          `db:"description" json:"description"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Currency          string          `db:"currency" json:"currency"`
	ExpenseDate       time.Time       `db:"expense_date" json:"expense_date"`
	Status            ExpenseStatus   `db:"status" json:"status"`
	WorkflowID        *string         `db:"workflow_id" json:"workflow_id,omitempty"`
	CurrentStep       int             `db:"current_step" json:"current_step"`
	CurrentApproverID *string         `db:"current_approver_id" json:"current_approver_id,omitempty"`
	FinalApprovedBy   *string         `db:"final_approved_by" json:"final_approved_by,omitempty"`
	FinalApprovedAt   *time.Time      `db:"final_approved_at" json:"final_approved_at,omitempty"`
	RejectedBy        *string         `db:"rejected_by" json:"rejected_by,omitempty"`
	RejectedAt        *time.Time      `db:"rejected_at" json:"rejected_at,omitempty"`
	RejectionReason   *string         `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// ExpenseFilter constrains expense listing queries.
type ExpenseFilter struct {
	CompanyID  string
	UserID     string
	Status     ExpenseStatus
	ApproverID string
	Page       int
	PageSize   int
}
