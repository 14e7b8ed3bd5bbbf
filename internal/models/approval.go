package models

import "time"

// ApprovalStatus tracks the lifecycle of a single approval record.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	// ApprovalSuperseded marks records made moot when a conditional override
	// finalised the expense before their step was reached.
	ApprovalSuperseded ApprovalStatus = "superseded"
)

// Terminal reports whether the status accepts no further transitions.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected || s == ApprovalSuperseded
}

// StepApproval is the durable per-approver record for one sequential step.
// approved_at is stamped exactly once, on the first transition to approved;
// a rejection never sets it.
type StepApproval struct {
	ID         string         `db:"id" json:"id"`
	ExpenseID  string         `db:"expense_id" json:"expense_id"`
	ApproverID string         `db:"approver_id" json:"approver_id"`
	StepNumber int            `db:"step_number" json:"step_number"`
	Status     ApprovalStatus `db:"status" json:"status"`
	Comment    *string        `db:"comment" json:"comment,omitempty"`
	ApprovedAt *time.Time     `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// RuleApproval is the durable per-approver record under one conditional rule.
type RuleApproval struct {
	ID         string         `db:"id" json:"id"`
	ExpenseID  string         `db:"expense_id" json:"expense_id"`
	ApproverID string         `db:"approver_id" json:"approver_id"`
	RuleID     string         `db:"rule_id" json:"rule_id"`
	Status     ApprovalStatus `db:"status" json:"status"`
	Comment    *string        `db:"comment" json:"comment,omitempty"`
	ApprovedAt *time.Time     `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// ApprovalStats tallies an expense's approval records by status.
// Superseded records are excluded from the tally.
type ApprovalStats struct {
	Total    int `db:"total" json:"total"`
	Approved int `db:"approved" json:"approved"`
	Rejected int `db:"rejected" json:"rejected"`
	Pending  int `db:"pending" json:"pending"`
}

// ApprovalSource distinguishes step records from rule records in history.
type ApprovalSource string

const (
	SourceStep ApprovalSource = "step"
	SourceRule ApprovalSource = "rule"
)

// ApprovalHistoryEntry is the read model consumed by display layers.
type ApprovalHistoryEntry struct {
	ApproverID   string         `json:"approver_id"`
	ApproverName string         `json:"approver_name"`
	Role         UserRole       `json:"role"`
	Source       ApprovalSource `json:"source"`
	StepNumber   *int           `json:"step_number,omitempty"`
	RuleName     *string        `json:"rule_name,omitempty"`
	Status       ApprovalStatus `json:"status"`
	Comment      *string        `json:"comment,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// DecisionState is the orchestrator's view of an expense's approval state.
type DecisionState string

const (
	StatePendingStep       DecisionState = "PENDING_STEP"
	StatePendingConditions DecisionState = "PENDING_CONDITIONS"
	StateApproved          DecisionState = "APPROVED"
	StateRejected          DecisionState = "REJECTED"
)

// WorkflowDecision is returned to callers after every approval event.
type WorkflowDecision struct {
	State           DecisionState `json:"state"`
	Finalized       bool          `json:"finalized"`
	NextStep        *int          `json:"next_step,omitempty"`
	NextApproverID  *string       `json:"next_approver_id,omitempty"`
	SatisfiedRuleID *string       `json:"satisfied_rule_id,omitempty"`
}
