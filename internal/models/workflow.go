package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// WorkflowType determines how an expense's approval chain is evaluated.
type WorkflowType string

const (
	// WorkflowSequential routes through ordered steps, one approver at a time.
	WorkflowSequential WorkflowType = "sequential"
	// WorkflowPercentage approves once enough approvers have agreed.
	WorkflowPercentage WorkflowType = "percentage"
	// WorkflowHybrid combines sequential steps with conditional overrides.
	WorkflowHybrid WorkflowType = "hybrid"
)

// ApproverRole designates who reviews a sequential step.
type ApproverRole string

const (
	ApproverManager      ApproverRole = "manager"
	ApproverFinance      ApproverRole = "finance"
	ApproverDirector     ApproverRole = "director"
	ApproverSpecificUser ApproverRole = "specific_user"
)

// ConditionalRuleType enumerates the supported conditional rule variants.
type ConditionalRuleType string

const (
	RulePercentage       ConditionalRuleType = "percentage"
	RuleSpecificApprover ConditionalRuleType = "specific_approver"
	RuleHybrid           ConditionalRuleType = "hybrid"
)

// Workflow is a company-level approval configuration. It owns its rule sets;
// deactivating a workflow deactivates the rules with it.
type Workflow struct {
	ID                  string       `db:"id" json:"id"`
	CompanyID           string       `db:"company_id" json:"company_id"`
	Name                string       `db:"name" json:"name"`
	Description         string       `db:"description" json:"description"`
	Type                WorkflowType `db:"workflow_type" json:"workflow_type"`
	PercentageThreshold int          `db:"percentage_threshold" json:"percentage_threshold"`
	Active              bool         `db:"is_active" json:"is_active"`
	CreatedAt           time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at" json:"updated_at"`

	SequentialRules  []SequentialRule  `json:"sequential_rules,omitempty"`
	ConditionalRules []ConditionalRule `json:"conditional_rules,omitempty"`
}

// SequentialRule defines one ordered step of a multi-step approval chain,
// gated by an inclusive amount range. A NULL max amount means unbounded.
type SequentialRule struct {
	ID                 string              `db:"id" json:"id"`
	WorkflowID         string              `db:"workflow_id" json:"workflow_id"`
	StepNumber         int                 `db:"step_number" json:"step_number"`
	ApproverRole       ApproverRole        `db:"approver_role" json:"approver_role"`
	SpecificApproverID *string             `db:"specific_approver_id" json:"specific_approver_id,omitempty"`
	MinAmount          decimal.Decimal     `db:"min_amount" json:"min_amount"`
	MaxAmount          decimal.NullDecimal `db:"max_amount" json:"max_amount,omitempty"`
	Required           bool                `db:"is_required" json:"is_required"`
	Active             bool                `db:"is_active" json:"is_active"`
	CreatedAt          time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updated_at"`
}

// AmountInRange reports whether amount falls inside the rule's band.
// Both boundaries are inclusive.
func (r SequentialRule) AmountInRange(amount decimal.Decimal) bool {
	if amount.LessThan(r.MinAmount) {
		return false
	}
	if r.MaxAmount.Valid && amount.GreaterThan(r.MaxAmount.Decimal) {
		return false
	}
	return true
}

// ConditionalRule defines an amount-range-gated condition that can satisfy
// approval independent of step order.
type ConditionalRule struct {
	ID                  string              `db:"id" json:"id"`
	WorkflowID          string              `db:"workflow_id" json:"workflow_id"`
	Name                string              `db:"rule_name" json:"rule_name"`
	Type                ConditionalRuleType `db:"rule_type" json:"rule_type"`
	PercentageThreshold *int                `db:"percentage_threshold" json:"percentage_threshold,omitempty"`
	SpecificApproverID  *string             `db:"specific_approver_id" json:"specific_approver_id,omitempty"`
	MinAmount           decimal.Decimal     `db:"min_amount" json:"min_amount"`
	MaxAmount           decimal.NullDecimal `db:"max_amount" json:"max_amount,omitempty"`
	Active              bool                `db:"is_active" json:"is_active"`
	CreatedAt           time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time           `db:"updated_at" json:"updated_at"`
}

// AmountInRange reports whether amount falls inside the rule's band.
func (r ConditionalRule) AmountInRange(amount decimal.Decimal) bool {
	if amount.LessThan(r.MinAmount) {
		return false
	}
	if r.MaxAmount.Valid && amount.GreaterThan(r.MaxAmount.Decimal) {
		return false
	}
	return true
}

// RuleCondition is the evaluated form of a conditional rule. The evaluator
// switches exhaustively over the three variants, so a misconfigured rule is
// rejected when the condition is built instead of silently evaluating false.
type RuleCondition interface {
	isRuleCondition()
}

// PercentageCondition is satisfied once the approved share of approvers
// reaches the threshold.
type PercentageCondition struct {
	Threshold int
}

// SpecificApproverCondition is satisfied by one designated approver.
type SpecificApproverCondition struct {
	ApproverID string
}

// HybridCondition is satisfied by either branch.
type HybridCondition struct {
	Threshold  int
	ApproverID string
}

func (PercentageCondition) isRuleCondition()       {}
func (SpecificApproverCondition) isRuleCondition() {}
func (HybridCondition) isRuleCondition()           {}

// Condition builds the typed condition for the rule. It fails when a field
// the rule type depends on is missing or out of range, which is how both
// save-time validation and the evaluator detect misconfiguration.
func (r ConditionalRule) Condition() (RuleCondition, error) {
	switch r.Type {
	case RulePercentage:
		if r.PercentageThreshold == nil {
			return nil, fmt.Errorf("rule %s: percentage rule missing threshold", r.ID)
		}
		if *r.PercentageThreshold < 1 || *r.PercentageThreshold > 100 {
			return nil, fmt.Errorf("rule %s: threshold %d outside 1-100", r.ID, *r.PercentageThreshold)
		}
		return PercentageCondition{Threshold: *r.PercentageThreshold}, nil
	case RuleSpecificApprover:
		if r.SpecificApproverID == nil || *r.SpecificApproverID == "" {
			return nil, fmt.Errorf("rule %s: specific approver rule missing approver", r.ID)
		}
		return SpecificApproverCondition{ApproverID: *r.SpecificApproverID}, nil
	case RuleHybrid:
		if r.PercentageThreshold == nil {
			return nil, fmt.Errorf("rule %s: hybrid rule missing threshold", r.ID)
		}
		if *r.PercentageThreshold < 1 || *r.PercentageThreshold > 100 {
			return nil, fmt.Errorf("rule %s: threshold %d outside 1-100", r.ID, *r.PercentageThreshold)
		}
		if r.SpecificApproverID == nil || *r.SpecificApproverID == "" {
			return nil, fmt.Errorf("rule %s: hybrid rule missing approver", r.ID)
		}
		return HybridCondition{Threshold: *r.PercentageThreshold, ApproverID: *r.SpecificApproverID}, nil
	default:
		return nil, fmt.Errorf("rule %s: unknown rule type %q", r.ID, r.Type)
	}
}

// WorkflowFilter constrains workflow listing.
type WorkflowFilter struct {
	CompanyID string
	Type      WorkflowType
	Active    *bool
}
