package service

import (
	"go.uber.org/zap"

	"github.com/clearspend/expense-approval-api/internal/models"
	appErrors "github.com/clearspend/expense-approval-api/pkg/errors"
)

// ConditionEvaluator decides whether conditional rules are satisfied by the
// approvals recorded so far. It is pure over its inputs; persistence stays
// with the orchestrator.
type ConditionEvaluator struct {
	logger *zap.Logger
}

// NewConditionEvaluator constructs a ConditionEvaluator.
func NewConditionEvaluator(logger *zap.Logger) *ConditionEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConditionEvaluator{logger: logger}
}

// RuleSatisfied evaluates one rule against the expense's rule records. A
// misconfigured rule surfaces as ErrInvalidRuleConfig rather than silently
// evaluating false, so bad configurations are caught loudly.
func (e *ConditionEvaluator) RuleSatisfied(rule models.ConditionalRule, approvals []models.RuleApproval) (bool, error) {
	condition, err := rule.Condition()
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInvalidRuleConfig.Code, appErrors.ErrInvalidRuleConfig.Status, appErrors.ErrInvalidRuleConfig.Message)
	}

	switch c := condition.(type) {
	case models.PercentageCondition:
		return percentageMet(c.Threshold, approvals), nil
	case models.SpecificApproverCondition:
		return approverApproved(c.ApproverID, approvals), nil
	case models.HybridCondition:
		if approverApproved(c.ApproverID, approvals) {
			return true, nil
		}
		return percentageMet(c.Threshold, approvals), nil
	default:
		return false, appErrors.Clone(appErrors.ErrInvalidRuleConfig, "unhandled rule condition")
	}
}

// FirstSatisfied evaluates the rules in order and returns the first satisfied
// one, or nil when none is met. Rules combine as OR: any single satisfied
// rule is enough to finalise the expense.
func (e *ConditionEvaluator) FirstSatisfied(rules []models.ConditionalRule, approvals []models.RuleApproval) (*models.ConditionalRule, error) {
	for i := range rules {
		met, err := e.RuleSatisfied(rules[i], approvals)
		if err != nil {
			return nil, err
		}
		if met {
			rule := rules[i]
			e.logger.Debug("conditional rule satisfied",
				zap.String("rule_id", rule.ID),
				zap.String("rule_type", string(rule.Type)))
			return &rule, nil
		}
	}
	return nil, nil
}

// AnyRejected reports whether any eligible approver has vetoed. A single
// rejection under any rule is final regardless of the remaining votes.
func (e *ConditionEvaluator) AnyRejected(approvals []models.RuleApproval) bool {
	for _, approval := range approvals {
		if approval.Status == models.ApprovalRejected {
			return true
		}
	}
	return false
}

// percentageMet checks approved/total against the threshold using cross
// multiplication, so 1/3 against 33% stays exact. Superseded records are
// outside the denominator; an empty pool can never satisfy a percentage.
func percentageMet(threshold int, approvals []models.RuleApproval) bool {
	total, approved := 0, 0
	for _, approval := range approvals {
		if approval.Status == models.ApprovalSuperseded {
			continue
		}
		total++
		if approval.Status == models.ApprovalApproved {
			approved++
		}
	}
	if total == 0 {
		return false
	}
	return approved*100 >= threshold*total
}

func approverApproved(approverID string, approvals []models.RuleApproval) bool {
	for _, approval := range approvals {
		if approval.ApproverID == approverID && approval.Status == models.ApprovalApproved {
			return true
		}
	}
	return false
}
