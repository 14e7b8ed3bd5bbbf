package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearspend/expense-approval-api/internal/models"
	appErrors "github.com/clearspend/expense-approval-api/pkg/errors"
)

func intPtr(v int) *int {
	return &v
}

func stringPtr(v string) *string {
	return &v
}

func voteRecords(statuses ...models.ApprovalStatus) []models.RuleApproval {
	records := make([]models.RuleApproval, len(statuses))
	for i, status := range statuses {
		records[i] = models.RuleApproval{
			ApproverID: string(rune('a' + i)),
			RuleID:     "rule-1",
			Status:     status,
		}
	}
	return records
}

func TestPercentageThresholdBoundary(t *testing.T) {
	evaluator := NewConditionEvaluator(nil)
	rule := models.ConditionalRule{
		ID:                  "rule-1",
		Type:                models.RulePercentage,
		PercentageThreshold: intPtr(60),
	}

	// 3 of 5 approvals is exactly 60% and meets the threshold.
	met, err := evaluator.RuleSatisfied(rule, voteRecords(
		models.ApprovalApproved, models.ApprovalApproved, models.ApprovalApproved,
		models.ApprovalPending, models.ApprovalPending,
	))
	require.NoError(t, err)
	assert.True(t, met)

	// 2 of 5 is 40% and does not.
	met, err = evaluator.RuleSatisfied(rule, voteRecords(
		models.ApprovalApproved, models.ApprovalApproved,
		models.ApprovalPending, models.ApprovalPending, models.ApprovalPending,
	))
	require.NoError(t, err)
	assert.False(t, met)
}

func TestPercentageEmptyPoolNeverSatisfies(t *testing.T) {
	evaluator := NewConditionEvaluator(nil)
	rule := models.ConditionalRule{
		ID:                  "rule-1",
		Type:                models.RulePercentage,
		PercentageThreshold: intPtr(1),
	}
	met, err := evaluator.RuleSatisfied(rule, nil)
	require.NoError(t, err)
	assert.False(t, met)
}

func TestPercentageExcludesSupersededFromDenominator(t *testing.T) {
	evaluator := NewConditionEvaluator(nil)
	rule := models.ConditionalRule{
		ID:                  "rule-1",
		Type:                models.RulePercentage,
		PercentageThreshold: intPtr(60),
	}
	// 3 approved of 5 live records meets 60% even with superseded rows present.
	records := voteRecords(
		models.ApprovalApproved, models.ApprovalApproved, models.ApprovalApproved,
		models.ApprovalPending, models.ApprovalPending,
		models.ApprovalSuperseded, models.ApprovalSuperseded,
	)
	met, err := evaluator.RuleSatisfied(rule, records)
	require.NoError(t, err)
	assert.True(t, met)
}

func TestSpecificApproverCondition(t *testing.T) {
	evaluator := NewConditionEvaluator(nil)
	rule := models.ConditionalRule{
		ID:                 "rule-1",
		Type:               models.RuleSpecificApprover,
		SpecificApproverID: stringPtr("cfo-1"),
	}

	records := []models.RuleApproval{
		{ApproverID: "mgr-1", Status: models.ApprovalApproved},
		{ApproverID: "cfo-1", Status: models.ApprovalPending},
	}
	met, err := evaluator.RuleSatisfied(rule, records)
	require.NoError(t, err)
	assert.False(t, met)

	records[1].Status = models.ApprovalApproved
	met, err = evaluator.RuleSatisfied(rule, records)
	require.NoError(t, err)
	assert.True(t, met)
}

func TestHybridRuleCFOAloneSatisfies(t *testing.T) {
	evaluator := NewConditionEvaluator(nil)
	rule := models.ConditionalRule{
		ID:                  "rule-1",
		Type:                models.RuleHybrid,
		PercentageThreshold: intPtr(60),
		SpecificApproverID:  stringPtr("cfo-1"),
	}

	// The designated approver alone satisfies the rule at 1 of 5 approvals.
	records := []models.RuleApproval{
		{ApproverID: "cfo-1", Status: models.ApprovalApproved},
		{ApproverID: "a", Status: models.ApprovalPending},
		{ApproverID: "b", Status: models.ApprovalPending},
		{ApproverID: "c", Status: models.ApprovalPending},
		{ApproverID: "d", Status: models.ApprovalPending},
	}
	met, err := evaluator.RuleSatisfied(rule, records)
	require.NoError(t, err)
	assert.True(t, met)
}

func TestHybridRuleQuorumBranch(t *testing.T) {
	evaluator := NewConditionEvaluator(nil)
	rule := models.ConditionalRule{
		ID:                  "rule-1",
		Type:                models.RuleHybrid,
		PercentageThreshold: intPtr(50),
		SpecificApproverID:  stringPtr("cfo-1"),
	}
	records := []models.RuleApproval{
		{ApproverID: "a", Status: models.ApprovalApproved},
		{ApproverID: "b", Status: models.ApprovalApproved},
		{ApproverID: "cfo-1", Status: models.ApprovalPending},
		{ApproverID: "c", Status: models.ApprovalPending},
	}
	met, err := evaluator.RuleSatisfied(rule, records)
	require.NoError(t, err)
	assert.True(t, met)
}

func TestMisconfiguredRuleFailsLoudly(t *testing.T) {
	evaluator := NewConditionEvaluator(nil)

	cases := []models.ConditionalRule{
		{ID: "r1", Type: models.RulePercentage},
		{ID: "r2", Type: models.RulePercentage, PercentageThreshold: intPtr(0)},
		{ID: "r3", Type: models.RulePercentage, PercentageThreshold: intPtr(101)},
		{ID: "r4", Type: models.RuleSpecificApprover},
		{ID: "r5", Type: models.RuleHybrid, PercentageThreshold: intPtr(60)},
		{ID: "r6", Type: models.ConditionalRuleType("unknown")},
	}
	for _, rule := range cases {
		_, err := evaluator.RuleSatisfied(rule, voteRecords(models.ApprovalApproved))
		assert.True(t, appErrors.Is(err, appErrors.ErrInvalidRuleConfig), "rule %s should fail", rule.ID)
	}
}

func TestFirstSatisfiedIsOrAcrossRules(t *testing.T) {
	evaluator := NewConditionEvaluator(nil)
	rules := []models.ConditionalRule{
		{ID: "quorum", Type: models.RulePercentage, PercentageThreshold: intPtr(90)},
		{ID: "cfo", Type: models.RuleSpecificApprover, SpecificApproverID: stringPtr("cfo-1")},
	}
	records := []models.RuleApproval{
		{ApproverID: "cfo-1", Status: models.ApprovalApproved},
		{ApproverID: "a", Status: models.ApprovalPending},
	}

	satisfied, err := evaluator.FirstSatisfied(rules, records)
	require.NoError(t, err)
	require.NotNil(t, satisfied)
	assert.Equal(t, "cfo", satisfied.ID)
}

func TestFirstSatisfiedNoneMet(t *testing.T) {
	evaluator := NewConditionEvaluator(nil)
	rules := []models.ConditionalRule{
		{ID: "quorum", Type: models.RulePercentage, PercentageThreshold: intPtr(90)},
	}
	satisfied, err := evaluator.FirstSatisfied(rules, voteRecords(models.ApprovalPending, models.ApprovalPending))
	require.NoError(t, err)
	assert.Nil(t, satisfied)
}
