package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearspend/expense-approval-api/internal/models"
	"github.com/clearspend/expense-approval-api/internal/repository"
	appErrors "github.com/clearspend/expense-approval-api/pkg/errors"
)

type sequentialRuleRepoStub struct {
	rules []models.SequentialRule
	calls int
	err   error
}

func (s *sequentialRuleRepoStub) ListByWorkflow(ctx context.Context, workflowID string) ([]models.SequentialRule, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.rules, nil
}

type conditionalRuleRepoStub struct {
	rules []models.ConditionalRule
	err   error
}

func (s *conditionalRuleRepoStub) ListByWorkflow(ctx context.Context, workflowID string) ([]models.ConditionalRule, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rules, nil
}

type ruleCacheStub struct {
	bundles map[string]*repository.WorkflowRules
	sets    int
}

func (c *ruleCacheStub) Get(ctx context.Context, workflowID string) (*repository.WorkflowRules, error) {
	if bundle, ok := c.bundles[workflowID]; ok {
		return bundle, nil
	}
	return nil, appErrors.ErrCacheMiss
}

func (c *ruleCacheStub) Set(ctx context.Context, rules *repository.WorkflowRules, ttl time.Duration) error {
	if c.bundles == nil {
		c.bundles = make(map[string]*repository.WorkflowRules)
	}
	c.bundles[rules.WorkflowID] = rules
	c.sets++
	return nil
}

func (c *ruleCacheStub) Invalidate(ctx context.Context, workflowID string) error {
	delete(c.bundles, workflowID)
	return nil
}

func defaultTierRules() []models.SequentialRule {
	return []models.SequentialRule{
		{
			ID:           "tier-manager",
			StepNumber:   1,
			ApproverRole: models.ApproverManager,
			MinAmount:    decimal.Zero,
			MaxAmount:    decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		},
		{
			ID:           "tier-finance",
			StepNumber:   2,
			ApproverRole: models.ApproverFinance,
			MinAmount:    decimal.RequireFromString("1000.01"),
			MaxAmount:    decimal.NewNullDecimal(decimal.NewFromInt(5000)),
		},
		{
			ID:           "tier-director",
			StepNumber:   3,
			ApproverRole: models.ApproverDirector,
			MinAmount:    decimal.RequireFromString("5000.01"),
		},
	}
}

func TestRuleMatcherTierSelection(t *testing.T) {
	matcher := NewRuleMatcher(
		&sequentialRuleRepoStub{rules: defaultTierRules()},
		&conditionalRuleRepoStub{},
		nil, nil, RuleMatcherConfig{})

	cases := []struct {
		amount string
		want   string
	}{
		{"500", "tier-manager"},
		{"3000", "tier-finance"},
		{"8000", "tier-director"},
		{"1000", "tier-manager"},
		{"1000.01", "tier-finance"},
		{"5000", "tier-finance"},
		{"5000.01", "tier-director"},
	}
	for _, tc := range cases {
		rule, err := matcher.FindSequentialRule(context.Background(), "wf-1", decimal.RequireFromString(tc.amount))
		require.NoError(t, err, "amount %s", tc.amount)
		assert.Equal(t, tc.want, rule.ID, "amount %s", tc.amount)
	}
}

func TestRuleMatcherNoApplicableRule(t *testing.T) {
	rules := []models.SequentialRule{{
		ID:         "capped",
		StepNumber: 1,
		MinAmount:  decimal.NewFromInt(100),
		MaxAmount:  decimal.NewNullDecimal(decimal.NewFromInt(200)),
	}}
	matcher := NewRuleMatcher(&sequentialRuleRepoStub{rules: rules}, &conditionalRuleRepoStub{}, nil, nil, RuleMatcherConfig{})

	_, err := matcher.FindSequentialRule(context.Background(), "wf-1", decimal.NewFromInt(50))
	assert.True(t, appErrors.Is(err, appErrors.ErrNoApplicableRule))
}

func TestRuleMatcherSequentialChainOrdered(t *testing.T) {
	rules := defaultTierRules()
	// Present out of order; the chain must come back step-sorted.
	rules[0], rules[2] = rules[2], rules[0]
	matcher := NewRuleMatcher(&sequentialRuleRepoStub{rules: rules}, &conditionalRuleRepoStub{}, nil, nil, RuleMatcherConfig{})

	chain, err := matcher.SequentialChain(context.Background(), "wf-1", decimal.NewFromInt(500))
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, "tier-manager", chain[0].ID)
}

func TestRuleMatcherConditionalRulesByBand(t *testing.T) {
	conditional := &conditionalRuleRepoStub{rules: []models.ConditionalRule{
		{ID: "low-band", MinAmount: decimal.Zero, MaxAmount: decimal.NewNullDecimal(decimal.NewFromInt(1000))},
		{ID: "unbounded", MinAmount: decimal.Zero},
	}}
	matcher := NewRuleMatcher(&sequentialRuleRepoStub{}, conditional, nil, nil, RuleMatcherConfig{})

	rules, err := matcher.ConditionalRules(context.Background(), "wf-1", decimal.NewFromInt(5000))
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "unbounded", rules[0].ID)
}

func TestRuleMatcherCachesBundles(t *testing.T) {
	sequential := &sequentialRuleRepoStub{rules: defaultTierRules()}
	cache := &ruleCacheStub{}
	matcher := NewRuleMatcher(sequential, &conditionalRuleRepoStub{}, cache, nil, RuleMatcherConfig{CacheEnabled: true, CacheTTL: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := matcher.FindSequentialRule(context.Background(), "wf-1", decimal.NewFromInt(500))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, sequential.calls, "repository consulted once, cache after")
	assert.Equal(t, 1, cache.sets)

	matcher.InvalidateWorkflow(context.Background(), "wf-1")
	_, err := matcher.FindSequentialRule(context.Background(), "wf-1", decimal.NewFromInt(500))
	require.NoError(t, err)
	assert.Equal(t, 2, sequential.calls)
}
