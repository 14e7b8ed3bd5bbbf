package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clearspend/expense-approval-api/internal/models"
	"github.com/clearspend/expense-approval-api/internal/repository"
	appErrors "github.com/clearspend/expense-approval-api/pkg/errors"
)

type sequentialRuleReader interface {
	ListByWorkflow(ctx context.Context, workflowID string) ([]models.SequentialRule, error)
}

type conditionalRuleReader interface {
	ListByWorkflow(ctx context.Context, workflowID string) ([]models.ConditionalRule, error)
}

type ruleCache interface {
	Get(ctx context.Context, workflowID string) (*repository.WorkflowRules, error)
	Set(ctx context.Context, rules *repository.WorkflowRules, ttl time.Duration) error
	Invalidate(ctx context.Context, workflowID string) error
}

// RuleMatcherConfig tunes rule caching.
type RuleMatcherConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// RuleMatcher selects which rules govern an expense. Matching is by amount:
// a rule applies when the amount falls inside its inclusive band, with NULL
// max meaning unbounded. Sequential matching picks the lowest step; several
// conditional rules can apply at once.
type RuleMatcher struct {
	sequential  sequentialRuleReader
	conditional conditionalRuleReader
	cache       ruleCache
	logger      *zap.Logger
	metrics     *MetricsService
	cfg         RuleMatcherConfig
}

// NewRuleMatcher constructs a RuleMatcher.
func NewRuleMatcher(sequential sequentialRuleReader, conditional conditionalRuleReader, cache ruleCache, logger *zap.Logger, cfg RuleMatcherConfig) *RuleMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &RuleMatcher{
		sequential:  sequential,
		conditional: conditional,
		cache:       cache,
		logger:      logger,
		cfg:         cfg,
	}
}

// WithMetrics attaches cache hit/miss counters.
func (m *RuleMatcher) WithMetrics(metrics *MetricsService) *RuleMatcher {
	m.metrics = metrics
	return m
}

// FindSequentialRule returns the lowest-numbered active step rule whose band
// contains the amount, or ErrNoApplicableRule.
func (m *RuleMatcher) FindSequentialRule(ctx context.Context, workflowID string, amount decimal.Decimal) (*models.SequentialRule, error) {
	rules, err := m.loadRules(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	for i := range rules.SequentialRules {
		if rules.SequentialRules[i].AmountInRange(amount) {
			rule := rules.SequentialRules[i]
			return &rule, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNoApplicableRule, "")
}

// SequentialChain returns every active step rule whose band contains the
// amount, in step order. This is the full chain the expense will route
// through, not just the first step.
func (m *RuleMatcher) SequentialChain(ctx context.Context, workflowID string, amount decimal.Decimal) ([]models.SequentialRule, error) {
	rules, err := m.loadRules(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	chain := make([]models.SequentialRule, 0, len(rules.SequentialRules))
	for _, rule := range rules.SequentialRules {
		if rule.AmountInRange(amount) {
			chain = append(chain, rule)
		}
	}
	sort.SliceStable(chain, func(i, j int) bool { return chain[i].StepNumber < chain[j].StepNumber })
	return chain, nil
}

// ConditionalRules returns every active conditional rule whose band contains
// the amount. An empty slice is a valid result, not an error.
func (m *RuleMatcher) ConditionalRules(ctx context.Context, workflowID string, amount decimal.Decimal) ([]models.ConditionalRule, error) {
	rules, err := m.loadRules(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	applicable := make([]models.ConditionalRule, 0, len(rules.ConditionalRules))
	for _, rule := range rules.ConditionalRules {
		if rule.AmountInRange(amount) {
			applicable = append(applicable, rule)
		}
	}
	return applicable, nil
}

// InvalidateWorkflow drops the cached rule bundle after an admin change.
func (m *RuleMatcher) InvalidateWorkflow(ctx context.Context, workflowID string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Invalidate(ctx, workflowID); err != nil {
		m.logger.Warn("failed to invalidate rule cache", zap.String("workflow_id", workflowID), zap.Error(err))
	}
}

func (m *RuleMatcher) loadRules(ctx context.Context, workflowID string) (*repository.WorkflowRules, error) {
	if m.cfg.CacheEnabled && m.cache != nil {
		cached, err := m.cache.Get(ctx, workflowID)
		if err == nil {
			m.metrics.RecordCacheLookup(true)
			return cached, nil
		}
		m.metrics.RecordCacheLookup(false)
		if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			m.logger.Warn("rule cache read failed", zap.String("workflow_id", workflowID), zap.Error(err))
		}
	}

	sequential, err := m.sequential.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sequential rules")
	}
	conditional, err := m.conditional.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conditional rules")
	}

	rules := &repository.WorkflowRules{
		WorkflowID:       workflowID,
		SequentialRules:  sequential,
		ConditionalRules: conditional,
	}
	if m.cfg.CacheEnabled && m.cache != nil {
		if err := m.cache.Set(ctx, rules, m.cfg.CacheTTL); err != nil {
			m.logger.Warn("rule cache write failed", zap.String("workflow_id", workflowID), zap.Error(err))
		}
	}
	return rules, nil
}
