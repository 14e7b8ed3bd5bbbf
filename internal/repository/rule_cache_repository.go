package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clearspend/expense-approval-api/internal/models"
	appErrors "github.com/clearspend/expense-approval-api/pkg/errors"
)

// WorkflowRules bundles the active rule sets of one workflow for caching.
type WorkflowRules struct {
	WorkflowID       string                   `json:"workflow_id"`
	SequentialRules  []models.SequentialRule  `json:"sequential_rules"`
	ConditionalRules []models.ConditionalRule `json:"conditional_rules"`
}

// RuleCacheRepository caches workflow rule sets in Redis so evaluation does
// not hit Postgres on every decision. A nil client degrades to pass-through.
type RuleCacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRuleCacheRepository constructs the cache repository.
func NewRuleCacheRepository(client *redis.Client, logger *zap.Logger) *RuleCacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleCacheRepository{client: client, logger: logger}
}

func ruleCacheKey(workflowID string) string {
	return fmt.Sprintf("approval:rules:%s", workflowID)
}

// Get retrieves the cached rule bundle for the workflow.
func (r *RuleCacheRepository) Get(ctx context.Context, workflowID string) (*WorkflowRules, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, ruleCacheKey(workflowID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get rules for %s: %w", workflowID, err)
	}

	var rules WorkflowRules
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("unmarshal cached rules for %s: %w", workflowID, err)
	}
	return &rules, nil
}

// Set stores the rule bundle with the configured TTL.
func (r *RuleCacheRepository) Set(ctx context.Context, rules *WorkflowRules, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("marshal rules for %s: %w", rules.WorkflowID, err)
	}

	if err := r.client.Set(ctx, ruleCacheKey(rules.WorkflowID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set rules for %s: %w", rules.WorkflowID, err)
	}
	return nil
}

// Invalidate drops the cached bundle after a workflow changes.
func (r *RuleCacheRepository) Invalidate(ctx context.Context, workflowID string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, ruleCacheKey(workflowID)).Err(); err != nil {
		return fmt.Errorf("redis delete rules for %s: %w", workflowID, err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *RuleCacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
