package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/clearspend/expense-approval-api/internal/models"
)

// ConditionalRuleRepository reads conditional rules for the matcher.
type ConditionalRuleRepository struct {
	db *sqlx.DB
}

// NewConditionalRuleRepository constructs the repository.
func NewConditionalRuleRepository(db *sqlx.DB) *ConditionalRuleRepository {
	return &ConditionalRuleRepository{db: db}
}

const conditionalRuleColumns = `id, workflow_id, rule_name, rule_type, percentage_threshold, specific_approver_id,
       min_amount, max_amount, is_active, created_at, updated_at`

// ListByWorkflow returns the workflow's active conditional rules.
func (r *ConditionalRuleRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]models.ConditionalRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM conditional_rules
	WHERE workflow_id = $1 AND is_active = TRUE
	ORDER BY created_at ASC`, conditionalRuleColumns)
	var rules []models.ConditionalRule
	if err := r.db.SelectContext(ctx, &rules, query, workflowID); err != nil {
		return nil, fmt.Errorf("list conditional rules: %w", err)
	}
	return rules, nil
}

// FindApplicable returns every active conditional rule whose inclusive range
// contains the amount. Unlike sequential matching, several rules can apply
// to one expense at once.
func (r *ConditionalRuleRepository) FindApplicable(ctx context.Context, workflowID string, amount decimal.Decimal) ([]models.ConditionalRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM conditional_rules
	WHERE workflow_id = $1 AND is_active = TRUE
	  AND min_amount <= $2 AND (max_amount IS NULL OR max_amount >= $2)
	ORDER BY created_at ASC`, conditionalRuleColumns)
	var rules []models.ConditionalRule
	if err := r.db.SelectContext(ctx, &rules, query, workflowID, amount); err != nil {
		return nil, fmt.Errorf("find applicable conditional rules: %w", err)
	}
	return rules, nil
}
