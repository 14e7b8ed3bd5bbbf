package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/clearspend/expense-approval-api/internal/models"
)

// SequentialRuleRepository reads ordered step rules for the matcher.
type SequentialRuleRepository struct {
	db *sqlx.DB
}

// NewSequentialRuleRepository constructs the repository.
func NewSequentialRuleRepository(db *sqlx.DB) *SequentialRuleRepository {
	return &SequentialRuleRepository{db: db}
}

const sequentialRuleColumns = `id, workflow_id, step_number, approver_role, specific_approver_id,
       min_amount, max_amount, is_required, is_active, created_at, updated_at`

// ListByWorkflow returns the workflow's active rules in step order.
func (r *SequentialRuleRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]models.SequentialRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM sequential_rules
	WHERE workflow_id = $1 AND is_active = TRUE
	ORDER BY step_number ASC`, sequentialRuleColumns)
	var rules []models.SequentialRule
	if err := r.db.SelectContext(ctx, &rules, query, workflowID); err != nil {
		return nil, fmt.Errorf("list sequential rules: %w", err)
	}
	return rules, nil
}

// FindApplicable returns the lowest-step active rule whose inclusive range
// contains the amount. A NULL max amount is unbounded. sql.ErrNoRows is
// passed through when nothing matches.
func (r *SequentialRuleRepository) FindApplicable(ctx context.Context, workflowID string, amount decimal.Decimal) (*models.SequentialRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM sequential_rules
	WHERE workflow_id = $1 AND is_active = TRUE
	  AND min_amount <= $2 AND (max_amount IS NULL OR max_amount >= $2)
	ORDER BY step_number ASC LIMIT 1`, sequentialRuleColumns)
	var rule models.SequentialRule
	if err := r.db.GetContext(ctx, &rule, query, workflowID, amount); err != nil {
		return nil, err
	}
	return &rule, nil
}
