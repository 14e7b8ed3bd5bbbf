package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clearspend/expense-approval-api/internal/models"
)

// RuleApprovalRepository persists per-rule approval records for conditional
// workflows. The same pending-guard discipline as step approvals applies.
type RuleApprovalRepository struct {
	db *sqlx.DB
}

// NewRuleApprovalRepository constructs the repository.
func NewRuleApprovalRepository(db *sqlx.DB) *RuleApprovalRepository {
	return &RuleApprovalRepository{db: db}
}

const ruleApprovalColumns = `id, expense_id, approver_id, rule_id, status, comment, approved_at, created_at, updated_at`

// CreateBatch inserts the pending records for a freshly submitted expense.
func (r *RuleApprovalRepository) CreateBatch(ctx context.Context, approvals []models.RuleApproval) error {
	if len(approvals) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	const query = `INSERT INTO rule_approvals
	(id, expense_id, approver_id, rule_id, status, comment, approved_at, created_at, updated_at)
	VALUES (:id, :expense_id, :approver_id, :rule_id, :status, :comment, :approved_at, :created_at, :updated_at)`
	for i := range approvals {
		if approvals[i].ID == "" {
			approvals[i].ID = uuid.NewString()
		}
		if approvals[i].Status == "" {
			approvals[i].Status = models.ApprovalPending
		}
		if approvals[i].CreatedAt.IsZero() {
			approvals[i].CreatedAt = now
		}
		approvals[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, approvals[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert rule approval: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rule approvals: %w", err)
	}
	return nil
}

// ListByExpense returns all records for the expense in creation order.
func (r *RuleApprovalRepository) ListByExpense(ctx context.Context, expenseID string) ([]models.RuleApproval, error) {
	query := fmt.Sprintf(`SELECT %s FROM rule_approvals
	WHERE expense_id = $1 ORDER BY created_at ASC`, ruleApprovalColumns)
	var approvals []models.RuleApproval
	if err := r.db.SelectContext(ctx, &approvals, query, expenseID); err != nil {
		return nil, fmt.Errorf("list rule approvals: %w", err)
	}
	return approvals, nil
}

// FindByRef returns the record for (expense, approver) regardless of status.
// Conditional records are one-per-approver, so the rule id is not part of
// the lookup key when resolving the acting approver's record.
func (r *RuleApprovalRepository) FindByRef(ctx context.Context, expenseID, approverID string) (*models.RuleApproval, error) {
	query := fmt.Sprintf(`SELECT %s FROM rule_approvals
	WHERE expense_id = $1 AND approver_id = $2
	ORDER BY created_at ASC LIMIT 1`, ruleApprovalColumns)
	var approval models.RuleApproval
	if err := r.db.GetContext(ctx, &approval, query, expenseID, approverID); err != nil {
		return nil, err
	}
	return &approval, nil
}

// Approve transitions the approver's pending record to approved, stamping
// approved_at exactly once. Returns the number of rows updated.
func (r *RuleApprovalRepository) Approve(ctx context.Context, expenseID, approverID string, comment *string, now time.Time) (int64, error) {
	const query = `UPDATE rule_approvals
	SET status = 'approved', comment = $3, approved_at = COALESCE(approved_at, $4), updated_at = $4
	WHERE expense_id = $1 AND approver_id = $2 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, expenseID, approverID, comment, now)
	if err != nil {
		return 0, fmt.Errorf("approve under rule: %w", err)
	}
	return result.RowsAffected()
}

// Reject transitions the approver's pending record to rejected.
func (r *RuleApprovalRepository) Reject(ctx context.Context, expenseID, approverID string, comment *string, now time.Time) (int64, error) {
	const query = `UPDATE rule_approvals
	SET status = 'rejected', comment = $3, updated_at = $4
	WHERE expense_id = $1 AND approver_id = $2 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, expenseID, approverID, comment, now)
	if err != nil {
		return 0, fmt.Errorf("reject under rule: %w", err)
	}
	return result.RowsAffected()
}

// SupersedePending marks every still-pending record moot and returns them.
func (r *RuleApprovalRepository) SupersedePending(ctx context.Context, expenseID string, now time.Time) ([]models.RuleApproval, error) {
	query := fmt.Sprintf(`UPDATE rule_approvals
	SET status = 'superseded', updated_at = $2
	WHERE expense_id = $1 AND status = 'pending'
	RETURNING %s`, ruleApprovalColumns)
	var superseded []models.RuleApproval
	if err := r.db.SelectContext(ctx, &superseded, query, expenseID, now); err != nil {
		return nil, fmt.Errorf("supersede rule approvals: %w", err)
	}
	return superseded, nil
}

// Stats tallies the expense's rule records by status, excluding superseded.
func (r *RuleApprovalRepository) Stats(ctx context.Context, expenseID string) (*models.ApprovalStats, error) {
	const query = `SELECT
	COUNT(*) FILTER (WHERE status <> 'superseded') AS total,
	COUNT(*) FILTER (WHERE status = 'approved') AS approved,
	COUNT(*) FILTER (WHERE status = 'rejected') AS rejected,
	COUNT(*) FILTER (WHERE status = 'pending') AS pending
	FROM rule_approvals WHERE expense_id = $1`
	var stats models.ApprovalStats
	if err := r.db.GetContext(ctx, &stats, query, expenseID); err != nil {
		return nil, fmt.Errorf("rule approval stats: %w", err)
	}
	return &stats, nil
}

// ListPendingForApprover returns pending rule records awaiting the user.
func (r *RuleApprovalRepository) ListPendingForApprover(ctx context.Context, approverID string) ([]models.RuleApproval, error) {
	query := fmt.Sprintf(`SELECT %s FROM rule_approvals
	WHERE approver_id = $1 AND status = 'pending'
	ORDER BY created_at DESC`, ruleApprovalColumns)
	var approvals []models.RuleApproval
	if err := r.db.SelectContext(ctx, &approvals, query, approverID); err != nil {
		return nil, fmt.Errorf("list pending rule approvals: %w", err)
	}
	return approvals, nil
}
