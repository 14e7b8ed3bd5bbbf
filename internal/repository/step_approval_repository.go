package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clearspend/expense-approval-api/internal/models"
)

// StepApprovalRepository persists per-step approval records. Approve and
// Reject are guarded on status = 'pending' so concurrent submissions for the
// same record serialise at the database: the loser updates zero rows.
type StepApprovalRepository struct {
	db *sqlx.DB
}

// NewStepApprovalRepository constructs the repository.
func NewStepApprovalRepository(db *sqlx.DB) *StepApprovalRepository {
	return &StepApprovalRepository{db: db}
}

const stepApprovalColumns = `id, expense_id, approver_id, step_number, status, comment, approved_at, created_at, updated_at`

// CreateBatch inserts the pending records for a freshly submitted expense.
func (r *StepApprovalRepository) CreateBatch(ctx context.Context, approvals []models.StepApproval) error {
	if len(approvals) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	const query = `INSERT INTO step_approvals
	(id, expense_id, approver_id, step_number, status, comment, approved_at, created_at, updated_at)
	VALUES (:id, :expense_id, :approver_id, :step_number, :status, :comment, :approved_at, :created_at, :updated_at)`
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
			return fmt.Errorf("insert step approval for step %d: %w", approvals[i].StepNumber, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit step approvals: %w", err)
	}
	return nil
}

// ListByExpense returns all records for the expense in step order.
func (r *StepApprovalRepository) ListByExpense(ctx context.Context, expenseID string) ([]models.StepApproval, error) {
	query := fmt.Sprintf(`SELECT %s FROM step_approvals
	WHERE expense_id = $1 ORDER BY step_number ASC, created_at ASC`, stepApprovalColumns)
	var approvals []models.StepApproval
	if err := r.db.SelectContext(ctx, &approvals, query, expenseID); err != nil {
		return nil, fmt.Errorf("list step approvals: %w", err)
	}
	return approvals, nil
}

// NextPending returns the lowest-step record still pending. sql.ErrNoRows
// is passed through when the chain is complete.
func (r *StepApprovalRepository) NextPending(ctx context.Context, expenseID string) (*models.StepApproval, error) {
	query := fmt.Sprintf(`SELECT %s FROM step_approvals
	WHERE expense_id = $1 AND status = 'pending'
	ORDER BY step_number ASC LIMIT 1`, stepApprovalColumns)
	var approval models.StepApproval
	if err := r.db.GetContext(ctx, &approval, query, expenseID); err != nil {
		return nil, err
	}
	return &approval, nil
}

// CountPending returns the number of records still pending.
func (r *StepApprovalRepository) CountPending(ctx context.Context, expenseID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM step_approvals WHERE expense_id = $1 AND status = 'pending'`, expenseID); err != nil {
		return 0, fmt.Errorf("count pending step approvals: %w", err)
	}
	return count, nil
}

// FindByStep returns the record matching the (expense, approver, step)
// triple regardless of status, so callers can distinguish a missing record
// from an already-processed one.
func (r *StepApprovalRepository) FindByStep(ctx context.Context, expenseID, approverID string, stepNumber int) (*models.StepApproval, error) {
	query := fmt.Sprintf(`SELECT %s FROM step_approvals
	WHERE expense_id = $1 AND approver_id = $2 AND step_number = $3`, stepApprovalColumns)
	var approval models.StepApproval
	if err := r.db.GetContext(ctx, &approval, query, expenseID, approverID, stepNumber); err != nil {
		return nil, err
	}
	return &approval, nil
}

// Approve transitions the pending record to approved, stamping approved_at
// exactly once. Returns the number of rows updated.
func (r *StepApprovalRepository) Approve(ctx context.Context, expenseID, approverID string, stepNumber int, comment *string, now time.Time) (int64, error) {
	const query = `UPDATE step_approvals
	SET status = 'approved', comment = $4, approved_at = COALESCE(approved_at, $5), updated_at = $5
	WHERE expense_id = $1 AND approver_id = $2 AND step_number = $3 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, expenseID, approverID, stepNumber, comment, now)
	if err != nil {
		return 0, fmt.Errorf("approve step: %w", err)
	}
	return result.RowsAffected()
}

// Reject transitions the pending record to rejected. No timestamp side
// effect beyond updated_at.
func (r *StepApprovalRepository) Reject(ctx context.Context, expenseID, approverID string, stepNumber int, comment *string, now time.Time) (int64, error) {
	const query = `UPDATE step_approvals
	SET status = 'rejected', comment = $4, updated_at = $5
	WHERE expense_id = $1 AND approver_id = $2 AND step_number = $3 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, expenseID, approverID, stepNumber, comment, now)
	if err != nil {
		return 0, fmt.Errorf("reject step: %w", err)
	}
	return result.RowsAffected()
}

// SupersedePending marks every still-pending record moot and returns them,
// so the caller can notify the skipped approvers.
func (r *StepApprovalRepository) SupersedePending(ctx context.Context, expenseID string, now time.Time) ([]models.StepApproval, error) {
	query := fmt.Sprintf(`UPDATE step_approvals
	SET status = 'superseded', updated_at = $2
	WHERE expense_id = $1 AND status = 'pending'
	RETURNING %s`, stepApprovalColumns)
	var superseded []models.StepApproval
	if err := r.db.SelectContext(ctx, &superseded, query, expenseID, now); err != nil {
		return nil, fmt.Errorf("supersede step approvals: %w", err)
	}
	return superseded, nil
}

// Stats tallies the expense's step records by status, excluding superseded.
func (r *StepApprovalRepository) Stats(ctx context.Context, expenseID string) (*models.ApprovalStats, error) {
	const query = `SELECT
	COUNT(*) FILTER (WHERE status <> 'superseded') AS total,
	COUNT(*) FILTER (WHERE status = 'approved') AS approved,
	COUNT(*) FILTER (WHERE status = 'rejected') AS rejected,
	COUNT(*) FILTER (WHERE status = 'pending') AS pending
	FROM step_approvals WHERE expense_id = $1`
	var stats models.ApprovalStats
	if err := r.db.GetContext(ctx, &stats, query, expenseID); err != nil {
		return nil, fmt.Errorf("step approval stats: %w", err)
	}
	return &stats, nil
}

// ListPendingForApprover returns pending step records awaiting the user.
func (r *StepApprovalRepository) ListPendingForApprover(ctx context.Context, approverID string) ([]models.StepApproval, error) {
	query := fmt.Sprintf(`SELECT %s FROM step_approvals
	WHERE approver_id = $1 AND status = 'pending'
	ORDER BY created_at DESC`, stepApprovalColumns)
	var approvals []models.StepApproval
	if err := r.db.SelectContext(ctx, &approvals, query, approverID); err != nil {
		return nil, fmt.Errorf("list pending step approvals: %w", err)
	}
	return approvals, nil
}
