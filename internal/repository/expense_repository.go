package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clearspend/expense-approval-api/internal/models"
)

// ExpenseRepository persists expense claims. Routing and finalisation
// updates are guarded on status = 'pending' so a finalised expense cannot
// be re-finalised by a racing writer.
type ExpenseRepository struct {
	db *sqlx.DB
}

// NewExpenseRepository constructs the repository.
func NewExpenseRepository(db *sqlx.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

const expenseColumns = `id, company_id, user_id, description, amount, currency, expense_date, status,
       workflow_id, current_step, current_approver_id, final_approved_by, final_approved_at,
       rejected_by, rejected_at, rejection_reason, created_at, updated_at`

// Create inserts a new expense row.
func (r *ExpenseRepository) Create(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.NewString()
	}
	if expense.Status == "" {
		expense.Status = models.ExpensePending
	}
	if expense.CurrentStep == 0 {
		expense.CurrentStep = 1
	}
	now := time.Now().UTC()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}
	expense.UpdatedAt = now
	const query = `INSERT INTO expenses
	(id, company_id, user_id, description, amount, currency, expense_date, status, workflow_id,
	 current_step, current_approver_id, final_approved_by, final_approved_at, rejected_by, rejected_at,
	 rejection_reason, created_at, updated_at)
	VALUES (:id, :company_id, :user_id, :description, :amount, :currency, :expense_date, :status, :workflow_id,
	 :current_step, :current_approver_id, :final_approved_by, :final_approved_at, :rejected_by, :rejected_at,
	 :rejection_reason, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, expense); err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	return nil
}

// FindByID fetches an expense by identifier.
func (r *ExpenseRepository) FindByID(ctx context.Context, id string) (*models.Expense, error) {
	query := fmt.Sprintf(`SELECT %s FROM expenses WHERE id = $1`, expenseColumns)
	var expense models.Expense
	if err := r.db.GetContext(ctx, &expense, query, id); err != nil {
		return nil, err
	}
	return &expense, nil
}

// List returns expenses matching the filter, newest first.
func (r *ExpenseRepository) List(ctx context.Context, filter models.ExpenseFilter) ([]models.Expense, error) {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM expenses`, expenseColumns))
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 4)
	if filter.CompanyID != "" {
		args = append(args, filter.CompanyID)
		conditions = append(conditions, fmt.Sprintf("company_id = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ApproverID != "" {
		args = append(args, filter.ApproverID)
		conditions = append(conditions, fmt.Sprintf("current_approver_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")
	if filter.PageSize > 0 {
		args = append(args, filter.PageSize)
		builder.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
		if filter.Page > 1 {
			args = append(args, (filter.Page-1)*filter.PageSize)
			builder.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
		}
	}

	var expenses []models.Expense
	if err := r.db.SelectContext(ctx, &expenses, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

// UpdateRouting advances the expense to the next approver and step.
func (r *ExpenseRepository) UpdateRouting(ctx context.Context, id string, step int, approverID *string, now time.Time) error {
	const query = `UPDATE expenses
	SET current_step = $2, current_approver_id = $3, updated_at = $4
	WHERE id = $1 AND status = 'pending'`
	if _, err := r.db.ExecContext(ctx, query, id, step, approverID, now); err != nil {
		return fmt.Errorf("update expense routing: %w", err)
	}
	return nil
}

// FinalizeApproved marks the expense approved. Returns rows updated; zero
// means the expense was no longer pending.
func (r *ExpenseRepository) FinalizeApproved(ctx context.Context, id, approverID string, now time.Time) (int64, error) {
	const query = `UPDATE expenses
	SET status = 'approved', final_approved_by = $2, final_approved_at = $3,
	    current_approver_id = NULL, updated_at = $3
	WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id, approverID, now)
	if err != nil {
		return 0, fmt.Errorf("finalize expense approved: %w", err)
	}
	return result.RowsAffected()
}

// FinalizeRejected marks the expense rejected with the veto reason.
func (r *ExpenseRepository) FinalizeRejected(ctx context.Context, id, rejectorID string, reason *string, now time.Time) (int64, error) {
	const query = `UPDATE expenses
	SET status = 'rejected', rejected_by = $2, rejected_at = $3, rejection_reason = $4,
	    current_approver_id = NULL, updated_at = $3
	WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id, rejectorID, now, reason)
	if err != nil {
		return 0, fmt.Errorf("finalize expense rejected: %w", err)
	}
	return result.RowsAffected()
}
