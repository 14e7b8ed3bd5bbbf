package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearspend/expense-approval-api/internal/models"
)

func TestExpenseRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newStepApprovalRepoMock(t)
	defer cleanup()
	repo := NewExpenseRepository(db)

	mock.ExpectExec("INSERT INTO expenses").
		WillReturnResult(sqlmock.NewResult(1, 1))

	expense := &models.Expense{
		CompanyID:   "co-1",
		UserID:      "emp-1",
		Description: "client dinner",
		Amount:      decimal.NewFromFloat(182.40),
		Currency:    "USD",
		ExpenseDate: time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), expense))
	assert.NotEmpty(t, expense.ID)
	assert.Equal(t, models.ExpensePending, expense.Status)
	assert.Equal(t, 1, expense.CurrentStep)
}

func TestExpenseRepositoryFinalizeApprovedGuard(t *testing.T) {
	db, mock, cleanup := newStepApprovalRepoMock(t)
	defer cleanup()
	repo := NewExpenseRepository(db)

	mock.ExpectExec("UPDATE expenses").
		WithArgs("exp-1", "dir-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows, err := repo.FinalizeApproved(context.Background(), "exp-1", "dir-1", time.Now())
	require.NoError(t, err)
	assert.Zero(t, rows, "an already finalised expense must not be re-finalised")
}

func TestExpenseRepositoryListFiltersByApprover(t *testing.T) {
	db, mock, cleanup := newStepApprovalRepoMock(t)
	defer cleanup()
	repo := NewExpenseRepository(db)

	rows := sqlmock.NewRows([]string{"id", "company_id", "user_id", "description", "amount", "currency",
		"expense_date", "status", "workflow_id", "current_step", "current_approver_id", "final_approved_by",
		"final_approved_at", "rejected_by", "rejected_at", "rejection_reason", "created_at", "updated_at"}).
		AddRow("exp-1", "co-1", "emp-1", "travel", "3200", "USD", time.Now(), "pending",
			"wf-1", 2, "fin-1", nil, nil, nil, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM expenses").
		WithArgs("co-1", "fin-1").
		WillReturnRows(rows)

	expenses, err := repo.List(context.Background(), models.ExpenseFilter{CompanyID: "co-1", ApproverID: "fin-1"})
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, 2, expenses[0].CurrentStep)
	require.NotNil(t, expenses[0].CurrentApproverID)
	assert.Equal(t, "fin-1", *expenses[0].CurrentApproverID)
}
