package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearspend/expense-approval-api/internal/models"
)

func newStepApprovalRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func TestStepApprovalRepositoryCreateBatch(t *testing.T) {
	db, mock, cleanup := newStepApprovalRepoMock(t)
	defer cleanup()
	repo := NewStepApprovalRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO step_approvals").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO step_approvals").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	approvals := []models.StepApproval{
		{ExpenseID: "exp-1", ApproverID: "mgr-1", StepNumber: 1},
		{ExpenseID: "exp-1", ApproverID: "fin-1", StepNumber: 2},
	}
	require.NoError(t, repo.CreateBatch(context.Background(), approvals))
	assert.NotEmpty(t, approvals[0].ID)
	assert.Equal(t, models.ApprovalPending, approvals[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStepApprovalRepositoryNextPending(t *testing.T) {
	db, mock, cleanup := newStepApprovalRepoMock(t)
	defer cleanup()
	repo := NewStepApprovalRepository(db)

	rows := sqlmock.NewRows([]string{"id", "expense_id", "approver_id", "step_number", "status", "comment", "approved_at", "created_at", "updated_at"}).
		AddRow("sa-2", "exp-1", "fin-1", 2, "pending", nil, nil, time.Now(), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM step_approvals").
		WithArgs("exp-1").
		WillReturnRows(rows)

	approval, err := repo.NextPending(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, approval.StepNumber)
	assert.Equal(t, "fin-1", approval.ApproverID)
}

func TestStepApprovalRepositoryNextPendingExhausted(t *testing.T) {
	db, mock, cleanup := newStepApprovalRepoMock(t)
	defer cleanup()
	repo := NewStepApprovalRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM step_approvals").
		WithArgs("exp-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.NextPending(context.Background(), "exp-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestStepApprovalRepositoryApproveGuardsPending(t *testing.T) {
	db, mock, cleanup := newStepApprovalRepoMock(t)
	defer cleanup()
	repo := NewStepApprovalRepository(db)

	mock.ExpectExec("UPDATE step_approvals").
		WithArgs("exp-1", "mgr-1", 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows, err := repo.Approve(context.Background(), "exp-1", "mgr-1", 1, nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
}

func TestStepApprovalRepositoryApproveAlreadyProcessed(t *testing.T) {
	db, mock, cleanup := newStepApprovalRepoMock(t)
	defer cleanup()
	repo := NewStepApprovalRepository(db)

	// The record exists but is no longer pending, so the guarded update
	// touches nothing.
	mock.ExpectExec("UPDATE step_approvals").
		WithArgs("exp-1", "mgr-1", 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows, err := repo.Approve(context.Background(), "exp-1", "mgr-1", 1, nil, time.Now())
	require.NoError(t, err)
	assert.Zero(t, rows)
}

func TestStepApprovalRepositorySupersedePending(t *testing.T) {
	db, mock, cleanup := newStepApprovalRepoMock(t)
	defer cleanup()
	repo := NewStepApprovalRepository(db)

	rows := sqlmock.NewRows([]string{"id", "expense_id", "approver_id", "step_number", "status", "comment", "approved_at", "created_at", "updated_at"}).
		AddRow("sa-2", "exp-1", "fin-1", 2, "superseded", nil, nil, time.Now(), time.Now()).
		AddRow("sa-3", "exp-1", "dir-1", 3, "superseded", nil, nil, time.Now(), time.Now())
	mock.ExpectQuery("UPDATE step_approvals").
		WithArgs("exp-1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	superseded, err := repo.SupersedePending(context.Background(), "exp-1", time.Now())
	require.NoError(t, err)
	require.Len(t, superseded, 2)
	assert.Equal(t, "fin-1", superseded[0].ApproverID)
	assert.Equal(t, "dir-1", superseded[1].ApproverID)
}

func TestStepApprovalRepositoryStats(t *testing.T) {
	db, mock, cleanup := newStepApprovalRepoMock(t)
	defer cleanup()
	repo := NewStepApprovalRepository(db)

	rows := sqlmock.NewRows([]string{"total", "approved", "rejected", "pending"}).
		AddRow(3, 1, 0, 2)
	mock.ExpectQuery("SELECT").
		WithArgs("exp-1").
		WillReturnRows(rows)

	stats, err := repo.Stats(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Approved)
	assert.Equal(t, 2, stats.Pending)
}
