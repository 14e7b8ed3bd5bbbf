package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearspend/expense-approval-api/internal/dto"
	"github.com/clearspend/expense-approval-api/internal/models"
	appErrors "github.com/clearspend/expense-approval-api/pkg/errors"
)

type expenseRepoStub struct {
	expenses map[string]*models.Expense
}

func (s *expenseRepoStub) Create(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = "exp-created"
	}
	if expense.CurrentStep == 0 {
		expense.CurrentStep = 1
	}
	if s.expenses == nil {
		s.expenses = make(map[string]*models.Expense)
	}
	s.expenses[expense.ID] = expense
	return nil
}

func (s *expenseRepoStub) FindByID(ctx context.Context, id string) (*models.Expense, error) {
	if expense, ok := s.expenses[id]; ok {
		return expense, nil
	}
	return nil, sql.ErrNoRows
}

func (s *expenseRepoStub) List(ctx context.Context, filter models.ExpenseFilter) ([]models.Expense, error) {
	var result []models.Expense
	for _, expense := range s.expenses {
		result = append(result, *expense)
	}
	return result, nil
}

type workflowResolverStub struct {
	workflow *models.Workflow
}

func (s *workflowResolverStub) FindByID(ctx context.Context, id string) (*models.Workflow, error) {
	if s.workflow != nil && s.workflow.ID == id {
		return s.workflow, nil
	}
	return nil, sql.ErrNoRows
}

func (s *workflowResolverStub) FindDefaultForCompany(ctx context.Context, companyID string) (*models.Workflow, error) {
	if s.workflow != nil && s.workflow.CompanyID == companyID {
		return s.workflow, nil
	}
	return nil, sql.ErrNoRows
}

func submitter() *models.JWTClaims {
	return &models.JWTClaims{UserID: "emp-1", CompanyID: "co-1", Role: models.RoleEmployee}
}

func newExpenseFixture(t *testing.T) (*ExpenseService, *expenseRepoStub) {
	t.Helper()
	workflow := sequentialWorkflow()
	workflow.SequentialRules = chainTierRules()
	fixture := newApprovalFixture(workflow, workflow.SequentialRules, nil)
	repo := &expenseRepoStub{}
	service := NewExpenseService(repo, &workflowResolverStub{workflow: workflow}, fixture.service, &auditLoggerStub{}, nil, nil)
	return service, repo
}

func TestExpenseSubmitRoutesToFirstApprover(t *testing.T) {
	service, repo := newExpenseFixture(t)

	resp, err := service.Submit(context.Background(), submitter(), dto.SubmitExpenseRequest{
		Description: "team offsite",
		Amount:      "420.50",
		Currency:    "USD",
		ExpenseDate: "2025-11-03",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatePendingStep, resp.Decision.State)
	require.NotNil(t, resp.Decision.NextApproverID)
	assert.Equal(t, "mgr-1", *resp.Decision.NextApproverID)
	assert.Len(t, repo.expenses, 1)
}

func TestExpenseSubmitRejectsBadAmount(t *testing.T) {
	service, _ := newExpenseFixture(t)

	_, err := service.Submit(context.Background(), submitter(), dto.SubmitExpenseRequest{
		Description: "typo",
		Amount:      "12,50",
		Currency:    "USD",
		ExpenseDate: "2025-11-03",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestExpenseSubmitNoWorkflowConfigured(t *testing.T) {
	fixture := newApprovalFixture(sequentialWorkflow(), chainTierRules(), nil)
	service := NewExpenseService(&expenseRepoStub{}, &workflowResolverStub{}, fixture.service, nil, nil, nil)

	_, err := service.Submit(context.Background(), submitter(), dto.SubmitExpenseRequest{
		Description: "no workflow",
		Amount:      "100",
		Currency:    "USD",
		ExpenseDate: "2025-11-03",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrNoApplicableRule))
}

func TestExpenseSubmitForeignWorkflowForbidden(t *testing.T) {
	workflow := sequentialWorkflow()
	workflow.CompanyID = "other-co"
	workflow.SequentialRules = chainTierRules()
	fixture := newApprovalFixture(workflow, workflow.SequentialRules, nil)
	service := NewExpenseService(&expenseRepoStub{}, &workflowResolverStub{workflow: workflow}, fixture.service, nil, nil, nil)

	workflowID := workflow.ID
	_, err := service.Submit(context.Background(), submitter(), dto.SubmitExpenseRequest{
		Description: "cross company",
		Amount:      "100",
		Currency:    "USD",
		ExpenseDate: "2025-11-03",
		WorkflowID:  &workflowID,
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
