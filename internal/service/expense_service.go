package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clearspend/expense-approval-api/internal/dto"
	"github.com/clearspend/expense-approval-api/internal/models"
	appErrors "github.com/clearspend/expense-approval-api/pkg/errors"
)

type expenseRepository interface {
	Create(ctx context.Context, expense *models.Expense) error
	FindByID(ctx context.Context, id string) (*models.Expense, error)
	List(ctx context.Context, filter models.ExpenseFilter) ([]models.Expense, error)
}

type expenseWorkflowResolver interface {
	FindByID(ctx context.Context, id string) (*models.Workflow, error)
	FindDefaultForCompany(ctx context.Context, companyID string) (*models.Workflow, error)
}

// ExpenseService handles claim submission and reads. Submission resolves the
// workflow, persists the claim, then hands off to the orchestrator; a claim
// no rule can route is rejected outright rather than stranded.
type ExpenseService struct {
	expenses  expenseRepository
	workflows expenseWorkflowResolver
	approvals *ApprovalService
	audit     approvalAuditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExpenseService constructs an ExpenseService.
func NewExpenseService(expenses expenseRepository, workflows expenseWorkflowResolver, approvals *ApprovalService, audit approvalAuditLogger, validate *validator.Validate, logger *zap.Logger) *ExpenseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpenseService{
		expenses:  expenses,
		workflows: workflows,
		approvals: approvals,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Submit creates the expense and initialises its approval chain.
func (s *ExpenseService) Submit(ctx context.Context, actor *models.JWTClaims, req dto.SubmitExpenseRequest) (*dto.SubmitExpenseResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid expense payload")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be a non-negative decimal")
	}
	expenseDate, err := time.Parse("2006-01-02", req.ExpenseDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expense_date must be YYYY-MM-DD")
	}

	workflow, err := s.resolveWorkflow(ctx, actor.CompanyID, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	expense := &models.Expense{
		CompanyID:   actor.CompanyID,
		UserID:      actor.UserID,
		Description: req.Description,
		Amount:      amount,
		Currency:    req.Currency,
		ExpenseDate: expenseDate,
		Status:      models.ExpensePending,
		WorkflowID:  &workflow.ID,
	}
	if err := s.expenses.Create(ctx, expense); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create expense")
	}

	decision, err := s.approvals.InitializeChain(ctx, expense, workflow)
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actor, expense)
	s.logger.Info("expense submitted",
		zap.String("expense_id", expense.ID),
		zap.String("workflow_id", workflow.ID),
		zap.String("amount", amount.String()))
	return &dto.SubmitExpenseResponse{Expense: expense, Decision: decision}, nil
}

// Get loads one expense. Non-admin callers only see their own company's
// claims; the handler enforces finer ownership rules.
func (s *ExpenseService) Get(ctx context.Context, id string) (*models.Expense, error) {
	expense, err := s.expenses.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "expense not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load expense")
	}
	return expense, nil
}

// List returns expenses matching the filter.
func (s *ExpenseService) List(ctx context.Context, filter models.ExpenseFilter) ([]models.Expense, error) {
	expenses, err := s.expenses.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list expenses")
	}
	return expenses, nil
}

func (s *ExpenseService) resolveWorkflow(ctx context.Context, companyID string, workflowID *string) (*models.Workflow, error) {
	if workflowID != nil && *workflowID != "" {
		workflow, err := s.workflows.FindByID(ctx, *workflowID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow")
		}
		if !workflow.Active {
			return nil, appErrors.Clone(appErrors.ErrValidation, "workflow is inactive")
		}
		if workflow.CompanyID != companyID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "")
		}
		return workflow, nil
	}
	workflow, err := s.workflows.FindDefaultForCompany(ctx, companyID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNoApplicableRule, "company has no active workflow")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve workflow")
	}
	return workflow, nil
}

func (s *ExpenseService) emitAudit(ctx context.Context, actor *models.JWTClaims, expense *models.Expense) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"amount":   expense.Amount.String(),
		"currency": expense.Currency,
	})
	entry := &models.AuditLog{
		UserID:     actorID(actor),
		Action:     models.AuditActionExpenseSubmit,
		Resource:   "expense",
		ResourceID: &expense.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "expense-service",
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record expense audit", zap.Error(err))
	}
}
