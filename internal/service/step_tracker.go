package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clearspend/expense-approval-api/internal/models"
	appErrors "github.com/clearspend/expense-approval-api/pkg/errors"
)

type stepApprovalStore interface {
	CreateBatch(ctx context.Context, approvals []models.StepApproval) error
	ListByExpense(ctx context.Context, expenseID string) ([]models.StepApproval, error)
	NextPending(ctx context.Context, expenseID string) (*models.StepApproval, error)
	CountPending(ctx context.Context, expenseID string) (int, error)
	FindByStep(ctx context.Context, expenseID, approverID string, stepNumber int) (*models.StepApproval, error)
	Approve(ctx context.Context, expenseID, approverID string, stepNumber int, comment *string, now time.Time) (int64, error)
	Reject(ctx context.Context, expenseID, approverID string, stepNumber int, comment *string, now time.Time) (int64, error)
	SupersedePending(ctx context.Context, expenseID string, now time.Time) ([]models.StepApproval, error)
}

type approverDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindManagerOf(ctx context.Context, userID string) (*models.User, error)
	ListByRole(ctx context.Context, companyID string, role models.UserRole) ([]models.User, error)
}

// StepTracker owns the ordered chain of sequential approvals: building the
// per-step records at submission and advancing the pointer as verdicts land.
// Steps complete strictly in order; a later approver has nothing actionable
// until every earlier step is approved.
type StepTracker struct {
	approvals stepApprovalStore
	users     approverDirectory
	logger    *zap.Logger
}

// NewStepTracker constructs a StepTracker.
func NewStepTracker(approvals stepApprovalStore, users approverDirectory, logger *zap.Logger) *StepTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StepTracker{approvals: approvals, users: users, logger: logger}
}

// BuildChain materialises pending step records for the expense from its
// matched rules. Approvers resolve at submission time, so later org changes
// do not reroute in-flight expenses.
func (t *StepTracker) BuildChain(ctx context.Context, expense *models.Expense, rules []models.SequentialRule) ([]models.StepApproval, error) {
	records := make([]models.StepApproval, 0, len(rules))
	for _, rule := range rules {
		approverID, err := t.resolveApprover(ctx, expense, rule)
		if err != nil {
			return nil, err
		}
		if approverID == "" {
			// Optional steps with no resolvable approver are skipped; a
			// required step failing to resolve blocks submission.
			if rule.Required {
				return nil, appErrors.Clone(appErrors.ErrInvalidRuleConfig,
					fmt.Sprintf("no approver resolvable for required step %d", rule.StepNumber))
			}
			t.logger.Info("skipping optional step with no approver",
				zap.String("expense_id", expense.ID),
				zap.Int("step", rule.StepNumber))
			continue
		}
		records = append(records, models.StepApproval{
			ExpenseID:  expense.ID,
			ApproverID: approverID,
			StepNumber: rule.StepNumber,
			Status:     models.ApprovalPending,
		})
	}
	if len(records) == 0 {
		return nil, nil
	}
	if err := t.approvals.CreateBatch(ctx, records); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create approval chain")
	}
	return records, nil
}

// Current returns the lowest pending step, or nil when the chain is complete.
func (t *StepTracker) Current(ctx context.Context, expenseID string) (*models.StepApproval, error) {
	approval, err := t.approvals.NextPending(ctx, expenseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read current step")
	}
	return approval, nil
}

// RecordApproval marks the approver's current-step record approved. The
// update is guarded on pending status; when it touches nothing the record is
// inspected to tell a stale retry apart from a record that never existed.
func (t *StepTracker) RecordApproval(ctx context.Context, expenseID, approverID string, stepNumber int, comment *string, now time.Time) error {
	rows, err := t.approvals.Approve(ctx, expenseID, approverID, stepNumber, comment, now)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record approval")
	}
	if rows == 0 {
		return t.classifyNoop(ctx, expenseID, approverID, stepNumber)
	}
	return nil
}

// RecordRejection marks the approver's current-step record rejected.
func (t *StepTracker) RecordRejection(ctx context.Context, expenseID, approverID string, stepNumber int, comment *string, now time.Time) error {
	rows, err := t.approvals.Reject(ctx, expenseID, approverID, stepNumber, comment, now)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record rejection")
	}
	if rows == 0 {
		return t.classifyNoop(ctx, expenseID, approverID, stepNumber)
	}
	return nil
}

// Supersede marks every still-pending step moot and returns the skipped
// records so their approvers can be told to stand down.
func (t *StepTracker) Supersede(ctx context.Context, expenseID string, now time.Time) ([]models.StepApproval, error) {
	superseded, err := t.approvals.SupersedePending(ctx, expenseID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to supersede pending steps")
	}
	return superseded, nil
}

// Remaining reports how many steps are still pending.
func (t *StepTracker) Remaining(ctx context.Context, expenseID string) (int, error) {
	count, err := t.approvals.CountPending(ctx, expenseID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending steps")
	}
	return count, nil
}

func (t *StepTracker) classifyNoop(ctx context.Context, expenseID, approverID string, stepNumber int) error {
	existing, err := t.approvals.FindByStep(ctx, expenseID, approverID, stepNumber)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrApprovalNotFound, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect approval record")
	}
	if existing.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrAlreadyProcessed, "")
	}
	return appErrors.Clone(appErrors.ErrApprovalNotFound, "")
}

func (t *StepTracker) resolveApprover(ctx context.Context, expense *models.Expense, rule models.SequentialRule) (string, error) {
	switch rule.ApproverRole {
	case models.ApproverSpecificUser:
		if rule.SpecificApproverID == nil || *rule.SpecificApproverID == "" {
			return "", appErrors.Clone(appErrors.ErrInvalidRuleConfig,
				fmt.Sprintf("step %d names no specific approver", rule.StepNumber))
		}
		return *rule.SpecificApproverID, nil
	case models.ApproverManager:
		manager, err := t.users.FindManagerOf(ctx, expense.UserID)
		if err != nil {
			if err == sql.ErrNoRows {
				return "", nil
			}
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve manager")
		}
		if !manager.IsManagerApprover {
			return "", nil
		}
		return manager.ID, nil
	case models.ApproverFinance, models.ApproverDirector:
		role := models.RoleFinance
		if rule.ApproverRole == models.ApproverDirector {
			role = models.RoleDirector
		}
		candidates, err := t.users.ListByRole(ctx, expense.CompanyID, role)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve role approver")
		}
		if len(candidates) == 0 {
			return "", nil
		}
		return candidates[0].ID, nil
	default:
		return "", appErrors.Clone(appErrors.ErrInvalidRuleConfig,
			fmt.Sprintf("step %d has unknown approver role %q", rule.StepNumber, rule.ApproverRole))
	}
}
