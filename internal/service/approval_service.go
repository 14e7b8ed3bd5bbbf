package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clearspend/expense-approval-api/internal/dto"
	"github.com/clearspend/expense-approval-api/internal/models"
	appErrors "github.com/clearspend/expense-approval-api/pkg/errors"
)

type ruleApprovalStore interface {
	CreateBatch(ctx context.Context, approvals []models.RuleApproval) error
	ListByExpense(ctx context.Context, expenseID string) ([]models.RuleApproval, error)
	FindByRef(ctx context.Context, expenseID, approverID string) (*models.RuleApproval, error)
	Approve(ctx context.Context, expenseID, approverID string, comment *string, now time.Time) (int64, error)
	Reject(ctx context.Context, expenseID, approverID string, comment *string, now time.Time) (int64, error)
	SupersedePending(ctx context.Context, expenseID string, now time.Time) ([]models.RuleApproval, error)
	Stats(ctx context.Context, expenseID string) (*models.ApprovalStats, error)
	ListPendingForApprover(ctx context.Context, approverID string) ([]models.RuleApproval, error)
}

type approvalExpenseStore interface {
	FindByID(ctx context.Context, id string) (*models.Expense, error)
	UpdateRouting(ctx context.Context, id string, step int, approverID *string, now time.Time) error
	FinalizeApproved(ctx context.Context, id, approverID string, now time.Time) (int64, error)
	FinalizeRejected(ctx context.Context, id, rejectorID string, reason *string, now time.Time) (int64, error)
}

type approvalWorkflowReader interface {
	FindByID(ctx context.Context, id string) (*models.Workflow, error)
}

type approvalStatsReader interface {
	Stats(ctx context.Context, expenseID string) (*models.ApprovalStats, error)
	ListByExpense(ctx context.Context, expenseID string) ([]models.StepApproval, error)
	ListPendingForApprover(ctx context.Context, approverID string) ([]models.StepApproval, error)
}

type approvalNotifier interface {
	ApprovalRequested(ctx context.Context, approverID string, expense *models.Expense)
	ExpenseFinalized(ctx context.Context, expense *models.Expense, approved bool)
	ApprovalsSuperseded(ctx context.Context, approverIDs []string, expense *models.Expense)
}

type approvalAuditLogger interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// ApprovalService orchestrates the full approval lifecycle: it builds the
// chain at submission, applies each verdict through the step tracker and
// condition evaluator, and finalises the expense exactly once. Conditional
// satisfaction is checked before sequential completion, so an override
// short-circuits the rest of the chain.
type ApprovalService struct {
	expenses      approvalExpenseStore
	workflows     approvalWorkflowReader
	stepApprovals approvalStatsReader
	ruleApprovals ruleApprovalStore
	matcher       *RuleMatcher
	tracker       *StepTracker
	evaluator     *ConditionEvaluator
	users         approverDirectory
	notifier      approvalNotifier
	audit         approvalAuditLogger
	logger        *zap.Logger
}

// NewApprovalService constructs the orchestrator.
func NewApprovalService(
	expenses approvalExpenseStore,
	workflows approvalWorkflowReader,
	stepApprovals approvalStatsReader,
	ruleApprovals ruleApprovalStore,
	matcher *RuleMatcher,
	tracker *StepTracker,
	evaluator *ConditionEvaluator,
	users approverDirectory,
	notifier approvalNotifier,
	audit approvalAuditLogger,
	logger *zap.Logger,
) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		expenses:      expenses,
		workflows:     workflows,
		stepApprovals: stepApprovals,
		ruleApprovals: ruleApprovals,
		matcher:       matcher,
		tracker:       tracker,
		evaluator:     evaluator,
		users:         users,
		notifier:      notifier,
		audit:         audit,
		logger:        logger,
	}
}

// InitializeChain builds the approval records for a freshly submitted expense
// and routes it to its first approver. Approvers resolve now, not at decision
// time.
func (s *ApprovalService) InitializeChain(ctx context.Context, expense *models.Expense, workflow *models.Workflow) (*models.WorkflowDecision, error) {
	chainRules, err := s.matcher.SequentialChain(ctx, workflow.ID, expense.Amount)
	if err != nil {
		return nil, err
	}
	if workflow.Type == models.WorkflowSequential && len(chainRules) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoApplicableRule, "")
	}

	chain, err := s.tracker.BuildChain(ctx, expense, chainRules)
	if err != nil {
		return nil, err
	}

	condRules, err := s.effectiveConditionalRules(ctx, expense, workflow)
	if err != nil {
		return nil, err
	}
	if workflow.Type != models.WorkflowSequential && len(condRules) == 0 && len(chain) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoApplicableRule, "")
	}
	if err := s.createVoterRecords(ctx, expense, chain, condRules); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	decision := &models.WorkflowDecision{State: models.StatePendingConditions}
	if len(chain) > 0 {
		first := chain[0]
		if err := s.expenses.UpdateRouting(ctx, expense.ID, first.StepNumber, &first.ApproverID, now); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to route expense")
		}
		expense.CurrentStep = first.StepNumber
		expense.CurrentApproverID = &first.ApproverID
		decision.State = models.StatePendingStep
		decision.NextStep = &first.StepNumber
		decision.NextApproverID = &first.ApproverID
		if s.notifier != nil {
			s.notifier.ApprovalRequested(ctx, first.ApproverID, expense)
		}
	} else if s.notifier != nil {
		// Pure conditional workflow: every voter is actionable at once.
		voters, err := s.ruleApprovals.ListByExpense(ctx, expense.ID)
		if err == nil {
			for _, voter := range voters {
				s.notifier.ApprovalRequested(ctx, voter.ApproverID, expense)
			}
		}
	}
	return decision, nil
}

// SubmitDecision applies one approver's verdict and returns the resulting
// chain state. Every terminal transition happens through a pending-guarded
// update, so replays and races surface as typed errors instead of double
// finalisation.
func (s *ApprovalService) SubmitDecision(ctx context.Context, expenseID, approverID string, req dto.ApprovalDecisionRequest) (*models.WorkflowDecision, error) {
	if req.Decision != "approved" && req.Decision != "rejected" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be approved or rejected")
	}

	expense, err := s.expenses.FindByID(ctx, expenseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "expense not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load expense")
	}
	if expense.Status != models.ExpensePending {
		return nil, appErrors.Clone(appErrors.ErrAlreadyProcessed, "expense already finalised")
	}
	if expense.WorkflowID == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidRuleConfig, "expense has no workflow")
	}
	workflow, err := s.workflows.FindByID(ctx, *expense.WorkflowID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow")
	}

	now := time.Now().UTC()
	var decision *models.WorkflowDecision
	if req.Decision == "rejected" {
		decision, err = s.applyRejection(ctx, expense, workflow, approverID, req.Comment, now)
	} else {
		decision, err = s.applyApproval(ctx, expense, workflow, approverID, req.Comment, now)
	}
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, approverID, expense.ID, req)
	return decision, nil
}

// applyRejection is the veto path: one rejection finalises the expense no
// matter how many approvals are already recorded.
func (s *ApprovalService) applyRejection(ctx context.Context, expense *models.Expense, workflow *models.Workflow, approverID string, comment *string, now time.Time) (*models.WorkflowDecision, error) {
	recorded := false
	if workflow.Type != models.WorkflowPercentage {
		err := s.tracker.RecordRejection(ctx, expense.ID, approverID, expense.CurrentStep, comment, now)
		switch {
		case err == nil:
			recorded = true
		case appErrors.Is(err, appErrors.ErrApprovalNotFound):
			// The approver may hold a voting record instead.
		default:
			return nil, err
		}
	}
	if !recorded && workflow.Type != models.WorkflowSequential {
		rows, err := s.ruleApprovals.Reject(ctx, expense.ID, approverID, comment, now)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record rejection")
		}
		if rows == 0 {
			return nil, s.classifyRuleNoop(ctx, expense.ID, approverID)
		}
		recorded = true
	}
	if !recorded {
		return nil, appErrors.Clone(appErrors.ErrApprovalNotFound, "")
	}

	return s.finalizeRejected(ctx, expense, approverID, comment, now)
}

func (s *ApprovalService) applyApproval(ctx context.Context, expense *models.Expense, workflow *models.Workflow, approverID string, comment *string, now time.Time) (*models.WorkflowDecision, error) {
	steppedHere := false
	if workflow.Type != models.WorkflowPercentage {
		err := s.tracker.RecordApproval(ctx, expense.ID, approverID, expense.CurrentStep, comment, now)
		switch {
		case err == nil:
			steppedHere = true
		case appErrors.Is(err, appErrors.ErrApprovalNotFound) && workflow.Type == models.WorkflowHybrid:
			// Not the current step approver; they may still hold a vote.
		default:
			return nil, err
		}
	}

	if workflow.Type != models.WorkflowSequential {
		rows, err := s.ruleApprovals.Approve(ctx, expense.ID, approverID, comment, now)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record vote")
		}
		if rows == 0 && !steppedHere {
			return nil, s.classifyRuleNoop(ctx, expense.ID, approverID)
		}

		// Conditional satisfaction wins over sequential progress: a met
		// condition finalises immediately, skipping the remaining steps.
		condRules, err := s.effectiveConditionalRules(ctx, expense, workflow)
		if err != nil {
			return nil, err
		}
		votes, err := s.ruleApprovals.ListByExpense(ctx, expense.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load votes")
		}
		satisfied, err := s.evaluator.FirstSatisfied(condRules, votes)
		if err != nil {
			return nil, err
		}
		if satisfied != nil {
			decision, err := s.finalizeApproved(ctx, expense, approverID, now)
			if err != nil {
				return nil, err
			}
			decision.SatisfiedRuleID = ruleIDPtr(satisfied)
			return decision, nil
		}
		if workflow.Type == models.WorkflowPercentage {
			return &models.WorkflowDecision{State: models.StatePendingConditions}, nil
		}
	}

	// Sequential progress: advance to the next pending step or finish.
	next, err := s.tracker.Current(ctx, expense.ID)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return s.finalizeApproved(ctx, expense, approverID, now)
	}
	if err := s.expenses.UpdateRouting(ctx, expense.ID, next.StepNumber, &next.ApproverID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to route expense")
	}
	if s.notifier != nil {
		s.notifier.ApprovalRequested(ctx, next.ApproverID, expense)
	}
	return &models.WorkflowDecision{
		State:          models.StatePendingStep,
		NextStep:       &next.StepNumber,
		NextApproverID: &next.ApproverID,
	}, nil
}

func (s *ApprovalService) finalizeApproved(ctx context.Context, expense *models.Expense, approverID string, now time.Time) (*models.WorkflowDecision, error) {
	rows, err := s.expenses.FinalizeApproved(ctx, expense.ID, approverID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalise expense")
	}
	if rows == 0 {
		return nil, appErrors.Clone(appErrors.ErrAlreadyProcessed, "expense already finalised")
	}
	expense.Status = models.ExpenseApproved
	s.supersedeAndNotify(ctx, expense, now)
	if s.notifier != nil {
		s.notifier.ExpenseFinalized(ctx, expense, true)
	}
	return &models.WorkflowDecision{State: models.StateApproved, Finalized: true}, nil
}

func (s *ApprovalService) finalizeRejected(ctx context.Context, expense *models.Expense, rejectorID string, reason *string, now time.Time) (*models.WorkflowDecision, error) {
	rows, err := s.expenses.FinalizeRejected(ctx, expense.ID, rejectorID, reason, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalise expense")
	}
	if rows == 0 {
		return nil, appErrors.Clone(appErrors.ErrAlreadyProcessed, "expense already finalised")
	}
	expense.Status = models.ExpenseRejected
	s.supersedeAndNotify(ctx, expense, now)
	if s.notifier != nil {
		s.notifier.ExpenseFinalized(ctx, expense, false)
	}
	return &models.WorkflowDecision{State: models.StateRejected, Finalized: true}, nil
}

// supersedeAndNotify marks every remaining pending record moot and tells the
// skipped approvers. Failures here are logged, not surfaced; the expense is
// already finalised.
func (s *ApprovalService) supersedeAndNotify(ctx context.Context, expense *models.Expense, now time.Time) {
	skipped := make(map[string]struct{})
	steps, err := s.tracker.Supersede(ctx, expense.ID, now)
	if err != nil {
		s.logger.Error("failed to supersede step approvals", zap.String("expense_id", expense.ID), zap.Error(err))
	}
	for _, record := range steps {
		skipped[record.ApproverID] = struct{}{}
	}
	votes, err := s.ruleApprovals.SupersedePending(ctx, expense.ID, now)
	if err != nil {
		s.logger.Error("failed to supersede rule approvals", zap.String("expense_id", expense.ID), zap.Error(err))
	}
	for _, record := range votes {
		skipped[record.ApproverID] = struct{}{}
	}
	if len(skipped) == 0 || s.notifier == nil {
		return
	}
	ids := make([]string, 0, len(skipped))
	for id := range skipped {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s.notifier.ApprovalsSuperseded(ctx, ids, expense)
}

// History merges step and vote records into one chronological trail.
func (s *ApprovalService) History(ctx context.Context, expenseID string) ([]models.ApprovalHistoryEntry, error) {
	expense, err := s.expenses.FindByID(ctx, expenseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "expense not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load expense")
	}

	var workflow *models.Workflow
	if expense.WorkflowID != nil {
		workflow, err = s.workflows.FindByID(ctx, *expense.WorkflowID)
		if err != nil && err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow")
		}
	}
	ruleNames := make(map[string]string)
	if workflow != nil {
		for _, rule := range workflow.ConditionalRules {
			ruleNames[rule.ID] = rule.Name
		}
	}

	steps, err := s.listStepApprovals(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	votes, err := s.ruleApprovals.ListByExpense(ctx, expenseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load vote records")
	}

	entries := make([]models.ApprovalHistoryEntry, 0, len(steps)+len(votes))
	for _, record := range steps {
		step := record.StepNumber
		entries = append(entries, models.ApprovalHistoryEntry{
			ApproverID: record.ApproverID,
			Source:     models.SourceStep,
			StepNumber: &step,
			Status:     record.Status,
			Comment:    record.Comment,
			Timestamp:  record.UpdatedAt,
		})
	}
	for _, record := range votes {
		entry := models.ApprovalHistoryEntry{
			ApproverID: record.ApproverID,
			Source:     models.SourceRule,
			Status:     record.Status,
			Comment:    record.Comment,
			Timestamp:  record.UpdatedAt,
		}
		if name, ok := ruleNames[record.RuleID]; ok {
			ruleName := name
			entry.RuleName = &ruleName
		}
		entries = append(entries, entry)
	}

	s.decorateApprovers(ctx, entries)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })
	return entries, nil
}

// Stats tallies both record kinds for the expense. Superseded records are
// excluded from every count and from the percentage denominator.
func (s *ApprovalService) Stats(ctx context.Context, expenseID string) (*dto.ApprovalStatsResponse, error) {
	stepStats, err := s.stepApprovals.Stats(ctx, expenseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to tally step approvals")
	}
	ruleStats, err := s.ruleApprovals.Stats(ctx, expenseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to tally vote records")
	}

	total := stepStats.Total + ruleStats.Total
	approved := stepStats.Approved + ruleStats.Approved
	percentage := decimal.Zero
	if total > 0 {
		percentage = decimal.NewFromInt(int64(approved * 100)).Div(decimal.NewFromInt(int64(total))).Round(2)
	}
	return &dto.ApprovalStatsResponse{
		ExpenseID:          expenseID,
		Steps:              *stepStats,
		Rules:              *ruleStats,
		ApprovedPercentage: percentage.String(),
		GeneratedAt:        time.Now().UTC(),
	}, nil
}

// PendingForApprover lists everything actionable by the approver across both
// record kinds.
func (s *ApprovalService) PendingForApprover(ctx context.Context, approverID string) ([]dto.PendingApprovalItem, error) {
	steps, err := s.stepApprovals.ListPendingForApprover(ctx, approverID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending steps")
	}
	votes, err := s.ruleApprovals.ListPendingForApprover(ctx, approverID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending votes")
	}

	items := make([]dto.PendingApprovalItem, 0, len(steps)+len(votes))
	seen := make(map[string]struct{})
	for _, record := range steps {
		expense, err := s.expenses.FindByID(ctx, record.ExpenseID)
		if err != nil {
			continue
		}
		// A step is only actionable once routing has reached it.
		if expense.CurrentStep != record.StepNumber {
			continue
		}
		step := record.StepNumber
		items = append(items, dto.PendingApprovalItem{
			ExpenseID:   record.ExpenseID,
			Source:      models.SourceStep,
			StepNumber:  &step,
			Description: expense.Description,
			Amount:      expense.Amount.String(),
			Currency:    expense.Currency,
			SubmittedBy: expense.UserID,
		})
		seen[record.ExpenseID] = struct{}{}
	}
	for _, record := range votes {
		if _, dup := seen[record.ExpenseID]; dup {
			continue
		}
		expense, err := s.expenses.FindByID(ctx, record.ExpenseID)
		if err != nil {
			continue
		}
		ruleID := record.RuleID
		items = append(items, dto.PendingApprovalItem{
			ExpenseID:   record.ExpenseID,
			Source:      models.SourceRule,
			RuleID:      &ruleID,
			Description: expense.Description,
			Amount:      expense.Amount.String(),
			Currency:    expense.Currency,
			SubmittedBy: expense.UserID,
		})
	}
	return items, nil
}

// effectiveConditionalRules returns the rules to evaluate for the workflow.
// A percentage workflow with a workflow-level threshold and no explicit
// rules gets a synthetic percentage rule so the threshold still applies.
func (s *ApprovalService) effectiveConditionalRules(ctx context.Context, expense *models.Expense, workflow *models.Workflow) ([]models.ConditionalRule, error) {
	if workflow.Type == models.WorkflowSequential {
		return nil, nil
	}
	rules, err := s.matcher.ConditionalRules(ctx, workflow.ID, expense.Amount)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 && workflow.Type == models.WorkflowPercentage && workflow.PercentageThreshold > 0 {
		threshold := workflow.PercentageThreshold
		rules = append(rules, models.ConditionalRule{
			ID:                  workflow.ID,
			WorkflowID:          workflow.ID,
			Name:                workflow.Name,
			Type:                models.RulePercentage,
			PercentageThreshold: &threshold,
		})
	}
	return rules, nil
}

// createVoterRecords materialises one vote record per eligible approver. The
// pool is the chain's approvers plus any specific approvers the rules name;
// when both are empty the company's finance and director staff vote.
func (s *ApprovalService) createVoterRecords(ctx context.Context, expense *models.Expense, chain []models.StepApproval, rules []models.ConditionalRule) error {
	if len(rules) == 0 {
		return nil
	}
	pool := make(map[string]string)
	for _, record := range chain {
		pool[record.ApproverID] = firstRuleID(rules)
	}
	for _, rule := range rules {
		if rule.SpecificApproverID != nil && *rule.SpecificApproverID != "" {
			pool[*rule.SpecificApproverID] = rule.ID
		}
	}
	if len(pool) == 0 {
		for _, role := range []models.UserRole{models.RoleFinance, models.RoleDirector} {
			users, err := s.users.ListByRole(ctx, expense.CompanyID, role)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve voters")
			}
			for _, user := range users {
				pool[user.ID] = firstRuleID(rules)
			}
		}
	}
	if len(pool) == 0 {
		return appErrors.Clone(appErrors.ErrInvalidRuleConfig, "no eligible voters for conditional rules")
	}

	ids := make([]string, 0, len(pool))
	for id := range pool {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	records := make([]models.RuleApproval, 0, len(ids))
	for _, id := range ids {
		records = append(records, models.RuleApproval{
			ExpenseID:  expense.ID,
			ApproverID: id,
			RuleID:     pool[id],
			Status:     models.ApprovalPending,
		})
	}
	if err := s.ruleApprovals.CreateBatch(ctx, records); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create vote records")
	}
	return nil
}

func (s *ApprovalService) classifyRuleNoop(ctx context.Context, expenseID, approverID string) error {
	existing, err := s.ruleApprovals.FindByRef(ctx, expenseID, approverID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrApprovalNotFound, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect vote record")
	}
	if existing.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrAlreadyProcessed, "")
	}
	return appErrors.Clone(appErrors.ErrApprovalNotFound, "")
}

func (s *ApprovalService) listStepApprovals(ctx context.Context, expenseID string) ([]models.StepApproval, error) {
	records, err := s.stepApprovals.ListByExpense(ctx, expenseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load step records")
	}
	return records, nil
}

func (s *ApprovalService) decorateApprovers(ctx context.Context, entries []models.ApprovalHistoryEntry) {
	cache := make(map[string]*models.User)
	for i := range entries {
		user, ok := cache[entries[i].ApproverID]
		if !ok {
			loaded, err := s.users.FindByID(ctx, entries[i].ApproverID)
			if err != nil {
				cache[entries[i].ApproverID] = nil
				continue
			}
			cache[entries[i].ApproverID] = loaded
			user = loaded
		}
		if user != nil {
			entries[i].ApproverName = user.FullName
			entries[i].Role = user.Role
		}
	}
}

func (s *ApprovalService) emitAudit(ctx context.Context, approverID, expenseID string, req dto.ApprovalDecisionRequest) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"decision": req.Decision,
		"comment":  req.Comment,
	})
	entry := &models.AuditLog{
		UserID:     &approverID,
		Action:     models.AuditActionApprovalDecide,
		Resource:   "expense",
		ResourceID: &expenseID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "approval-service",
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record approval audit", zap.Error(err))
	}
}

func ruleIDPtr(rule *models.ConditionalRule) *string {
	if rule == nil {
		return nil
	}
	id := rule.ID
	return &id
}

func firstRuleID(rules []models.ConditionalRule) string {
	if len(rules) == 0 {
		return ""
	}
	return rules[0].ID
}
