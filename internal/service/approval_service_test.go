package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearspend/expense-approval-api/internal/dto"
	"github.com/clearspend/expense-approval-api/internal/models"
	appErrors "github.com/clearspend/expense-approval-api/pkg/errors"
)

type expenseStoreStub struct {
	expenses map[string]*models.Expense
}

func newExpenseStoreStub(expenses ...*models.Expense) *expenseStoreStub {
	stub := &expenseStoreStub{expenses: make(map[string]*models.Expense)}
	for _, expense := range expenses {
		stub.expenses[expense.ID] = expense
	}
	return stub
}

func (s *expenseStoreStub) FindByID(ctx context.Context, id string) (*models.Expense, error) {
	expense, ok := s.expenses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *expense
	return &clone, nil
}

func (s *expenseStoreStub) UpdateRouting(ctx context.Context, id string, step int, approverID *string, now time.Time) error {
	if expense, ok := s.expenses[id]; ok && expense.Status == models.ExpensePending {
		expense.CurrentStep = step
		expense.CurrentApproverID = approverID
	}
	return nil
}

func (s *expenseStoreStub) FinalizeApproved(ctx context.Context, id, approverID string, now time.Time) (int64, error) {
	expense, ok := s.expenses[id]
	if !ok || expense.Status != models.ExpensePending {
		return 0, nil
	}
	expense.Status = models.ExpenseApproved
	expense.FinalApprovedBy = &approverID
	expense.FinalApprovedAt = &now
	expense.CurrentApproverID = nil
	return 1, nil
}

func (s *expenseStoreStub) FinalizeRejected(ctx context.Context, id, rejectorID string, reason *string, now time.Time) (int64, error) {
	expense, ok := s.expenses[id]
	if !ok || expense.Status != models.ExpensePending {
		return 0, nil
	}
	expense.Status = models.ExpenseRejected
	expense.RejectedBy = &rejectorID
	expense.RejectedAt = &now
	expense.RejectionReason = reason
	expense.CurrentApproverID = nil
	return 1, nil
}

type workflowReaderStub struct {
	workflows map[string]*models.Workflow
}

func (s *workflowReaderStub) FindByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, ok := s.workflows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return workflow, nil
}

type ruleApprovalStoreStub struct {
	records []models.RuleApproval
}

func (s *ruleApprovalStoreStub) CreateBatch(ctx context.Context, approvals []models.RuleApproval) error {
	s.records = append(s.records, approvals...)
	return nil
}

func (s *ruleApprovalStoreStub) ListByExpense(ctx context.Context, expenseID string) ([]models.RuleApproval, error) {
	var result []models.RuleApproval
	for _, record := range s.records {
		if record.ExpenseID == expenseID {
			result = append(result, record)
		}
	}
	return result, nil
}

func (s *ruleApprovalStoreStub) FindByRef(ctx context.Context, expenseID, approverID string) (*models.RuleApproval, error) {
	for i := range s.records {
		record := s.records[i]
		if record.ExpenseID == expenseID && record.ApproverID == approverID {
			return &record, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *ruleApprovalStoreStub) Approve(ctx context.Context, expenseID, approverID string, comment *string, now time.Time) (int64, error) {
	return s.transition(expenseID, approverID, models.ApprovalApproved, comment, &now), nil
}

func (s *ruleApprovalStoreStub) Reject(ctx context.Context, expenseID, approverID string, comment *string, now time.Time) (int64, error) {
	return s.transition(expenseID, approverID, models.ApprovalRejected, comment, nil), nil
}

func (s *ruleApprovalStoreStub) transition(expenseID, approverID string, to models.ApprovalStatus, comment *string, approvedAt *time.Time) int64 {
	for i := range s.records {
		record := &s.records[i]
		if record.ExpenseID != expenseID || record.ApproverID != approverID {
			continue
		}
		if record.Status != models.ApprovalPending {
			return 0
		}
		record.Status = to
		record.Comment = comment
		if approvedAt != nil && record.ApprovedAt == nil {
			record.ApprovedAt = approvedAt
		}
		record.UpdatedAt = time.Now().UTC()
		return 1
	}
	return 0
}

func (s *ruleApprovalStoreStub) SupersedePending(ctx context.Context, expenseID string, now time.Time) ([]models.RuleApproval, error) {
	var superseded []models.RuleApproval
	for i := range s.records {
		record := &s.records[i]
		if record.ExpenseID == expenseID && record.Status == models.ApprovalPending {
			record.Status = models.ApprovalSuperseded
			record.UpdatedAt = now
			superseded = append(superseded, *record)
		}
	}
	return superseded, nil
}

func (s *ruleApprovalStoreStub) Stats(ctx context.Context, expenseID string) (*models.ApprovalStats, error) {
	stats := &models.ApprovalStats{}
	for _, record := range s.records {
		if record.ExpenseID != expenseID || record.Status == models.ApprovalSuperseded {
			continue
		}
		stats.Total++
		switch record.Status {
		case models.ApprovalApproved:
			stats.Approved++
		case models.ApprovalRejected:
			stats.Rejected++
		case models.ApprovalPending:
			stats.Pending++
		}
	}
	return stats, nil
}

func (s *ruleApprovalStoreStub) ListPendingForApprover(ctx context.Context, approverID string) ([]models.RuleApproval, error) {
	var result []models.RuleApproval
	for _, record := range s.records {
		if record.ApproverID == approverID && record.Status == models.ApprovalPending {
			result = append(result, record)
		}
	}
	return result, nil
}

type notifierStub struct {
	requested  []string
	finalized  []bool
	superseded [][]string
}

func (n *notifierStub) ApprovalRequested(ctx context.Context, approverID string, expense *models.Expense) {
	n.requested = append(n.requested, approverID)
}

func (n *notifierStub) ExpenseFinalized(ctx context.Context, expense *models.Expense, approved bool) {
	n.finalized = append(n.finalized, approved)
}

func (n *notifierStub) ApprovalsSuperseded(ctx context.Context, approverIDs []string, expense *models.Expense) {
	n.superseded = append(n.superseded, approverIDs)
}

type auditLoggerStub struct {
	entries []*models.AuditLog
}

func (a *auditLoggerStub) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	a.entries = append(a.entries, entry)
	return nil
}

type approvalFixture struct {
	service   *ApprovalService
	expenses  *expenseStoreStub
	steps     *stepApprovalStoreStub
	rules     *ruleApprovalStoreStub
	notifier  *notifierStub
	audit     *auditLoggerStub
	workflows *workflowReaderStub
}

func newApprovalFixture(workflow *models.Workflow, sequential []models.SequentialRule, conditional []models.ConditionalRule, expenses ...*models.Expense) *approvalFixture {
	workflow.SequentialRules = sequential
	workflow.ConditionalRules = conditional
	directory := defaultDirectory()
	steps := &stepApprovalStoreStub{}
	rules := &ruleApprovalStoreStub{}
	notifier := &notifierStub{}
	audit := &auditLoggerStub{}
	expenseStore := newExpenseStoreStub(expenses...)
	workflows := &workflowReaderStub{workflows: map[string]*models.Workflow{workflow.ID: workflow}}
	matcher := NewRuleMatcher(
		&sequentialRuleRepoStub{rules: sequential},
		&conditionalRuleRepoStub{rules: conditional},
		nil, nil, RuleMatcherConfig{})
	tracker := NewStepTracker(steps, directory, nil)
	service := NewApprovalService(
		expenseStore, workflows, steps, rules,
		matcher, tracker, NewConditionEvaluator(nil),
		directory, notifier, audit, nil)
	return &approvalFixture{
		service:   service,
		expenses:  expenseStore,
		steps:     steps,
		rules:     rules,
		notifier:  notifier,
		audit:     audit,
		workflows: workflows,
	}
}

// chainTierRules escalate: larger amounts accumulate more steps. An 8000
// expense routes through manager, finance, and director in order.
func chainTierRules() []models.SequentialRule {
	return []models.SequentialRule{
		{
			ID:           "step-manager",
			StepNumber:   1,
			ApproverRole: models.ApproverManager,
			MinAmount:    decimal.Zero,
			Required:     true,
		},
		{
			ID:           "step-finance",
			StepNumber:   2,
			ApproverRole: models.ApproverFinance,
			MinAmount:    decimal.RequireFromString("1000.01"),
			Required:     true,
		},
		{
			ID:           "step-director",
			StepNumber:   3,
			ApproverRole: models.ApproverDirector,
			MinAmount:    decimal.RequireFromString("5000.01"),
			Required:     true,
		},
	}
}

func sequentialWorkflow() *models.Workflow {
	return &models.Workflow{ID: "wf-1", CompanyID: "co-1", Name: "standard", Type: models.WorkflowSequential, Active: true}
}

func hybridWorkflow() *models.Workflow {
	return &models.Workflow{ID: "wf-1", CompanyID: "co-1", Name: "hybrid", Type: models.WorkflowHybrid, Active: true}
}

func approveReq() dto.ApprovalDecisionRequest {
	return dto.ApprovalDecisionRequest{Decision: "approved"}
}

func rejectReq(comment string) dto.ApprovalDecisionRequest {
	return dto.ApprovalDecisionRequest{Decision: "rejected", Comment: &comment}
}

func TestSequentialWorkflowWalksStepsInOrder(t *testing.T) {
	expense := testExpense("8000")
	fixture := newApprovalFixture(sequentialWorkflow(), chainTierRules(), nil, expense)
	ctx := context.Background()

	decision, err := fixture.service.InitializeChain(ctx, expense, fixture.workflows.workflows["wf-1"])
	require.NoError(t, err)
	assert.Equal(t, models.StatePendingStep, decision.State)
	require.NotNil(t, decision.NextApproverID)
	assert.Equal(t, "mgr-1", *decision.NextApproverID)
	assert.Equal(t, []string{"mgr-1"}, fixture.notifier.requested)

	steps := []struct {
		approver string
		wantNext string
	}{
		{"mgr-1", "fin-1"},
		{"fin-1", "dir-1"},
	}
	lastStep := 0
	for _, tc := range steps {
		current := fixture.expenses.expenses["exp-1"].CurrentStep
		assert.GreaterOrEqual(t, current, lastStep, "current_step never decreases")
		lastStep = current

		decision, err := fixture.service.SubmitDecision(ctx, "exp-1", tc.approver, approveReq())
		require.NoError(t, err)
		assert.Equal(t, models.StatePendingStep, decision.State)
		require.NotNil(t, decision.NextApproverID)
		assert.Equal(t, tc.wantNext, *decision.NextApproverID)
	}

	decision, err = fixture.service.SubmitDecision(ctx, "exp-1", "dir-1", approveReq())
	require.NoError(t, err)
	assert.Equal(t, models.StateApproved, decision.State)
	assert.True(t, decision.Finalized)
	assert.Equal(t, models.ExpenseApproved, fixture.expenses.expenses["exp-1"].Status)
	assert.Equal(t, []bool{true}, fixture.notifier.finalized)
}

func TestRejectionMidChainFinalizesImmediately(t *testing.T) {
	expense := testExpense("8000")
	fixture := newApprovalFixture(sequentialWorkflow(), chainTierRules(), nil, expense)
	ctx := context.Background()

	_, err := fixture.service.InitializeChain(ctx, expense, fixture.workflows.workflows["wf-1"])
	require.NoError(t, err)
	_, err = fixture.service.SubmitDecision(ctx, "exp-1", "mgr-1", approveReq())
	require.NoError(t, err)

	decision, err := fixture.service.SubmitDecision(ctx, "exp-1", "fin-1", rejectReq("missing receipts"))
	require.NoError(t, err)
	assert.Equal(t, models.StateRejected, decision.State)
	assert.True(t, decision.Finalized)

	stored := fixture.expenses.expenses["exp-1"]
	assert.Equal(t, models.ExpenseRejected, stored.Status)
	require.NotNil(t, stored.RejectionReason)
	assert.Equal(t, "missing receipts", *stored.RejectionReason)

	// Step 3 was never decided; it ends superseded, not approved or rejected.
	record, err := fixture.steps.FindByStep(ctx, "exp-1", "dir-1", 3)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalSuperseded, record.Status)
	assert.Nil(t, record.ApprovedAt)
	require.Len(t, fixture.notifier.superseded, 1)
	assert.Contains(t, fixture.notifier.superseded[0], "dir-1")
}

func TestHybridConditionalOverrideSkipsRemainingSteps(t *testing.T) {
	expense := testExpense("8000")
	threshold := 60
	cfo := "cfo-1"
	conditional := []models.ConditionalRule{{
		ID:                  "quorum-or-cfo",
		Name:                "Quorum or CFO",
		Type:                models.RuleHybrid,
		PercentageThreshold: &threshold,
		SpecificApproverID:  &cfo,
		MinAmount:           decimal.Zero,
	}}
	fixture := newApprovalFixture(hybridWorkflow(), chainTierRules(), conditional, expense)
	ctx := context.Background()

	_, err := fixture.service.InitializeChain(ctx, expense, fixture.workflows.workflows["wf-1"])
	require.NoError(t, err)

	// The CFO is not a step approver; their single vote satisfies the
	// override with zero sequential steps completed.
	decision, err := fixture.service.SubmitDecision(ctx, "exp-1", "cfo-1", approveReq())
	require.NoError(t, err)
	assert.Equal(t, models.StateApproved, decision.State)
	assert.True(t, decision.Finalized)
	require.NotNil(t, decision.SatisfiedRuleID)
	assert.Equal(t, "quorum-or-cfo", *decision.SatisfiedRuleID)
	assert.Equal(t, models.ExpenseApproved, fixture.expenses.expenses["exp-1"].Status)

	// Every pending step is now superseded.
	for _, stepRecord := range fixture.steps.records {
		assert.Equal(t, models.ApprovalSuperseded, stepRecord.Status)
	}
	require.Len(t, fixture.notifier.superseded, 1)
}

func TestConditionalSatisfactionRequiresNoFurtherEvents(t *testing.T) {
	expense := testExpense("8000")
	threshold := 60
	cfo := "cfo-1"
	conditional := []models.ConditionalRule{{
		ID:                 "cfo-only",
		Name:               "CFO sign-off",
		Type:               models.RuleSpecificApprover,
		SpecificApproverID: &cfo,
		MinAmount:          decimal.Zero,
	}}
	_ = threshold
	fixture := newApprovalFixture(hybridWorkflow(), chainTierRules(), conditional, expense)
	ctx := context.Background()

	_, err := fixture.service.InitializeChain(ctx, expense, fixture.workflows.workflows["wf-1"])
	require.NoError(t, err)
	decision, err := fixture.service.SubmitDecision(ctx, "exp-1", "cfo-1", approveReq())
	require.NoError(t, err)
	require.True(t, decision.Finalized)

	// Any later decision hits the finalised guard.
	_, err = fixture.service.SubmitDecision(ctx, "exp-1", "mgr-1", approveReq())
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyProcessed))
}

func TestDuplicateDecisionConflicts(t *testing.T) {
	expense := testExpense("8000")
	fixture := newApprovalFixture(sequentialWorkflow(), chainTierRules(), nil, expense)
	ctx := context.Background()

	_, err := fixture.service.InitializeChain(ctx, expense, fixture.workflows.workflows["wf-1"])
	require.NoError(t, err)
	_, err = fixture.service.SubmitDecision(ctx, "exp-1", "mgr-1", approveReq())
	require.NoError(t, err)

	// Same approver retries against step 1; their record is terminal and the
	// routing has moved on, so the retry conflicts.
	_, err = fixture.service.SubmitDecision(ctx, "exp-1", "mgr-1", approveReq())
	assert.True(t, appErrors.Is(err, appErrors.ErrApprovalNotFound) || appErrors.Is(err, appErrors.ErrAlreadyProcessed))
}

func TestWrongActorApprovalNotFound(t *testing.T) {
	expense := testExpense("8000")
	fixture := newApprovalFixture(sequentialWorkflow(), chainTierRules(), nil, expense)
	ctx := context.Background()

	_, err := fixture.service.InitializeChain(ctx, expense, fixture.workflows.workflows["wf-1"])
	require.NoError(t, err)

	// The director holds step 3 but routing is at step 1.
	_, err = fixture.service.SubmitDecision(ctx, "exp-1", "dir-1", approveReq())
	assert.True(t, appErrors.Is(err, appErrors.ErrApprovalNotFound))
}

func TestInitializeChainNoApplicableRule(t *testing.T) {
	expense := testExpense("50")
	rules := []models.SequentialRule{{
		ID:         "high-band",
		StepNumber: 1,
		MinAmount:  decimal.NewFromInt(100),
	}}
	fixture := newApprovalFixture(sequentialWorkflow(), rules, nil, expense)

	_, err := fixture.service.InitializeChain(context.Background(), expense, fixture.workflows.workflows["wf-1"])
	assert.True(t, appErrors.Is(err, appErrors.ErrNoApplicableRule))
}

func TestStatsExcludeSuperseded(t *testing.T) {
	expense := testExpense("8000")
	fixture := newApprovalFixture(sequentialWorkflow(), chainTierRules(), nil, expense)
	ctx := context.Background()

	_, err := fixture.service.InitializeChain(ctx, expense, fixture.workflows.workflows["wf-1"])
	require.NoError(t, err)
	_, err = fixture.service.SubmitDecision(ctx, "exp-1", "mgr-1", approveReq())
	require.NoError(t, err)
	_, err = fixture.service.SubmitDecision(ctx, "exp-1", "fin-1", rejectReq("over budget"))
	require.NoError(t, err)

	stats, err := fixture.service.Stats(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Steps.Total, "superseded step 3 drops out of the tally")
	assert.Equal(t, 1, stats.Steps.Approved)
	assert.Equal(t, 1, stats.Steps.Rejected)
	assert.Equal(t, 0, stats.Steps.Pending)
}

func TestHistoryMergesChronologically(t *testing.T) {
	expense := testExpense("500")
	fixture := newApprovalFixture(sequentialWorkflow(), chainTierRules(), nil, expense)
	ctx := context.Background()

	_, err := fixture.service.InitializeChain(ctx, expense, fixture.workflows.workflows["wf-1"])
	require.NoError(t, err)
	_, err = fixture.service.SubmitDecision(ctx, "exp-1", "mgr-1", approveReq())
	require.NoError(t, err)

	entries, err := fixture.service.History(ctx, "exp-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.SourceStep, entries[0].Source)
	assert.Equal(t, "Dana Reyes", entries[0].ApproverName)
	assert.Equal(t, models.ApprovalApproved, entries[0].Status)
}

func TestDecisionVerdictValidated(t *testing.T) {
	expense := testExpense("500")
	fixture := newApprovalFixture(sequentialWorkflow(), chainTierRules(), nil, expense)
	ctx := context.Background()

	_, err := fixture.service.InitializeChain(ctx, expense, fixture.workflows.workflows["wf-1"])
	require.NoError(t, err)

	_, err = fixture.service.SubmitDecision(ctx, "exp-1", "mgr-1", dto.ApprovalDecisionRequest{Decision: "maybe"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
