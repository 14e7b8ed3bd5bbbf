package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clearspend/expense-approval-api/internal/dto"
	"github.com/clearspend/expense-approval-api/internal/models"
	appErrors "github.com/clearspend/expense-approval-api/pkg/errors"
)

type workflowRepository interface {
	FindByID(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context, filter models.WorkflowFilter) ([]models.Workflow, error)
	Create(ctx context.Context, workflow *models.Workflow) error
	Update(ctx context.Context, workflow *models.Workflow) error
	SetActive(ctx context.Context, id string, active bool) error
}

type workflowAuditLogger interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// WorkflowService manages approval workflow configurations. Saving validates
// every rule upfront, so a workflow that persists can always be evaluated.
type WorkflowService struct {
	repo      workflowRepository
	matcher   *RuleMatcher
	audit     workflowAuditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewWorkflowService constructs a WorkflowService.
func NewWorkflowService(repo workflowRepository, matcher *RuleMatcher, audit workflowAuditLogger, validate *validator.Validate, logger *zap.Logger) *WorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{repo: repo, matcher: matcher, audit: audit, validator: validate, logger: logger}
}

// Get loads one workflow with its rule sets.
func (s *WorkflowService) Get(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow")
	}
	return workflow, nil
}

// List returns workflows matching the filter.
func (s *WorkflowService) List(ctx context.Context, filter models.WorkflowFilter) ([]models.Workflow, error) {
	workflows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list workflows")
	}
	return workflows, nil
}

// Create validates and persists a new workflow.
func (s *WorkflowService) Create(ctx context.Context, companyID string, req dto.CreateWorkflowRequest, actor *models.JWTClaims) (*models.Workflow, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid workflow payload")
	}
	workflow, err := s.buildWorkflow(companyID, req.Name, req.Description, req.Type, req.PercentageThreshold, req.SequentialRules, req.ConditionalRules)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, workflow); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create workflow")
	}
	s.emitAudit(ctx, actor, models.AuditActionWorkflowCreate, workflow)
	return workflow, nil
}

// Update replaces a workflow's definition and drops its cached rules.
// In-flight expenses keep their recorded chains; only new submissions see
// the new rules.
func (s *WorkflowService) Update(ctx context.Context, id string, req dto.UpdateWorkflowRequest, actor *models.JWTClaims) (*models.Workflow, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid workflow payload")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	workflow, err := s.buildWorkflow(existing.CompanyID, req.Name, req.Description, req.Type, req.PercentageThreshold, req.SequentialRules, req.ConditionalRules)
	if err != nil {
		return nil, err
	}
	workflow.ID = existing.ID
	workflow.CreatedAt = existing.CreatedAt
	if err := s.repo.Update(ctx, workflow); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update workflow")
	}
	if s.matcher != nil {
		s.matcher.InvalidateWorkflow(ctx, workflow.ID)
	}
	s.emitAudit(ctx, actor, models.AuditActionWorkflowUpdate, workflow)
	return workflow, nil
}

// SetActive soft-deletes or restores a workflow.
func (s *WorkflowService) SetActive(ctx context.Context, id string, active bool, actor *models.JWTClaims) error {
	workflow, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to change workflow state")
	}
	if s.matcher != nil {
		s.matcher.InvalidateWorkflow(ctx, id)
	}
	if !active {
		s.emitAudit(ctx, actor, models.AuditActionWorkflowDisable, workflow)
	}
	return nil
}

// SeedDefaults provisions the standard three-tier chain plus a quorum-or-CFO
// override for a company with no workflows yet. Idempotent: an existing
// workflow means nothing to do.
func (s *WorkflowService) SeedDefaults(ctx context.Context, companyID, cfoUserID string) (*models.Workflow, error) {
	existing, err := s.repo.List(ctx, models.WorkflowFilter{CompanyID: companyID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing workflows")
	}
	if len(existing) > 0 {
		return &existing[0], nil
	}

	threshold := 60
	workflow := &models.Workflow{
		CompanyID:   companyID,
		Name:        "Standard expense approval",
		Description: "Three-tier amount-banded chain with quorum or CFO override",
		Type:        models.WorkflowHybrid,
		Active:      true,
		SequentialRules: []models.SequentialRule{
			{
				StepNumber:   1,
				ApproverRole: models.ApproverManager,
				MinAmount:    decimal.Zero,
				MaxAmount:    decimal.NewNullDecimal(decimal.NewFromInt(1000)),
				Required:     true,
				Active:       true,
			},
			{
				StepNumber:   2,
				ApproverRole: models.ApproverFinance,
				MinAmount:    decimal.RequireFromString("1000.01"),
				MaxAmount:    decimal.NewNullDecimal(decimal.NewFromInt(5000)),
				Required:     true,
				Active:       true,
			},
			{
				StepNumber:   3,
				ApproverRole: models.ApproverDirector,
				MinAmount:    decimal.RequireFromString("5000.01"),
				Required:     true,
				Active:       true,
			},
		},
	}
	if cfoUserID != "" {
		workflow.ConditionalRules = []models.ConditionalRule{
			{
				Name:                "Quorum or CFO",
				Type:                models.RuleHybrid,
				PercentageThreshold: &threshold,
				SpecificApproverID:  &cfoUserID,
				MinAmount:           decimal.Zero,
				Active:              true,
			},
		}
	}
	if err := s.validateRules(workflow); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, workflow); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to seed workflow")
	}
	s.logger.Info("seeded default workflow", zap.String("company_id", companyID), zap.String("workflow_id", workflow.ID))
	return workflow, nil
}

func (s *WorkflowService) buildWorkflow(companyID, name, description, workflowType string, percentageThreshold int, seqInputs []dto.SequentialRuleInput, condInputs []dto.ConditionalRuleInput) (*models.Workflow, error) {
	workflow := &models.Workflow{
		CompanyID:           companyID,
		Name:                name,
		Description:         description,
		Type:                models.WorkflowType(workflowType),
		PercentageThreshold: percentageThreshold,
		Active:              true,
	}
	for _, input := range seqInputs {
		rule, err := buildSequentialRule(input)
		if err != nil {
			return nil, err
		}
		workflow.SequentialRules = append(workflow.SequentialRules, rule)
	}
	for _, input := range condInputs {
		rule, err := buildConditionalRule(input)
		if err != nil {
			return nil, err
		}
		workflow.ConditionalRules = append(workflow.ConditionalRules, rule)
	}
	if err := s.validateRules(workflow); err != nil {
		return nil, err
	}
	return workflow, nil
}

// validateRules rejects configurations the evaluator could not execute:
// duplicate step numbers, inverted bands, unbuildable conditions. Overlapping
// bands between steps are legal (first match wins) but logged, because they
// are usually an authoring mistake.
func (s *WorkflowService) validateRules(workflow *models.Workflow) error {
	steps := make(map[int]struct{}, len(workflow.SequentialRules))
	for _, rule := range workflow.SequentialRules {
		if _, dup := steps[rule.StepNumber]; dup {
			return appErrors.Clone(appErrors.ErrInvalidRuleConfig, fmt.Sprintf("duplicate step number %d", rule.StepNumber))
		}
		steps[rule.StepNumber] = struct{}{}
		if rule.MinAmount.IsNegative() {
			return appErrors.Clone(appErrors.ErrInvalidRuleConfig, fmt.Sprintf("step %d has negative min amount", rule.StepNumber))
		}
		if rule.MaxAmount.Valid && rule.MaxAmount.Decimal.LessThan(rule.MinAmount) {
			return appErrors.Clone(appErrors.ErrInvalidRuleConfig, fmt.Sprintf("step %d has max below min", rule.StepNumber))
		}
		if rule.ApproverRole == models.ApproverSpecificUser && (rule.SpecificApproverID == nil || *rule.SpecificApproverID == "") {
			return appErrors.Clone(appErrors.ErrInvalidRuleConfig, fmt.Sprintf("step %d names no specific approver", rule.StepNumber))
		}
	}
	for i, a := range workflow.SequentialRules {
		for _, b := range workflow.SequentialRules[i+1:] {
			if bandsOverlap(a, b) {
				s.logger.Warn("sequential rule bands overlap, first match wins",
					zap.String("workflow", workflow.Name),
					zap.Int("step_a", a.StepNumber),
					zap.Int("step_b", b.StepNumber))
			}
		}
	}
	for _, rule := range workflow.ConditionalRules {
		if _, err := rule.Condition(); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInvalidRuleConfig.Code, appErrors.ErrInvalidRuleConfig.Status, appErrors.ErrInvalidRuleConfig.Message)
		}
		if rule.MaxAmount.Valid && rule.MaxAmount.Decimal.LessThan(rule.MinAmount) {
			return appErrors.Clone(appErrors.ErrInvalidRuleConfig, fmt.Sprintf("rule %q has max below min", rule.Name))
		}
	}
	if workflow.Type == models.WorkflowPercentage && workflow.PercentageThreshold != 0 {
		if workflow.PercentageThreshold < 1 || workflow.PercentageThreshold > 100 {
			return appErrors.Clone(appErrors.ErrInvalidRuleConfig, "workflow threshold outside 1-100")
		}
	}
	return nil
}

func (s *WorkflowService) emitAudit(ctx context.Context, actor *models.JWTClaims, action string, workflow *models.Workflow) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"name":          workflow.Name,
		"workflow_type": workflow.Type,
	})
	entry := &models.AuditLog{
		UserID:     actorID(actor),
		Action:     action,
		Resource:   "workflow",
		ResourceID: &workflow.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "workflow-service",
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record workflow audit", zap.Error(err))
	}
}

func buildSequentialRule(input dto.SequentialRuleInput) (models.SequentialRule, error) {
	minAmount, err := decimal.NewFromString(input.MinAmount)
	if err != nil {
		return models.SequentialRule{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("step %d: bad min amount", input.StepNumber))
	}
	rule := models.SequentialRule{
		StepNumber:         input.StepNumber,
		ApproverRole:       models.ApproverRole(input.ApproverRole),
		SpecificApproverID: input.SpecificApproverID,
		MinAmount:          minAmount,
		Required:           true,
		Active:             true,
	}
	if input.IsRequired != nil {
		rule.Required = *input.IsRequired
	}
	if input.MaxAmount != nil {
		maxAmount, err := decimal.NewFromString(*input.MaxAmount)
		if err != nil {
			return models.SequentialRule{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("step %d: bad max amount", input.StepNumber))
		}
		rule.MaxAmount = decimal.NewNullDecimal(maxAmount)
	}
	return rule, nil
}

func buildConditionalRule(input dto.ConditionalRuleInput) (models.ConditionalRule, error) {
	minAmount, err := decimal.NewFromString(input.MinAmount)
	if err != nil {
		return models.ConditionalRule{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("rule %q: bad min amount", input.Name))
	}
	rule := models.ConditionalRule{
		Name:                input.Name,
		Type:                models.ConditionalRuleType(input.Type),
		PercentageThreshold: input.PercentageThreshold,
		SpecificApproverID:  input.SpecificApproverID,
		MinAmount:           minAmount,
		Active:              true,
	}
	if input.MaxAmount != nil {
		maxAmount, err := decimal.NewFromString(*input.MaxAmount)
		if err != nil {
			return models.ConditionalRule{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("rule %q: bad max amount", input.Name))
		}
		rule.MaxAmount = decimal.NewNullDecimal(maxAmount)
	}
	return rule, nil
}

func bandsOverlap(a, b models.SequentialRule) bool {
	if a.MaxAmount.Valid && a.MaxAmount.Decimal.LessThan(b.MinAmount) {
		return false
	}
	if b.MaxAmount.Valid && b.MaxAmount.Decimal.LessThan(a.MinAmount) {
		return false
	}
	return true
}

func actorID(actor *models.JWTClaims) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	return &actor.UserID
}
