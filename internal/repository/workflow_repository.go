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

// WorkflowRepository persists approval workflow configurations.
type WorkflowRepository struct {
	db *sqlx.DB
}

// NewWorkflowRepository constructs the repository.
func NewWorkflowRepository(db *sqlx.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

const workflowColumns = `id, company_id, name, description, workflow_type, percentage_threshold, is_active, created_at, updated_at`

// FindByID loads a workflow with its active rule sets.
func (r *WorkflowRepository) FindByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_workflows WHERE id = $1`, workflowColumns)
	var workflow models.Workflow
	if err := r.db.GetContext(ctx, &workflow, query, id); err != nil {
		return nil, err
	}
	if err := r.loadRules(ctx, &workflow); err != nil {
		return nil, err
	}
	return &workflow, nil
}

// List returns workflows matching the filter, sorted by name.
func (r *WorkflowRepository) List(ctx context.Context, filter models.WorkflowFilter) ([]models.Workflow, error) {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM approval_workflows`, workflowColumns))
	args := make([]interface{}, 0, 3)
	conditions := make([]string, 0, 3)
	if filter.CompanyID != "" {
		args = append(args, filter.CompanyID)
		conditions = append(conditions, fmt.Sprintf("company_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("workflow_type = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY name ASC")

	var workflows []models.Workflow
	if err := r.db.SelectContext(ctx, &workflows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return workflows, nil
}

// Create inserts a workflow together with its rules in one transaction.
func (r *WorkflowRepository) Create(ctx context.Context, workflow *models.Workflow) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := r.createTx(ctx, tx, workflow); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit workflow: %w", err)
	}
	return nil
}

func (r *WorkflowRepository) createTx(ctx context.Context, tx *sqlx.Tx, workflow *models.Workflow) error {
	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}
	workflow.UpdatedAt = now
	const insertWorkflow = `INSERT INTO approval_workflows
	(id, company_id, name, description, workflow_type, percentage_threshold, is_active, created_at, updated_at)
	VALUES (:id, :company_id, :name, :description, :workflow_type, :percentage_threshold, :is_active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertWorkflow, workflow); err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	for i := range workflow.SequentialRules {
		workflow.SequentialRules[i].WorkflowID = workflow.ID
		if err := insertSequentialRuleTx(ctx, tx, &workflow.SequentialRules[i], now); err != nil {
			return err
		}
	}
	for i := range workflow.ConditionalRules {
		workflow.ConditionalRules[i].WorkflowID = workflow.ID
		if err := insertConditionalRuleTx(ctx, tx, &workflow.ConditionalRules[i], now); err != nil {
			return err
		}
	}
	return nil
}

// Update applies workflow metadata changes and replaces its rule sets.
func (r *WorkflowRepository) Update(ctx context.Context, workflow *models.Workflow) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	workflow.UpdatedAt = now
	const updateQuery = `UPDATE approval_workflows
	SET name = :name, description = :description, workflow_type = :workflow_type,
	    percentage_threshold = :percentage_threshold, is_active = :is_active, updated_at = :updated_at
	WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, updateQuery, workflow); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("update workflow: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sequential_rules WHERE workflow_id = $1`, workflow.ID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear sequential rules: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conditional_rules WHERE workflow_id = $1`, workflow.ID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear conditional rules: %w", err)
	}
	for i := range workflow.SequentialRules {
		workflow.SequentialRules[i].WorkflowID = workflow.ID
		if err := insertSequentialRuleTx(ctx, tx, &workflow.SequentialRules[i], now); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}
	for i := range workflow.ConditionalRules {
		workflow.ConditionalRules[i].WorkflowID = workflow.ID
		if err := insertConditionalRuleTx(ctx, tx, &workflow.ConditionalRules[i], now); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit workflow update: %w", err)
	}
	return nil
}

// SetActive soft-deletes or restores a workflow and its rules together.
func (r *WorkflowRepository) SetActive(ctx context.Context, id string, active bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE approval_workflows SET is_active = $2, updated_at = $3 WHERE id = $1`, id, active, now); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("set workflow active: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sequential_rules SET is_active = $2, updated_at = $3 WHERE workflow_id = $1`, id, active, now); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("set sequential rules active: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conditional_rules SET is_active = $2, updated_at = $3 WHERE workflow_id = $1`, id, active, now); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("set conditional rules active: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit workflow activation: %w", err)
	}
	return nil
}

// FindDefaultForCompany returns the company's active workflow of the given
// type, used when an expense arrives without an explicit workflow.
func (r *WorkflowRepository) FindDefaultForCompany(ctx context.Context, companyID string) (*models.Workflow, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_workflows
	WHERE company_id = $1 AND is_active = TRUE
	ORDER BY created_at ASC LIMIT 1`, workflowColumns)
	var workflow models.Workflow
	if err := r.db.GetContext(ctx, &workflow, query, companyID); err != nil {
		return nil, err
	}
	if err := r.loadRules(ctx, &workflow); err != nil {
		return nil, err
	}
	return &workflow, nil
}

func (r *WorkflowRepository) loadRules(ctx context.Context, workflow *models.Workflow) error {
	const seqQuery = `SELECT id, workflow_id, step_number, approver_role, specific_approver_id,
	       min_amount, max_amount, is_required, is_active, created_at, updated_at
	FROM sequential_rules WHERE workflow_id = $1 AND is_active = TRUE ORDER BY step_number ASC`
	if err := r.db.SelectContext(ctx, &workflow.SequentialRules, seqQuery, workflow.ID); err != nil {
		return fmt.Errorf("load sequential rules: %w", err)
	}
	const condQuery = `SELECT id, workflow_id, rule_name, rule_type, percentage_threshold, specific_approver_id,
	       min_amount, max_amount, is_active, created_at, updated_at
	FROM conditional_rules WHERE workflow_id = $1 AND is_active = TRUE ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &workflow.ConditionalRules, condQuery, workflow.ID); err != nil {
		return fmt.Errorf("load conditional rules: %w", err)
	}
	return nil
}

func insertSequentialRuleTx(ctx context.Context, tx *sqlx.Tx, rule *models.SequentialRule, now time.Time) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	const query = `INSERT INTO sequential_rules
	(id, workflow_id, step_number, approver_role, specific_approver_id, min_amount, max_amount, is_required, is_active, created_at, updated_at)
	VALUES (:id, :workflow_id, :step_number, :approver_role, :specific_approver_id, :min_amount, :max_amount, :is_required, :is_active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("insert sequential rule step %d: %w", rule.StepNumber, err)
	}
	return nil
}

func insertConditionalRuleTx(ctx context.Context, tx *sqlx.Tx, rule *models.ConditionalRule, now time.Time) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	const query = `INSERT INTO conditional_rules
	(id, workflow_id, rule_name, rule_type, percentage_threshold, specific_approver_id, min_amount, max_amount, is_active, created_at, updated_at)
	VALUES (:id, :workflow_id, :rule_name, :rule_type, :percentage_threshold, :specific_approver_id, :min_amount, :max_amount, :is_active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("insert conditional rule %s: %w", rule.Name, err)
	}
	return nil
}
