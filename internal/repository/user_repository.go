package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clearspend/expense-approval-api/internal/models"
)

// UserRepository reads and writes users and the admin audit trail.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, company_id, email, password_hash, full_name, role, manager_id,
       is_manager_approver, is_active, created_at, updated_at`

// FindByID fetches a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail fetches an active user by email for authentication.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1 AND is_active = TRUE`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindManagerOf resolves the manager of the given user. sql.ErrNoRows is
// passed through when the user has no manager assigned.
func (r *UserRepository) FindManagerOf(ctx context.Context, userID string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users
	WHERE id = (SELECT manager_id FROM users WHERE id = $1) AND is_active = TRUE`, userColumns)
	var manager models.User
	if err := r.db.GetContext(ctx, &manager, query, userID); err != nil {
		return nil, err
	}
	return &manager, nil
}

// ListByRole returns the company's active users holding the role, oldest
// account first so approver resolution is deterministic.
func (r *UserRepository) ListByRole(ctx context.Context, companyID string, role models.UserRole) ([]models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users
	WHERE company_id = $1 AND role = $2 AND is_active = TRUE
	ORDER BY created_at ASC`, userColumns)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, companyID, role); err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	return users, nil
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	const query = `INSERT INTO users
	(id, company_id, email, password_hash, full_name, role, manager_id, is_manager_approver, is_active, created_at, updated_at)
	VALUES (:id, :company_id, :email, :password_hash, :full_name, :role, :manager_id, :is_manager_approver, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// CreateAuditLog appends one entry to the audit trail.
func (r *UserRepository) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs
	(id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at)
	VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
