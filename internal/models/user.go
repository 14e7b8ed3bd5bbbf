package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleEmployee UserRole = "employee"
	RoleManager  UserRole = "manager"
	RoleFinance  UserRole = "finance"
	RoleDirector UserRole = "director"
	RoleAdmin    UserRole = "admin"
)

// User represents an application user stored in the users table.
type User struct {
	ID                string    `db:"id" json:"id"`
	CompanyID         string    `db:"company_id" json:"company_id"`
	Email             string    `db:"email" json:"email"`
	PasswordHash      string    `db:"password_hash" json:"-"`
	FullName          string    `db:"full_name" json:"full_name"`
	Role              UserRole  `db:"role" json:"role"`
	ManagerID         *string   `db:"manager_id" json:"manager_id,omitempty"`
	IsManagerApprover bool      `db:"is_manager_approver" json:"is_manager_approver"`
	Active            bool      `db:"is_active" json:"is_active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
