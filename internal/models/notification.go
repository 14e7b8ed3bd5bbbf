package models

import "time"

// NotificationType enumerates approval fan-out messages.
type NotificationType string

const (
	NotifyApprovalRequested  NotificationType = "approval_requested"
	NotifyExpenseApproved    NotificationType = "expense_approved"
	NotifyExpenseRejected    NotificationType = "expense_rejected"
	NotifyApprovalSuperseded NotificationType = "approval_superseded"
)

// Notification is a persisted fan-out message for one recipient. Delivery is
// fire-and-forget; the engine never waits on it.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	ExpenseID string           `db:"expense_id" json:"expense_id"`
	Type      NotificationType `db:"type" json:"type"`
	Message   string           `db:"message" json:"message"`
	Read      bool             `db:"is_read" json:"is_read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
