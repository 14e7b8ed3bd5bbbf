package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearspend/expense-approval-api/internal/models"
	"github.com/clearspend/expense-approval-api/pkg/jobs"
)

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

// NotificationService fans approval events out to recipients through the
// background queue. Delivery is fire-and-forget: a failed notification never
// blocks or fails the decision that triggered it.
type NotificationService struct {
	store  notificationStore
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService constructs the service. Call Start before use.
func NewNotificationService(store notificationStore, cfg jobs.QueueConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{store: store, logger: logger}
	s.queue = jobs.NewQueue("notifications", s.handle, cfg)
	return s
}

// Start launches the worker pool.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// ApprovalRequested tells an approver their verdict is awaited.
func (s *NotificationService) ApprovalRequested(ctx context.Context, approverID string, expense *models.Expense) {
	s.enqueue(models.Notification{
		UserID:    approverID,
		ExpenseID: expense.ID,
		Type:      models.NotifyApprovalRequested,
		Message:   fmt.Sprintf("Expense %s (%s %s) is awaiting your approval", expense.ID, expense.Amount.String(), expense.Currency),
	})
}

// ExpenseFinalized tells the submitter the outcome.
func (s *NotificationService) ExpenseFinalized(ctx context.Context, expense *models.Expense, approved bool) {
	kind := models.NotifyExpenseApproved
	verdict := "approved"
	if !approved {
		kind = models.NotifyExpenseRejected
		verdict = "rejected"
	}
	s.enqueue(models.Notification{
		UserID:    expense.UserID,
		ExpenseID: expense.ID,
		Type:      kind,
		Message:   fmt.Sprintf("Your expense %s was %s", expense.ID, verdict),
	})
}

// ApprovalsSuperseded tells skipped approvers their review is no longer
// needed.
func (s *NotificationService) ApprovalsSuperseded(ctx context.Context, approverIDs []string, expense *models.Expense) {
	for _, approverID := range approverIDs {
		s.enqueue(models.Notification{
			UserID:    approverID,
			ExpenseID: expense.ID,
			Type:      models.NotifyApprovalSuperseded,
			Message:   fmt.Sprintf("Expense %s was finalised; your approval is no longer required", expense.ID),
		})
	}
}

// ListForUser returns the user's notifications.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	return s.store.ListByUser(ctx, userID, unreadOnly)
}

// MarkRead flags one notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	return s.store.MarkRead(ctx, id, userID)
}

func (s *NotificationService) enqueue(notification models.Notification) {
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(notification.Type),
		Payload: notification,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("type", string(notification.Type)),
			zap.String("user_id", notification.UserID),
			zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.Notification)
	if !ok {
		s.logger.Error("dropping malformed notification job", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.store.Create(ctx, &notification); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}
	return nil
}
