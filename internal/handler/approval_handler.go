package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clearspend/expense-approval-api/internal/dto"
	"github.com/clearspend/expense-approval-api/internal/models"
	"github.com/clearspend/expense-approval-api/internal/service"
	appErrors "github.com/clearspend/expense-approval-api/pkg/errors"
	"github.com/clearspend/expense-approval-api/pkg/response"
)

// ApprovalHandler exposes decision submission and the approver queue.
type ApprovalHandler struct {
	approvals *service.ApprovalService
	metrics   *service.MetricsService
}

// NewApprovalHandler constructs handler.
func NewApprovalHandler(approvals *service.ApprovalService, metrics *service.MetricsService) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals, metrics: metrics}
}

// Decide godoc
// @Summary Submit approval decision
// @Description Records the caller's verdict on a pending expense
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Expense ID"
// @Param payload body dto.ApprovalDecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /expenses/{id}/approvals [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.ApprovalDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	expenseID := c.Param("id")
	decision, err := h.approvals.SubmitDecision(c.Request.Context(), expenseID, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.metrics.RecordDecision(req.Decision)
	status := models.ExpensePending
	switch decision.State {
	case models.StateApproved:
		status = models.ExpenseApproved
		h.metrics.RecordFinalized("approved")
	case models.StateRejected:
		status = models.ExpenseRejected
		h.metrics.RecordFinalized("rejected")
	}

	response.JSON(c, http.StatusOK, dto.ApprovalDecisionResponse{
		ExpenseID:     expenseID,
		ExpenseStatus: status,
		Decision:      decision,
	}, nil)
}

// Pending godoc
// @Summary Pending approvals queue
// @Description Lists expenses currently awaiting the caller's decision
// @Tags Approvals
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /approvals/pending [get]
func (h *ApprovalHandler) Pending(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	items, err := h.approvals.PendingForApprover(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, items, nil)
}
