package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clearspend/expense-approval-api/internal/dto"
	"github.com/clearspend/expense-approval-api/internal/middleware"
	"github.com/clearspend/expense-approval-api/internal/models"
	"github.com/clearspend/expense-approval-api/internal/service"
	appErrors "github.com/clearspend/expense-approval-api/pkg/errors"
	"github.com/clearspend/expense-approval-api/pkg/response"
)

// ExpenseHandler exposes expense submission and inspection endpoints.
type ExpenseHandler struct {
	expenses      *service.ExpenseService
	approvals     *service.ApprovalService
	exports       *service.ExportService
	exportEnabled bool
}

// NewExpenseHandler constructs handler.
func NewExpenseHandler(expenses *service.ExpenseService, approvals *service.ApprovalService, exports *service.ExportService, exportEnabled bool) *ExpenseHandler {
	return &ExpenseHandler{expenses: expenses, approvals: approvals, exports: exports, exportEnabled: exportEnabled}
}

// Submit godoc
// @Summary Submit expense
// @Description Creates an expense claim and routes it to its first approver
// @Tags Expenses
// @Accept json
// @Produce json
// @Param payload body dto.SubmitExpenseRequest true "Expense payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /expenses [post]
func (h *ExpenseHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.SubmitExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid expense payload"))
		return
	}

	res, err := h.expenses.Submit(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, res)
}

// List godoc
// @Summary List expenses
// @Description Lists expenses visible to the caller; employees see their own claims
// @Tags Expenses
// @Produce json
// @Param status query string false "Expense status"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /expenses [get]
func (h *ExpenseHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.ExpenseFilter{
		CompanyID: claims.CompanyID,
		Status:    models.ExpenseStatus(c.Query("status")),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 20),
	}
	if claims.Role == models.RoleEmployee {
		filter.UserID = claims.UserID
	} else if userID := c.Query("user_id"); userID != "" {
		filter.UserID = userID
	}

	items, err := h.expenses.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: len(items)}
	response.JSON(c, http.StatusOK, items, pagination, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get expense
// @Description Returns one expense claim
// @Tags Expenses
// @Produce json
// @Param id path string true "Expense ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /expenses/{id} [get]
func (h *ExpenseHandler) Get(c *gin.Context) {
	expense, err := h.loadScoped(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, expense, nil)
}

// History godoc
// @Summary Approval history
// @Description Chronological record of every decision on the expense
// @Tags Expenses
// @Produce json
// @Param id path string true "Expense ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /expenses/{id}/history [get]
func (h *ExpenseHandler) History(c *gin.Context) {
	expense, err := h.loadScoped(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	entries, err := h.approvals.History(c.Request.Context(), expense.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.ApprovalHistoryResponse{ExpenseID: expense.ID, Entries: entries}, nil)
}

// Stats godoc
// @Summary Approval statistics
// @Description Counts of approval records by status, superseded excluded
// @Tags Expenses
// @Produce json
// @Param id path string true "Expense ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /expenses/{id}/stats [get]
func (h *ExpenseHandler) Stats(c *gin.Context) {
	expense, err := h.loadScoped(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	stats, err := h.approvals.Stats(c.Request.Context(), expense.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, stats, nil)
}

// Export godoc
// @Summary Export approval history
// @Description Renders the approval history as a CSV or PDF download
// @Tags Expenses
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Expense ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /expenses/{id}/history/export [get]
func (h *ExpenseHandler) Export(c *gin.Context) {
	if !h.exportEnabled || h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "history export is disabled"))
		return
	}

	expense, err := h.loadScoped(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportCSV)))
	if format != service.ExportCSV && format != service.ExportPDF {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}

	result, err := h.exports.ApprovalHistory(c.Request.Context(), expense.ID, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+result.FileName)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

// loadScoped fetches the expense and enforces company visibility. Employees
// may only read their own claims.
func (h *ExpenseHandler) loadScoped(c *gin.Context) (*models.Expense, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	expense, err := h.expenses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if expense.CompanyID != claims.CompanyID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "expense not found")
	}
	if claims.Role == models.RoleEmployee && expense.UserID != claims.UserID {
		return nil, appErrors.ErrForbidden
	}
	return expense, nil
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
