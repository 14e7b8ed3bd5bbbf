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

// WorkflowHandler exposes workflow administration endpoints.
type WorkflowHandler struct {
	service *service.WorkflowService
}

// NewWorkflowHandler constructs handler.
func NewWorkflowHandler(svc *service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{service: svc}
}

// List godoc
// @Summary List workflows
// @Description Lists the company's approval workflows
// @Tags Workflows
// @Produce json
// @Param type query string false "Workflow type"
// @Success 200 {object} response.Envelope
// @Router /workflows [get]
func (h *WorkflowHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.WorkflowFilter{
		CompanyID: claims.CompanyID,
		Type:      models.WorkflowType(c.Query("type")),
	}
	workflows, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, workflows, nil)
}

// Get godoc
// @Summary Get workflow
// @Description Returns one workflow with its rule sets
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /workflows/{id} [get]
func (h *WorkflowHandler) Get(c *gin.Context) {
	workflow, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	claims := claimsFromContext(c)
	if claims != nil && workflow.CompanyID != claims.CompanyID {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	response.JSON(c, http.StatusOK, workflow, nil)
}

// Create godoc
// @Summary Create workflow
// @Description Creates a workflow with its sequential and conditional rules
// @Tags Workflows
// @Accept json
// @Produce json
// @Param payload body dto.CreateWorkflowRequest true "Workflow definition"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /workflows [post]
func (h *WorkflowHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid workflow payload"))
		return
	}

	workflow, err := h.service.Create(c.Request.Context(), claims.CompanyID, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, workflow)
}

// Update godoc
// @Summary Update workflow
// @Description Replaces a workflow definition; rule sets are replaced wholesale
// @Tags Workflows
// @Accept json
// @Produce json
// @Param id path string true "Workflow ID"
// @Param payload body dto.UpdateWorkflowRequest true "Workflow definition"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /workflows/{id} [put]
func (h *WorkflowHandler) Update(c *gin.Context) {
	var req dto.UpdateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid workflow payload"))
		return
	}

	workflow, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, workflow, nil)
}

// SetActive godoc
// @Summary Activate or deactivate workflow
// @Description Toggles whether a workflow accepts new expenses
// @Tags Workflows
// @Accept json
// @Produce json
// @Param id path string true "Workflow ID"
// @Param payload body object true "Active flag"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /workflows/{id}/active [patch]
func (h *WorkflowHandler) SetActive(c *gin.Context) {
	var payload struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "active flag required"))
		return
	}

	if err := h.service.SetActive(c.Request.Context(), c.Param("id"), *payload.Active, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Delete godoc
// @Summary Deactivate workflow
// @Description Soft-deletes a workflow; existing expenses keep their recorded chains
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /workflows/{id} [delete]
func (h *WorkflowHandler) Delete(c *gin.Context) {
	if err := h.service.SetActive(c.Request.Context(), c.Param("id"), false, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// SeedDefaults godoc
// @Summary Seed default workflow
// @Description Creates the standard three-tier workflow when the company has none
// @Tags Workflows
// @Accept json
// @Produce json
// @Param payload body object false "Optional CFO user for the hybrid override rule"
// @Success 201 {object} response.Envelope
// @Router /workflows/defaults [post]
func (h *WorkflowHandler) SeedDefaults(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		CFOUserID string `json:"cfo_user_id"`
	}
	_ = c.ShouldBindJSON(&payload)

	workflow, err := h.service.SeedDefaults(c.Request.Context(), claims.CompanyID, payload.CFOUserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, workflow)
}
