package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/clearspend/expense-approval-api/internal/middleware"
	"github.com/clearspend/expense-approval-api/internal/models"
	"github.com/clearspend/expense-approval-api/internal/repository"
	"github.com/clearspend/expense-approval-api/internal/service"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Auth          *service.AuthService
	Workflows     *service.WorkflowService
	Expenses      *service.ExpenseService
	Approvals     *service.ApprovalService
	Notifications *service.NotificationService
	Exports       *service.ExportService
	Metrics       *service.MetricsService
	Users         *repository.UserRepository
	ExportEnabled bool
}

// RegisterRoutes mounts every API route group under the given prefix.
func RegisterRoutes(r *gin.Engine, prefix string, deps Deps) {
	authHandler := NewAuthHandler(deps.Auth)
	workflowHandler := NewWorkflowHandler(deps.Workflows)
	expenseHandler := NewExpenseHandler(deps.Expenses, deps.Approvals, deps.Exports, deps.ExportEnabled)
	approvalHandler := NewApprovalHandler(deps.Approvals, deps.Metrics)
	notificationHandler := NewNotificationHandler(deps.Notifications)

	api := r.Group(prefix)
	api.Use(middleware.Metrics(deps.Metrics))
	api.Use(middleware.WithResponseMeta())

	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(deps.Auth))

	authed.GET("/auth/me", authHandler.Me)

	workflows := authed.Group("/workflows")
	{
		workflows.GET("", workflowHandler.List)
		workflows.GET("/:id", workflowHandler.Get)

		admin := workflows.Group("")
		admin.Use(middleware.RequireRoles(models.RoleAdmin))
		admin.Use(middleware.Audit(deps.Users, "WORKFLOW_ADMIN", "workflow"))
		{
			admin.POST("", workflowHandler.Create)
			admin.POST("/defaults", workflowHandler.SeedDefaults)
			admin.PUT("/:id", workflowHandler.Update)
			admin.PATCH("/:id/active", workflowHandler.SetActive)
			admin.DELETE("/:id", workflowHandler.Delete)
		}
	}

	expenses := authed.Group("/expenses")
	{
		expenses.POST("", expenseHandler.Submit)
		expenses.GET("", expenseHandler.List)
		expenses.GET("/:id", expenseHandler.Get)
		expenses.GET("/:id/history", expenseHandler.History)
		expenses.GET("/:id/stats", expenseHandler.Stats)
		expenses.GET("/:id/history/export", expenseHandler.Export)

		expenses.POST("/:id/approvals", middleware.ApproverRoles(), approvalHandler.Decide)
	}

	authed.GET("/approvals/pending", middleware.ApproverRoles(), approvalHandler.Pending)

	notifications := authed.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
	}
}
