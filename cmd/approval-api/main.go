package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/clearspend/expense-approval-api/api/swagger"
	"github.com/clearspend/expense-approval-api/internal/handler"
	"github.com/clearspend/expense-approval-api/internal/repository"
	"github.com/clearspend/expense-approval-api/internal/service"
	"github.com/clearspend/expense-approval-api/pkg/cache"
	"github.com/clearspend/expense-approval-api/pkg/config"
	"github.com/clearspend/expense-approval-api/pkg/database"
	"github.com/clearspend/expense-approval-api/pkg/jobs"
	"github.com/clearspend/expense-approval-api/pkg/logger"
	corsmiddleware "github.com/clearspend/expense-approval-api/pkg/middleware/cors"
	reqidmiddleware "github.com/clearspend/expense-approval-api/pkg/middleware/requestid"
)

// @title ClearSpend Expense Approval API
// @version 1.0.0
// @description Expense claims routed through configurable approval workflows
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, rule cache disabled", "error", err)
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	sequentialRepo := repository.NewSequentialRuleRepository(db)
	conditionalRepo := repository.NewConditionalRuleRepository(db)
	expenseRepo := repository.NewExpenseRepository(db)
	stepRepo := repository.NewStepApprovalRepository(db)
	ruleApprovalRepo := repository.NewRuleApprovalRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	ruleCacheRepo := repository.NewRuleCacheRepository(redisClient, logr)
	defer ruleCacheRepo.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	matcher := service.NewRuleMatcher(sequentialRepo, conditionalRepo, ruleCacheRepo, logr, service.RuleMatcherConfig{
		CacheEnabled: cfg.Approvals.RuleCacheEnabled,
		CacheTTL:     cfg.Approvals.RuleCacheTTL,
	}).WithMetrics(metricsSvc)
	tracker := service.NewStepTracker(stepRepo, userRepo, logr)
	evaluator := service.NewConditionEvaluator(logr)

	notificationSvc := service.NewNotificationService(notificationRepo, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	}, logr)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	approvalSvc := service.NewApprovalService(expenseRepo, workflowRepo, stepRepo, ruleApprovalRepo,
		matcher, tracker, evaluator, userRepo, notificationSvc, userRepo, logr)
	workflowSvc := service.NewWorkflowService(workflowRepo, matcher, userRepo, nil, logr)
	expenseSvc := service.NewExpenseService(expenseRepo, workflowRepo, approvalSvc, userRepo, nil, logr)
	exportSvc := service.NewExportService(approvalSvc, expenseRepo, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Deps{
		Auth:          authSvc,
		Workflows:     workflowSvc,
		Expenses:      expenseSvc,
		Approvals:     approvalSvc,
		Notifications: notificationSvc,
		Exports:       exportSvc,
		Metrics:       metricsSvc,
		Users:         userRepo,
		ExportEnabled: cfg.Export.Enabled,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
