package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vantage-erp/vantage-erp/internal/app"
	"github.com/vantage-erp/vantage-erp/internal/assignment"
	"github.com/vantage-erp/vantage-erp/internal/auth"
	"github.com/vantage-erp/vantage-erp/internal/contracts"
	"github.com/vantage-erp/vantage-erp/internal/masterdata"
	"github.com/vantage-erp/vantage-erp/internal/notify"
	"github.com/vantage-erp/vantage-erp/internal/observability"
	"github.com/vantage-erp/vantage-erp/internal/platform/cache"
	"github.com/vantage-erp/vantage-erp/internal/platform/db"
	"github.com/vantage-erp/vantage-erp/internal/rfq"
	"github.com/vantage-erp/vantage-erp/internal/shared"
	"github.com/vantage-erp/vantage-erp/internal/suppliers"
	"github.com/vantage-erp/vantage-erp/jobs"
	"github.com/vantage-erp/vantage-erp/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	notifier := notify.NewQueueNotifier(asynqClient, logger)

	masterData := masterdata.NewRepository(dbpool)

	alertGate := suppliers.NewAlertGate(redisClient, cfg.AlertCooldown, logger)
	supplierRepo := suppliers.NewRepository(dbpool)
	supplierService := suppliers.NewService(supplierRepo, notifier, auditLogger, approvalRecorder, alertGate, logger, cfg.OpsMailbox)
	scorecards := suppliers.NewScorecardReader(supplierRepo, redisClient, cfg.ScorecardTTL)

	pdfClient := report.NewClient(cfg.GotenbergURL, 30*time.Second)
	documentStore := report.NewDocumentStore(dbpool)
	reportHandler := report.NewHandler(pdfClient, documentStore, logger)

	contractRepo := contracts.NewRepository(dbpool)
	contractService := contracts.NewService(contractRepo, masterData, pdfClient, notifier, auditLogger, approvalRecorder, logger, cfg.ApprovalThreshold)

	reconciler := rfq.NewQueueReconciler(asynqClient)
	rfqRepo := rfq.NewRepository(dbpool)
	rfqService := rfq.NewService(rfqRepo, supplierService, contractService, pdfClient, notifier, idempotencyStore, reconciler, auditLogger, logger)

	assignmentRepo := assignment.NewRepository(dbpool)
	assignmentService := assignment.NewService(assignmentRepo, supplierService, masterData, idempotencyStore, auditLogger, logger)

	authMW := auth.Middleware{Keys: auth.NewPGKeyStore(dbpool), Logger: logger}

	metrics := observability.NewMetrics()
	supplierService.SetMetrics(metrics)
	contractService.SetMetrics(metrics)
	rfqService.SetMetrics(metrics)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Auth:              authMW,
		SuppliersHandler:  suppliers.NewHandler(logger, supplierService, scorecards, authMW),
		ContractsHandler:  contracts.NewHandler(logger, contractService, authMW),
		RFQHandler:        rfq.NewHandler(logger, rfqService, authMW),
		AssignmentHandler: assignment.NewHandler(logger, assignmentService, authMW),
		ReportHandler:     reportHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
