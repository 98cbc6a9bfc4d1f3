package main

import (
	"context"
	"log/slog"
	"net/smtp"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vantage-erp/vantage-erp/internal/app"
	"github.com/vantage-erp/vantage-erp/internal/contracts"
	jobmetrics "github.com/vantage-erp/vantage-erp/internal/jobs"
	"github.com/vantage-erp/vantage-erp/internal/masterdata"
	"github.com/vantage-erp/vantage-erp/internal/notify"
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
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	smtpAddr := cfg.SMTPHost + ":" + strconv.Itoa(cfg.SMTPPort)
	var smtpAuth smtp.Auth
	if cfg.SMTPUser != "" {
		smtpAuth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPHost)
	}
	mailer := jobs.NewMailer(smtpAddr, cfg.SMTPFrom, smtpAuth, logger)

	// The award reconcile job re-runs the contract hand-off for awarded
	// requests for quotation, so the worker wires the same service graph
	// the API server uses.
	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	notifier := notify.NewQueueNotifier(asynqClient, logger)
	masterData := masterdata.NewRepository(pool)

	alertGate := suppliers.NewAlertGate(redisClient, cfg.AlertCooldown, logger)
	supplierRepo := suppliers.NewRepository(pool)
	supplierService := suppliers.NewService(supplierRepo, notifier, auditLogger, approvalRecorder, alertGate, logger, cfg.OpsMailbox)

	pdfClient := report.NewClient(cfg.GotenbergURL, 30*time.Second)
	contractRepo := contracts.NewRepository(pool)
	contractService := contracts.NewService(contractRepo, masterData, pdfClient, notifier, auditLogger, approvalRecorder, logger, cfg.ApprovalThreshold)

	reconciler := rfq.NewQueueReconciler(asynqClient)
	rfqRepo := rfq.NewRepository(pool)
	rfqService := rfq.NewService(rfqRepo, supplierService, contractService, pdfClient, notifier, idempotencyStore, reconciler, auditLogger, logger)

	reconcileJob := jobs.NewAwardReconcileJob(rfqService, logger)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, logger)

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.IdempotencyCleanupPayload{
		RetentionHours: int(cfg.IdempotencyRetention / time.Hour),
	})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Metrics:   jobmetrics.NewMetrics(nil),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: mailer.Handle},
			{Type: jobs.TaskTypeAwardReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskTypeIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
