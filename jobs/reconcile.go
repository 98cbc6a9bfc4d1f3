package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// AwardFinisher re-runs the contract-creation step for an awarded RFQ.
// Implemented by the RFQ service.
type AwardFinisher interface {
	FinishAward(ctx context.Context, rfqID uuid.UUID) error
}

// AwardReconcileJob retries the second half of an award whose contract
// write failed after the award itself was persisted.
type AwardReconcileJob struct {
	Finisher AwardFinisher
	Logger   *slog.Logger
}

// NewAwardReconcileJob constructs the handler.
func NewAwardReconcileJob(finisher AwardFinisher, logger *slog.Logger) *AwardReconcileJob {
	return &AwardReconcileJob{Finisher: finisher, Logger: logger}
}

// Handle processes TaskTypeAwardReconcile tasks.
func (j *AwardReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Finisher == nil {
		return errors.New("award reconcile: handler not configured")
	}
	var payload AwardReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := j.Finisher.FinishAward(ctx, payload.RFQID); err != nil {
		j.Logger.Error("award reconcile",
			slog.String("rfq_id", payload.RFQID.String()),
			slog.Any("error", err))
		return err
	}
	j.Logger.Info("award reconciled", slog.String("rfq_id", payload.RFQID.String()))
	return nil
}

// IdempotencyCleanupJob prunes processed idempotency keys past retention.
type IdempotencyCleanupJob struct {
	Store  *shared.IdempotencyStore
	Logger *slog.Logger
}

// NewIdempotencyCleanupJob constructs the handler.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, logger *slog.Logger) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger}
}

// Handle processes TaskTypeIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = 24 * 14
	}
	if err := j.Store.Cleanup(ctx, time.Duration(payload.RetentionHours)*time.Hour); err != nil {
		j.Logger.Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	return nil
}
