package rfq

import (
	"context"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/vantage-erp/vantage-erp/jobs"
)

// QueueReconciler enqueues award reconciliation as a background task.
type QueueReconciler struct {
	client *asynq.Client
}

// NewQueueReconciler constructs a QueueReconciler.
func NewQueueReconciler(client *asynq.Client) *QueueReconciler {
	return &QueueReconciler{client: client}
}

// ScheduleAwardRetry implements Reconciler.
func (r *QueueReconciler) ScheduleAwardRetry(ctx context.Context, rfqID uuid.UUID) error {
	task, err := jobs.NewAwardReconcileTask(jobs.AwardReconcilePayload{RFQID: rfqID})
	if err != nil {
		return err
	}
	_, err = r.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(10))
	return err
}
