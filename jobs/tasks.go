// Package jobs defines the background task types processed by the worker
// binary: outbound mail delivery, award reconciliation, and idempotency-key
// housekeeping.
package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskTypeSendEmail delivers a transactional email.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeAwardReconcile re-runs the contract-creation step of an RFQ
	// award whose first attempt failed after the award write.
	TaskTypeAwardReconcile = "rfq:award_reconcile"
	// TaskTypeIdempotencyCleanup prunes expired idempotency keys.
	TaskTypeIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// EmailAttachment is a single file attached to an outbound mail.
type EmailAttachment struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Content  []byte `json:"content"`
}

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To          string            `json:"to"`
	Subject     string            `json:"subject"`
	TextBody    string            `json:"text_body"`
	HTMLBody    string            `json:"html_body,omitempty"`
	Attachments []EmailAttachment `json:"attachments,omitempty"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// AwardReconcilePayload identifies the RFQ whose awarded contract is missing.
type AwardReconcilePayload struct {
	RFQID uuid.UUID `json:"rfq_id"`
}

// NewAwardReconcileTask constructs an Asynq task.
func NewAwardReconcileTask(payload AwardReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAwardReconcile, data), nil
}

// IdempotencyCleanupPayload bounds the housekeeping sweep.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeIdempotencyCleanup, data), nil
}
