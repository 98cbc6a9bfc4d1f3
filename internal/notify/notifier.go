// Package notify defines the outbound notification port and its queue-backed
// implementation. Engines treat sends as fire-and-forget: a failed or slow
// notification never rolls back the business write it accompanies.
package notify

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/vantage-erp/vantage-erp/jobs"
)

// Attachment is a named binary payload, typically a rendered PDF.
type Attachment struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Content  []byte `json:"content"`
}

// Message describes a single outbound mail.
type Message struct {
	To          string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Notifier sends messages. Implementations must be safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// QueueNotifier enqueues messages as background mail tasks; the worker
// binary performs the actual SMTP delivery.
type QueueNotifier struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewQueueNotifier constructs a QueueNotifier.
func NewQueueNotifier(client *asynq.Client, logger *slog.Logger) *QueueNotifier {
	return &QueueNotifier{client: client, logger: logger}
}

// Send enqueues the message for asynchronous delivery.
func (n *QueueNotifier) Send(ctx context.Context, msg Message) error {
	payload := jobs.SendEmailPayload{
		To:       msg.To,
		Subject:  msg.Subject,
		TextBody: msg.TextBody,
		HTMLBody: msg.HTMLBody,
	}
	for _, att := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, jobs.EmailAttachment{
			Filename: att.Filename,
			MIMEType: att.MIMEType,
			Content:  att.Content,
		})
	}
	task, err := jobs.NewSendEmailTask(payload)
	if err != nil {
		return err
	}
	if _, err := n.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault)); err != nil {
		n.logger.Error("enqueue mail task", slog.String("to", msg.To), slog.Any("error", err))
		return err
	}
	return nil
}
