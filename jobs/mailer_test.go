package jobs

import (
	"context"
	"log/slog"
	"net/smtp"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func testMailer(t *testing.T) (*Mailer, *[][]byte) {
	t.Helper()
	var sent [][]byte
	m := NewMailer("127.0.0.1:1025", "no-reply@vantage.local", nil, slog.New(slog.NewTextHandler(testLogWriter{t}, nil)))
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, msg)
		return nil
	}
	return m, &sent
}

type testLogWriter struct{ t *testing.T }

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestHandleDeliversPlainText(t *testing.T) {
	m, sent := testMailer(t)

	task, err := NewSendEmailTask(SendEmailPayload{
		To:       "buyer@example.com",
		Subject:  "Quote deadline",
		TextBody: "Quotes close on Friday.",
	})
	require.NoError(t, err)

	require.NoError(t, m.Handle(context.Background(), task))
	require.Len(t, *sent, 1)
	msg := string((*sent)[0])
	require.Contains(t, msg, "To: buyer@example.com")
	require.Contains(t, msg, "Content-Type: text/plain")
	require.Contains(t, msg, "Quotes close on Friday.")
	require.NotContains(t, msg, "multipart/mixed")
}

func TestHandleBuildsMultipartWithAttachment(t *testing.T) {
	m, sent := testMailer(t)

	task, err := NewSendEmailTask(SendEmailPayload{
		To:       "supplier@example.com",
		Subject:  "Request for quote",
		TextBody: "See attached.",
		Attachments: []EmailAttachment{
			{Filename: "rfq.pdf", MIMEType: "application/pdf", Content: []byte("%PDF-1.4 fake")},
		},
	})
	require.NoError(t, err)

	require.NoError(t, m.Handle(context.Background(), task))
	require.Len(t, *sent, 1)
	msg := string((*sent)[0])
	require.Contains(t, msg, "multipart/mixed")
	require.Contains(t, msg, `filename="rfq.pdf"`)
	require.Contains(t, msg, "Content-Transfer-Encoding: base64")
	require.Contains(t, msg, "--"+mixedBoundary+"--")
}

func TestHandleSkipsRetryOnMissingRecipient(t *testing.T) {
	m, sent := testMailer(t)

	task, err := NewSendEmailTask(SendEmailPayload{Subject: "no recipient"})
	require.NoError(t, err)

	require.ErrorIs(t, m.Handle(context.Background(), task), asynq.SkipRetry)
	require.Empty(t, *sent)
}
