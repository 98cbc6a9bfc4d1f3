package jobs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/smtp"

	"github.com/hibiken/asynq"
)

// Mailer delivers queued mail over SMTP. A Mailpit-style relay in
// development, a real relay in production.
type Mailer struct {
	Addr   string
	From   string
	Auth   smtp.Auth
	Logger *slog.Logger

	// send is swappable in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer constructs a Mailer. auth may be nil for unauthenticated relays.
func NewMailer(addr, from string, auth smtp.Auth, logger *slog.Logger) *Mailer {
	return &Mailer{Addr: addr, From: from, Auth: auth, Logger: logger, send: smtp.SendMail}
}

// Handle processes TaskTypeSendEmail tasks.
func (m *Mailer) Handle(ctx context.Context, t *asynq.Task) error {
	if m == nil {
		return errors.New("mailer: not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.To == "" {
		return asynq.SkipRetry
	}
	msg := buildMIME(m.From, payload)
	if err := m.send(m.Addr, m.Auth, m.From, []string{payload.To}, msg); err != nil {
		m.Logger.Error("send mail",
			slog.String("to", payload.To),
			slog.String("subject", payload.Subject),
			slog.Any("error", err))
		return err
	}
	m.Logger.Info("mail delivered",
		slog.String("to", payload.To),
		slog.String("subject", payload.Subject),
		slog.Int("attachments", len(payload.Attachments)))
	return nil
}

const mixedBoundary = "vantage-mail-boundary"

// buildMIME assembles a multipart/mixed message with the text body first
// and each attachment base64 encoded.
func buildMIME(from string, p SendEmailPayload) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", p.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", p.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(p.Attachments) == 0 && p.HTMLBody == "" {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(p.TextBody)
		buf.WriteString("\r\n")
		return buf.Bytes()
	}

	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixedBoundary)

	fmt.Fprintf(&buf, "--%s\r\n", mixedBoundary)
	if p.HTMLBody != "" {
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		buf.WriteString(p.HTMLBody)
	} else {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(p.TextBody)
	}
	buf.WriteString("\r\n")

	for _, att := range p.Attachments {
		fmt.Fprintf(&buf, "--%s\r\n", mixedBoundary)
		fmt.Fprintf(&buf, "Content-Type: %s\r\n", att.MIMEType)
		fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n", att.Filename)
		buf.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		encoded := base64.StdEncoding.EncodeToString(att.Content)
		for len(encoded) > 76 {
			buf.WriteString(encoded[:76])
			buf.WriteString("\r\n")
			encoded = encoded[76:]
		}
		buf.WriteString(encoded)
		buf.WriteString("\r\n")
	}
	fmt.Fprintf(&buf, "--%s--\r\n", mixedBoundary)
	return buf.Bytes()
}
