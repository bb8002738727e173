// Package notify delivers operational failure notices. Delivery is
// fire-and-forget: errors are logged and never returned to the caller.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/odyssey-erp/fieldsync/internal/secrets"
)

// Sink accepts a notice.
type Sink interface {
	Notify(ctx context.Context, subject, message string)
}

// LogSink writes notices to the log.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(ctx context.Context, subject, message string) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("notification", slog.String("subject", subject), slog.String("message", message))
}

// Enqueuer hands a notice to the background queue.
type Enqueuer interface {
	EnqueueNotification(ctx context.Context, subject, message string) error
}

// QueueSink defers delivery to the job worker.
type QueueSink struct {
	Queue  Enqueuer
	Logger *slog.Logger
}

func (s QueueSink) Notify(ctx context.Context, subject, message string) {
	if s.Queue == nil {
		LogSink{Logger: s.Logger}.Notify(ctx, subject, message)
		return
	}
	if err := s.Queue.EnqueueNotification(ctx, subject, message); err != nil {
		logger := s.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("enqueue notification", slog.String("subject", subject), slog.Any("error", err))
	}
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer delivers notices over SMTP.
type Mailer struct {
	Addr    string
	From    string
	To      []string
	Secrets secrets.Provider
	Send    SendFunc
	Now     func() time.Time
}

// Deliver sends one notice. It is used by the queue worker, which owns
// retry policy.
func (m *Mailer) Deliver(ctx context.Context, subject, message string) error {
	if m == nil || m.Addr == "" || len(m.To) == 0 {
		return fmt.Errorf("notify: smtp not configured")
	}
	var auth smtp.Auth
	if m.Secrets != nil {
		bundle, err := m.Secrets.Bundle(ctx)
		if err != nil {
			return err
		}
		if bundle.SMTP.Username != "" {
			host := m.Addr
			if idx := strings.LastIndex(host, ":"); idx >= 0 {
				host = host[:idx]
			}
			auth = smtp.PlainAuth("", bundle.SMTP.Username, bundle.SMTP.Password, host)
		}
	}
	send := m.Send
	if send == nil {
		send = smtp.SendMail
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	return send(m.Addr, auth, m.From, m.To, buildMessage(m.From, m.To, subject, message, now()))
}

func buildMessage(from string, to []string, subject, body string, at time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(subject))
	fmt.Fprintf(&b, "Date: %s\r\n", at.UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
