package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fieldsync/internal/secrets"
)

type failingQueue struct{ calls int }

func (q *failingQueue) EnqueueNotification(ctx context.Context, subject, message string) error {
	q.calls++
	return errors.New("redis down")
}

type smtpSecrets struct{}

func (smtpSecrets) Bundle(ctx context.Context) (secrets.Bundle, error) {
	return secrets.Bundle{SMTP: secrets.SMTPCredentials{Username: "bot", Password: "pw"}}, nil
}

func TestQueueSinkSwallowsErrors(t *testing.T) {
	q := &failingQueue{}
	QueueSink{Queue: q}.Notify(context.Background(), "subject", "message")
	require.Equal(t, 1, q.calls)
}

func TestMailerBuildsMessage(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	m := &Mailer{
		Addr:    "mail.local:587",
		From:    "sync@example.com",
		To:      []string{"ops@example.com"},
		Secrets: smtpSecrets{},
		Now:     func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
		Send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, string(msg)
			return nil
		},
	}
	require.NoError(t, m.Deliver(context.Background(), "order 10\nfailed", "line1\nline2"))
	require.Equal(t, "mail.local:587", gotAddr)
	require.NotNil(t, gotAuth)
	require.Equal(t, []string{"ops@example.com"}, gotTo)
	require.Contains(t, gotMsg, "Subject: order 10 failed\r\n")
	require.True(t, strings.HasSuffix(gotMsg, "line1\r\nline2\r\n"))
}

func TestMailerRequiresConfig(t *testing.T) {
	require.Error(t, (&Mailer{}).Deliver(context.Background(), "s", "m"))
}
