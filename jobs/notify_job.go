package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Deliverer sends a notice.
type Deliverer interface {
	Deliver(ctx context.Context, subject, message string) error
}

// NotifyJob delivers queued failure notices.
type NotifyJob struct {
	Mailer Deliverer
	Logger *slog.Logger
}

// Handle processes TaskNotify tasks.
func (j *NotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Mailer == nil {
		return errors.New("notify: handler not configured")
	}
	var payload NotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := j.Mailer.Deliver(ctx, payload.Subject, payload.Message); err != nil {
		j.logger().Warn("notice delivery failed", slog.String("subject", payload.Subject), slog.Any("error", err))
		return err
	}
	return nil
}

func (j *NotifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskNotify))
	}
	return slog.Default().With(slog.String("job", TaskNotify))
}
