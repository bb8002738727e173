package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fieldsync/internal/pipeline"
)

// SyncJob runs one pipeline per task. Failures are reported through the
// pipeline's own notifier; the task is never retried.
type SyncJob struct {
	Name   string
	Run    func(ctx context.Context) pipeline.Response
	Logger *slog.Logger
}

// OrderPipeline adapts an order pipeline to a poll run.
func OrderPipeline(run func(ctx context.Context, trig pipeline.Trigger) pipeline.Response) func(ctx context.Context) pipeline.Response {
	return func(ctx context.Context) pipeline.Response {
		return run(ctx, pipeline.Trigger{})
	}
}

// Handle executes the pipeline.
func (j *SyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Run == nil {
		return errors.New("sync job: handler not configured")
	}
	start := time.Now()
	resp := j.Run(ctx)
	logger := j.logger().With(
		slog.String("task", t.Type()),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)),
	)
	if resp.StatusCode >= http.StatusInternalServerError {
		logger.Error("sync failed", slog.String("message", resp.Body.Message))
		return fmt.Errorf("%s: %s: %w", j.Name, resp.Body.Message, asynq.SkipRetry)
	}
	logger.Info("sync finished", slog.String("message", resp.Body.Message))
	return nil
}

func (j *SyncJob) logger() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", j.Name))
	}
	return slog.Default().With(slog.String("job", j.Name))
}

// Cleaner prunes old claims.
type Cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// ClaimsCleanupJob prunes posting claims past the retention window.
type ClaimsCleanupJob struct {
	Claims    []Cleaner
	Retention time.Duration
	Logger    *slog.Logger
}

// Handle executes the cleanup.
func (j *ClaimsCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("claims cleanup: handler not configured")
	}
	var errs []error
	for _, c := range j.Claims {
		if err := c.Cleanup(ctx, j.Retention); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		j.logger().Error("claims cleanup failed", slog.Any("error", err))
		return err
	}
	j.logger().Info("claims pruned", slog.Duration("retention", j.Retention))
	return nil
}

func (j *ClaimsCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskClaimsCleanup))
	}
	return slog.Default().With(slog.String("job", TaskClaimsCleanup))
}
