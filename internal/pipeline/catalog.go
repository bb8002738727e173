package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/fieldsync/internal/catalog"
	jobmetrics "github.com/odyssey-erp/fieldsync/internal/jobs"
	"github.com/odyssey-erp/fieldsync/internal/notify"
	"github.com/odyssey-erp/fieldsync/internal/platform/lock"
)

// Catalog mirrors new ledger products into the field system.
type Catalog struct {
	Syncer   *catalog.Syncer
	Locker   lock.Locker
	Notifier notify.Sink
	Metrics  *jobmetrics.Metrics
	Logger   *slog.Logger
}

// Run executes one catalog sync.
func (c *Catalog) Run(ctx context.Context) Response {
	runner := &orderRunner{name: NameCatalog, opts: Options{Locker: c.Locker, Logger: c.Logger}}
	tracker := c.Metrics.Track(NameCatalog)
	held, busy := runner.acquire(ctx)
	if busy != nil {
		return end(tracker, *busy)
	}
	defer runner.releaseLock(ctx, held)

	out, err := c.Syncer.Sync(ctx)
	if err != nil {
		runner.log().Error("catalog sync failed", slog.Any("error", err))
		return end(tracker, Failure(err))
	}
	if out.Failed > 0 && c.Notifier != nil {
		c.Notifier.Notify(ctx, "fieldsync catalog: products not mirrored",
			fmt.Sprintf("%d products could not be created in the field system", out.Failed))
	}
	return end(tracker, OK(fmt.Sprintf("%d folders and %d materials created", len(out.Folders), len(out.Materials))))
}
