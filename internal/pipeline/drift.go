package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/fieldsync/internal/drift"
	"github.com/odyssey-erp/fieldsync/internal/field"
	jobmetrics "github.com/odyssey-erp/fieldsync/internal/jobs"
	"github.com/odyssey-erp/fieldsync/internal/ledger"
	"github.com/odyssey-erp/fieldsync/internal/notify"
	"github.com/odyssey-erp/fieldsync/internal/platform/lock"
)

// DriftField is the field-system side of the drift pipeline.
type DriftField interface {
	Stocks(ctx context.Context) ([]field.Stock, error)
	Materials(ctx context.Context) ([]field.Material, error)
	Warehouses(ctx context.Context) ([]field.Warehouse, error)
}

// DriftLedger is the ledger side of the drift pipeline.
type DriftLedger interface {
	StockSnapshot(ctx context.Context) ([]ledger.StockRecord, error)
	Products(ctx context.Context) ([]ledger.Product, error)
}

// Drift aligns field stock quantities with the ledger.
type Drift struct {
	Field      DriftField
	Ledger     DriftLedger
	Reconciler *drift.Reconciler
	Locker     lock.Locker
	Notifier   notify.Sink
	Metrics    *jobmetrics.Metrics
	Logger     *slog.Logger
}

// Run reads both snapshots and posts the corrections.
func (d *Drift) Run(ctx context.Context) Response {
	runner := &orderRunner{name: NameDrift, opts: Options{Locker: d.Locker, Logger: d.Logger}}
	tracker := d.Metrics.Track(NameDrift)
	held, busy := runner.acquire(ctx)
	if busy != nil {
		return end(tracker, *busy)
	}
	defer runner.releaseLock(ctx, held)

	var in drift.Input
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.LedgerStock, err = d.Ledger.StockSnapshot(gctx)
		return err
	})
	g.Go(func() (err error) {
		in.Products, err = d.Ledger.Products(gctx)
		return err
	})
	g.Go(func() (err error) {
		in.FieldStock, err = d.Field.Stocks(gctx)
		return err
	})
	g.Go(func() (err error) {
		in.Materials, err = d.Field.Materials(gctx)
		return err
	})
	g.Go(func() (err error) {
		in.Warehouses, err = d.Field.Warehouses(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		runner.log().Error("load snapshots", slog.Any("error", err))
		if d.Notifier != nil {
			d.Notifier.Notify(ctx, "fieldsync drift: snapshot load failed", err.Error())
		}
		return end(tracker, Failure(err))
	}

	plan := d.Reconciler.Plan(in)
	posted, err := d.Reconciler.Post(ctx, plan)
	if err != nil {
		return end(tracker, Failure(err))
	}
	counts := map[field.Movement]int{}
	for _, p := range posted {
		counts[p.Direction]++
	}
	for dir, n := range counts {
		d.Metrics.AddMovements(string(dir), n)
	}
	planned := len(plan)
	if failed := planned - len(posted); failed > 0 && d.Notifier != nil {
		d.Notifier.Notify(ctx, "fieldsync drift: movements failed",
			fmt.Sprintf("%d of %d corrective movements were rejected", failed, planned))
	}
	return end(tracker, OK(fmt.Sprintf("%d movements posted", len(posted))))
}
