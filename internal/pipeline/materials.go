package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/odyssey-erp/fieldsync/internal/field"
	jobmetrics "github.com/odyssey-erp/fieldsync/internal/jobs"
	"github.com/odyssey-erp/fieldsync/internal/ledger"
	"github.com/odyssey-erp/fieldsync/internal/poster"
	"github.com/odyssey-erp/fieldsync/internal/reconcile"
	"github.com/odyssey-erp/fieldsync/internal/shared"
	"github.com/odyssey-erp/fieldsync/internal/store"
	"github.com/odyssey-erp/fieldsync/internal/translate"
)

// Pipeline names, also used as lock and store namespaces.
const (
	NameMaterials = "materials"
	NameLabour    = "labour"
	NameDrift     = "drift"
	NameCatalog   = "catalog"
)

// MaterialsField is the field-system side of the materials pipeline.
type MaterialsField interface {
	MaterialRequests(ctx context.Context, relatedToID string) ([]field.SourceRequest, error)
	OrderDetail(ctx context.Context, req field.SourceRequest) (field.OrderDetail, error)
	CostCenters(ctx context.Context) ([]field.CostCenter, error)
}

// StockSource provides the ledger stock snapshot.
type StockSource interface {
	StockSnapshot(ctx context.Context) ([]ledger.StockRecord, error)
}

// MaterialsTranslator derives the postings of a material request.
type MaterialsTranslator interface {
	Translate(ctx context.Context, detail field.OrderDetail, costCenters []field.CostCenter, stock []ledger.StockRecord) (translate.Result, error)
}

// Poster submits translated orders.
type Poster interface {
	Post(ctx context.Context, in poster.PostInput) (poster.PostResult, error)
}

// Materials posts material requests as stock moves plus a journal entry.
type Materials struct {
	Field      MaterialsField
	Ledger     StockSource
	Translator MaterialsTranslator
	Poster     Poster
	Options
}

// Run executes one materials pass for trig.
func (m *Materials) Run(ctx context.Context, trig Trigger) Response {
	runner := &orderRunner{name: NameMaterials, opts: m.Options}
	tracker := m.Metrics.Track(NameMaterials)
	held, busy := runner.acquire(ctx)
	if busy != nil {
		return end(tracker, *busy)
	}
	defer runner.releaseLock(ctx, held)

	batch, err := m.Field.MaterialRequests(ctx, trig.OrderID)
	if err != nil {
		runner.log().Error("fetch material requests", slog.Any("error", err))
		return end(tracker, Failure(err))
	}
	batch = filterType(batch, trig.OrderType)

	refs := &referenceData{field: m.Field, ledger: m.Ledger}
	post := func(ctx context.Context, item reconcile.ClassifiedItem) error {
		detail, err := m.Field.OrderDetail(ctx, item.Request)
		if err != nil {
			return shared.BeforeLedger(err)
		}
		costCenters, stock, err := refs.load(ctx)
		if err != nil {
			return shared.BeforeLedger(err)
		}
		result, err := m.Translator.Translate(ctx, detail, costCenters, stock)
		if err != nil {
			return shared.BeforeLedger(err)
		}
		_, err = m.Poster.Post(ctx, poster.PostInput{Key: item.Key(), State: store.StateCompleted, Result: result})
		return err
	}
	return end(tracker, runner.run(ctx, trig, batch, post))
}

func filterType(batch []field.SourceRequest, t field.RelatedType) []field.SourceRequest {
	if t == "" {
		return batch
	}
	out := batch[:0:0]
	for _, req := range batch {
		if req.RelatedToType == t {
			out = append(out, req)
		}
	}
	return out
}

// referenceData loads the cost centers and stock snapshot once per run, on
// first use.
type referenceData struct {
	field  MaterialsField
	ledger StockSource

	once        sync.Once
	costCenters []field.CostCenter
	stock       []ledger.StockRecord
	err         error
}

func (r *referenceData) load(ctx context.Context) ([]field.CostCenter, []ledger.StockRecord, error) {
	r.once.Do(func() {
		r.costCenters, r.err = r.field.CostCenters(ctx)
		if r.err != nil {
			return
		}
		r.stock, r.err = r.ledger.StockSnapshot(ctx)
	})
	return r.costCenters, r.stock, r.err
}

func end(tracker *jobmetrics.Tracker, resp Response) Response {
	var err error
	if resp.StatusCode >= 500 {
		err = errors.New(resp.Body.Message)
	}
	_ = tracker.End(err)
	return resp
}
