package pipeline

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/fieldsync/internal/field"
	"github.com/odyssey-erp/fieldsync/internal/poster"
	"github.com/odyssey-erp/fieldsync/internal/reconcile"
	"github.com/odyssey-erp/fieldsync/internal/shared"
	"github.com/odyssey-erp/fieldsync/internal/store"
	"github.com/odyssey-erp/fieldsync/internal/translate"
)

// LabourField is the field-system side of the labour pipeline.
type LabourField interface {
	WorkOrders(ctx context.Context, t field.RelatedType, id string) ([]field.WorkOrder, error)
	CostCenters(ctx context.Context) ([]field.CostCenter, error)
}

// LabourTranslator derives the labour journal of a work order.
type LabourTranslator interface {
	TranslateLabour(ctx context.Context, order field.WorkOrder, costCenters []field.CostCenter) (translate.Result, error)
}

// Labour posts the labour cost of completed work orders.
type Labour struct {
	Field      LabourField
	Translator LabourTranslator
	Poster     Poster
	Options
}

// Run executes one labour pass for trig.
func (l *Labour) Run(ctx context.Context, trig Trigger) Response {
	runner := &orderRunner{name: NameLabour, opts: l.Options}
	tracker := l.Metrics.Track(NameLabour)
	held, busy := runner.acquire(ctx)
	if busy != nil {
		return end(tracker, *busy)
	}
	defer runner.releaseLock(ctx, held)

	types := []field.RelatedType{field.RelatedFailure, field.RelatedSchedule}
	if trig.OrderType != "" {
		types = []field.RelatedType{trig.OrderType}
	}
	orders := map[string]field.WorkOrder{}
	var batch []field.SourceRequest
	for _, t := range types {
		list, err := l.Field.WorkOrders(ctx, t, trig.OrderID)
		if err != nil {
			runner.log().Error("fetch work orders", slog.String("type", string(t)), slog.Any("error", err))
			return end(tracker, Failure(err))
		}
		for _, o := range list {
			orders[shared.ToKey(o.ID)] = o
			batch = append(batch, o.Request())
		}
	}

	var costCenters []field.CostCenter
	post := func(ctx context.Context, item reconcile.ClassifiedItem) error {
		order, ok := orders[item.Key()]
		if !ok {
			return shared.BeforeLedger(shared.Validationf("work order %s not in batch", item.Key()))
		}
		if costCenters == nil {
			list, err := l.Field.CostCenters(ctx)
			if err != nil {
				return shared.BeforeLedger(err)
			}
			costCenters = list
		}
		result, err := l.Translator.TranslateLabour(ctx, order, costCenters)
		if err != nil {
			return shared.BeforeLedger(err)
		}
		_, err = l.Poster.Post(ctx, poster.PostInput{Key: item.Key(), State: store.StateCompleted, Result: result})
		return err
	}
	return end(tracker, runner.run(ctx, trig, batch, post))
}
