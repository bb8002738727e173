// Package reconcile diffs a fresh batch of source requests against the
// persisted mirror and classifies what has to be posted or reversed.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/fieldsync/internal/field"
	"github.com/odyssey-erp/fieldsync/internal/shared"
	"github.com/odyssey-erp/fieldsync/internal/store"
)

// Upsert describes what the engine did to the persisted record.
type Upsert string

const (
	UpsertInserted Upsert = "INSERTED"
	UpsertUpdated  Upsert = "UPDATED"
	UpsertNone     Upsert = "NONE"
)

// ClassifiedItem is one request that needs action.
type ClassifiedItem struct {
	Request  field.SourceRequest
	Upserted Upsert
	State    store.State
	// PreviousDateUpdated is the persisted dateUpdated before this run, empty
	// for inserted items.
	PreviousDateUpdated string
}

// Key returns the canonical identity of the item.
func (c ClassifiedItem) Key() string {
	return shared.ToKey(c.Request.RequestID)
}

// Scope narrows which persisted records may be retracted. A webhook run for
// one order only sees that order's requests, so records of other orders must
// not be reversed by it. The zero Scope covers every record.
type Scope struct {
	RelatedToID   string
	RelatedToType field.RelatedType
}

func (s Scope) covers(rec store.Record) bool {
	if s.RelatedToID == "" {
		return true
	}
	if shared.ToKey(rec.RelatedToID) != shared.ToKey(s.RelatedToID) {
		return false
	}
	return s.RelatedToType == "" || rec.RelatedToType == s.RelatedToType
}

// Engine classifies source batches against a Store.
type Engine struct {
	Store  store.Store
	Logger *slog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(s store.Store, logger *slog.Logger) *Engine {
	return &Engine{Store: s, Logger: logger}
}

// Reconcile persists the batch and returns the items that need posting or
// reversal, or nil when there is nothing to do. All classification is
// computed from one scan taken before any write.
func (e *Engine) Reconcile(ctx context.Context, batch []field.SourceRequest, scope Scope) ([]ClassifiedItem, error) {
	persisted, err := e.Store.Scan(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]store.Record, len(persisted))
	for _, rec := range persisted {
		known[shared.ToKey(rec.Key)] = rec
	}

	var items []ClassifiedItem
	seen := make(map[string]bool, len(batch))
	for _, req := range batch {
		key := shared.ToKey(req.RequestID)
		if key == "" {
			e.log().Warn("skipping request without id", slog.String("related_to", req.RelatedToID))
			continue
		}
		if seen[key] {
			e.log().Warn("duplicate request in batch", slog.String("request_id", key))
			continue
		}
		seen[key] = true
		req.RequestID = key

		rec, ok := known[key]
		if !ok {
			if err := e.Store.Put(ctx, store.FromSource(req)); err != nil {
				return nil, err
			}
			req.StockMoveRefs = nil
			items = append(items, ClassifiedItem{Request: req, Upserted: UpsertInserted, State: store.StateCompleted})
			continue
		}

		var patch store.Patch
		dirty := false
		if rec.Reversed {
			patch.Reversed = store.Ptr(false)
			patch.State = store.Ptr(store.StateCompleted)
			dirty = true
		}
		changed := rec.DateUpdated != req.DateUpdated
		if changed {
			patch.Source = &req
			patch.State = store.Ptr(store.StateCompleted)
			dirty = true
		}
		if dirty {
			if _, err := e.Store.Update(ctx, key, patch); err != nil {
				return nil, err
			}
		}
		if changed {
			req.StockMoveRefs = rec.Source().StockMoveRefs
			items = append(items, ClassifiedItem{
				Request:             req,
				Upserted:            UpsertUpdated,
				State:               store.StateCompleted,
				PreviousDateUpdated: rec.DateUpdated,
			})
		}
	}

	for _, rec := range persisted {
		key := shared.ToKey(rec.Key)
		if seen[key] || rec.Reversed || !scope.covers(rec) {
			continue
		}
		if _, err := e.Store.Update(ctx, key, store.Patch{
			Reversed: store.Ptr(true),
			State:    store.Ptr(store.StateReversed),
		}); err != nil {
			return nil, err
		}
		items = append(items, ClassifiedItem{
			Request:             rec.Source(),
			Upserted:            UpsertNone,
			State:               store.StateReversed,
			PreviousDateUpdated: rec.DateUpdated,
		})
	}

	if len(items) == 0 {
		return nil, nil
	}
	e.log().Info("batch classified", slog.Int("incoming", len(batch)), slog.Int("items", len(items)))
	return items, nil
}

// Rollback restores the persisted mirror of item so the next run classifies
// it again. It is only safe when nothing reached the ledger.
func (e *Engine) Rollback(ctx context.Context, item ClassifiedItem) error {
	key := item.Key()
	if item.State == store.StateReversed {
		_, err := e.Store.Update(ctx, key, store.Patch{
			Reversed: store.Ptr(false),
			State:    store.Ptr(store.StateCompleted),
		})
		return err
	}
	prev := item.Request
	prev.DateUpdated = item.PreviousDateUpdated
	_, err := e.Store.Update(ctx, key, store.Patch{Source: &prev})
	return err
}

func (e *Engine) log() *slog.Logger {
	if e != nil && e.Logger != nil {
		return e.Logger.With(slog.String("component", "reconcile"))
	}
	return slog.Default().With(slog.String("component", "reconcile"))
}
