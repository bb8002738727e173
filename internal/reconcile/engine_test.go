package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fieldsync/internal/field"
	"github.com/odyssey-erp/fieldsync/internal/shared"
	"github.com/odyssey-erp/fieldsync/internal/store"
)

func req(id, updated string) field.SourceRequest {
	return field.SourceRequest{RequestID: id, RelatedToID: "10", RelatedToType: field.RelatedFailure, DateUpdated: updated}
}

func TestFirstSightingInserts(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	engine := NewEngine(s, nil)

	incoming := req("A1", "2024-01-01")
	incoming.StockMoveRefs = []string{"source-assigned"}
	items, err := engine.Reconcile(ctx, []field.SourceRequest{incoming}, Scope{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, UpsertInserted, items[0].Upserted)
	require.Equal(t, store.StateCompleted, items[0].State)
	require.Equal(t, "A1", items[0].Key())
	require.Empty(t, items[0].Request.StockMoveRefs)

	rec, err := s.Get(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, "2024-01-01", rec.DateUpdated)
	require.False(t, rec.Reversed)
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(store.NewMemory(), nil)
	batch := []field.SourceRequest{req("A1", "2024-01-01"), req("B2", "2024-01-02")}

	first, err := engine.Reconcile(ctx, batch, Scope{})
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := engine.Reconcile(ctx, batch, Scope{})
	require.NoError(t, err)
	require.Nil(t, second)
}

func TestNumericAndStringIdsMatch(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.Put(ctx, store.FromSource(req("42", "d1"))))
	engine := NewEngine(s, nil)

	items, err := engine.Reconcile(ctx, []field.SourceRequest{req(" 42 ", "d1")}, Scope{})
	require.NoError(t, err)
	require.Nil(t, items)
}

func TestUpdateCarriesPersistedStockMoveRefs(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.Put(ctx, store.FromSource(req("A1", "2024-01-01"))))
	_, err := s.Update(ctx, "A1", store.Patch{StockMoveIDs: store.Ptr([]int64{501, 502}), AccountMoveID: store.Ptr(int64(900))})
	require.NoError(t, err)

	incoming := req("A1", "2024-02-01")
	incoming.StockMoveRefs = []string{"7"}
	items, err := NewEngine(s, nil).Reconcile(ctx, []field.SourceRequest{incoming}, Scope{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, UpsertUpdated, items[0].Upserted)
	require.Equal(t, []string{"501", "502"}, items[0].Request.StockMoveRefs)

	rec, err := s.Get(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, "2024-02-01", rec.DateUpdated)
	require.Equal(t, int64(900), *rec.AccountMoveID)
}

func TestAbsentRecordIsReversedOnce(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	rec := store.FromSource(req("A1", "2024-01-01"))
	rec.StockMoveIDs = []int64{501}
	rec.AccountMoveID = store.Ptr(int64(900))
	require.NoError(t, s.Put(ctx, rec))
	engine := NewEngine(s, nil)

	items, err := engine.Reconcile(ctx, nil, Scope{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "A1", items[0].Request.RequestID)
	require.Equal(t, store.StateReversed, items[0].State)
	require.Equal(t, []string{"501"}, items[0].Request.StockMoveRefs)

	stored, err := s.Get(ctx, "A1")
	require.NoError(t, err)
	require.True(t, stored.Reversed)

	again, err := engine.Reconcile(ctx, nil, Scope{})
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestReinstatedRecordClearsReversedFlag(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	rec := store.FromSource(req("A1", "2024-01-01"))
	rec.Reversed = true
	rec.State = store.StateReversed
	require.NoError(t, s.Put(ctx, rec))

	items, err := NewEngine(s, nil).Reconcile(ctx, []field.SourceRequest{req("A1", "2024-01-01")}, Scope{})
	require.NoError(t, err)
	require.Nil(t, items)

	stored, err := s.Get(ctx, "A1")
	require.NoError(t, err)
	require.False(t, stored.Reversed)
	require.Equal(t, store.StateCompleted, stored.State)
}

func TestScopeLimitsRetraction(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	other := req("B2", "d")
	other.RelatedToID = "20"
	require.NoError(t, s.Put(ctx, store.FromSource(req("A1", "d"))))
	require.NoError(t, s.Put(ctx, store.FromSource(other)))

	items, err := NewEngine(s, nil).Reconcile(ctx, nil, Scope{RelatedToID: "10", RelatedToType: field.RelatedFailure})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "A1", items[0].Key())

	untouched, err := s.Get(ctx, "B2")
	require.NoError(t, err)
	require.False(t, untouched.Reversed)
}

type failingStore struct{ store.Store }

func (failingStore) Scan(ctx context.Context) ([]store.Record, error) {
	return nil, errors.Join(shared.ErrStore, errors.New("boom"))
}

func TestScanFailureSurfaces(t *testing.T) {
	_, err := NewEngine(failingStore{}, nil).Reconcile(context.Background(), []field.SourceRequest{req("A1", "d")}, Scope{})
	require.ErrorIs(t, err, shared.ErrStore)
}

func TestRollbackMakesItemReappear(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	engine := NewEngine(s, nil)

	items, err := engine.Reconcile(ctx, []field.SourceRequest{req("A1", "d1")}, Scope{})
	require.NoError(t, err)
	require.NoError(t, engine.Rollback(ctx, items[0]))

	again, err := engine.Reconcile(ctx, []field.SourceRequest{req("A1", "d1")}, Scope{})
	require.NoError(t, err)
	require.Len(t, again, 1)
	require.Equal(t, UpsertUpdated, again[0].Upserted)

	reversed, err := engine.Reconcile(ctx, nil, Scope{})
	require.NoError(t, err)
	require.Len(t, reversed, 1)
	require.NoError(t, engine.Rollback(ctx, reversed[0]))

	stored, err := s.Get(ctx, "A1")
	require.NoError(t, err)
	require.False(t, stored.Reversed)
}
