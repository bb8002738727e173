package reversal

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fieldsync/internal/field"
	"github.com/odyssey-erp/fieldsync/internal/ledger"
	"github.com/odyssey-erp/fieldsync/internal/poster"
	"github.com/odyssey-erp/fieldsync/internal/reconcile"
	"github.com/odyssey-erp/fieldsync/internal/shared"
	"github.com/odyssey-erp/fieldsync/internal/store"
	"github.com/odyssey-erp/fieldsync/internal/translate"
)

type fakeLedger struct {
	moveOrigin string
	moveIDs    []int64
	journalIDs []int64
	created    []ledger.StockMoveInput
	journals   []ledger.JournalInput
}

func (f *fakeLedger) StockMoves(ctx context.Context, origin string, ids []int64) ([]ledger.StockMove, error) {
	f.moveOrigin, f.moveIDs = origin, ids
	return []ledger.StockMove{{ID: 501, Product: ledger.Many2One{ID: 77}, Quantity: decimal.NewFromInt(8), Location: ledger.Many2One{ID: 8}}}, nil
}

func (f *fakeLedger) JournalTotal(ctx context.Context, ids []int64) (decimal.Decimal, error) {
	f.journalIDs = ids
	return decimal.NewFromInt(20), nil
}

func (f *fakeLedger) CreateStockMove(ctx context.Context, in ledger.StockMoveInput) (int64, error) {
	f.created = append(f.created, in)
	return 601, nil
}

func (f *fakeLedger) CreateJournal(ctx context.Context, in ledger.JournalInput) (int64, error) {
	f.journals = append(f.journals, in)
	return 901, nil
}

func (f *fakeLedger) PostJournal(ctx context.Context, id int64) error {
	return nil
}

func newEngine(s store.Store, l *fakeLedger) *Engine {
	tr := translate.New(nil, l, translate.Config{ValuationAccountID: 300}, nil)
	p := poster.New(l, s, poster.Config{ScrapLocationID: 99, FailureJournalID: 11}, nil)
	return &Engine{Store: s, Translator: tr, Poster: p}
}

func seed(t *testing.T) *store.Memory {
	s := store.NewMemory()
	rec := store.FromSource(field.SourceRequest{RequestID: "A1", RelatedToID: "10", RelatedToType: field.RelatedFailure, DateUpdated: "2024-01-01"})
	rec.StockMoveIDs = []int64{501}
	rec.AccountMoveID = store.Ptr(int64(900))
	rec.CostCenterLedgerID = store.Ptr(int64(61))
	require.NoError(t, s.Put(context.Background(), rec))
	return s
}

func TestRetractedRequestIsReversedFromLedgerRows(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	l := &fakeLedger{}

	items, err := reconcile.NewEngine(s, nil).Reconcile(ctx, nil, reconcile.Scope{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "A1", items[0].Request.RequestID)
	require.Equal(t, store.StateReversed, items[0].State)

	res, err := newEngine(s, l).Reverse(ctx, items[0].Key())
	require.NoError(t, err)
	require.Equal(t, []int64{501}, l.moveIDs)
	require.Equal(t, "FAIL/10", l.moveOrigin)
	require.Equal(t, []int64{900}, l.journalIDs)
	require.True(t, res.Journal.Total().Equal(decimal.NewFromInt(20)))

	require.Len(t, l.created, 1)
	require.Equal(t, int64(99), l.created[0].SourceLocationID)
	require.Equal(t, int64(8), l.created[0].DestLocationID)
	require.Equal(t, int64(300), l.journals[0].Lines[0].AccountID)

	rec, err := s.Get(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, []int64{601}, rec.ReversalMoveIDs)
	require.Equal(t, int64(900), *rec.AccountMoveID)

	_, err = newEngine(s, l).Reverse(ctx, "A1")
	require.NoError(t, err)
	require.Len(t, l.created, 1)
}

func TestReverseUnpostedRecordIsNoop(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.Put(ctx, store.FromSource(field.SourceRequest{RequestID: "B2"})))
	l := &fakeLedger{}

	_, err := newEngine(s, l).Reverse(ctx, "B2")
	require.NoError(t, err)
	require.Nil(t, l.moveIDs)
	require.Empty(t, l.journals)
}

func TestReverseMissingRecord(t *testing.T) {
	_, err := newEngine(store.NewMemory(), &fakeLedger{}).Reverse(context.Background(), "nope")
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.True(t, shared.IsBeforeLedger(err))
}

type unreachableLedger struct {
	*fakeLedger
}

func (unreachableLedger) StockMoves(ctx context.Context, origin string, ids []int64) ([]ledger.StockMove, error) {
	return nil, &shared.RemoteError{System: "ledger", Message: "timeout"}
}

func TestLedgerReadFailureIsBeforeLedger(t *testing.T) {
	ctx := context.Background()
	s := seed(t)
	l := &fakeLedger{}
	e := newEngine(s, l)
	e.Translator = translate.New(nil, unreachableLedger{l}, translate.Config{ValuationAccountID: 300}, nil)

	_, err := e.Reverse(ctx, "A1")
	require.ErrorIs(t, err, shared.ErrRemoteCall)
	require.True(t, shared.IsBeforeLedger(err))
	require.Empty(t, l.created)

	rec, err := s.Get(ctx, "A1")
	require.NoError(t, err)
	require.False(t, rec.Compensated())
}
