// Package reversal compensates postings whose source request was retracted.
package reversal

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/fieldsync/internal/poster"
	"github.com/odyssey-erp/fieldsync/internal/shared"
	"github.com/odyssey-erp/fieldsync/internal/store"
	"github.com/odyssey-erp/fieldsync/internal/translate"
)

// Translator rebuilds the postings to compensate.
type Translator interface {
	TranslateReversal(ctx context.Context, in translate.ReversalInput) (translate.Result, error)
}

// Poster submits the compensation.
type Poster interface {
	Post(ctx context.Context, in poster.PostInput) (poster.PostResult, error)
}

// Engine reverses persisted postings from ledger ground truth.
type Engine struct {
	Store      store.Store
	Translator Translator
	Poster     Poster
	// OffsetAccountID is the account credited by the original posting.
	OffsetAccountID int64
	Logger          *slog.Logger
}

// Reverse reads the ids persisted for key, re-queries the ledger rows they
// point at and posts the sign-reversed entries. Records that never posted, or
// whose posting was already compensated, are a no-op. Failures while reading
// the record or the ledger rows are marked with shared.BeforeLedger.
func (e *Engine) Reverse(ctx context.Context, key string) (poster.PostResult, error) {
	key = shared.ToKey(key)
	rec, err := e.Store.Get(ctx, key)
	if err != nil {
		return poster.PostResult{}, shared.BeforeLedger(err)
	}
	if !rec.Posted() {
		e.log().Info("nothing posted, skipping reversal", slog.String("key", key))
		return poster.PostResult{}, nil
	}
	if rec.Compensated() {
		e.log().Info("posting already reversed", slog.String("key", key))
		return poster.PostResult{}, nil
	}

	result, err := e.Translator.TranslateReversal(ctx, translate.ReversalInput{
		OrderID:            rec.RelatedToID,
		OrderType:          rec.RelatedToType,
		StockMoveIDs:       rec.StockMoveIDs,
		AccountMoveID:      rec.AccountMoveID,
		CostCenterLedgerID: rec.CostCenterLedgerID,
		OffsetAccountID:    e.OffsetAccountID,
	})
	if err != nil {
		return poster.PostResult{}, shared.BeforeLedger(err)
	}
	if result.Empty() {
		e.log().Warn("ledger rows for reversal not found", slog.String("key", key))
		return poster.PostResult{}, nil
	}
	return e.Poster.Post(ctx, poster.PostInput{Key: key, State: store.StateReversed, Result: result})
}

func (e *Engine) log() *slog.Logger {
	if e != nil && e.Logger != nil {
		return e.Logger.With(slog.String("component", "reversal"))
	}
	return slog.Default().With(slog.String("component", "reversal"))
}
