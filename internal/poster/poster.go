// Package poster submits translated orders to the ledger and records the
// assigned ids.
package poster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/fieldsync/internal/field"
	"github.com/odyssey-erp/fieldsync/internal/ledger"
	"github.com/odyssey-erp/fieldsync/internal/shared"
	"github.com/odyssey-erp/fieldsync/internal/store"
	"github.com/odyssey-erp/fieldsync/internal/translate"
)

// Ledger is the write side of the ledger gateway.
type Ledger interface {
	CreateStockMove(ctx context.Context, in ledger.StockMoveInput) (int64, error)
	CreateJournal(ctx context.Context, in ledger.JournalInput) (int64, error)
	PostJournal(ctx context.Context, id int64) error
}

// Config holds the fixed ledger targets.
type Config struct {
	ScrapLocationID   int64
	FailureJournalID  int64
	ScheduleJournalID int64
	// Concurrency bounds parallel stock move creation; zero means unbounded.
	Concurrency int
}

// PostInput is one order to post.
type PostInput struct {
	Key    string
	State  store.State
	Result translate.Result
}

// PostResult carries the ids the ledger assigned.
type PostResult struct {
	StockMoveIDs  []int64
	AccountMoveID *int64
	Journal       JournalPosting
}

// Poster executes postings in inventory-then-accounting order.
type Poster struct {
	Ledger Ledger
	Store  store.Store
	Config Config
	Logger *slog.Logger
}

// New constructs a Poster.
func New(l Ledger, s store.Store, cfg Config, logger *slog.Logger) *Poster {
	return &Poster{Ledger: l, Store: s, Config: cfg, Logger: logger}
}

// JournalID selects the ledger journal for an order type.
func (p *Poster) JournalID(t field.RelatedType) int64 {
	if t == field.RelatedSchedule {
		return p.Config.ScheduleJournalID
	}
	return p.Config.FailureJournalID
}

// SaveCostCenter records the resolved cost-center account before any
// posting so a later failure leaves it available for manual correction.
func (p *Poster) SaveCostCenter(ctx context.Context, key string, accountID int64) error {
	if p.Store == nil || key == "" || accountID == 0 {
		return nil
	}
	_, err := p.Store.Update(ctx, key, store.Patch{CostCenterLedgerID: store.Ptr(accountID)})
	return err
}

// Post creates the stock moves concurrently, then the journal entry, then
// finalizes it. Failures before the first ledger write are marked with
// shared.BeforeLedger. Once any stock move exists, the ids created so far are
// written back before the error is returned, so a later reversal can
// compensate them. A finalize failure returns ErrFinalize together with the
// ids, which are still written back.
func (p *Poster) Post(ctx context.Context, in PostInput) (PostResult, error) {
	var (
		res PostResult
		err error
	)
	if len(in.Result.Accounting.Lines) > 0 {
		res.Journal, err = BuildJournal(in.Result.Accounting, in.State, p.JournalID(in.Result.Accounting.OrderType))
		if err != nil {
			return PostResult{}, shared.BeforeLedger(err)
		}
	}
	if in.State == store.StateCompleted {
		if err := p.SaveCostCenter(ctx, in.Key, in.Result.Accounting.CostCenterLedgerID); err != nil {
			return PostResult{}, shared.BeforeLedger(err)
		}
	}

	res.StockMoveIDs, err = p.postInventory(ctx, in)
	if err != nil {
		if len(res.StockMoveIDs) == 0 {
			return PostResult{}, shared.BeforeLedger(err)
		}
		return res, p.partial(ctx, in, res, err)
	}

	input := res.Journal.input()
	if len(input.Lines) > 0 {
		id, err := p.Ledger.CreateJournal(ctx, input)
		if err != nil {
			if len(res.StockMoveIDs) == 0 {
				return PostResult{}, shared.BeforeLedger(err)
			}
			p.log().Error("journal create failed after stock moves",
				slog.String("key", in.Key),
				slog.Any("stock_move_ids", res.StockMoveIDs),
				slog.Any("error", err))
			return res, p.partial(ctx, in, res, err)
		}
		res.AccountMoveID = &id

		if err := p.Ledger.PostJournal(ctx, id); err != nil {
			p.log().Error("journal left in draft",
				slog.String("key", in.Key),
				slog.Int64("account_move_id", id),
				slog.Any("error", err))
			finalizeErr := fmt.Errorf("%w: account.move %d: %w", shared.ErrFinalize, id, err)
			if wbErr := p.writeBack(ctx, in, res); wbErr != nil {
				return res, errors.Join(finalizeErr, wbErr)
			}
			return res, finalizeErr
		}
	}

	if err := p.writeBack(ctx, in, res); err != nil {
		return res, err
	}
	p.log().Info("order posted",
		slog.String("key", in.Key),
		slog.String("state", string(in.State)),
		slog.Int("stock_moves", len(res.StockMoveIDs)),
		slog.String("amount", res.Journal.Total().StringFixed(2)))
	return res, nil
}

// partial records the ids of an order that failed midway and returns cause.
func (p *Poster) partial(ctx context.Context, in PostInput, res PostResult, cause error) error {
	if err := p.writeBack(ctx, in, res); err != nil {
		p.log().Error("write back partial posting",
			slog.String("key", in.Key),
			slog.Any("stock_move_ids", res.StockMoveIDs),
			slog.Any("error", err))
		return errors.Join(cause, err)
	}
	return cause
}

// postInventory creates one stock move per posting. On failure it returns the
// ids that were created before the error.
func (p *Poster) postInventory(ctx context.Context, in PostInput) ([]int64, error) {
	postings := in.Result.Inventory
	if len(postings) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(postings))
	g, gctx := errgroup.WithContext(ctx)
	if p.Config.Concurrency > 0 {
		g.SetLimit(p.Config.Concurrency)
	}
	for i, posting := range postings {
		g.Go(func() error {
			move := ledger.StockMoveInput{
				Name:      moveName(posting, in.State),
				ProductID: posting.ProductID,
				Quantity:  posting.Quantity,
				Origin:    in.Result.Accounting.Reference,
			}
			if in.State == store.StateReversed {
				move.SourceLocationID, move.DestLocationID = p.Config.ScrapLocationID, posting.LocationID
			} else {
				move.SourceLocationID, move.DestLocationID = posting.LocationID, p.Config.ScrapLocationID
			}
			id, err := p.Ledger.CreateStockMove(gctx, move)
			if err != nil {
				return fmt.Errorf("stock move %s: %w", posting.MaterialCode, err)
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		created := make([]int64, 0, len(ids))
		for _, id := range ids {
			if id != 0 {
				created = append(created, id)
			}
		}
		if len(created) > 0 {
			p.log().Error("order aborted with stock moves already created",
				slog.String("key", in.Key), slog.Any("stock_move_ids", created))
		}
		return created, err
	}
	return ids, nil
}

func (p *Poster) writeBack(ctx context.Context, in PostInput, res PostResult) error {
	if p.Store == nil || in.Key == "" {
		return nil
	}
	var patch store.Patch
	switch in.State {
	case store.StateReversed:
		patch.ReversalMoveIDs = store.Ptr(append([]int64{}, res.StockMoveIDs...))
		patch.ReversalAccountID = res.AccountMoveID
	default:
		patch.StockMoveIDs = store.Ptr(append([]int64{}, res.StockMoveIDs...))
		patch.AccountMoveID = res.AccountMoveID
		patch.ClearAccountMove = res.AccountMoveID == nil
		patch.ClearReversal = true
	}
	_, err := p.Store.Update(ctx, in.Key, patch)
	return err
}

func (p *Poster) log() *slog.Logger {
	if p != nil && p.Logger != nil {
		return p.Logger.With(slog.String("component", "poster"))
	}
	return slog.Default().With(slog.String("component", "poster"))
}
