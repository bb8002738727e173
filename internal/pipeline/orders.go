package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/fieldsync/internal/field"
	jobmetrics "github.com/odyssey-erp/fieldsync/internal/jobs"
	"github.com/odyssey-erp/fieldsync/internal/notify"
	"github.com/odyssey-erp/fieldsync/internal/platform/lock"
	"github.com/odyssey-erp/fieldsync/internal/poster"
	"github.com/odyssey-erp/fieldsync/internal/reconcile"
	"github.com/odyssey-erp/fieldsync/internal/shared"
	"github.com/odyssey-erp/fieldsync/internal/store"
)

// Contacts resolves the requester of a failed order.
type Contacts interface {
	User(ctx context.Context, id string) (field.User, error)
}

// Reverser compensates a retracted request.
type Reverser interface {
	Reverse(ctx context.Context, key string) (poster.PostResult, error)
}

// Options are shared by the order pipelines.
type Options struct {
	Reconciler *reconcile.Engine
	Reversal   Reverser
	Claims     store.Claimer
	Locker     lock.Locker
	Notifier   notify.Sink
	Contacts   Contacts
	Metrics    *jobmetrics.Metrics
	// StopAfterFirst returns after the first classified item, matching the
	// legacy single-order-per-invocation behaviour.
	StopAfterFirst bool
	Logger         *slog.Logger
}

type postFunc func(ctx context.Context, item reconcile.ClassifiedItem) error

type orderRunner struct {
	name string
	opts Options
}

func (r *orderRunner) log() *slog.Logger {
	if r.opts.Logger != nil {
		return r.opts.Logger.With(slog.String("pipeline", r.name))
	}
	return slog.Default().With(slog.String("pipeline", r.name))
}

func (r *orderRunner) run(ctx context.Context, trig Trigger, batch []field.SourceRequest, post postFunc) (resp Response) {
	logger := r.log().With(slog.String("order_id", trig.OrderID))
	scope := reconcile.Scope{RelatedToID: trig.OrderID, RelatedToType: trig.OrderType}
	items, err := r.opts.Reconciler.Reconcile(ctx, batch, scope)
	if err != nil {
		logger.Error("reconcile failed", slog.Any("error", err))
		return Failure(err)
	}
	if len(items) == 0 {
		return OK("nothing to do")
	}

	var (
		failures []string
		posted   int
	)
	for i, item := range items {
		err := r.process(ctx, item, post)
		if err == nil {
			posted++
		} else {
			failures = append(failures, err.Error())
		}
		if r.opts.StopAfterFirst {
			r.deferRest(ctx, items[i+1:])
			if err != nil {
				return Failure(err)
			}
			return OK(fmt.Sprintf("%s %s processed", r.name, item.Key()))
		}
	}
	if len(failures) > 0 {
		return Failure(fmt.Errorf("%d of %d items failed: %s", len(failures), len(items), strings.Join(failures, "; ")))
	}
	return OK(fmt.Sprintf("%d items processed", posted))
}

// deferRest restores items the run will not process so the next run
// classifies them again.
func (r *orderRunner) deferRest(ctx context.Context, rest []reconcile.ClassifiedItem) {
	for _, item := range rest {
		if err := r.opts.Reconciler.Rollback(ctx, item); err != nil {
			r.log().Warn("defer item", slog.String("request_id", item.Key()), slog.Any("error", err))
		}
	}
}

func (r *orderRunner) process(ctx context.Context, item reconcile.ClassifiedItem, post postFunc) error {
	req := item.Request
	logger := r.log().With(
		slog.String("request_id", item.Key()),
		slog.String("state", string(item.State)),
		slog.String("upserted", string(item.Upserted)),
	)
	claim := store.ClaimKey(store.Record{Key: item.Key(), State: item.State, DateUpdated: req.DateUpdated})
	if r.opts.Claims != nil {
		if err := r.opts.Claims.Claim(ctx, claim); err != nil {
			if errors.Is(err, store.ErrClaimed) {
				logger.Info("posting already claimed, skipping")
				return nil
			}
			return shared.WrapOrder(req.RelatedToID, string(req.RelatedToType), err)
		}
	}

	var err error
	if item.State == store.StateReversed {
		_, err = r.opts.Reversal.Reverse(ctx, item.Key())
	} else {
		err = r.repost(ctx, item, post)
	}
	if err == nil {
		r.opts.Metrics.AddPosting(r.name, string(item.State), "posted")
		return nil
	}

	outcome := "failed"
	if shared.IsBeforeLedger(err) {
		if rbErr := r.opts.Reconciler.Rollback(ctx, item); rbErr != nil {
			logger.Warn("rollback failed", slog.Any("error", rbErr))
		} else {
			outcome = "rolled_back"
		}
		r.release(ctx, claim)
	} else if !errors.Is(err, shared.ErrFinalize) {
		r.release(ctx, claim)
	}
	r.opts.Metrics.AddPosting(r.name, string(item.State), outcome)

	err = shared.WrapOrder(req.RelatedToID, string(req.RelatedToType), err)
	logger.Error("order failed", slog.Any("error", err))
	r.notifyFailure(ctx, req, err)
	return err
}

// repost posts a COMPLETED item. An updated request that was already posted
// has its previous posting compensated first, so the ledger only ever carries
// the latest version.
func (r *orderRunner) repost(ctx context.Context, item reconcile.ClassifiedItem, post postFunc) error {
	if item.Upserted == reconcile.UpsertUpdated && r.opts.Reversal != nil {
		res, err := r.opts.Reversal.Reverse(ctx, item.Key())
		if err != nil {
			return fmt.Errorf("compensate previous posting: %w", err)
		}
		if res.AccountMoveID != nil || len(res.StockMoveIDs) > 0 {
			r.log().Info("previous posting compensated",
				slog.String("request_id", item.Key()),
				slog.Any("stock_move_ids", res.StockMoveIDs))
		}
	}
	return post(ctx, item)
}

func (r *orderRunner) release(ctx context.Context, claim string) {
	if r.opts.Claims == nil {
		return
	}
	if err := r.opts.Claims.Release(ctx, claim); err != nil {
		r.log().Warn("release claim", slog.String("claim", claim), slog.Any("error", err))
	}
}

// notifyFailure enriches the failure with the requester's contact details
// when they can be fetched. Enrichment errors never replace the failure.
func (r *orderRunner) notifyFailure(ctx context.Context, req field.SourceRequest, cause error) {
	if r.opts.Notifier == nil {
		return
	}
	message := cause.Error()
	if r.opts.Contacts != nil && req.OperatorID != "" {
		user, err := r.opts.Contacts.User(ctx, req.OperatorID)
		if err != nil {
			r.log().Warn("requester lookup failed", slog.String("operator_id", req.OperatorID), slog.Any("error", err))
		} else {
			message = fmt.Sprintf("%s\n\nRequested by %s %s <%s> %s",
				message, user.FirstName, user.LastName, user.Email, user.Phone)
		}
	}
	subject := fmt.Sprintf("fieldsync %s: order %s failed", r.name, req.RelatedToID)
	if errors.Is(cause, shared.ErrFinalize) {
		subject = fmt.Sprintf("fieldsync %s: journal for order %s left in draft", r.name, req.RelatedToID)
	}
	r.opts.Notifier.Notify(ctx, subject, strings.TrimSpace(message))
}

func (r *orderRunner) acquire(ctx context.Context) (lock.Releaser, *Response) {
	if r.opts.Locker == nil {
		return nil, nil
	}
	held, err := r.opts.Locker.Acquire(ctx, r.name)
	if errors.Is(err, lock.ErrBusy) {
		resp := OK(r.name + " run already in progress")
		return nil, &resp
	}
	if err != nil {
		resp := Failure(err)
		return nil, &resp
	}
	return held, nil
}

func (r *orderRunner) releaseLock(ctx context.Context, held lock.Releaser) {
	if held == nil {
		return
	}
	if err := held.Release(context.WithoutCancel(ctx)); err != nil {
		r.log().Warn("release lock", slog.Any("error", err))
	}
}
