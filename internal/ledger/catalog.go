package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fieldsync/internal/shared"
)

var (
	quantFields   = []string{"id", "product_id", "location_id", "warehouse_id", "quantity", "reserved_quantity"}
	productFields = []string{"id", "display_name", "name", "default_code", "standard_price", "categ_id"}
	moveFields    = []string{"id", "product_id", "product_uom_qty", "location_id", "location_dest_id", "origin", "state"}
)

// StockSnapshot returns every internal-location stock row.
func (g *Gateway) StockSnapshot(ctx context.Context) ([]StockRecord, error) {
	rows, err := SearchReadAll[quantRow](ctx, g, "stock.quant", []any{
		[]any{"location_id.usage", "=", "internal"},
	}, quantFields)
	if err != nil {
		return nil, err
	}
	out := make([]StockRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

// Products returns the stockable catalog.
func (g *Gateway) Products(ctx context.Context) ([]Product, error) {
	return SearchReadAll[Product](ctx, g, "product.product", []any{
		[]any{"type", "in", []string{"product", "consu"}},
	}, productFields)
}

// AccountIDByCode resolves an account code with an exact match.
func (g *Gateway) AccountIDByCode(ctx context.Context, code string) (int64, error) {
	rows, err := SearchReadAll[Account](ctx, g, "account.account", []any{
		[]any{"code", "=", code},
	}, []string{"id", "code", "name"})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, shared.Lookupf("no ledger account with code %q", code)
	}
	return rows[0].ID, nil
}

// StockMoves returns the movements created for origin, restricted to ids.
// Both filters apply so a recycled id under another origin never matches.
func (g *Gateway) StockMoves(ctx context.Context, origin string, ids []int64) ([]StockMove, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return SearchReadAll[StockMove](ctx, g, "stock.move", []any{
		[]any{"origin", "=", origin},
		[]any{"id", "in", ids},
	}, moveFields)
}

// JournalTotal sums amount_total over the journal entries in ids.
func (g *Gateway) JournalTotal(ctx context.Context, ids []int64) (decimal.Decimal, error) {
	if len(ids) == 0 {
		return decimal.Zero, nil
	}
	rows, err := SearchReadAll[journalRow](ctx, g, "account.move", []any{
		[]any{"id", "in", ids},
	}, []string{"id", "amount_total", "state"})
	if err != nil {
		return decimal.Zero, err
	}
	if len(rows) == 0 {
		return decimal.Zero, shared.Lookupf("journal entries %v not found", ids)
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.AmountTotal)
	}
	return total, nil
}

// CreateStockMove creates one movement and returns its id.
func (g *Gateway) CreateStockMove(ctx context.Context, in StockMoveInput) (int64, error) {
	var id int64
	if err := g.Call(ctx, "stock.move", "create", []any{in.values()}, nil, &id); err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, fmt.Errorf("ledger: stock.move create: %w", &shared.RemoteError{System: systemName, Message: "no id returned"})
	}
	return id, nil
}

// CreateJournal creates a draft journal entry and returns its id.
func (g *Gateway) CreateJournal(ctx context.Context, in JournalInput) (int64, error) {
	var id int64
	if err := g.Call(ctx, "account.move", "create", []any{in.values()}, nil, &id); err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, fmt.Errorf("ledger: account.move create: %w", &shared.RemoteError{System: systemName, Message: "no id returned"})
	}
	return id, nil
}

// PostJournal moves a draft journal entry to posted.
func (g *Gateway) PostJournal(ctx context.Context, id int64) error {
	return g.Call(ctx, "account.move", "action_post", []any{[]int64{id}}, nil, nil)
}
