package translate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fieldsync/internal/field"
	"github.com/odyssey-erp/fieldsync/internal/shared"
)

// ReversalInput identifies what was previously posted for an order.
type ReversalInput struct {
	OrderID            string
	OrderType          field.RelatedType
	StockMoveIDs       []int64
	AccountMoveID      *int64
	CostCenterLedgerID *int64
	OffsetAccountID    int64
}

// TranslateReversal rebuilds the postings of an order from the ledger's own
// rows so the compensation matches what was actually posted.
func (t *Translator) TranslateReversal(ctx context.Context, in ReversalInput) (Result, error) {
	if shared.ToKey(in.OrderID) == "" {
		return Result{}, shared.Validationf("reversal: order id missing")
	}
	ref := Reference(in.OrderType, in.OrderID)
	offset := in.OffsetAccountID
	if offset == 0 {
		offset = t.Config.ValuationAccountID
	}
	res := Result{Accounting: Accounting{
		WorkOrderID:     in.OrderID,
		OrderType:       in.OrderType,
		Reference:       ref,
		OffsetAccountID: offset,
	}}

	if len(in.StockMoveIDs) > 0 {
		moves, err := t.Source.StockMoves(ctx, ref, in.StockMoveIDs)
		if err != nil {
			return Result{}, err
		}
		if len(moves) != len(in.StockMoveIDs) {
			t.log().Warn("reversal found fewer stock moves than persisted",
				slog.String("order_id", in.OrderID),
				slog.Int("persisted", len(in.StockMoveIDs)),
				slog.Int("found", len(moves)))
		}
		for _, m := range moves {
			res.Inventory = append(res.Inventory, InventoryPosting{
				ProductID:    m.Product.ID,
				LocationID:   m.Location.ID,
				Quantity:     m.Quantity,
				WorkOrderID:  in.OrderID,
				MaterialCode: m.Product.Name,
			})
		}
	}

	if in.AccountMoveID != nil {
		total, err := t.Source.JournalTotal(ctx, []int64{*in.AccountMoveID})
		if err != nil {
			return Result{}, err
		}
		if in.CostCenterLedgerID == nil {
			return Result{}, shared.Lookupf("reversal %s: cost center account not persisted", in.OrderID)
		}
		res.Accounting.CostCenterLedgerID = *in.CostCenterLedgerID
		if total.IsPositive() {
			res.Accounting.Lines = []AccountingLine{{
				Memo:      fmt.Sprintf("Reversal %s", ref),
				UnitPrice: total,
				Quantity:  decimal.NewFromInt(1),
			}}
		}
	}
	return res, nil
}
