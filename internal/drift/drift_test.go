package drift

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fieldsync/internal/field"
	"github.com/odyssey-erp/fieldsync/internal/ledger"
)

type fakeMover struct {
	mu       sync.Mutex
	payloads []field.StockMovementPayload
	failFor  string
}

func (f *fakeMover) CreateStockMovement(ctx context.Context, p field.StockMovementPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.MaterialID == f.failFor {
		return "", errors.New("rejected")
	}
	f.payloads = append(f.payloads, p)
	return "mv-" + p.MaterialID, nil
}

func n(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func input(ledgerQty, fieldQty int64) Input {
	in := Input{
		LedgerStock: []ledger.StockRecord{
			{StockID: 1, ProductID: 77, ProductReferenceCode: "WID-001", WarehouseName: "Main [WH1.MAIN]", QuantityOnHand: n(ledgerQty)},
		},
		Products:   []ledger.Product{{ID: 77, StandardPrice: decimal.RequireFromString("2.5")}},
		Materials:  []field.Material{{ID: "3", Code: "wid-001"}},
		Warehouses: []field.Warehouse{{ID: "9", FullCode: "WH1.MAIN"}},
	}
	if fieldQty >= 0 {
		in.FieldStock = []field.Stock{{MaterialID: "3", WarehouseID: "9", Quantity: n(fieldQty)}}
	}
	return in
}

func TestEqualQuantitiesPostNothing(t *testing.T) {
	mover := &fakeMover{}
	out, err := (&Reconciler{Mover: mover}).Reconcile(context.Background(), input(10, 10))
	require.NoError(t, err)
	require.Empty(t, out)
	require.Empty(t, mover.payloads)
}

func TestLedgerAheadAdds(t *testing.T) {
	mover := &fakeMover{}
	out, err := (&Reconciler{Mover: mover}).Reconcile(context.Background(), input(12, 7))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, field.MovementAdd, out[0].Direction)
	require.True(t, out[0].Quantity.Equal(n(5)))
	require.Equal(t, "mv-3", out[0].ID)
	require.NotEmpty(t, out[0].Reference)
	require.Equal(t, "9", mover.payloads[0].WarehouseID)
	require.InDelta(t, 2.5, mover.payloads[0].UnitPrice, 0.0001)
}

func TestLedgerBehindConsumes(t *testing.T) {
	mover := &fakeMover{}
	out, err := (&Reconciler{Mover: mover}).Reconcile(context.Background(), input(7, 12))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, field.MovementConsume, out[0].Direction)
	require.True(t, out[0].Quantity.Equal(n(5)))
}

func TestMissingFieldRowCountsAsZero(t *testing.T) {
	plan := (&Reconciler{}).Plan(input(6, -1))
	require.Len(t, plan, 1)
	require.Equal(t, field.MovementAdd, plan[0].Direction)
	require.True(t, plan[0].Quantity.Equal(n(6)))
}

func TestLedgerRowsAggregatePerCell(t *testing.T) {
	in := input(4, 10)
	in.LedgerStock = append(in.LedgerStock, ledger.StockRecord{StockID: 2, ProductID: 77, ProductDisplay: "Widget [WID-001]", WarehouseName: "main [wh1.main]", QuantityOnHand: n(6)})
	require.Empty(t, (&Reconciler{}).Plan(in))
}

func TestUnmappedRowsAreSkipped(t *testing.T) {
	in := input(5, 0)
	in.LedgerStock = append(in.LedgerStock,
		ledger.StockRecord{StockID: 2, ProductDisplay: "No code", WarehouseName: "Main [WH1.MAIN]", QuantityOnHand: n(3)},
		ledger.StockRecord{StockID: 3, ProductReferenceCode: "UNKNOWN", WarehouseName: "Main [WH1.MAIN]", QuantityOnHand: n(3)},
		ledger.StockRecord{StockID: 4, ProductReferenceCode: "WID-001", WarehouseName: "Elsewhere", QuantityOnHand: n(3)},
	)
	plan := (&Reconciler{}).Plan(in)
	require.Len(t, plan, 1)
	require.True(t, plan[0].Quantity.Equal(n(5)))
}

func TestAmbiguousWarehousePolicy(t *testing.T) {
	in := input(5, 0)
	in.Warehouses = append(in.Warehouses, field.Warehouse{ID: "10", FullCode: "WH1"})

	require.Empty(t, (&Reconciler{Policy: MatchUnique}).Plan(in))

	plan := (&Reconciler{Policy: MatchFirst}).Plan(in)
	require.Len(t, plan, 1)
	require.Equal(t, "9", plan[0].WarehouseID)
}

func TestFailedMovementIsExcluded(t *testing.T) {
	in := input(5, 0)
	in.LedgerStock = append(in.LedgerStock, ledger.StockRecord{StockID: 2, ProductID: 78, ProductReferenceCode: "WID-002", WarehouseName: "Main [WH1.MAIN]", QuantityOnHand: n(2)})
	in.Materials = append(in.Materials, field.Material{ID: "4", Code: "WID-002"})
	mover := &fakeMover{failFor: "3"}

	out, err := (&Reconciler{Mover: mover, Concurrency: 2}).Reconcile(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "4", out[0].MaterialID)
}
