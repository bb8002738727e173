// Package translate turns field-system orders into ledger line items.
package translate

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fieldsync/internal/field"
	"github.com/odyssey-erp/fieldsync/internal/ledger"
)

// MaterialLine is the aggregated consumption of one material by one order.
type MaterialLine struct {
	WorkOrderID  string
	MaterialID   string
	MaterialCode string
	FolderCode   string
	Quantity     decimal.Decimal
	MeanPrice    decimal.Decimal
}

// InventoryPosting is one movement to submit. LocationID is the stock
// location the material is consumed from; the poster decides direction.
type InventoryPosting struct {
	ProductID    int64
	LocationID   int64
	Quantity     decimal.Decimal
	WorkOrderID  string
	MaterialCode string
}

// AccountingLine is one debit/credit pair before the amount rule is applied.
type AccountingLine struct {
	Memo      string
	UnitPrice decimal.Decimal
	Quantity  decimal.Decimal
}

// Accounting is the journal side of an order.
type Accounting struct {
	WorkOrderID        string
	OrderType          field.RelatedType
	Reference          string
	CostCenterLedgerID int64
	OffsetAccountID    int64
	Lines              []AccountingLine
}

// Result is the translated order.
type Result struct {
	Accounting Accounting
	Inventory  []InventoryPosting
	Materials  []MaterialLine
}

// Empty reports whether there is nothing to post.
func (r Result) Empty() bool {
	return len(r.Inventory) == 0 && len(r.Accounting.Lines) == 0
}

// AccountResolver maps a cost-center code onto a ledger account id.
type AccountResolver interface {
	AccountIDByCode(ctx context.Context, code string) (int64, error)
}

// ReversalSource re-reads what was actually posted.
type ReversalSource interface {
	StockMoves(ctx context.Context, origin string, ids []int64) ([]ledger.StockMove, error)
	JournalTotal(ctx context.Context, ids []int64) (decimal.Decimal, error)
}

// Reference is the ledger-side reference shared by the journal entry and the
// stock moves of an order. Reversal reconstructs it from the order identity.
func Reference(t field.RelatedType, orderID string) string {
	prefix := "WO"
	switch t {
	case field.RelatedFailure:
		prefix = "FAIL"
	case field.RelatedSchedule:
		prefix = "SCHED"
	}
	return fmt.Sprintf("%s/%s", prefix, orderID)
}
