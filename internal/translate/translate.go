package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fieldsync/internal/field"
	"github.com/odyssey-erp/fieldsync/internal/ledger"
	"github.com/odyssey-erp/fieldsync/internal/shared"
)

// Config carries the fixed ledger accounts used by translation.
type Config struct {
	ValuationAccountID int64
	LabourAccountID    int64
	HourlyRate         decimal.Decimal
}

// Translator converts orders into accounting and inventory data.
type Translator struct {
	Accounts AccountResolver
	Source   ReversalSource
	Config   Config
	Logger   *slog.Logger
}

// New constructs a Translator.
func New(accounts AccountResolver, source ReversalSource, cfg Config, logger *slog.Logger) *Translator {
	return &Translator{Accounts: accounts, Source: source, Config: cfg, Logger: logger}
}

// Translate derives the COMPLETED postings of a material request. It performs
// no remote writes; any failure aborts the whole order.
func (t *Translator) Translate(ctx context.Context, detail field.OrderDetail, costCenters []field.CostCenter, stock []ledger.StockRecord) (Result, error) {
	if err := validateDetail(detail); err != nil {
		return Result{}, err
	}
	ccAccount, err := t.resolveCostCenter(ctx, detail.CostCenterID, detail.CostCenterName, costCenters)
	if err != nil {
		return Result{}, err
	}
	lines, err := Aggregate(detail.OrderID, detail.Entries)
	if err != nil {
		return Result{}, err
	}
	inventory, err := MatchInventory(lines, stock)
	if err != nil {
		return Result{}, err
	}

	accounting := Accounting{
		WorkOrderID:        detail.OrderID,
		OrderType:          detail.OrderType,
		Reference:          Reference(detail.OrderType, detail.OrderID),
		CostCenterLedgerID: ccAccount,
		OffsetAccountID:    t.Config.ValuationAccountID,
	}
	for _, line := range lines {
		accounting.Lines = append(accounting.Lines, AccountingLine{
			Memo:      fmt.Sprintf("%s %s", accounting.Reference, line.MaterialCode),
			UnitPrice: line.MeanPrice,
			Quantity:  line.Quantity,
		})
	}
	t.log().Debug("order translated",
		slog.String("order_id", detail.OrderID),
		slog.Int("materials", len(lines)),
		slog.Int64("cost_center_account", ccAccount))
	return Result{Accounting: accounting, Inventory: inventory, Materials: lines}, nil
}

func validateDetail(detail field.OrderDetail) error {
	if strings.TrimSpace(detail.OrderID) == "" {
		return shared.Validationf("order id missing")
	}
	if !detail.OrderType.Valid() {
		return shared.Validationf("order %s: unknown type %q", detail.OrderID, detail.OrderType)
	}
	if len(detail.Entries) == 0 {
		return shared.Validationf("order %s: no stock entries", detail.OrderID)
	}
	return nil
}

// resolveCostCenter looks the cost center up by id, then by name, and maps
// its code to a ledger account.
func (t *Translator) resolveCostCenter(ctx context.Context, id, name string, costCenters []field.CostCenter) (int64, error) {
	cc, ok := findCostCenter(id, name, costCenters)
	if !ok {
		return 0, shared.Lookupf("cost center id=%q name=%q not found", id, name)
	}
	if strings.TrimSpace(cc.Code) == "" {
		return 0, shared.Lookupf("cost center %s has no code", cc.ID)
	}
	account, err := t.Accounts.AccountIDByCode(ctx, cc.Code)
	if err != nil {
		return 0, err
	}
	return account, nil
}

func findCostCenter(id, name string, costCenters []field.CostCenter) (field.CostCenter, bool) {
	if key := shared.ToKey(id); key != "" {
		for _, cc := range costCenters {
			if shared.ToKey(cc.ID) == key {
				return cc, true
			}
		}
	}
	if strings.TrimSpace(name) != "" {
		for _, cc := range costCenters {
			if shared.FoldEqual(strings.TrimSpace(cc.Name), strings.TrimSpace(name)) {
				return cc, true
			}
		}
	}
	return field.CostCenter{}, false
}

// Aggregate sums stock entries per material. Every entry must carry its
// codes; the unit price of the first entry of each material represents the
// group.
func Aggregate(orderID string, entries []field.StockEntry) ([]MaterialLine, error) {
	var lines []MaterialLine
	index := map[string]int{}
	for _, e := range entries {
		materialID := shared.ToKey(e.MaterialID)
		if materialID == "" {
			return nil, shared.Validationf("order %s: stock entry %s has no material", orderID, e.ID)
		}
		code := strings.TrimSpace(e.MaterialCode)
		if code == "" {
			return nil, shared.Validationf("order %s: material %s has no code", orderID, materialID)
		}
		fullCode := strings.TrimSpace(e.MaterialFullCode)
		if fullCode == "" {
			return nil, shared.Validationf("order %s: material %s has no full code", orderID, materialID)
		}
		folder := shared.FolderCode(fullCode)
		if folder == "" {
			return nil, shared.Validationf("order %s: material %s has no folder code", orderID, materialID)
		}
		if i, ok := index[materialID]; ok {
			lines[i].Quantity = lines[i].Quantity.Add(e.Quantity)
			continue
		}
		index[materialID] = len(lines)
		lines = append(lines, MaterialLine{
			WorkOrderID:  orderID,
			MaterialID:   materialID,
			MaterialCode: code,
			FolderCode:   folder,
			Quantity:     e.Quantity,
			MeanPrice:    e.UnitPrice,
		})
	}
	for _, l := range lines {
		if !l.Quantity.IsPositive() {
			return nil, shared.Validationf("order %s: material %s quantity %s", orderID, l.MaterialCode, l.Quantity)
		}
	}
	return lines, nil
}

// MatchInventory pairs every line with a ledger stock row by reference code.
// The first matching row with enough stock wins.
func MatchInventory(lines []MaterialLine, stock []ledger.StockRecord) ([]InventoryPosting, error) {
	out := make([]InventoryPosting, 0, len(lines))
	for _, line := range lines {
		var (
			matched bool
			chosen  *ledger.StockRecord
			best    decimal.Decimal
		)
		for i := range stock {
			rec := &stock[i]
			if rec.ProductReferenceCode == "" || !shared.FoldEqual(rec.ProductReferenceCode, line.MaterialCode) {
				continue
			}
			if !matched || rec.QuantityOnHand.GreaterThan(best) {
				best = rec.QuantityOnHand
			}
			matched = true
			if rec.QuantityOnHand.GreaterThanOrEqual(line.Quantity) {
				chosen = rec
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: %s", shared.ErrUnmatchedProduct, line.MaterialCode)
		}
		if chosen == nil {
			return nil, fmt.Errorf("%w: %s requested %s, on hand %s",
				shared.ErrInsufficientStock, line.MaterialCode, line.Quantity, best)
		}
		out = append(out, InventoryPosting{
			ProductID:    chosen.ProductID,
			LocationID:   chosen.LocationID,
			Quantity:     line.Quantity,
			WorkOrderID:  line.WorkOrderID,
			MaterialCode: line.MaterialCode,
		})
	}
	return out, nil
}

func (t *Translator) log() *slog.Logger {
	if t != nil && t.Logger != nil {
		return t.Logger.With(slog.String("component", "translate"))
	}
	return slog.Default().With(slog.String("component", "translate"))
}
