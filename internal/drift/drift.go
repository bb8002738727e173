// Package drift corrects field-system stock quantities towards the ledger.
package drift

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/fieldsync/internal/field"
	"github.com/odyssey-erp/fieldsync/internal/ledger"
	"github.com/odyssey-erp/fieldsync/internal/shared"
)

// WarehousePolicy decides how a ledger warehouse maps onto field warehouses
// when matching by substring containment.
type WarehousePolicy string

const (
	// MatchUnique maps only when exactly one field warehouse matches.
	MatchUnique WarehousePolicy = "unique"
	// MatchFirst takes the first matching field warehouse.
	MatchFirst WarehousePolicy = "first"
)

// Input is the pair of snapshots plus the cross maps.
type Input struct {
	LedgerStock []ledger.StockRecord
	FieldStock  []field.Stock
	Products    []ledger.Product
	Materials   []field.Material
	Warehouses  []field.Warehouse
}

// Movement is one corrective movement to post.
type Movement struct {
	MaterialID   string
	MaterialCode string
	WarehouseID  string
	Direction    field.Movement
	Quantity     decimal.Decimal
	UnitCost     decimal.Decimal
	LedgerQty    decimal.Decimal
	FieldQty     decimal.Decimal
}

// PostedMovement is a movement the field system accepted.
type PostedMovement struct {
	Movement
	ID        string
	Reference string
}

// Mover creates field stock movements.
type Mover interface {
	CreateStockMovement(ctx context.Context, p field.StockMovementPayload) (string, error)
}

// Reconciler posts drift corrections.
type Reconciler struct {
	Mover       Mover
	Policy      WarehousePolicy
	Concurrency int
	Logger      *slog.Logger
}

type cell struct {
	material  string
	warehouse string
}

// Plan computes the corrective movements without posting them. Rows that
// cannot be mapped onto the field system are skipped.
func (r *Reconciler) Plan(in Input) []Movement {
	materialByCode := make(map[string]field.Material, len(in.Materials))
	for _, m := range in.Materials {
		if m.Code != "" {
			materialByCode[shared.FoldKey(m.Code)] = m
		}
	}
	productByID := make(map[int64]ledger.Product, len(in.Products))
	for _, p := range in.Products {
		productByID[p.ID] = p
	}

	ledgerQty := map[cell]decimal.Decimal{}
	meta := map[cell]Movement{}
	var order []cell
	for _, row := range in.LedgerStock {
		code := row.ProductReferenceCode
		if code == "" {
			parsed, err := shared.ParseBracketCode(row.ProductDisplay)
			if err != nil {
				r.log().Debug("ledger stock row without reference code", slog.Int64("stock_id", row.StockID))
				continue
			}
			code = parsed
		}
		material, ok := materialByCode[shared.FoldKey(code)]
		if !ok {
			r.log().Debug("no field material for code", slog.String("code", code))
			continue
		}
		warehouseID, ok := r.resolveWarehouse(row.WarehouseName, in.Warehouses)
		if !ok {
			continue
		}
		c := cell{material: shared.ToKey(material.ID), warehouse: warehouseID}
		if _, seen := ledgerQty[c]; !seen {
			order = append(order, c)
			meta[c] = Movement{
				MaterialID:   c.material,
				MaterialCode: material.Code,
				WarehouseID:  c.warehouse,
				UnitCost:     productByID[row.ProductID].StandardPrice,
			}
		}
		ledgerQty[c] = ledgerQty[c].Add(row.QuantityOnHand)
	}

	fieldQty := map[cell]decimal.Decimal{}
	for _, s := range in.FieldStock {
		c := cell{material: shared.ToKey(s.MaterialID), warehouse: shared.ToKey(s.WarehouseID)}
		fieldQty[c] = fieldQty[c].Add(s.Quantity)
	}

	var out []Movement
	for _, c := range order {
		m := meta[c]
		m.LedgerQty = ledgerQty[c]
		m.FieldQty = fieldQty[c]
		delta := m.LedgerQty.Sub(m.FieldQty)
		switch delta.Sign() {
		case 0:
			continue
		case 1:
			m.Direction = field.MovementAdd
			m.Quantity = delta
		default:
			m.Direction = field.MovementConsume
			m.Quantity = delta.Neg()
		}
		out = append(out, m)
	}
	return out
}

func (r *Reconciler) resolveWarehouse(name string, warehouses []field.Warehouse) (string, bool) {
	var matches []field.Warehouse
	for _, w := range warehouses {
		if shared.FoldContains(name, w.FullCode) {
			matches = append(matches, w)
			if r.Policy == MatchFirst {
				break
			}
		}
	}
	switch {
	case len(matches) == 0:
		r.log().Debug("no field warehouse for ledger warehouse", slog.String("warehouse", name))
		return "", false
	case len(matches) > 1:
		codes := make([]string, 0, len(matches))
		for _, w := range matches {
			codes = append(codes, w.FullCode)
		}
		sort.Strings(codes)
		r.log().Warn("ambiguous warehouse match, skipping",
			slog.String("warehouse", name), slog.Any("candidates", codes))
		return "", false
	}
	return shared.ToKey(matches[0].ID), true
}

// Reconcile plans and posts the corrections.
func (r *Reconciler) Reconcile(ctx context.Context, in Input) ([]PostedMovement, error) {
	return r.Post(ctx, r.Plan(in))
}

// Post submits planned movements. Each movement is independent: a failure
// is logged and left out of the result.
func (r *Reconciler) Post(ctx context.Context, plan []Movement) ([]PostedMovement, error) {
	if len(plan) == 0 {
		return nil, nil
	}
	posted := make([]*PostedMovement, len(plan))
	var g errgroup.Group
	if r.Concurrency > 0 {
		g.SetLimit(r.Concurrency)
	}
	for i, m := range plan {
		g.Go(func() error {
			ref := uuid.NewString()
			id, err := r.Mover.CreateStockMovement(ctx, field.StockMovementPayload{
				MaterialID:  m.MaterialID,
				WarehouseID: m.WarehouseID,
				Movement:    m.Direction,
				Quantity:    m.Quantity.InexactFloat64(),
				UnitPrice:   m.UnitCost.InexactFloat64(),
				Reference:   ref,
				Note:        fmt.Sprintf("Ledger sync: ledger %s, field %s", m.LedgerQty, m.FieldQty),
			})
			if err != nil {
				r.log().Error("drift movement failed",
					slog.String("material", m.MaterialCode),
					slog.String("warehouse_id", m.WarehouseID),
					slog.String("movement", string(m.Direction)),
					slog.Any("error", err))
				return nil
			}
			posted[i] = &PostedMovement{Movement: m, ID: id, Reference: ref}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]PostedMovement, 0, len(posted))
	for _, p := range posted {
		if p != nil {
			out = append(out, *p)
		}
	}
	r.log().Info("drift reconciled", slog.Int("planned", len(plan)), slog.Int("posted", len(out)))
	return out, nil
}

func (r *Reconciler) log() *slog.Logger {
	if r != nil && r.Logger != nil {
		return r.Logger.With(slog.String("component", "drift"))
	}
	return slog.Default().With(slog.String("component", "drift"))
}
