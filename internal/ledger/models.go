package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fieldsync/internal/shared"
)

// Many2One decodes a relational field, which arrives either as [id, "name"]
// or as false when unset.
type Many2One struct {
	ID   int64
	Name string
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Many2One) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("false")) || bytes.Equal(data, []byte("null")) {
		*m = Many2One{}
		return nil
	}
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		var id int64
		if err2 := json.Unmarshal(data, &id); err2 == nil {
			*m = Many2One{ID: id}
			return nil
		}
		return fmt.Errorf("ledger: many2one: %w", err)
	}
	if len(pair) == 0 {
		*m = Many2One{}
		return nil
	}
	if err := json.Unmarshal(pair[0], &m.ID); err != nil {
		return fmt.Errorf("ledger: many2one id: %w", err)
	}
	if len(pair) > 1 {
		_ = json.Unmarshal(pair[1], &m.Name)
	}
	return nil
}

// Text decodes a char field that the ledger sends as false when empty.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("false")) {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = Text(s)
	return nil
}

type quantRow struct {
	ID          int64           `json:"id"`
	Product     Many2One        `json:"product_id"`
	Location    Many2One        `json:"location_id"`
	Warehouse   Many2One        `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	ReservedQty decimal.Decimal `json:"reserved_quantity"`
}

// StockRecord is one warehouse/product stock row.
type StockRecord struct {
	StockID              int64
	ProductID            int64
	ProductDisplay       string
	ProductReferenceCode string
	LocationID           int64
	WarehouseID          int64
	WarehouseName        string
	QuantityOnHand       decimal.Decimal
}

func (r quantRow) record() StockRecord {
	rec := StockRecord{
		StockID:        r.ID,
		ProductID:      r.Product.ID,
		ProductDisplay: r.Product.Name,
		LocationID:     r.Location.ID,
		WarehouseID:    r.Warehouse.ID,
		WarehouseName:  r.Warehouse.Name,
		QuantityOnHand: r.Quantity,
	}
	if code, err := shared.ParseBracketCode(r.Product.Name); err == nil {
		rec.ProductReferenceCode = code
	}
	return rec
}

// Product is a catalog row.
type Product struct {
	ID            int64           `json:"id"`
	DisplayName   string          `json:"display_name"`
	Name          string          `json:"name"`
	DefaultCode   Text            `json:"default_code"`
	StandardPrice decimal.Decimal `json:"standard_price"`
	Category      Many2One        `json:"categ_id"`
}

// ReferenceCode prefers the internal reference and falls back to the
// bracketed code in the display name.
func (p Product) ReferenceCode() (string, error) {
	if p.DefaultCode != "" {
		return string(p.DefaultCode), nil
	}
	return shared.ParseBracketCode(p.DisplayName)
}

// Account is a chart-of-accounts row.
type Account struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// StockMove is a posted inventory movement.
type StockMove struct {
	ID           int64           `json:"id"`
	Product      Many2One        `json:"product_id"`
	Quantity     decimal.Decimal `json:"product_uom_qty"`
	Location     Many2One        `json:"location_id"`
	LocationDest Many2One        `json:"location_dest_id"`
	Origin       Text            `json:"origin"`
	State        Text            `json:"state"`
}

type journalRow struct {
	ID          int64           `json:"id"`
	AmountTotal decimal.Decimal `json:"amount_total"`
	State       Text            `json:"state"`
}

// StockMoveInput describes a movement to create.
type StockMoveInput struct {
	Name             string
	ProductID        int64
	Quantity         decimal.Decimal
	SourceLocationID int64
	DestLocationID   int64
	Origin           string
}

func (in StockMoveInput) values() map[string]any {
	return map[string]any{
		"name":             in.Name,
		"product_id":       in.ProductID,
		"product_uom_qty":  in.Quantity.InexactFloat64(),
		"location_id":      in.SourceLocationID,
		"location_dest_id": in.DestLocationID,
		"origin":           in.Origin,
	}
}

// JournalLineInput is one side of a journal entry.
type JournalLineInput struct {
	AccountID int64
	Name      string
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// JournalInput describes a draft journal entry.
type JournalInput struct {
	Ref       string
	JournalID int64
	Lines     []JournalLineInput
}

func (in JournalInput) values() map[string]any {
	lines := make([]any, 0, len(in.Lines))
	for _, l := range in.Lines {
		vals := map[string]any{
			"account_id": l.AccountID,
			"name":       l.Name,
			"debit":      l.Debit.Round(2).InexactFloat64(),
			"credit":     l.Credit.Round(2).InexactFloat64(),
		}
		lines = append(lines, []any{0, 0, vals})
	}
	vals := map[string]any{
		"ref":       in.Ref,
		"move_type": "entry",
		"line_ids":  lines,
	}
	if in.JournalID != 0 {
		vals["journal_id"] = in.JournalID
	}
	return vals
}
