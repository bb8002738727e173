// Package store persists the mirror of every source request the service has
// seen, together with the ledger identifiers assigned when it was posted.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/fieldsync/internal/field"
	"github.com/odyssey-erp/fieldsync/internal/shared"
)

// State is the lifecycle state of a persisted request.
type State string

const (
	// StateCompleted marks a request that should be, or has been, posted.
	StateCompleted State = "COMPLETED"
	// StateReversed marks a request whose postings must be compensated.
	StateReversed State = "REVERSED"
)

// Record is the persisted mirror of one source request.
type Record struct {
	Key                string            `json:"key"`
	RelatedToID        string            `json:"relatedToId"`
	RelatedToType      field.RelatedType `json:"relatedToType"`
	Type               string            `json:"type"`
	DateCreated        string            `json:"dateCreated"`
	DateUpdated        string            `json:"dateUpdated"`
	OperatorID         string            `json:"operatorId"`
	CostCenterRef      *string           `json:"costCenterRef,omitempty"`
	JournalMoveRef     *string           `json:"journalMoveRef,omitempty"`
	StockMoveRefs      []string          `json:"stockMoveRefs,omitempty"`
	State              State             `json:"state"`
	Reversed           bool              `json:"reversed"`
	CostCenterLedgerID *int64            `json:"costCenterLedgerId,omitempty"`
	AccountMoveID      *int64            `json:"accountMoveId,omitempty"`
	StockMoveIDs       []int64           `json:"stockMoveIds,omitempty"`
	ReversalMoveIDs    []int64           `json:"reversalMoveIds,omitempty"`
	ReversalAccountID  *int64            `json:"reversalAccountMoveId,omitempty"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// FromSource builds a fresh COMPLETED record for req. Ledger-assigned
// references are never taken from the source.
func FromSource(req field.SourceRequest) Record {
	rec := Record{Key: shared.ToKey(req.RequestID), State: StateCompleted}
	rec.apply(req)
	return rec
}

func (r *Record) apply(req field.SourceRequest) {
	r.RelatedToID = req.RelatedToID
	r.RelatedToType = req.RelatedToType
	r.Type = req.Type
	r.DateCreated = req.DateCreated
	r.DateUpdated = req.DateUpdated
	r.OperatorID = req.OperatorID
	r.CostCenterRef = req.CostCenterRef
	r.JournalMoveRef = req.JournalMoveRef
}

// Posted reports whether the record carries ledger ids to compensate.
func (r Record) Posted() bool {
	return r.AccountMoveID != nil || len(r.StockMoveIDs) > 0
}

// Compensated reports whether the current posting was already reversed.
func (r Record) Compensated() bool {
	return r.ReversalAccountID != nil || len(r.ReversalMoveIDs) > 0
}

// Source returns the request view of the record, carrying its persisted
// stock move references.
func (r Record) Source() field.SourceRequest {
	refs := append([]string(nil), r.StockMoveRefs...)
	if len(refs) == 0 && len(r.StockMoveIDs) > 0 {
		refs = shared.ToKeys(r.StockMoveIDs)
	}
	return field.SourceRequest{
		RequestID:      r.Key,
		RelatedToID:    r.RelatedToID,
		RelatedToType:  r.RelatedToType,
		Type:           r.Type,
		DateCreated:    r.DateCreated,
		DateUpdated:    r.DateUpdated,
		OperatorID:     r.OperatorID,
		CostCenterRef:  r.CostCenterRef,
		JournalMoveRef: r.JournalMoveRef,
		StockMoveRefs:  refs,
	}
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Source             *field.SourceRequest
	State              *State
	Reversed           *bool
	CostCenterLedgerID *int64
	AccountMoveID      *int64
	StockMoveIDs       *[]int64
	ReversalMoveIDs    *[]int64
	ReversalAccountID  *int64
	// ClearReversal drops the ids of an earlier compensation, used when a
	// fresh posting replaces the one that was reversed.
	ClearReversal bool
	// ClearAccountMove drops the journal id when a fresh posting created no
	// journal entry. AccountMoveID wins when both are set.
	ClearAccountMove bool
}

// Apply mutates rec with the non-nil fields of p.
func (p Patch) Apply(rec *Record) {
	if p.Source != nil {
		rec.apply(*p.Source)
	}
	if p.State != nil {
		rec.State = *p.State
	}
	if p.Reversed != nil {
		rec.Reversed = *p.Reversed
	}
	if p.CostCenterLedgerID != nil {
		rec.CostCenterLedgerID = p.CostCenterLedgerID
	}
	if p.ClearAccountMove {
		rec.AccountMoveID = nil
	}
	if p.AccountMoveID != nil {
		rec.AccountMoveID = p.AccountMoveID
	}
	if p.StockMoveIDs != nil {
		rec.StockMoveIDs = append([]int64(nil), (*p.StockMoveIDs)...)
		rec.StockMoveRefs = shared.ToKeys(rec.StockMoveIDs)
	}
	if p.ClearReversal {
		rec.ReversalMoveIDs = nil
		rec.ReversalAccountID = nil
	}
	if p.ReversalMoveIDs != nil {
		rec.ReversalMoveIDs = append([]int64(nil), (*p.ReversalMoveIDs)...)
	}
	if p.ReversalAccountID != nil {
		rec.ReversalAccountID = p.ReversalAccountID
	}
}

// Store is the durable request table of one namespace.
type Store interface {
	Get(ctx context.Context, key string) (Record, error)
	Put(ctx context.Context, rec Record) error
	Scan(ctx context.Context) ([]Record, error)
	Update(ctx context.Context, key string, p Patch) (Record, error)
}

func storeErr(op, key string, err error) error {
	if key == "" {
		return fmt.Errorf("%w: %s: %v", shared.ErrStore, op, err)
	}
	return fmt.Errorf("%w: %s %s: %v", shared.ErrStore, op, key, err)
}

func notFound(key string) error {
	return fmt.Errorf("store: %s: %w", key, shared.ErrNotFound)
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
