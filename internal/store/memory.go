package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store for dry runs and tests.
type Memory struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{records: map[string]Record{}, now: time.Now}
}

func (m *Memory) Get(ctx context.Context, key string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return Record{}, notFound(key)
	}
	return clone(rec), nil
}

func (m *Memory) Put(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.UpdatedAt = m.now().UTC()
	m.records[rec.Key] = clone(rec)
	return nil
}

// Scan returns every record ordered by key.
func (m *Memory) Scan(ctx context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, clone(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Update(ctx context.Context, key string, p Patch) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return Record{}, notFound(key)
	}
	p.Apply(&rec)
	rec.UpdatedAt = m.now().UTC()
	m.records[key] = clone(rec)
	return clone(rec), nil
}

func clone(rec Record) Record {
	rec.StockMoveRefs = append([]string(nil), rec.StockMoveRefs...)
	rec.StockMoveIDs = append([]int64(nil), rec.StockMoveIDs...)
	rec.ReversalMoveIDs = append([]int64(nil), rec.ReversalMoveIDs...)
	if rec.CostCenterRef != nil {
		rec.CostCenterRef = Ptr(*rec.CostCenterRef)
	}
	if rec.JournalMoveRef != nil {
		rec.JournalMoveRef = Ptr(*rec.JournalMoveRef)
	}
	if rec.CostCenterLedgerID != nil {
		rec.CostCenterLedgerID = Ptr(*rec.CostCenterLedgerID)
	}
	if rec.AccountMoveID != nil {
		rec.AccountMoveID = Ptr(*rec.AccountMoveID)
	}
	if rec.ReversalAccountID != nil {
		rec.ReversalAccountID = Ptr(*rec.ReversalAccountID)
	}
	return rec
}
