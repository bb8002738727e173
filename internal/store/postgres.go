package store

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fieldsync/internal/field"
	"github.com/odyssey-erp/fieldsync/internal/platform/db"
)

// Schema creates the request table.
const Schema = `
CREATE TABLE IF NOT EXISTS sync_records (
    namespace             TEXT        NOT NULL,
    key                   TEXT        NOT NULL,
    related_to_id         TEXT        NOT NULL DEFAULT '',
    related_to_type       TEXT        NOT NULL DEFAULT '',
    type                  TEXT        NOT NULL DEFAULT '',
    date_created          TEXT        NOT NULL DEFAULT '',
    date_updated          TEXT        NOT NULL DEFAULT '',
    operator_id           TEXT        NOT NULL DEFAULT '',
    cost_center_ref       TEXT,
    journal_move_ref      TEXT,
    stock_move_refs       TEXT[]      NOT NULL DEFAULT '{}',
    state                 TEXT        NOT NULL,
    reversed              BOOLEAN     NOT NULL DEFAULT FALSE,
    cost_center_ledger_id BIGINT,
    account_move_id       BIGINT,
    stock_move_ids        BIGINT[]    NOT NULL DEFAULT '{}',
    reversal_move_ids     BIGINT[]    NOT NULL DEFAULT '{}',
    reversal_account_id   BIGINT,
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (namespace, key)
)`

const recordColumns = `key, related_to_id, related_to_type, type, date_created, date_updated, operator_id,
    cost_center_ref, journal_move_ref, stock_move_refs, state, reversed,
    cost_center_ledger_id, account_move_id, stock_move_ids, reversal_move_ids, reversal_account_id, updated_at`

// querier is the part of *pgxpool.Pool the record store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores records in the sync_records table, one namespace per pipeline.
type Postgres struct {
	pool      querier
	namespace string
}

// NewPostgres constructs a Postgres store for namespace.
func NewPostgres(pool *pgxpool.Pool, namespace string) *Postgres {
	return &Postgres{pool: pool, namespace: namespace}
}

// Migrate creates the record and claim tables in one transaction.
func Migrate(ctx context.Context, pool db.TxStarter) error {
	return db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		for _, ddl := range []string{Schema, ClaimsSchema} {
			if _, err := tx.Exec(ctx, ddl); err != nil {
				return storeErr("migrate", "", err)
			}
		}
		return nil
	})
}

// EnsureSchema creates the table when missing.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return storeErr("ensure schema", "", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, key string) (Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM sync_records WHERE namespace=$1 AND key=$2`, s.namespace, key)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, notFound(key)
	}
	if err != nil {
		return Record{}, storeErr("get", key, err)
	}
	return rec, nil
}

func (s *Postgres) Put(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO sync_records (namespace, `+recordColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NOW())
ON CONFLICT (namespace, key) DO UPDATE SET
    related_to_id = EXCLUDED.related_to_id,
    related_to_type = EXCLUDED.related_to_type,
    type = EXCLUDED.type,
    date_created = EXCLUDED.date_created,
    date_updated = EXCLUDED.date_updated,
    operator_id = EXCLUDED.operator_id,
    cost_center_ref = EXCLUDED.cost_center_ref,
    journal_move_ref = EXCLUDED.journal_move_ref,
    stock_move_refs = EXCLUDED.stock_move_refs,
    state = EXCLUDED.state,
    reversed = EXCLUDED.reversed,
    cost_center_ledger_id = EXCLUDED.cost_center_ledger_id,
    account_move_id = EXCLUDED.account_move_id,
    stock_move_ids = EXCLUDED.stock_move_ids,
    reversal_move_ids = EXCLUDED.reversal_move_ids,
    reversal_account_id = EXCLUDED.reversal_account_id,
    updated_at = NOW()`,
		s.namespace, rec.Key, rec.RelatedToID, string(rec.RelatedToType), rec.Type, rec.DateCreated, rec.DateUpdated,
		rec.OperatorID, rec.CostCenterRef, rec.JournalMoveRef, nonNil(rec.StockMoveRefs), string(rec.State), rec.Reversed,
		rec.CostCenterLedgerID, rec.AccountMoveID, nonNil(rec.StockMoveIDs), nonNil(rec.ReversalMoveIDs), rec.ReversalAccountID)
	if err != nil {
		return storeErr("put", rec.Key, err)
	}
	return nil
}

func (s *Postgres) Scan(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+recordColumns+` FROM sync_records WHERE namespace=$1 ORDER BY key`, s.namespace)
	if err != nil {
		return nil, storeErr("scan", "", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storeErr("scan", "", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("scan", "", err)
	}
	return out, nil
}

// Update applies p in a single statement; untouched columns keep their value.
func (s *Postgres) Update(ctx context.Context, key string, p Patch) (Record, error) {
	query, args := updateStatement(s.namespace, key, p)
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, notFound(key)
	}
	if err != nil {
		return Record{}, storeErr("update", key, err)
	}
	return rec, nil
}

// updateStatement renders the UPDATE for p. Namespace and key are always $1
// and $2; patched columns follow in a fixed order.
func updateStatement(namespace, key string, p Patch) (string, []any) {
	sets := []string{"updated_at = NOW()"}
	args := []any{namespace, key}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if p.Source != nil {
		add("related_to_id", p.Source.RelatedToID)
		add("related_to_type", string(p.Source.RelatedToType))
		add("type", p.Source.Type)
		add("date_created", p.Source.DateCreated)
		add("date_updated", p.Source.DateUpdated)
		add("operator_id", p.Source.OperatorID)
		add("cost_center_ref", p.Source.CostCenterRef)
		add("journal_move_ref", p.Source.JournalMoveRef)
	}
	if p.State != nil {
		add("state", string(*p.State))
	}
	if p.Reversed != nil {
		add("reversed", *p.Reversed)
	}
	if p.CostCenterLedgerID != nil {
		add("cost_center_ledger_id", *p.CostCenterLedgerID)
	}
	if p.AccountMoveID != nil {
		add("account_move_id", *p.AccountMoveID)
	} else if p.ClearAccountMove {
		sets = append(sets, "account_move_id = NULL")
	}
	if p.StockMoveIDs != nil {
		var applied Record
		p.Apply(&applied)
		add("stock_move_ids", nonNil(applied.StockMoveIDs))
		add("stock_move_refs", nonNil(applied.StockMoveRefs))
	}
	if p.ClearReversal {
		sets = append(sets, "reversal_move_ids = '{}'", "reversal_account_id = NULL")
	}
	if p.ReversalMoveIDs != nil {
		add("reversal_move_ids", nonNil(*p.ReversalMoveIDs))
	}
	if p.ReversalAccountID != nil {
		add("reversal_account_id", *p.ReversalAccountID)
	}
	return `UPDATE sync_records SET ` + strings.Join(sets, ", ") + `
WHERE namespace=$1 AND key=$2 RETURNING ` + recordColumns, args
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec           Record
		relatedToType string
		state         string
	)
	err := row.Scan(&rec.Key, &rec.RelatedToID, &relatedToType, &rec.Type, &rec.DateCreated, &rec.DateUpdated,
		&rec.OperatorID, &rec.CostCenterRef, &rec.JournalMoveRef, &rec.StockMoveRefs, &state, &rec.Reversed,
		&rec.CostCenterLedgerID, &rec.AccountMoveID, &rec.StockMoveIDs, &rec.ReversalMoveIDs, &rec.ReversalAccountID, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.RelatedToType = field.RelatedType(relatedToType)
	rec.State = State(state)
	if len(rec.StockMoveRefs) == 0 {
		rec.StockMoveRefs = nil
	}
	if len(rec.StockMoveIDs) == 0 {
		rec.StockMoveIDs = nil
	}
	if len(rec.ReversalMoveIDs) == 0 {
		rec.ReversalMoveIDs = nil
	}
	return rec, nil
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
