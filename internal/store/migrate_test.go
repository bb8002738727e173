package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fieldsync/internal/shared"
)

type fakeTx struct {
	pgx.Tx
	execs      []string
	failOn     int
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	if t.failOn > 0 && len(t.execs) == t.failOn {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeStarter struct {
	tx *fakeTx
}

func (s fakeStarter) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	return s.tx, nil
}

func TestMigrateCreatesBothTables(t *testing.T) {
	tx := &fakeTx{}
	require.NoError(t, Migrate(context.Background(), fakeStarter{tx: tx}))
	require.Equal(t, []string{Schema, ClaimsSchema}, tx.execs)
	require.True(t, tx.committed)
	require.False(t, tx.rolledBack)
}

func TestMigrateRollsBackOnFailure(t *testing.T) {
	tx := &fakeTx{failOn: 2}
	err := Migrate(context.Background(), fakeStarter{tx: tx})
	require.ErrorIs(t, err, shared.ErrStore)
	require.False(t, tx.committed)
	require.True(t, tx.rolledBack)
}
