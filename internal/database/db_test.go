package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTempDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()

	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateLedgerSchema(t *testing.T) {
	db := newTempDB(t, "ledger", ProfileLedger)
	require.NoError(t, db.Migrate())

	// Re-running must be a no-op.
	require.NoError(t, db.Migrate())

	for _, table := range []string{"trade_logs", "trading_history"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigratePortfolioSchema(t *testing.T) {
	db := newTempDB(t, "portfolio", ProfileStandard)
	require.NoError(t, db.Migrate())

	for _, table := range []string{"stock_holdings", "scheduled_orders"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestMigrateUnknownNameIsNoop(t *testing.T) {
	db := newTempDB(t, "scratch", ProfileCache)
	require.NoError(t, db.Migrate())
}

func TestHealthCheck(t *testing.T) {
	db := newTempDB(t, "ledger", ProfileLedger)
	require.NoError(t, db.Migrate())
	require.NoError(t, db.HealthCheck(context.Background()))
	require.NoError(t, db.QuickCheck(context.Background()))
}

func TestWithTransactionCommit(t *testing.T) {
	db := newTempDB(t, "portfolio", ProfileStandard)
	require.NoError(t, db.Migrate())

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, execErr := tx.Exec(
			`INSERT INTO scheduled_orders (ticker, market, signal_type, execute_after, status, created_at)
			 VALUES ('005930', 'KR', 'BUY', 0, 'pending', 0)`,
		)
		return execErr
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM scheduled_orders").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWithTransactionRollbackOnError(t *testing.T) {
	db := newTempDB(t, "portfolio", ProfileStandard)
	require.NoError(t, db.Migrate())

	boom := errors.New("boom")
	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, execErr := tx.Exec(
			`INSERT INTO scheduled_orders (ticker, market, signal_type, execute_after, status, created_at)
			 VALUES ('005930', 'KR', 'BUY', 0, 'pending', 0)`,
		)
		require.NoError(t, execErr)
		return boom
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM scheduled_orders").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTransactionRecoversPanic(t *testing.T) {
	db := newTempDB(t, "portfolio", ProfileStandard)
	require.NoError(t, db.Migrate())

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		panic("unexpected")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in transaction")
}
