package dbx

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "dbx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY, v TEXT);`)
	require.NoError(t, err)
	return db
}

func TestOpenSQLite_UsesWAL(t *testing.T) {
	db := setupDB(t)

	var mode string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	require.Equal(t, "wal", mode)
}

func TestOpenSQLite_SatisfiesDBTX(t *testing.T) {
	db := setupDB(t)

	var h DBTX = db
	_, err := h.ExecContext(context.Background(), `INSERT INTO t (v) VALUES (?)`, "x")
	require.NoError(t, err)

	var v string
	require.NoError(t, h.QueryRowContext(context.Background(), `SELECT v FROM t`).Scan(&v))
	require.Equal(t, "x", v)
}

func TestOpenSQLite_BadPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "db.sqlite"))
	require.Error(t, err)
}
