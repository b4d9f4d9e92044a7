package metadata

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/planetsync/internal/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := dbx.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE metadata (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestSetAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k1", []byte{0x01, 0x02}))
	v, err := r.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, v)

	require.NoError(t, r.Set(ctx, "k1", []byte("x")))
	v, err = r.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("x"), v)
}

func TestGet_Missing_ReturnsNilNil(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	v, err := r.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestSet_NilValueStoredAsEmpty(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "flag", nil))
	all, err := r.List(ctx)
	require.NoError(t, err)
	require.Contains(t, all, "flag")
}

func TestDeleteAndClear(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "a", []byte("1")))
	require.NoError(t, r.Set(ctx, "b", []byte("2")))

	require.NoError(t, r.Delete(ctx, "a"))
	require.NoError(t, r.Delete(ctx, "a"))

	all, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"b": []byte("2")}, all)

	require.NoError(t, r.Clear(ctx))
	all, err = r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestListPrefix_IsLiteral(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "editlock:A1", []byte("t1")))
	require.NoError(t, r.Set(ctx, "editlock:A2", []byte("t2")))
	require.NoError(t, r.Set(ctx, "editlockXA3", []byte("t3")))
	require.NoError(t, r.Set(ctx, "other", []byte("o")))
	require.NoError(t, r.Set(ctx, "a_b", []byte("u")))
	require.NoError(t, r.Set(ctx, "axb", []byte("v")))

	got, err := r.ListPrefix(ctx, "editlock:")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"editlock:A1": []byte("t1"), "editlock:A2": []byte("t2")}, got)

	got, err = r.ListPrefix(ctx, "a_")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a_b": []byte("u")}, got)
}
