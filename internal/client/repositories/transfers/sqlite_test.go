package transfers

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/planetsync/internal/client/models"
	"github.com/dmitrijs2005/planetsync/internal/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := dbx.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "transfers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE transfers (
  kind         TEXT    NOT NULL,
  key          TEXT    NOT NULL,
  request      BLOB    NOT NULL,
  destination  TEXT    NOT NULL DEFAULT '',
  payload_path TEXT    NOT NULL DEFAULT '',
  staging_path TEXT    NOT NULL DEFAULT '',
  created_at   INTEGER NOT NULL,
  PRIMARY KEY (kind, key)
);`)
	require.NoError(t, err)
	return db
}

func downloadRecord(url string, created time.Time) *models.TransferRecord {
	return &models.TransferRecord{
		Key:  models.DownloadKey(url),
		Kind: models.TransferDownload,
		Request: models.RequestSnapshot{
			Method: "GET",
			URL:    url,
			Header: map[string][]string{"Accept": {"application/json"}},
		},
		Destination: "/cache/a.png",
		StagingPath: "/staging/x",
		CreatedAt:   created,
	}
}

func TestPutGet_RoundTripsRequestSnapshot(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	created := time.UnixMilli(1_700_000_000_000)

	in := downloadRecord("http://h/p/a/a.png", created)
	require.NoError(t, r.Put(ctx, in))

	got, err := r.Get(ctx, models.TransferDownload, in.Key)
	require.NoError(t, err)
	assert.Equal(t, in.Request, got.Request)
	assert.Equal(t, in.Destination, got.Destination)
	assert.Equal(t, in.StagingPath, got.StagingPath)
	assert.True(t, created.Equal(got.CreatedAt))
}

func TestPut_Upserts(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	rec := downloadRecord("http://h/x", time.Now())
	require.NoError(t, r.Put(ctx, rec))
	rec.Destination = "/cache/other"
	require.NoError(t, r.Put(ctx, rec))

	all, err := r.List(ctx, models.TransferDownload)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "/cache/other", all[0].Destination)
}

func TestKeysAreScopedByKind(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	up := &models.TransferRecord{
		Key:         models.UploadKey("A1"),
		Kind:        models.TransferUpload,
		Request:     models.RequestSnapshot{Method: "POST", URL: "http://h/planets/my/p/articles/A1"},
		PayloadPath: "/payloads/1",
	}
	down := downloadRecord("A1", time.Now())
	require.NoError(t, r.Put(ctx, up))
	require.NoError(t, r.Put(ctx, down))

	ups, err := r.List(ctx, models.TransferUpload)
	require.NoError(t, err)
	require.Len(t, ups, 1)
	assert.Equal(t, "/payloads/1", ups[0].PayloadPath)

	require.NoError(t, r.Delete(ctx, models.TransferUpload, "A1"))
	_, err = r.Get(ctx, models.TransferUpload, "A1")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = r.Get(ctx, models.TransferDownload, "A1")
	require.NoError(t, err)
}

func TestList_OldestFirst(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	base := time.UnixMilli(1_000_000)

	require.NoError(t, r.Put(ctx, downloadRecord("late", base.Add(time.Minute))))
	require.NoError(t, r.Put(ctx, downloadRecord("early", base)))

	all, err := r.List(ctx, models.TransferDownload)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.ResourceKey("early"), all[0].Key)
	assert.Equal(t, models.ResourceKey("late"), all[1].Key)
}

func TestDelete_MissingIsNoop(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	require.NoError(t, r.Delete(context.Background(), models.TransferDownload, "nothing"))
}
