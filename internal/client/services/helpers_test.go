package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/planetsync/internal/client/cache"
	"github.com/dmitrijs2005/planetsync/internal/client/client"
	"github.com/dmitrijs2005/planetsync/internal/client/editlock"
	"github.com/dmitrijs2005/planetsync/internal/client/events"
	"github.com/dmitrijs2005/planetsync/internal/client/liveness"
	"github.com/dmitrijs2005/planetsync/internal/client/planettest"
	"github.com/dmitrijs2005/planetsync/internal/client/repositories"
	"github.com/dmitrijs2005/planetsync/internal/client/transfer"
	"github.com/stretchr/testify/require"
)

type env struct {
	srv       *planettest.Server
	client    *client.HTTPClient
	tree      *cache.Tree
	downloads *transfer.DownloadSession
	uploads   *transfer.UploadSession
	monitor   *liveness.Monitor
	locks     *editlock.Set
	bus       *events.Bus
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	srv := planettest.New(t)
	c, err := client.NewHTTPClient(client.Options{
		BaseURL:       srv.BaseURL(),
		PublicBaseURL: srv.PublicURL(),
		FetchTimeout:  5 * time.Second,
	})
	require.NoError(t, err)

	dataDir := t.TempDir()
	repos, err := repositories.InitDatabase(ctx, filepath.Join(dataDir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })

	tree, err := cache.New(dataDir, "node")
	require.NoError(t, err)

	bus := events.NewBus()
	opts := transfer.Options{Doer: c, Manifest: repos.Transfers, Timeout: 10 * time.Second, Bus: bus}

	opts.Dir = filepath.Join(dataDir, "transfers", "staging")
	downloads, err := transfer.NewDownloadSession(opts)
	require.NoError(t, err)
	t.Cleanup(downloads.Close)

	opts.Dir = filepath.Join(dataDir, "transfers", "payloads")
	uploads, err := transfer.NewUploadSession(opts)
	require.NoError(t, err)
	t.Cleanup(uploads.Close)

	return &env{
		srv:       srv,
		client:    c,
		tree:      tree,
		downloads: downloads,
		uploads:   uploads,
		monitor:   liveness.New(c, liveness.Options{}),
		locks:     editlock.New(repos.Metadata, bus, nil),
		bus:       bus,
	}
}

func (e *env) articleDeps() ArticleDeps {
	return ArticleDeps{
		Client:    e.client,
		Cache:     e.tree,
		Downloads: e.downloads,
		Uploads:   e.uploads,
		Liveness:  e.monitor,
		Locks:     e.locks,
		Bus:       e.bus,
	}
}

func (e *env) articles() ArticleService { return NewArticleService(e.articleDeps()) }

func (e *env) read(t *testing.T, planetID, articleID, name string) string {
	t.Helper()
	path, err := e.tree.ArticlePath(planetID, articleID, name)
	require.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

// snapshot maps every file name in an article directory to its content.
func (e *env) snapshot(t *testing.T, planetID, articleID string) map[string]string {
	t.Helper()
	dir := e.tree.ArticleDir(planetID, articleID)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	out := map[string]string{}
	for _, en := range entries {
		b, err := os.ReadFile(filepath.Join(dir, en.Name()))
		require.NoError(t, err)
		out[en.Name()] = string(b)
	}
	return out
}

type offlineGate struct{}

func (offlineGate) Require(context.Context) error {
	return client.ErrServerUnreachable
}

// brokenMetadata fails every metadata write.
type brokenMetadata struct {
	*cache.Tree
}

func (brokenMetadata) WriteArticleMetadata(string, string, []byte) error {
	return errors.New("disk full")
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for value")
		var zero T
		return zero
	}
}

func eventsRef(planetID, articleID string) events.ArticleRef {
	return events.ArticleRef{PlanetID: planetID, ArticleID: articleID}
}
