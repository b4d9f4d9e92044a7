package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/planetsync/internal/client/client"
	"github.com/dmitrijs2005/planetsync/internal/client/events"
	"github.com/dmitrijs2005/planetsync/internal/client/models"
	"github.com/dmitrijs2005/planetsync/internal/client/planettest"
	"github.com/dmitrijs2005/planetsync/internal/client/repositories"
	"github.com/stretchr/testify/require"
)

type env struct {
	srv    *planettest.Server
	client *client.HTTPClient
	repos  *repositories.Repositories
	dir    string
	bus    *events.Bus
}

func newEnv(t *testing.T) *env {
	t.Helper()
	srv := planettest.New(t)
	c, err := client.NewHTTPClient(client.Options{
		BaseURL:       srv.BaseURL(),
		PublicBaseURL: srv.PublicURL(),
	})
	require.NoError(t, err)

	repos, err := repositories.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })

	return &env{srv: srv, client: c, repos: repos, dir: t.TempDir(), bus: events.NewBus()}
}

func (e *env) options(sub string) Options {
	return Options{
		Doer:          e.client,
		Manifest:      e.repos.Transfers,
		Dir:           filepath.Join(e.dir, sub),
		MaxConcurrent: 2,
		Timeout:       10 * time.Second,
		Bus:           e.bus,
	}
}

func (e *env) downloads(t *testing.T) *DownloadSession {
	t.Helper()
	d, err := NewDownloadSession(e.options("staging"))
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func (e *env) uploads(t *testing.T) *UploadSession {
	t.Helper()
	u, err := NewUploadSession(e.options("payloads"))
	require.NoError(t, err)
	t.Cleanup(u.Close)
	return u
}

func (e *env) records(t *testing.T, kind models.TransferKind) []*models.TransferRecord {
	t.Helper()
	recs, err := e.repos.Transfers.List(context.Background(), kind)
	require.NoError(t, err)
	return recs
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not invoked")
		return Result{}
	}
}

func waitEntered(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("request did not reach the server")
	}
}
