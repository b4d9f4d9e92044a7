package editlock

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/planetsync/internal/client/client"
	"github.com/dmitrijs2005/planetsync/internal/client/events"
	"github.com/dmitrijs2005/planetsync/internal/client/repositories"
	"github.com/dmitrijs2005/planetsync/internal/client/repositories/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) metadata.Repository {
	t.Helper()
	repos, err := repositories.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })
	return repos.Metadata
}

func next[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("no event")
		var zero T
		return zero
	}
}

func TestAcquireRelease_EmitsEventsAndPersists(t *testing.T) {
	store := newStore(t)
	bus := events.NewBus()
	started, cancelStarted := bus.EditingStarted.Subscribe(1)
	defer cancelStarted()
	ended, cancelEnded := bus.EditingEnded.Subscribe(1)
	defer cancelEnded()

	s := New(store, bus, nil)
	ref := events.ArticleRef{PlanetID: "p1", ArticleID: "a1"}
	ctx := context.Background()

	release, err := s.Acquire(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, ref, next(t, started))
	assert.True(t, s.Held("a1"))

	v, err := store.Get(ctx, "editlock:a1")
	require.NoError(t, err)
	assert.NotNil(t, v)

	release()
	release()
	assert.Equal(t, ref, next(t, ended))
	assert.Empty(t, ended)
	assert.False(t, s.Held("a1"))

	v, err = store.Get(ctx, "editlock:a1")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestAcquire_SecondEditConflictsAndKeepsFirstLock(t *testing.T) {
	s := New(newStore(t), events.NewBus(), nil)
	ref := events.ArticleRef{PlanetID: "p1", ArticleID: "a1"}

	release, err := s.Acquire(context.Background(), ref)
	require.NoError(t, err)
	defer release()

	_, err = s.Acquire(context.Background(), ref)
	require.ErrorIs(t, err, ErrLocked)
	require.ErrorIs(t, err, client.ErrConflictInProgress)
	assert.True(t, s.Held("a1"))
	assert.Equal(t, []string{"a1"}, s.Locked())
}

type failingStore struct {
	metadata.Repository
}

func (failingStore) Set(context.Context, string, []byte) error { return errors.New("disk full") }

func TestAcquire_PersistFailureLeavesNothingHeld(t *testing.T) {
	bus := events.NewBus()
	started, cancel := bus.EditingStarted.Subscribe(1)
	defer cancel()

	s := New(failingStore{}, bus, nil)
	_, err := s.Acquire(context.Background(), events.ArticleRef{PlanetID: "p1", ArticleID: "a1"})
	require.Error(t, err)
	assert.False(t, s.Held("a1"))
	assert.Empty(t, started)
}

func TestRecover_ClearsLocksFromPreviousRun(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	crashed := New(store, events.NewBus(), nil)
	_, err := crashed.Acquire(ctx, events.ArticleRef{PlanetID: "p1", ArticleID: "a1"})
	require.NoError(t, err)

	bus := events.NewBus()
	ended, cancel := bus.EditingEnded.Subscribe(4)
	defer cancel()
	s := New(store, bus, nil)

	refs, err := s.Recover(ctx)
	require.NoError(t, err)
	require.Equal(t, []events.ArticleRef{{PlanetID: "p1", ArticleID: "a1"}}, refs)
	assert.Equal(t, refs[0], next(t, ended))

	left, err := store.ListPrefix(ctx, "editlock:")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestNew_WithoutBus(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	ref := events.ArticleRef{PlanetID: "p1", ArticleID: "a1"}

	crashed := New(store, nil, nil)
	_, err := crashed.Acquire(ctx, ref)
	require.NoError(t, err)

	s := New(store, nil, nil)
	refs, err := s.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []events.ArticleRef{ref}, refs)

	release, err := s.Acquire(ctx, ref)
	require.NoError(t, err)
	assert.True(t, s.Held("a1"))
	release()
	assert.False(t, s.Held("a1"))
}
