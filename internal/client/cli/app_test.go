package cli

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/planetsync/internal/client/status"
	"github.com/dmitrijs2005/planetsync/internal/logging"
)

type fakeChecker struct {
	online atomic.Bool
	probes atomic.Int32
}

func (f *fakeChecker) IsOnline(context.Context) bool {
	f.probes.Add(1)
	return f.online.Load()
}

func (f *fakeChecker) Invalidate() {}

func (f *fakeChecker) Last() (bool, time.Time, bool) { return f.online.Load(), time.Time{}, true }

func (a *App) mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Mode
}

func TestGetStatus(t *testing.T) {
	app := &App{log: logging.Discard()}
	assert.Equal(t, "", app.getStatus())

	app.setMode(ModeOnline)
	assert.Equal(t, "(online)", app.getStatus())

	app.setActivity(status.Snapshot{Uploading: true, Downloading: true})
	assert.Equal(t, "(online uploading downloading)", app.getStatus())

	app.setMode(ModeOffline)
	app.setActivity(status.Snapshot{Downloading: true})
	assert.Equal(t, "(offline downloading)", app.getStatus())
}

func TestSetMode_ChangesOnce(t *testing.T) {
	app := &App{log: logging.Discard()}

	app.setMode(ModeOnline)
	require.Equal(t, ModeOnline, app.Mode)
	app.setMode(ModeOnline)
	require.Equal(t, ModeOnline, app.Mode)
	app.setMode(ModeOffline)
	require.Equal(t, ModeOffline, app.Mode)
}

func TestStartOnlineStatusWatcher_FollowsLiveness(t *testing.T) {
	checker := &fakeChecker{}
	checker.online.Store(true)
	mock := clock.NewMock()
	app := &App{log: logging.Discard(), liveness: checker, clock: mock}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		app.StartOnlineStatusWatcher(ctx, time.Second)
	}()

	require.Eventually(t, func() bool { return app.mode() == ModeOnline }, 2*time.Second, 5*time.Millisecond)

	checker.online.Store(false)
	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return app.mode() == ModeOffline
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, checker.probes.Load(), int32(2))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
