package liveness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/planetsync/internal/client/client"
	"github.com/dmitrijs2005/planetsync/internal/client/planettest"
)

type fakeProber struct {
	calls atomic.Int32
	err   error
	gate  chan struct{}
}

func (f *fakeProber) Ping(ctx context.Context) error {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.err
}

func TestIsOnline_CachesWithinTTL(t *testing.T) {
	clk := clock.NewMock()
	p := &fakeProber{}
	m := New(p, Options{TTL: 5 * time.Second, Clock: clk})
	ctx := context.Background()

	assert.True(t, m.IsOnline(ctx))
	assert.EqualValues(t, 1, p.calls.Load())

	clk.Add(2 * time.Second)
	assert.True(t, m.IsOnline(ctx))
	assert.EqualValues(t, 1, p.calls.Load())

	clk.Add(4 * time.Second)
	assert.True(t, m.IsOnline(ctx))
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestIsOnline_ErrorMeansOffline(t *testing.T) {
	p := &fakeProber{err: errors.New("dial tcp: connection refused")}
	m := New(p, Options{Clock: clock.NewMock()})

	assert.False(t, m.IsOnline(context.Background()))
	err := m.Require(context.Background())
	require.ErrorIs(t, err, client.ErrServerUnreachable)
	assert.EqualValues(t, 1, p.calls.Load())

	online, _, ok := m.Last()
	assert.True(t, ok)
	assert.False(t, online)
}

func TestIsOnline_ConcurrentCallersShareOneProbe(t *testing.T) {
	p := &fakeProber{gate: make(chan struct{})}
	m := New(p, Options{Clock: clock.NewMock()})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, m.IsOnline(context.Background()))
		}()
	}
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(p.gate)
	wg.Wait()

	assert.EqualValues(t, 1, p.calls.Load())
}

func TestInvalidate_ForcesNewProbe(t *testing.T) {
	p := &fakeProber{}
	m := New(p, Options{Clock: clock.NewMock()})

	m.IsOnline(context.Background())
	m.Invalidate()
	m.IsOnline(context.Background())
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestIsOnline_AgainstServer(t *testing.T) {
	srv := planettest.New(t)
	srv.Username, srv.Password = "alice", "secret"

	good, err := client.NewHTTPClient(client.Options{BaseURL: srv.BaseURL(), AuthEnabled: true, Username: "alice", Password: "secret"})
	require.NoError(t, err)
	bad, err := client.NewHTTPClient(client.Options{BaseURL: srv.BaseURL()})
	require.NoError(t, err)

	assert.True(t, New(good, Options{}).IsOnline(context.Background()))
	assert.False(t, New(bad, Options{}).IsOnline(context.Background()))

	srv.Close()
	assert.False(t, New(good, Options{ProbeTimeout: time.Second}).IsOnline(context.Background()))
}

func TestIsOnline_CancelledCallerDoesNotPoisonCache(t *testing.T) {
	srv := planettest.New(t)
	c, err := client.NewHTTPClient(client.Options{BaseURL: srv.BaseURL()})
	require.NoError(t, err)
	m := New(c, Options{Clock: clock.NewMock()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, m.IsOnline(ctx))

	assert.True(t, m.IsOnline(context.Background()))
	require.NoError(t, m.Require(context.Background()))
	assert.Equal(t, 1, srv.Count("GET", "/v0/ping"))
}
