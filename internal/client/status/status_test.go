package status

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_ReadsEverySource(t *testing.T) {
	var up, down, other atomic.Int32
	a := New(Options{
		Uploads:   []Activity{ActivityFunc(func() int { return int(up.Load()) })},
		Downloads: []Activity{ActivityFunc(func() int { return int(down.Load()) }), ActivityFunc(func() int { return int(other.Load()) })},
	})

	assert.Equal(t, Snapshot{}, a.Snapshot())

	other.Store(2)
	assert.Equal(t, Snapshot{Downloading: true}, a.Snapshot())

	up.Store(1)
	other.Store(0)
	assert.Equal(t, Snapshot{Uploading: true}, a.Snapshot())
}

func TestRun_ReportsOnlyChanges(t *testing.T) {
	var up, down atomic.Int32
	clk := clock.NewMock()
	a := New(Options{
		Uploads:   []Activity{ActivityFunc(func() int { return int(up.Load()) })},
		Downloads: []Activity{ActivityFunc(func() int { return int(down.Load()) })},
		Interval:  time.Second,
		Clock:     clk,
	})

	ctx, cancel := context.WithCancel(context.Background())
	seen := make(chan Snapshot, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run(ctx, func(s Snapshot) { seen <- s })
	}()

	expect := func(want Snapshot) {
		t.Helper()
		select {
		case got := <-seen:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("no snapshot, want %+v", want)
		}
	}
	expect(Snapshot{})

	up.Store(1)
	clk.Add(time.Second)
	expect(Snapshot{Uploading: true})

	clk.Add(time.Second)
	select {
	case s := <-seen:
		t.Fatalf("unexpected snapshot %+v", s)
	case <-time.After(50 * time.Millisecond):
	}

	up.Store(0)
	down.Store(1)
	clk.Add(time.Second)
	expect(Snapshot{Downloading: true})

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.Fail(t, "Run did not stop")
	}
}
