// Package status reports whether any upload or download is running. It only
// reads counters owned by other components.
package status

import (
	"context"
	"time"

	"github.com/facebookgo/clock"
)

const DefaultInterval = time.Second

// Activity is anything that can count its in-flight work, such as a
// transfer session.
type Activity interface {
	Active() int
}

type ActivityFunc func() int

func (f ActivityFunc) Active() int { return f() }

type Snapshot struct {
	Uploading   bool
	Downloading bool
}

type Options struct {
	Uploads   []Activity
	Downloads []Activity
	Interval  time.Duration
	Clock     clock.Clock
}

type Aggregator struct {
	uploads   []Activity
	downloads []Activity
	interval  time.Duration
	clock     clock.Clock
}

func New(o Options) *Aggregator {
	a := &Aggregator{
		uploads:   o.Uploads,
		downloads: o.Downloads,
		interval:  o.Interval,
		clock:     o.Clock,
	}
	if a.interval <= 0 {
		a.interval = DefaultInterval
	}
	if a.clock == nil {
		a.clock = clock.New()
	}
	return a
}

func (a *Aggregator) Snapshot() Snapshot {
	return Snapshot{Uploading: busy(a.uploads), Downloading: busy(a.downloads)}
}

func busy(list []Activity) bool {
	for _, act := range list {
		if act.Active() > 0 {
			return true
		}
	}
	return false
}

// Run calls fn with the current snapshot and then again every time it
// changes, checking once per interval until ctx is done.
func (a *Aggregator) Run(ctx context.Context, fn func(Snapshot)) {
	ticker := a.clock.Ticker(a.interval)
	defer ticker.Stop()

	last := a.Snapshot()
	fn(last)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cur := a.Snapshot(); cur != last {
				last = cur
				fn(cur)
			}
		}
	}
}
