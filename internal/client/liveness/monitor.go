// Package liveness answers "is the server reachable right now" with a short
// lived cache in front of the health probe.
package liveness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/dmitrijs2005/planetsync/internal/client/client"
	"github.com/dmitrijs2005/planetsync/internal/logging"
)

const (
	DefaultTTL          = 5 * time.Second
	DefaultProbeTimeout = 3 * time.Second
)

type Prober interface {
	Ping(ctx context.Context) error
}

type Options struct {
	TTL          time.Duration
	ProbeTimeout time.Duration
	Clock        clock.Clock
	Logger       logging.Logger
}

type Monitor struct {
	prober  Prober
	ttl     time.Duration
	timeout time.Duration
	clock   clock.Clock
	log     logging.Logger

	// mu is held across the probe so concurrent callers share one result.
	mu      sync.Mutex
	online  bool
	checked time.Time
	valid   bool
}

func New(p Prober, o Options) *Monitor {
	m := &Monitor{
		prober:  p,
		ttl:     o.TTL,
		timeout: o.ProbeTimeout,
		clock:   o.Clock,
		log:     o.Logger,
	}
	if m.ttl <= 0 {
		m.ttl = DefaultTTL
	}
	if m.timeout <= 0 {
		m.timeout = DefaultProbeTimeout
	}
	if m.clock == nil {
		m.clock = clock.New()
	}
	if m.log == nil {
		m.log = logging.Discard()
	}
	return m
}

// IsOnline returns the cached answer while it is younger than the TTL and
// probes the server otherwise. Any probe error counts as offline.
func (m *Monitor) IsOnline(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if m.valid && now.Sub(m.checked) < m.ttl {
		return m.online
	}

	// The answer is shared, so it must not depend on this caller's ctx.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	err := m.prober.Ping(pctx)
	cancel()

	online := err == nil
	if online != m.online || !m.valid {
		m.log.Info(ctx, "server liveness changed", "online", online)
	}
	if err != nil {
		m.log.Debug(ctx, "liveness probe failed", "err", err)
	}
	m.online = online
	m.checked = m.clock.Now()
	m.valid = true
	return online
}

// Require turns an offline answer into client.ErrServerUnreachable.
func (m *Monitor) Require(ctx context.Context) error {
	if !m.IsOnline(ctx) {
		return fmt.Errorf("%w: liveness probe failed", client.ErrServerUnreachable)
	}
	return nil
}

// Invalidate drops the cached answer; the next call probes again.
func (m *Monitor) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valid = false
}

// Last returns the cached answer without probing. ok is false before the
// first probe.
func (m *Monitor) Last() (online bool, at time.Time, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online, m.checked, m.valid
}
