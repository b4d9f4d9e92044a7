// Package editlock tracks which articles have a local edit in flight. A lock
// is held in memory and mirrored to the metadata store, so locks left behind
// by a crashed process can be reported and cleared on the next start.
package editlock

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/planetsync/internal/client/client"
	"github.com/dmitrijs2005/planetsync/internal/client/events"
	"github.com/dmitrijs2005/planetsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/planetsync/internal/logging"
)

const keyPrefix = "editlock:"

// ErrLocked: another edit of the same article is in progress.
var ErrLocked = fmt.Errorf("%w: article is being edited", client.ErrConflictInProgress)

type record struct {
	PlanetID  string    `json:"planetID"`
	ArticleID string    `json:"articleID"`
	Since     time.Time `json:"since"`
}

type Set struct {
	store metadata.Repository
	bus   *events.Bus
	log   logging.Logger

	mu   sync.Mutex
	held map[string]struct{}
}

// New returns an empty set persisting to store. A nil bus gets a private one
// nobody listens on.
func New(store metadata.Repository, bus *events.Bus, log logging.Logger) *Set {
	if log == nil {
		log = logging.Discard()
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Set{
		store: store,
		bus:   bus,
		log:   log,
		held:  make(map[string]struct{}),
	}
}

// Acquire locks ref.ArticleID and emits EditingStarted. The returned release
// func unlocks it and emits EditingEnded; it is safe to call more than once.
// When the article is already locked Acquire returns ErrLocked and leaves
// the existing lock alone.
func (s *Set) Acquire(ctx context.Context, ref events.ArticleRef) (func(), error) {
	s.mu.Lock()
	if _, ok := s.held[ref.ArticleID]; ok {
		s.mu.Unlock()
		return nil, ErrLocked
	}
	s.held[ref.ArticleID] = struct{}{}
	s.mu.Unlock()

	b, err := json.Marshal(record{PlanetID: ref.PlanetID, ArticleID: ref.ArticleID, Since: time.Now().UTC()})
	if err == nil {
		err = s.store.Set(ctx, keyPrefix+ref.ArticleID, b)
	}
	if err != nil {
		s.mu.Lock()
		delete(s.held, ref.ArticleID)
		s.mu.Unlock()
		return nil, fmt.Errorf("persist edit lock %s: %w", ref.ArticleID, err)
	}

	s.bus.EditingStarted.Publish(ref)

	var once sync.Once
	release := func() {
		once.Do(func() { s.release(context.WithoutCancel(ctx), ref) })
	}
	return release, nil
}

func (s *Set) release(ctx context.Context, ref events.ArticleRef) {
	if err := s.store.Delete(ctx, keyPrefix+ref.ArticleID); err != nil {
		s.log.Error(ctx, "failed to clear edit lock", "article_id", ref.ArticleID, "err", err)
	}
	s.mu.Lock()
	delete(s.held, ref.ArticleID)
	s.mu.Unlock()
	s.bus.EditingEnded.Publish(ref)
}

func (s *Set) Held(articleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.held[articleID]
	return ok
}

// Locked returns the article IDs currently locked, sorted.
func (s *Set) Locked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.held))
	for id := range s.held {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Recover clears locks persisted by a previous run and emits EditingEnded
// for each of them. Locks held by this process are not touched.
func (s *Set) Recover(ctx context.Context) ([]events.ArticleRef, error) {
	entries, err := s.store.ListPrefix(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list edit locks: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []events.ArticleRef
	for _, k := range keys {
		id := strings.TrimPrefix(k, keyPrefix)
		if s.Held(id) {
			continue
		}
		var rec record
		if err := json.Unmarshal(entries[k], &rec); err != nil {
			s.log.Warn(ctx, "unreadable edit lock", "key", k, "err", err)
		}
		ref := events.ArticleRef{PlanetID: rec.PlanetID, ArticleID: id}
		if err := s.store.Delete(ctx, k); err != nil {
			return out, fmt.Errorf("clear edit lock %s: %w", id, err)
		}
		s.log.Info(ctx, "cleared stale edit lock", "planet_id", ref.PlanetID, "article_id", id)
		s.bus.EditingEnded.Publish(ref)
		out = append(out, ref)
	}
	return out, nil
}
