// Package events is the client's in-process notification bus. Each kind of
// notification has its own typed Topic, so subscribers are known at compile
// time. Delivery is fire-and-forget: a subscriber whose buffer is full misses
// the event and is expected to re-read state on its next refresh.
package events

import (
	"sync"

	"github.com/dmitrijs2005/planetsync/internal/client/models"
)

// ArticleRef names one article.
type ArticleRef struct {
	PlanetID  string
	ArticleID string
}

// PlanetRef names one planet.
type PlanetRef struct {
	PlanetID string
}

// TransferProgress reports bytes moved for a transfer. Total is -1 when the
// server did not announce a length.
type TransferProgress struct {
	Kind    models.TransferKind
	Key     models.ResourceKey
	Written int64
	Total   int64
	Done    bool
}

// Bus carries every topic the client publishes.
type Bus struct {
	// ArticlesReload: the article list of a planet should reload.
	ArticlesReload Topic[PlanetRef]
	// ArticleReload: one article should reload.
	ArticleReload Topic[ArticleRef]
	// EditingStarted and EditingEnded bracket an edit upload.
	EditingStarted Topic[ArticleRef]
	EditingEnded   Topic[ArticleRef]
	// PlanetsReload: the planet list should reload.
	PlanetsReload Topic[struct{}]
	// Progress: per-transfer byte counts.
	Progress Topic[TransferProgress]
}

func NewBus() *Bus {
	return &Bus{}
}

// Topic fans out values of one type to any number of subscribers. The zero
// value is ready to use.
type Topic[T any] struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan T
}

// Subscribe returns a channel with the given buffer and a cancel function
// that unsubscribes and closes the channel. Cancel is idempotent.
func (t *Topic[T]) Subscribe(buffer int) (<-chan T, func()) {
	ch := make(chan T, buffer)

	t.mu.Lock()
	if t.subs == nil {
		t.subs = make(map[int]chan T)
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers v to every subscriber that has room. It never blocks.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, ch := range t.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// Subscribers reports the current subscriber count.
func (t *Topic[T]) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}
