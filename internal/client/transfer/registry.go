package transfer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/planetsync/internal/client/client"
	"github.com/dmitrijs2005/planetsync/internal/client/models"
)

var (
	// ErrTaskExists: a handler is already registered for the key.
	ErrTaskExists = fmt.Errorf("%w: transfer task exists", client.ErrConflictInProgress)

	// ErrSuperseded is delivered to a download handler that was replaced by
	// a later submission for the same key.
	ErrSuperseded = errors.New("transfer handler superseded")

	// ErrSessionClosed is delivered when the session shut down mid-transfer.
	// The manifest row is kept so the transfer can be recovered.
	ErrSessionClosed = errors.New("transfer session closed")
)

// Result is handed to a completion handler exactly once.
type Result struct {
	Key models.ResourceKey

	// Path is the destination of a finished download.
	Path string

	// Body is the buffered response of a finished upload.
	Body []byte

	Err error
}

type Handler func(Result)

type task struct {
	rec *models.TransferRecord
}

// registry maps keys to running tasks and their handlers. A key can have a
// handler without a task (claimed before Recover) and a task without a
// handler (recovered but not yet re-attached).
type registry struct {
	mu       sync.Mutex
	tasks    map[models.ResourceKey]*task
	handlers map[models.ResourceKey]Handler
}

func newRegistry() *registry {
	return &registry{
		tasks:    make(map[models.ResourceKey]*task),
		handlers: make(map[models.ResourceKey]Handler),
	}
}

func (r *registry) claim(key models.ResourceKey, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[key]; ok {
		return ErrTaskExists
	}
	r.handlers[key] = h
	return nil
}

// reserve registers h for key. It reports attached=true when a task for key
// is already running and h was attached to it. With replace set an existing
// handler is swapped out and returned; otherwise it is a conflict.
func (r *registry) reserve(key models.ResourceKey, h Handler, replace bool) (old Handler, attached bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, hasHandler := r.handlers[key]
	if _, running := r.tasks[key]; running {
		if hasHandler && !replace {
			return nil, false, ErrTaskExists
		}
		r.handlers[key] = h
		return prev, true, nil
	}
	if hasHandler && !replace {
		return nil, false, ErrTaskExists
	}
	r.tasks[key] = &task{}
	r.handlers[key] = h
	return prev, false, nil
}

func (r *registry) bind(key models.ResourceKey, rec *models.TransferRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[key]; ok {
		t.rec = rec
	}
}

// adopt starts tracking a recovered record. It returns false when nobody
// claimed the key.
func (r *registry) adopt(rec *models.TransferRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[rec.Key]; !ok {
		return false
	}
	if _, ok := r.tasks[rec.Key]; ok {
		return false
	}
	r.tasks[rec.Key] = &task{rec: rec}
	return true
}

// dropUnmatched forgets claims that no recovered record picked up.
func (r *registry) dropUnmatched() []models.ResourceKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []models.ResourceKey
	for key := range r.handlers {
		if _, ok := r.tasks[key]; !ok {
			delete(r.handlers, key)
			keys = append(keys, key)
		}
	}
	return keys
}

// release drops a reservation that never started.
func (r *registry) release(key models.ResourceKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, key)
	delete(r.handlers, key)
}

// finish clears both entries for key and returns the handler to invoke.
func (r *registry) finish(key models.ResourceKey) Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.handlers[key]
	delete(r.tasks, key)
	delete(r.handlers, key)
	return h
}

func (r *registry) pending(key models.ResourceKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, t := r.tasks[key]
	_, h := r.handlers[key]
	return t || h
}

func (r *registry) running(key models.ResourceKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[key]
	return ok
}

func (r *registry) active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// paths returns every file referenced by a running task.
func (r *registry) paths() map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]struct{}, len(r.tasks))
	for _, t := range r.tasks {
		if t.rec == nil {
			continue
		}
		if t.rec.StagingPath != "" {
			out[t.rec.StagingPath] = struct{}{}
		}
		if t.rec.PayloadPath != "" {
			out[t.rec.PayloadPath] = struct{}{}
		}
	}
	return out
}
