package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dmitrijs2005/planetsync/internal/client/client"
	"github.com/dmitrijs2005/planetsync/internal/client/events"
	"github.com/dmitrijs2005/planetsync/internal/client/models"
	"github.com/dmitrijs2005/planetsync/internal/client/repositories/transfers"
	"github.com/dmitrijs2005/planetsync/internal/filex"
	"github.com/dmitrijs2005/planetsync/internal/logging"
)

const defaultMaxConcurrent = 4

type Options struct {
	Doer     client.Doer
	Manifest transfers.Repository

	// Dir holds staging and payload files. It is created if missing.
	Dir string

	// MaxConcurrent bounds transfers running at once. Queued tasks still
	// count as active.
	MaxConcurrent int64

	// Timeout bounds a single transfer. Zero means no limit.
	Timeout time.Duration

	Bus    *events.Bus
	Logger logging.Logger
}

type performer interface {
	perform(ctx context.Context, rec *models.TransferRecord) Result
	// discard removes the temporary files of a finished or cancelled record.
	discard(rec *models.TransferRecord)
}

type session struct {
	kind    models.TransferKind
	opts    Options
	reg     *registry
	sem     *semaphore.Weighted
	perf    performer
	started time.Time

	// manifestMu orders manifest writes of a new submission against the
	// row removal of a finished task with the same key.
	manifestMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newSession(kind models.TransferKind, o Options) (*session, error) {
	if o.Doer == nil {
		return nil, errors.New("transfer: doer is required")
	}
	if o.Manifest == nil {
		return nil, errors.New("transfer: manifest is required")
	}
	dir, err := filex.EnsureDir(o.Dir)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	o.Dir = dir
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = defaultMaxConcurrent
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	o.Logger = o.Logger.With("kind", string(kind))

	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		kind:    kind,
		opts:    o,
		reg:     newRegistry(),
		sem:     semaphore.NewWeighted(o.MaxConcurrent),
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (s *session) persist(ctx context.Context, rec *models.TransferRecord) error {
	s.manifestMu.Lock()
	defer s.manifestMu.Unlock()
	if err := s.opts.Manifest.Put(ctx, rec); err != nil {
		return fmt.Errorf("persist transfer %s: %w", rec.Key, err)
	}
	return nil
}

func (s *session) start(rec *models.TransferRecord) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(rec)
	}()
}

func (s *session) run(rec *models.TransferRecord) {
	var res Result
	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		res.Err = ErrSessionClosed
	} else {
		ctx, cancel := s.ctx, context.CancelFunc(func() {})
		if s.opts.Timeout > 0 {
			ctx, cancel = context.WithTimeout(s.ctx, s.opts.Timeout)
		}
		res = s.perf.perform(ctx, rec)
		cancel()
		s.sem.Release(1)
	}
	res.Key = rec.Key

	closed := res.Err != nil && s.ctx.Err() != nil
	if closed && !errors.Is(res.Err, ErrSessionClosed) {
		res.Err = fmt.Errorf("%w: %w", ErrSessionClosed, res.Err)
	}

	h := s.reg.finish(rec.Key)
	if h != nil {
		h(res)
	} else {
		s.opts.Logger.Warn(s.ctx, "transfer finished without handler", "key", string(rec.Key))
	}

	if closed {
		// Row and files stay behind for the next Recover.
		return
	}
	s.forget(rec)
	if res.Err != nil {
		s.opts.Logger.Warn(context.Background(), "transfer failed", "key", string(rec.Key), "err", res.Err)
	} else {
		s.opts.Logger.Debug(context.Background(), "transfer finished", "key", string(rec.Key))
	}
}

// forget removes the manifest row and temporary files of rec. The row is
// left alone when a newer submission for the same key already owns it.
func (s *session) forget(rec *models.TransferRecord) {
	s.perf.discard(rec)

	s.manifestMu.Lock()
	defer s.manifestMu.Unlock()
	if s.reg.pending(rec.Key) {
		return
	}
	if err := s.opts.Manifest.Delete(context.Background(), s.kind, rec.Key); err != nil {
		s.opts.Logger.Error(context.Background(), "remove transfer record", "key", string(rec.Key), "err", err)
	}
}

func (s *session) recover(ctx context.Context) (resumed, cancelled int, err error) {
	recs, err := s.opts.Manifest.List(ctx, s.kind)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending transfers: %w", err)
	}
	for _, rec := range recs {
		if s.reg.adopt(rec) {
			s.opts.Logger.Info(ctx, "resuming transfer", "key", string(rec.Key))
			s.start(rec)
			resumed++
			continue
		}
		if s.reg.running(rec.Key) {
			continue
		}
		s.opts.Logger.Info(ctx, "cancelling orphaned transfer", "key", string(rec.Key))
		s.forget(rec)
		cancelled++
	}
	for _, key := range s.reg.dropUnmatched() {
		s.opts.Logger.Debug(ctx, "claim matched no pending transfer", "key", string(key))
	}
	s.sweep(ctx)
	return resumed, cancelled, nil
}

// sweep removes leftover files that no task references. Files created by
// this process are never touched.
func (s *session) sweep(ctx context.Context) {
	entries, err := os.ReadDir(s.opts.Dir)
	if err != nil {
		s.opts.Logger.Warn(ctx, "scan transfer dir", "dir", s.opts.Dir, "err", err)
		return
	}
	live := s.reg.paths()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(s.opts.Dir, e.Name())
		if _, ok := live[path]; ok {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(s.started) {
			continue
		}
		if err := filex.RemoveIfExists(path); err != nil {
			s.opts.Logger.Warn(ctx, "remove stale transfer file", "path", path, "err", err)
		}
	}
}

func (s *session) progress(rec *models.TransferRecord, written, total int64, done bool) {
	if s.opts.Bus == nil {
		return
	}
	s.opts.Bus.Progress.Publish(events.TransferProgress{
		Kind:    s.kind,
		Key:     rec.Key,
		Written: written,
		Total:   total,
		Done:    done,
	})
}

func (s *session) claim(key models.ResourceKey, h Handler) error {
	if h == nil {
		return errors.New("transfer: nil handler")
	}
	return s.reg.claim(key, h)
}

func (s *session) wait() { s.wg.Wait() }

func (s *session) close() {
	s.cancel()
	s.wg.Wait()
}

func newRequest(ctx context.Context, snap models.RequestSnapshot, body *countingReader) (*http.Request, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, snap.Method, snap.URL, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, snap.Method, snap.URL, http.NoBody)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", client.ErrTransferFailure, err)
	}
	for k, vs := range snap.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

func transferError(err error) error {
	if err == nil || errors.Is(err, client.ErrTransferFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", client.ErrTransferFailure, err)
}
