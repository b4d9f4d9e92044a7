package transfer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/planetsync/internal/client/client"
	"github.com/dmitrijs2005/planetsync/internal/client/models"
	"github.com/dmitrijs2005/planetsync/internal/filex"
)

// maxResponse caps the buffered upload response.
const maxResponse = 8 << 20

type UploadRequest struct {
	Method string
	URL    string
	Form   client.ArticleForm
}

// UploadSession sends multipart article forms. The body is written to a
// payload file before the transfer is recorded so it can be replayed after
// a restart. The payload file is removed once the handler ran.
type UploadSession struct {
	s *session
}

func NewUploadSession(o Options) (*UploadSession, error) {
	s, err := newSession(models.TransferUpload, o)
	if err != nil {
		return nil, err
	}
	u := &UploadSession{s: s}
	s.perf = u
	return u, nil
}

// Submit stages the form and queues the upload under key. It fails with
// ErrTaskExists while another handler is registered for key, and with an
// error wrapping client.ErrPayload when the body cannot be staged. In both
// cases nothing is sent and h is never called.
func (u *UploadSession) Submit(ctx context.Context, key models.ResourceKey, req UploadRequest, h Handler) error {
	if h == nil {
		return fmt.Errorf("transfer: nil handler")
	}
	_, attached, err := u.s.reg.reserve(key, h, false)
	if err != nil {
		return err
	}
	if attached {
		return nil
	}

	path, contentType, err := u.stage(req.Form)
	if err != nil {
		u.s.reg.release(key)
		return fmt.Errorf("%w: %w", client.ErrPayload, err)
	}

	rec := &models.TransferRecord{
		Key:  key,
		Kind: models.TransferUpload,
		Request: models.RequestSnapshot{
			Method: req.Method,
			URL:    req.URL,
			Header: map[string][]string{
				"Content-Type": {contentType},
				"Accept":       {"application/json"},
			},
		},
		PayloadPath: path,
		CreatedAt:   time.Now().UTC(),
	}
	if err := u.s.persist(ctx, rec); err != nil {
		_ = filex.RemoveIfExists(path)
		u.s.reg.release(key)
		return err
	}
	u.s.reg.bind(key, rec)
	u.s.start(rec)
	return nil
}

// Upload submits and waits for the response body. When ctx ends first the
// upload keeps running in the background.
func (u *UploadSession) Upload(ctx context.Context, key models.ResourceKey, req UploadRequest) ([]byte, error) {
	ch := make(chan Result, 1)
	if err := u.Submit(ctx, key, req, func(r Result) { ch <- r }); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		return r.Body, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Claim registers h for an upload that may be pending from a previous run.
// Call it before Recover.
func (u *UploadSession) Claim(key models.ResourceKey, h Handler) error {
	return u.s.claim(key, h)
}

// Recover resumes claimed uploads left in the manifest and cancels the rest,
// removing their payload files.
func (u *UploadSession) Recover(ctx context.Context) (resumed, cancelled int, err error) {
	return u.s.recover(ctx)
}

func (u *UploadSession) Pending(key models.ResourceKey) bool { return u.s.reg.pending(key) }

func (u *UploadSession) Active() int { return u.s.reg.active() }

func (u *UploadSession) Wait() { u.s.wait() }

func (u *UploadSession) Close() { u.s.close() }

func (u *UploadSession) stage(form client.ArticleForm) (path, contentType string, err error) {
	path = filepath.Join(u.s.opts.Dir, uuid.NewString()+".multipart")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", "", err
	}
	staged := path
	defer func() {
		if err != nil {
			_ = os.Remove(staged)
		}
	}()

	bw := bufio.NewWriter(f)
	contentType, err = client.WriteArticleForm(bw, form)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", "", err
	}
	return path, contentType, nil
}

func (u *UploadSession) perform(ctx context.Context, rec *models.TransferRecord) Result {
	res := Result{Key: rec.Key}

	f, err := os.Open(rec.PayloadPath)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", client.ErrPayload, err)
		return res
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", client.ErrPayload, err)
		return res
	}

	size := fi.Size()
	body := &countingReader{r: f, report: func(n int64) {
		u.s.progress(rec, n, size, false)
	}}
	req, err := newRequest(ctx, rec.Request, body)
	if err != nil {
		res.Err = err
		return res
	}
	req.ContentLength = size

	resp, err := u.s.opts.Doer.Do(req)
	if err != nil {
		res.Err = transferError(err)
		return res
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	drain(resp.Body)
	if err != nil {
		res.Err = transferError(err)
		return res
	}
	if err := client.CheckResponse(resp.StatusCode, b); err != nil {
		res.Err = err
		return res
	}
	u.s.progress(rec, size, size, true)
	res.Body = b
	return res
}

func (u *UploadSession) discard(rec *models.TransferRecord) {
	if err := filex.RemoveIfExists(rec.PayloadPath); err != nil {
		u.s.opts.Logger.Warn(context.Background(), "remove payload file", "path", rec.PayloadPath, "err", err)
	}
}
