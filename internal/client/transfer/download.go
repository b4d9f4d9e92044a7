package transfer

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/planetsync/internal/client/client"
	"github.com/dmitrijs2005/planetsync/internal/client/models"
	"github.com/dmitrijs2005/planetsync/internal/filex"
)

// jsonCheckLimit is the largest JSON download inspected for an
// application-level error payload.
const jsonCheckLimit = 64 << 10

// DownloadSession fetches URLs into local files. The body is streamed to a
// staging file first and moved over the destination only after the whole
// response arrived, so a failed download never touches the destination.
type DownloadSession struct {
	s *session
}

func NewDownloadSession(o Options) (*DownloadSession, error) {
	s, err := newSession(models.TransferDownload, o)
	if err != nil {
		return nil, err
	}
	d := &DownloadSession{s: s}
	s.perf = d
	return d, nil
}

// Submit queues a download of url into dest and returns once the transfer
// is recorded. If a download of the same URL is already running, h replaces
// its handler and the replaced handler receives ErrSuperseded. If Submit
// returns an error h is never called.
func (d *DownloadSession) Submit(ctx context.Context, url, dest string, h Handler) error {
	if h == nil {
		return fmt.Errorf("transfer: nil handler")
	}
	key := models.DownloadKey(url)
	old, attached, err := d.s.reg.reserve(key, h, true)
	if err != nil {
		return err
	}
	if old != nil {
		old(Result{Key: key, Err: ErrSuperseded})
	}
	if attached {
		return nil
	}

	rec := &models.TransferRecord{
		Key:  key,
		Kind: models.TransferDownload,
		Request: models.RequestSnapshot{
			Method: http.MethodGet,
			URL:    url,
			Header: map[string][]string{"Accept": {"*/*"}},
		},
		Destination: dest,
		StagingPath: filepath.Join(d.s.opts.Dir, uuid.NewString()+".part"),
		CreatedAt:   time.Now().UTC(),
	}
	if err := d.s.persist(ctx, rec); err != nil {
		d.s.reg.release(key)
		return err
	}
	d.s.reg.bind(key, rec)
	d.s.start(rec)
	return nil
}

// Download submits and waits for the result. When ctx ends first the
// transfer keeps running in the background.
func (d *DownloadSession) Download(ctx context.Context, url, dest string) (string, error) {
	ch := make(chan Result, 1)
	if err := d.Submit(ctx, url, dest, func(r Result) { ch <- r }); err != nil {
		return "", err
	}
	select {
	case r := <-ch:
		return r.Path, r.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Claim registers h for a transfer that may be pending from a previous run.
// Call it before Recover.
func (d *DownloadSession) Claim(key models.ResourceKey, h Handler) error {
	return d.s.claim(key, h)
}

// Recover resumes claimed transfers left in the manifest and cancels the
// rest. Cancelled transfers make no request and invoke no handler.
func (d *DownloadSession) Recover(ctx context.Context) (resumed, cancelled int, err error) {
	return d.s.recover(ctx)
}

// Pending reports whether key has a running task or a registered handler.
func (d *DownloadSession) Pending(url string) bool { return d.s.reg.pending(models.DownloadKey(url)) }

// Active is the number of downloads queued or running.
func (d *DownloadSession) Active() int { return d.s.reg.active() }

// Wait blocks until every started download has invoked its handler.
func (d *DownloadSession) Wait() { d.s.wait() }

// Close aborts running downloads and waits for them. Their manifest rows and
// partial files are kept for Recover.
func (d *DownloadSession) Close() { d.s.close() }

func (d *DownloadSession) perform(ctx context.Context, rec *models.TransferRecord) Result {
	res := Result{Key: rec.Key}
	if err := d.fetch(ctx, rec); err != nil {
		res.Err = err
		return res
	}
	if err := filex.ReplaceFile(rec.StagingPath, rec.Destination); err != nil {
		res.Err = transferError(err)
		return res
	}
	res.Path = rec.Destination
	return res
}

func (d *DownloadSession) discard(rec *models.TransferRecord) {
	if err := filex.RemoveIfExists(rec.StagingPath); err != nil {
		d.s.opts.Logger.Warn(context.Background(), "remove staging file", "path", rec.StagingPath, "err", err)
	}
}

// fetch fills the staging file. A partial file left by an interrupted run is
// resumed with a Range request; a server that ignores the range sends the
// whole body and the file is rewritten.
func (d *DownloadSession) fetch(ctx context.Context, rec *models.TransferRecord) error {
	for attempt := 0; attempt < 2; attempt++ {
		var offset int64
		if fi, err := os.Stat(rec.StagingPath); err == nil {
			offset = fi.Size()
		}

		req, err := newRequest(ctx, rec.Request, nil)
		if err != nil {
			return err
		}
		if offset > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		}

		resp, err := d.s.opts.Doer.Do(req)
		if err != nil {
			return transferError(err)
		}

		switch {
		case resp.StatusCode == http.StatusPartialContent && offset > 0:
			err = d.write(resp, rec, offset)
		case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
			drain(resp.Body)
			if err := filex.RemoveIfExists(rec.StagingPath); err != nil {
				return transferError(err)
			}
			continue
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			err = d.write(resp, rec, 0)
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			drain(resp.Body)
			return client.CheckResponse(resp.StatusCode, body)
		}
		if err != nil {
			return err
		}
		return d.checkPayload(resp, rec)
	}
	return fmt.Errorf("%w: range not satisfiable", client.ErrTransferFailure)
}

func (d *DownloadSession) write(resp *http.Response, rec *models.TransferRecord, offset int64) error {
	defer drain(resp.Body)

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if offset > 0 {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(rec.StagingPath, flags, 0o600)
	if err != nil {
		return transferError(err)
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}
	w := &countingWriter{w: f, n: offset, report: func(n int64) {
		d.s.progress(rec, n, total, false)
	}}
	_, err = io.Copy(w, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return transferError(err)
	}
	if total >= 0 && w.n != total {
		return fmt.Errorf("%w: short body: got %d of %d bytes", client.ErrTransferFailure, w.n, total)
	}
	d.s.progress(rec, w.n, w.n, true)
	return nil
}

// checkPayload looks for an error object in a small JSON response.
func (d *DownloadSession) checkPayload(resp *http.Response, rec *models.TransferRecord) error {
	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.HasSuffix(mt, "json") {
		return nil
	}
	fi, err := os.Stat(rec.StagingPath)
	if err != nil {
		return transferError(err)
	}
	if fi.Size() > jsonCheckLimit {
		return nil
	}
	body, err := os.ReadFile(rec.StagingPath)
	if err != nil {
		return transferError(err)
	}
	return client.CheckResponse(http.StatusOK, body)
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
