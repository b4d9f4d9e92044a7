package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/planetsync/internal/client/cache"
	"github.com/dmitrijs2005/planetsync/internal/client/client"
	"github.com/dmitrijs2005/planetsync/internal/client/editlock"
	"github.com/dmitrijs2005/planetsync/internal/client/events"
	"github.com/dmitrijs2005/planetsync/internal/client/models"
	"github.com/dmitrijs2005/planetsync/internal/client/transfer"
	"github.com/dmitrijs2005/planetsync/internal/logging"
)

// ErrCreationInProgress: another article creation has not finished yet.
var ErrCreationInProgress = fmt.Errorf("%w: article creation in progress", client.ErrConflictInProgress)

// secondaryVariants are fetched best-effort next to index.html.
var secondaryVariants = []string{cache.SimpleHTML, cache.BlogHTML}

// ArticleService downloads, creates, edits and deletes articles.
//
// Contract:
//   - Download: metadata first, then index.html, the secondary variants and
//     attachments concurrently. Only a failed metadata fetch, index.html or
//     attachment fails the call.
//   - CreateArticle: one creation at a time; nothing is written locally.
//   - ModifyArticle: holds the article's edit lock until the upload settles
//     and re-downloads the server rendering on success.
//   - DeleteArticle / SyncPlanetArticles: keep the cache in line with the
//     server and emit ArticlesReload.
type ArticleService interface {
	Download(ctx context.Context, planetID, articleID string, forceAttachments bool) error
	CreateArticle(ctx context.Context, planetID string, in ArticleInput) (*models.Article, error)
	ModifyArticle(ctx context.Context, planetID, articleID string, in ArticleInput) error
	DeleteArticle(ctx context.Context, planetID, articleID string) error
	SyncPlanetArticles(ctx context.Context, planetID string) (SyncReport, error)

	Articles(planetID string) ([]models.Article, error)
	Article(planetID, articleID string) (*models.Article, error)

	CreationInProgress() bool
	// ActiveUploads counts creations and edits in flight.
	ActiveUploads() int
	// ActiveDownloads counts article downloads in flight.
	ActiveDownloads() int
}

// ArticleInput is local content to send to the server. Attachments are
// paths of local files.
type ArticleInput struct {
	Title       string
	Content     string
	Date        time.Time
	Attachments []string
}

func (in ArticleInput) form() client.ArticleForm {
	return client.ArticleForm{
		Title:       in.Title,
		Content:     in.Content,
		Date:        in.Date,
		Attachments: in.Attachments,
	}
}

type SyncReport struct {
	Downloaded int
	Removed    int
	Failed     int
}

type ArticleDeps struct {
	Client    client.Client
	Cache     ArticleStore
	Downloads Downloader
	Uploads   Uploader
	Liveness  Gate
	Locks     *editlock.Set
	Bus       *events.Bus
	Logger    logging.Logger

	// SyncConcurrency bounds article downloads during SyncPlanetArticles.
	SyncConcurrency int
}

type articleService struct {
	client    client.Client
	cache     ArticleStore
	downloads Downloader
	uploads   Uploader
	liveness  Gate
	locks     *editlock.Set
	bus       *events.Bus
	log       logging.Logger
	syncLimit int

	flight      singleflight.Group
	creating    atomic.Bool
	downloading atomic.Int32
}

func NewArticleService(d ArticleDeps) ArticleService {
	s := &articleService{
		client:    d.Client,
		cache:     d.Cache,
		downloads: d.Downloads,
		uploads:   d.Uploads,
		liveness:  d.Liveness,
		locks:     d.Locks,
		bus:       d.Bus,
		log:       d.Logger,
		syncLimit: d.SyncConcurrency,
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.syncLimit <= 0 {
		s.syncLimit = 4
	}
	return s
}

// Download shares one in-flight run between concurrent callers asking for
// the same article with the same force flag. The shared run does not stop
// when one caller's ctx ends; that caller alone returns ctx.Err().
func (s *articleService) Download(ctx context.Context, planetID, articleID string, forceAttachments bool) error {
	key := fmt.Sprintf("%s/%s/%t", planetID, articleID, forceAttachments)
	runCtx := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (any, error) {
		s.downloading.Add(1)
		defer s.downloading.Add(-1)
		return nil, s.download(runCtx, planetID, articleID, forceAttachments)
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *articleService) download(ctx context.Context, planetID, articleID string, force bool) error {
	log := s.log.With("planet_id", planetID, "article_id", articleID)

	article, raw, err := s.client.GetArticle(ctx, planetID, articleID)
	if err != nil {
		return mandatory(err, "article %s/%s", planetID, articleID)
	}

	if err := s.cache.WriteArticleMetadata(planetID, articleID, raw); err != nil {
		return fmt.Errorf("store article %s/%s metadata: %w", planetID, articleID, err)
	}

	var g errgroup.Group

	g.Go(func() error {
		body, err := s.client.FetchPublic(ctx, s.client.PublicURL(planetID, articleID, cache.IndexHTML))
		if err != nil {
			return mandatory(err, "article %s/%s %s", planetID, articleID, cache.IndexHTML)
		}
		if err := s.cache.WriteArticleFile(planetID, articleID, cache.IndexHTML, body); err != nil {
			return fmt.Errorf("store %s: %w", cache.IndexHTML, err)
		}
		return nil
	})

	for _, name := range secondaryVariants {
		g.Go(func() error {
			s.fetchOptional(ctx, log, planetID, articleID, name)
			return nil
		})
	}

	for _, name := range article.Attachments {
		dest, err := s.cache.ArticlePath(planetID, articleID, name)
		if err != nil {
			log.Warn(ctx, "skipping attachment with unusable name", "name", name, "err", err)
			continue
		}
		if !force && fileExists(dest) {
			continue
		}
		url := s.client.PublicURL(planetID, articleID, name)
		g.Go(func() error {
			if _, err := s.downloads.Download(ctx, url, dest); err != nil {
				return fmt.Errorf("attachment %s: %w", name, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.ArticleReload.Publish(events.ArticleRef{PlanetID: planetID, ArticleID: articleID})
	}
	log.Debug(ctx, "article downloaded", "attachments", len(article.Attachments))
	return nil
}

// fetchOptional overwrites a secondary variant only with a non-blank body.
// Failures leave the cached copy as it was.
func (s *articleService) fetchOptional(ctx context.Context, log logging.Logger, planetID, articleID, name string) {
	body, err := s.client.FetchPublic(ctx, s.client.PublicURL(planetID, articleID, name))
	if err != nil {
		log.Warn(ctx, "optional variant unavailable", "name", name, "err", fmt.Errorf("%w: %w", client.ErrPartialContent, err))
		return
	}
	if strings.TrimSpace(string(body)) == "" {
		log.Debug(ctx, "optional variant empty", "name", name)
		return
	}
	if err := s.cache.WriteArticleFile(planetID, articleID, name, body); err != nil {
		log.Warn(ctx, "optional variant not stored", "name", name, "err", fmt.Errorf("%w: %w", client.ErrPartialContent, err))
	}
}

// mandatory reports any HTTP-level failure of a required fetch as
// client.ErrNotFound. Transport failures keep their own kind.
func mandatory(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	var se *client.StatusError
	if errors.As(err, &se) && !errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("%w: %s: %w", client.ErrNotFound, what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *articleService) CreateArticle(ctx context.Context, planetID string, in ArticleInput) (*models.Article, error) {
	if !s.creating.CompareAndSwap(false, true) {
		return nil, ErrCreationInProgress
	}
	defer s.creating.Store(false)

	if err := s.liveness.Require(ctx); err != nil {
		return nil, err
	}

	body, err := s.uploads.Upload(ctx, models.CreationKey, transfer.UploadRequest{
		Method: http.MethodPost,
		URL:    s.client.ArticlesURL(planetID),
		Form:   in.form(),
	})
	if err != nil {
		return nil, fmt.Errorf("create article in %s: %w", planetID, err)
	}

	a := &models.Article{PlanetID: planetID}
	if err := json.Unmarshal(body, a); err != nil {
		s.log.Warn(ctx, "unreadable create response", "planet_id", planetID, "err", err)
	}
	if a.PlanetID == "" {
		a.PlanetID = planetID
	}

	if s.bus != nil {
		s.bus.ArticlesReload.Publish(events.PlanetRef{PlanetID: planetID})
	}
	s.log.Info(ctx, "article created", "planet_id", planetID, "article_id", a.ID)
	return a, nil
}

// ModifyArticle returns when the edit has settled or ctx ends, whichever
// comes first. The edit lock is held until the upload has settled and the
// server rendering has been fetched again, even after ctx ends.
func (s *articleService) ModifyArticle(ctx context.Context, planetID, articleID string, in ArticleInput) error {
	release, err := s.locks.Acquire(ctx, events.ArticleRef{PlanetID: planetID, ArticleID: articleID})
	if err != nil {
		return err
	}

	if err := s.liveness.Require(ctx); err != nil {
		release()
		return err
	}

	results := make(chan transfer.Result, 1)
	err = s.uploads.Submit(ctx, models.UploadKey(articleID), transfer.UploadRequest{
		Method: http.MethodPost,
		URL:    s.client.ArticleURL(planetID, articleID),
		Form:   in.form(),
	}, func(r transfer.Result) { results <- r })
	if err != nil {
		release()
		return fmt.Errorf("edit article %s/%s: %w", planetID, articleID, err)
	}

	done := make(chan error, 1)
	bg := context.WithoutCancel(ctx)
	go func() {
		done <- s.finishEdit(bg, planetID, articleID, <-results, release)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.log.Info(ctx, "edit continues in background", "planet_id", planetID, "article_id", articleID)
		return ctx.Err()
	}
}

func (s *articleService) finishEdit(ctx context.Context, planetID, articleID string, r transfer.Result, release func()) error {
	if errors.Is(r.Err, transfer.ErrSessionClosed) {
		// The persisted lock marks the edit for resumption on the next run.
		return fmt.Errorf("edit article %s/%s: %w", planetID, articleID, r.Err)
	}
	defer release()

	if r.Err != nil {
		return fmt.Errorf("edit article %s/%s: %w", planetID, articleID, r.Err)
	}
	if err := s.Download(ctx, planetID, articleID, true); err != nil {
		return fmt.Errorf("refresh edited article %s/%s: %w", planetID, articleID, err)
	}
	s.log.Info(ctx, "article edited", "planet_id", planetID, "article_id", articleID)
	return nil
}

func (s *articleService) DeleteArticle(ctx context.Context, planetID, articleID string) error {
	if s.locks.Held(articleID) {
		return editlock.ErrLocked
	}
	if err := s.liveness.Require(ctx); err != nil {
		return err
	}

	err := s.client.DeleteArticle(ctx, planetID, articleID)
	switch {
	case errors.Is(err, client.ErrNotFound):
		s.log.Info(ctx, "article already gone on server", "planet_id", planetID, "article_id", articleID)
	case err != nil:
		return fmt.Errorf("delete article %s/%s: %w", planetID, articleID, err)
	}

	if err := s.cache.RemoveArticle(planetID, articleID); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.ArticlesReload.Publish(events.PlanetRef{PlanetID: planetID})
	}
	return nil
}

// SyncPlanetArticles downloads articles missing from the cache and drops
// cached articles the server no longer lists. Articles under edit are left
// alone.
func (s *articleService) SyncPlanetArticles(ctx context.Context, planetID string) (SyncReport, error) {
	var report SyncReport
	if err := s.liveness.Require(ctx); err != nil {
		return report, err
	}

	remote, err := s.client.ListArticles(ctx, planetID)
	if err != nil {
		return report, mandatory(err, "list articles of %s", planetID)
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(s.syncLimit)

	onServer := make(map[string]struct{}, len(remote))
	for _, a := range remote {
		onServer[a.ID] = struct{}{}
		if s.cache.HasArticle(planetID, a.ID) {
			continue
		}
		g.Go(func() error {
			err := s.Download(ctx, planetID, a.ID, false)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				errs = append(errs, err)
				return nil
			}
			report.Downloaded++
			return nil
		})
	}
	_ = g.Wait()

	local, err := s.cache.ArticleIDs(planetID)
	if err != nil {
		return report, err
	}
	for _, id := range local {
		if _, ok := onServer[id]; ok || s.locks.Held(id) {
			continue
		}
		if err := s.cache.RemoveArticle(planetID, id); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Removed++
	}

	if s.bus != nil {
		s.bus.ArticlesReload.Publish(events.PlanetRef{PlanetID: planetID})
	}
	s.log.Info(ctx, "articles synced", "planet_id", planetID,
		"downloaded", report.Downloaded, "removed", report.Removed, "failed", report.Failed)
	return report, errors.Join(errs...)
}

func (s *articleService) Articles(planetID string) ([]models.Article, error) {
	return s.cache.Articles(planetID)
}

func (s *articleService) Article(planetID, articleID string) (*models.Article, error) {
	return s.cache.Article(planetID, articleID)
}

func (s *articleService) CreationInProgress() bool { return s.creating.Load() }

func (s *articleService) ActiveUploads() int {
	n := len(s.locks.Locked())
	if s.creating.Load() {
		n++
	}
	return n
}

func (s *articleService) ActiveDownloads() int { return int(s.downloading.Load()) }
