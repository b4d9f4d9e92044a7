// Package app is the client's composition root. New builds exactly one
// instance of every core service for the process lifetime; Recover settles
// state left by a previous run; Close tears everything down in reverse order.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/planetsync/internal/client/cache"
	"github.com/dmitrijs2005/planetsync/internal/client/client"
	"github.com/dmitrijs2005/planetsync/internal/client/config"
	"github.com/dmitrijs2005/planetsync/internal/client/editlock"
	"github.com/dmitrijs2005/planetsync/internal/client/events"
	"github.com/dmitrijs2005/planetsync/internal/client/liveness"
	"github.com/dmitrijs2005/planetsync/internal/client/models"
	"github.com/dmitrijs2005/planetsync/internal/client/repositories"
	"github.com/dmitrijs2005/planetsync/internal/client/services"
	"github.com/dmitrijs2005/planetsync/internal/client/status"
	"github.com/dmitrijs2005/planetsync/internal/client/transfer"
	"github.com/dmitrijs2005/planetsync/internal/logging"
)

const (
	DatabaseFile = "state.db"
	StagingDir   = "transfers/staging"
	PayloadDir   = "transfers/payloads"
)

type App struct {
	Config *config.Config
	Logger logging.Logger

	Repos     *repositories.Repositories
	Client    *client.HTTPClient
	Cache     *cache.Tree
	Bus       *events.Bus
	Downloads *transfer.DownloadSession
	Uploads   *transfer.UploadSession
	Liveness  *liveness.Monitor
	Locks     *editlock.Set
	Status    *status.Aggregator

	Planets  services.PlanetService
	Articles services.ArticleService
	Drafts   services.DraftService

	// resumed tracks follow-up work of edits resumed by Recover.
	resumed sync.WaitGroup
	cancel  context.CancelFunc
	ctx     context.Context
}

// RecoveryReport describes what Recover found from the previous run.
type RecoveryReport struct {
	InterruptedEdits   []events.ArticleRef
	ResumedUploads     int
	CancelledUploads   int
	CancelledDownloads int
}

// New opens the local store under cfg.DataDir and wires the services. It
// makes no network calls.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if log == nil {
		log = logging.Discard()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	repos, err := repositories.InitDatabase(ctx, filepath.Join(cfg.DataDir, DatabaseFile))
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: log, Repos: repos, Bus: events.NewBus()}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	if err := a.wire(cfg, log); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(cfg *config.Config, log logging.Logger) error {
	c, err := client.NewHTTPClient(client.Options{
		BaseURL:       cfg.ServerURL,
		PublicBaseURL: cfg.PublicBaseURL,
		AuthEnabled:   cfg.AuthEnabled,
		Username:      cfg.Username,
		Password:      cfg.Password,
		FetchTimeout:  cfg.FetchTimeout,
	})
	if err != nil {
		return err
	}
	a.Client = c

	tree, err := cache.New(cfg.DataDir, cfg.NodeID)
	if err != nil {
		return err
	}
	a.Cache = tree

	opts := transfer.Options{
		Doer:          c,
		Manifest:      a.Repos.Transfers,
		MaxConcurrent: int64(cfg.MaxConcurrentTransfers),
		Timeout:       cfg.TransferTimeout,
		Bus:           a.Bus,
	}

	opts.Dir = filepath.Join(cfg.DataDir, filepath.FromSlash(StagingDir))
	opts.Logger = log.With("component", "downloads")
	if a.Downloads, err = transfer.NewDownloadSession(opts); err != nil {
		return err
	}

	opts.Dir = filepath.Join(cfg.DataDir, filepath.FromSlash(PayloadDir))
	opts.Logger = log.With("component", "uploads")
	if a.Uploads, err = transfer.NewUploadSession(opts); err != nil {
		return err
	}

	a.Liveness = liveness.New(c, liveness.Options{
		TTL:          cfg.LivenessTTL,
		ProbeTimeout: cfg.ProbeTimeout,
		Logger:       log.With("component", "liveness"),
	})
	a.Locks = editlock.New(a.Repos.Metadata, a.Bus, log.With("component", "editlock"))

	a.Planets = services.NewPlanetService(services.PlanetDeps{
		Client:    c,
		Cache:     tree,
		Downloads: a.Downloads,
		Liveness:  a.Liveness,
		Bus:       a.Bus,
		Logger:    log.With("component", "planets"),
	})
	a.Articles = services.NewArticleService(services.ArticleDeps{
		Client:          c,
		Cache:           tree,
		Downloads:       a.Downloads,
		Uploads:         a.Uploads,
		Liveness:        a.Liveness,
		Locks:           a.Locks,
		Bus:             a.Bus,
		Logger:          log.With("component", "articles"),
		SyncConcurrency: cfg.MaxConcurrentTransfers,
	})
	a.Drafts = services.NewDraftService(services.DraftDeps{
		Cache:    tree,
		Articles: a.Articles,
		Logger:   log.With("component", "drafts"),
	})

	a.Status = status.New(status.Options{
		Uploads:   []status.Activity{a.Uploads, status.ActivityFunc(a.Articles.ActiveUploads)},
		Downloads: []status.Activity{a.Downloads, status.ActivityFunc(a.Articles.ActiveDownloads)},
		Interval:  cfg.StatusPollInterval,
	})
	return nil
}

// Recover clears edit locks left by the previous run and settles the
// transfer manifest. An edit upload that was still pending is resumed and
// the article re-downloaded once the server accepts it; every other pending
// transfer is cancelled.
func (a *App) Recover(ctx context.Context) (RecoveryReport, error) {
	var rep RecoveryReport

	refs, err := a.Locks.Recover(ctx)
	if err != nil {
		return rep, err
	}
	rep.InterruptedEdits = refs

	for _, ref := range refs {
		err := a.Uploads.Claim(models.UploadKey(ref.ArticleID), func(r transfer.Result) {
			a.resumed.Add(1)
			go func() {
				defer a.resumed.Done()
				a.finishResumedEdit(ref, r)
			}()
		})
		if err != nil && !errors.Is(err, transfer.ErrTaskExists) {
			return rep, err
		}
	}

	if rep.ResumedUploads, rep.CancelledUploads, err = a.Uploads.Recover(ctx); err != nil {
		return rep, err
	}
	if _, rep.CancelledDownloads, err = a.Downloads.Recover(ctx); err != nil {
		return rep, err
	}
	return rep, nil
}

func (a *App) finishResumedEdit(ref events.ArticleRef, r transfer.Result) {
	log := a.Logger.With("planet_id", ref.PlanetID, "article_id", ref.ArticleID)
	if r.Err != nil {
		log.Warn(a.ctx, "resumed edit failed", "err", r.Err)
		return
	}
	if err := a.Articles.Download(a.ctx, ref.PlanetID, ref.ArticleID, true); err != nil {
		log.Warn(a.ctx, "refresh after resumed edit failed", "err", err)
		return
	}
	a.Bus.ArticleReload.Publish(ref)
	log.Info(a.ctx, "resumed edit completed")
}

// Close stops the transfer sessions, keeping unfinished transfers in the
// manifest, and closes the database.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.Uploads != nil {
		a.Uploads.Close()
	}
	a.resumed.Wait()
	if a.Downloads != nil {
		a.Downloads.Close()
	}
	if a.Repos != nil {
		return a.Repos.Close()
	}
	return nil
}
