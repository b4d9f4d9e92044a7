package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/dmitrijs2005/planetsync/internal/client/app"
	"github.com/dmitrijs2005/planetsync/internal/client/config"
	"github.com/dmitrijs2005/planetsync/internal/client/events"
	"github.com/dmitrijs2005/planetsync/internal/client/services"
	"github.com/dmitrijs2005/planetsync/internal/client/status"
	"github.com/dmitrijs2005/planetsync/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// onlineChecker is satisfied by *liveness.Monitor.
type onlineChecker interface {
	IsOnline(ctx context.Context) bool
	Invalidate()
	Last() (online bool, at time.Time, ok bool)
}

// lockLister is satisfied by *editlock.Set.
type lockLister interface {
	Locked() []string
	Held(articleID string) bool
}

// articleFiles is satisfied by *cache.Tree.
type articleFiles interface {
	ArticlePath(planetID, articleID, name string) (string, error)
}

// publicURLs is satisfied by *client.HTTPClient.
type publicURLs interface {
	PublicURL(planetID string, elems ...string) string
}

type App struct {
	core *app.App
	log  logging.Logger

	planets  services.PlanetService
	articles services.ArticleService
	drafts   services.DraftService
	liveness onlineChecker
	locks    lockLister
	files    articleFiles
	urls     publicURLs
	bus      *events.Bus
	status   *status.Aggregator
	clock    clock.Clock

	checkInterval time.Duration

	mu       sync.Mutex
	Mode     Mode
	activity status.Snapshot

	reader *bufio.Reader
	out    io.Writer
}

// NewApp builds the sync core for c. When authentication is enabled and no
// password is configured, the user is prompted for one.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log := logging.New(os.Stderr, c.LogLevel)

	if c.AuthEnabled && c.Password == "" {
		pw, err := GetPassword(os.Stdout)
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		c.Password = string(pw)
	}

	core, err := app.New(ctx, c, log)
	if err != nil {
		log.Error(ctx, "error initializing client", "err", err)
		return nil, err
	}

	return newApp(core, bufio.NewReader(os.Stdin), os.Stdout), nil
}

func newApp(core *app.App, reader *bufio.Reader, out io.Writer) *App {
	return &App{
		core:          core,
		log:           core.Logger,
		planets:       core.Planets,
		articles:      core.Articles,
		drafts:        core.Drafts,
		liveness:      core.Liveness,
		locks:         core.Locks,
		files:         core.Cache,
		urls:          core.Client,
		bus:           core.Bus,
		status:        core.Status,
		clock:         clock.New(),
		checkInterval: core.Config.LivenessTTL,
		reader:        reader,
		out:           out,
	}
}

// Run settles the previous run's state, starts the background watchers and
// blocks in the REPL until the user exits.
func (a *App) Run(ctx context.Context) {
	defer func() {
		if err := a.core.Close(); err != nil {
			a.log.Error(ctx, "shutdown", "err", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.recoverPrevious(ctx)

	go a.StartOnlineStatusWatcher(ctx, a.checkInterval)
	go a.status.Run(ctx, a.setActivity)

	fmt.Fprintln(a.out, "Welcome to planetsync (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) recoverPrevious(ctx context.Context) {
	rep, err := a.core.Recover(ctx)
	if err != nil {
		a.log.Error(ctx, "recover previous session", "err", err)
		return
	}
	for _, ref := range rep.InterruptedEdits {
		fmt.Fprintf(a.out, "Edit of %s/%s was interrupted\n", ref.PlanetID, ref.ArticleID)
	}
	if rep.ResumedUploads > 0 {
		fmt.Fprintf(a.out, "Resuming %d upload(s)\n", rep.ResumedUploads)
	}
	if n := rep.CancelledUploads + rep.CancelledDownloads; n > 0 {
		a.log.Info(ctx, "cancelled unclaimed transfers", "uploads", rep.CancelledUploads, "downloads", rep.CancelledDownloads)
	}
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Mode != mode {
		a.Mode = mode
		a.log.Info(context.Background(), "switched mode", "mode", string(mode))
	}
}

func (a *App) setActivity(s status.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.activity = s
}

func (a *App) getStatus() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var parts []string
	if a.Mode != "" {
		parts = append(parts, string(a.Mode))
	}
	if a.activity.Uploading {
		parts = append(parts, "uploading")
	}
	if a.activity.Downloading {
		parts = append(parts, "downloading")
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// StartOnlineStatusWatcher checks server reachability now and then once per
// interval, switching Mode when the answer changes. It returns when ctx is
// done.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := a.clock.Ticker(interval)
	defer ticker.Stop()

	a.checkOnline(ctx)
	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	if a.liveness.IsOnline(ctx) {
		a.setMode(ModeOnline)
	} else {
		a.setMode(ModeOffline)
	}
}
