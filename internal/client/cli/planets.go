package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

func (a *App) Ping(ctx context.Context) error {
	a.liveness.Invalidate()
	if a.liveness.IsOnline(ctx) {
		a.setMode(ModeOnline)
		fmt.Fprintln(a.out, "Server is reachable")
		return nil
	}
	a.setMode(ModeOffline)
	fmt.Fprintln(a.out, "Server is unreachable")
	return nil
}

func (a *App) Status(ctx context.Context) error {
	online, at, ok := a.liveness.Last()
	switch {
	case !ok:
		fmt.Fprintln(a.out, "Server: not checked yet")
	case online:
		fmt.Fprintf(a.out, "Server: online (checked %s)\n", humanize.Time(at))
	default:
		fmt.Fprintf(a.out, "Server: offline (checked %s)\n", humanize.Time(at))
	}

	snap := a.status.Snapshot()
	fmt.Fprintf(a.out, "Uploading: %t, downloading: %t\n", snap.Uploading, snap.Downloading)
	fmt.Fprintf(a.out, "Uploads in flight: %d, article downloads in flight: %d\n",
		a.articles.ActiveUploads(), a.articles.ActiveDownloads())
	if a.articles.CreationInProgress() {
		fmt.Fprintln(a.out, "An article is being created")
	}
	if locked := a.locks.Locked(); len(locked) > 0 {
		fmt.Fprintf(a.out, "Being edited: %s\n", strings.Join(locked, ", "))
	}
	return nil
}

func (a *App) Planets(ctx context.Context) error {
	list, err := a.planets.Planets()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No planets cached, run 'sync'")
		return nil
	}
	for _, p := range list {
		line := fmt.Sprintf("%s  %s", p.ID, p.Name)
		if !p.LastPublished.IsZero() {
			line += "  published " + humanize.Time(p.LastPublished.Time)
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

// Sync refreshes one planet's articles, or every planet and its articles
// when planetID is empty.
func (a *App) Sync(ctx context.Context, planetID string) error {
	if planetID != "" {
		rep, err := a.articles.SyncPlanetArticles(ctx, planetID)
		fmt.Fprintf(a.out, "%s: %d downloaded, %d removed, %d failed\n", planetID, rep.Downloaded, rep.Removed, rep.Failed)
		return err
	}

	rep, err := a.planets.SyncPlanets(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Planets: %d updated, %d removed\n", rep.Downloaded, rep.Removed)

	list, err := a.planets.Planets()
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range list {
		if err := a.Sync(ctx, p.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
