package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/planetsync/internal/client/cache"
	"github.com/dmitrijs2005/planetsync/internal/client/client"
	"github.com/dmitrijs2005/planetsync/internal/client/events"
	"github.com/dmitrijs2005/planetsync/internal/client/models"
	"github.com/dmitrijs2005/planetsync/internal/logging"
)

// PlanetService mirrors the server's planet list into the cache.
type PlanetService interface {
	SyncPlanets(ctx context.Context) (SyncReport, error)
	Planets() ([]models.Planet, error)
	Planet(planetID string) (*models.Planet, error)
}

type PlanetDeps struct {
	Client    client.Client
	Cache     PlanetStore
	Downloads Downloader
	Liveness  Gate
	Bus       *events.Bus
	Logger    logging.Logger
}

type planetService struct {
	client    client.Client
	cache     PlanetStore
	downloads Downloader
	liveness  Gate
	bus       *events.Bus
	log       logging.Logger
}

func NewPlanetService(d PlanetDeps) PlanetService {
	s := &planetService{
		client:    d.Client,
		cache:     d.Cache,
		downloads: d.Downloads,
		liveness:  d.Liveness,
		bus:       d.Bus,
		log:       d.Logger,
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	return s
}

// SyncPlanets stores planet.json for every planet on the server, refreshes
// avatars best-effort and removes planets the server no longer has.
func (s *planetService) SyncPlanets(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	if err := s.liveness.Require(ctx); err != nil {
		return report, err
	}

	remote, err := s.client.ListPlanets(ctx)
	if err != nil {
		return report, fmt.Errorf("list planets: %w", err)
	}

	var errs []error
	onServer := make(map[string]struct{}, len(remote))
	var g errgroup.Group
	for _, p := range remote {
		raw, err := json.MarshalIndent(p, "", "  ")
		if err == nil {
			err = s.cache.WritePlanet(p.ID, raw)
		}
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("store planet %s: %w", p.ID, err))
			continue
		}
		onServer[p.ID] = struct{}{}
		report.Downloaded++

		g.Go(func() error {
			s.refreshAvatar(ctx, p.ID)
			return nil
		})
	}
	_ = g.Wait()

	local, err := s.cache.PlanetIDs()
	if err != nil {
		return report, err
	}
	for _, id := range local {
		if _, ok := onServer[id]; ok {
			continue
		}
		if err := s.cache.RemovePlanet(id); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Removed++
	}

	if s.bus != nil {
		s.bus.PlanetsReload.Publish(struct{}{})
	}
	s.log.Info(ctx, "planets synced", "stored", report.Downloaded, "removed", report.Removed)
	return report, errors.Join(errs...)
}

func (s *planetService) refreshAvatar(ctx context.Context, planetID string) {
	dest, err := s.cache.AvatarPath(planetID)
	if err != nil {
		return
	}
	url := s.client.PublicURL(planetID, cache.AvatarFile)
	if _, err := s.downloads.Download(ctx, url, dest); err != nil {
		s.log.Warn(ctx, "avatar not refreshed", "planet_id", planetID,
			"err", fmt.Errorf("%w: %w", client.ErrPartialContent, err))
	}
}

func (s *planetService) Planets() ([]models.Planet, error) { return s.cache.Planets() }

func (s *planetService) Planet(planetID string) (*models.Planet, error) {
	return s.cache.Planet(planetID)
}
