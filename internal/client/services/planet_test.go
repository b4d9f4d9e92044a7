package services

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/dmitrijs2005/planetsync/internal/client/client"
	"github.com/dmitrijs2005/planetsync/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *env) planets() PlanetService {
	return NewPlanetService(PlanetDeps{
		Client:    e.client,
		Cache:     e.tree,
		Downloads: e.downloads,
		Liveness:  e.monitor,
		Bus:       e.bus,
	})
}

func TestSyncPlanets_MirrorsServer(t *testing.T) {
	e := newEnv(t)
	e.srv.AddPlanet(models.Planet{ID: "p1", Name: "Beta"})
	e.srv.AddPlanet(models.Planet{ID: "p2", Name: "Alpha"})
	e.srv.SetPublic("p1", []byte("png"), "avatar.png")
	require.NoError(t, e.tree.WritePlanet("gone", []byte(`{"id":"gone"}`)))
	reloads, cancel := e.bus.PlanetsReload.Subscribe(1)
	defer cancel()
	svc := e.planets()

	report, err := svc.SyncPlanets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncReport{Downloaded: 2, Removed: 1}, report)
	recv(t, reloads)

	list, err := svc.Planets()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alpha", list[0].Name)

	p, err := svc.Planet("p1")
	require.NoError(t, err)
	assert.Equal(t, "Beta", p.Name)

	avatar, err := e.tree.AvatarPath("p1")
	require.NoError(t, err)
	b, err := os.ReadFile(avatar)
	require.NoError(t, err)
	assert.Equal(t, "png", string(b))

	missing, err := e.tree.AvatarPath("p2")
	require.NoError(t, err)
	assert.NoFileExists(t, missing)
}

func TestSyncPlanets_ListFailureKeepsCache(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.tree.WritePlanet("p1", []byte(`{"id":"p1"}`)))
	e.srv.Fail(http.MethodGet, "/v0/planets/my", http.StatusInternalServerError, "")

	_, err := e.planets().SyncPlanets(context.Background())
	require.ErrorIs(t, err, client.ErrTransferFailure)

	ids, err := e.tree.PlanetIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
}

func TestSyncPlanets_Offline(t *testing.T) {
	e := newEnv(t)
	svc := NewPlanetService(PlanetDeps{Client: e.client, Cache: e.tree, Downloads: e.downloads, Liveness: offlineGate{}})

	_, err := svc.SyncPlanets(context.Background())
	require.ErrorIs(t, err, client.ErrServerUnreachable)
	assert.Empty(t, e.srv.Requests())
}
