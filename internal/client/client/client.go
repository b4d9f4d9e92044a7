package client

import (
	"context"
	"io"
	"net/http"

	"github.com/dmitrijs2005/planetsync/internal/client/models"
)

// Client is the set of server calls the sync core depends on.
type Client interface {
	Ping(ctx context.Context) error

	// GetArticle returns the decoded article together with the raw body as
	// sent by the server, so callers can persist it byte for byte.
	GetArticle(ctx context.Context, planetID, articleID string) (*models.Article, []byte, error)
	ListArticles(ctx context.Context, planetID string) ([]models.Article, error)
	DeleteArticle(ctx context.Context, planetID, articleID string) error

	GetPlanet(ctx context.Context, planetID string) (*models.Planet, []byte, error)
	ListPlanets(ctx context.Context) ([]models.Planet, error)

	// FetchPublic GETs a public URL and returns the body of a 200 response.
	FetchPublic(ctx context.Context, rawURL string) ([]byte, error)

	// Do sends req with authorization attached. Used by transfer sessions.
	Do(req *http.Request) (*http.Response, error)

	ArticlesURL(planetID string) string
	ArticleURL(planetID, articleID string) string
	PublicURL(planetID string, elems ...string) string
}

// Doer is the subset of Client the transfer sessions need.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// drain discards what is left of a response body so the connection can be reused.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
