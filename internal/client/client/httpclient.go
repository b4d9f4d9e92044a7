package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/planetsync/internal/client/models"
)

// Options configures an HTTPClient.
type Options struct {
	// BaseURL is the API root, e.g. http://127.0.0.1:8086/v0.
	BaseURL string
	// PublicBaseURL serves rendered planet content. Defaults to
	// BaseURL + "/planets/my/public".
	PublicBaseURL string

	AuthEnabled bool
	Username    string
	Password    string

	// FetchTimeout bounds metadata and content fetches.
	FetchTimeout time.Duration

	// HTTP overrides the underlying client (tests).
	HTTP *http.Client
}

type HTTPClient struct {
	base         *url.URL
	public       *url.URL
	authHeader   string
	fetchTimeout time.Duration
	http         *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient validates the configured URLs. An unusable base URL is
// reported as ErrServerUnreachable.
func NewHTTPClient(o Options) (*HTTPClient, error) {
	base, err := parseBase(o.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base url %q: %v", ErrServerUnreachable, o.BaseURL, err)
	}

	publicRaw := o.PublicBaseURL
	if publicRaw == "" {
		publicRaw = strings.TrimRight(base.String(), "/") + "/planets/my/public"
	}
	public, err := parseBase(publicRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: public url %q: %v", ErrServerUnreachable, publicRaw, err)
	}

	c := &HTTPClient{
		base:         base,
		public:       public,
		fetchTimeout: o.FetchTimeout,
		http:         o.HTTP,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.fetchTimeout <= 0 {
		c.fetchTimeout = time.Minute
	}
	if o.AuthEnabled {
		token := base64.StdEncoding.EncodeToString([]byte(o.Username + ":" + o.Password))
		c.authHeader = "Basic " + token
	}
	return c, nil
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host")
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return u, nil
}

// Do attaches the authorization header (when configured) and sends req.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.authHeader != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", c.authHeader)
	}
	return c.http.Do(req)
}

func (c *HTTPClient) apiURL(elems ...string) string {
	return c.base.JoinPath(elems...).String()
}

func (c *HTTPClient) ArticlesURL(planetID string) string {
	return c.apiURL("planets", "my", planetID, "articles")
}

func (c *HTTPClient) ArticleURL(planetID, articleID string) string {
	return c.apiURL("planets", "my", planetID, "articles", articleID)
}

func (c *HTTPClient) PublicURL(planetID string, elems ...string) string {
	return c.public.JoinPath(append([]string{planetID}, elems...)...).String()
}

func (c *HTTPClient) PingURL() string {
	return c.apiURL("ping")
}

// Ping requires a 200 from the health endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.get(ctx, c.PingURL())
	return err
}

func (c *HTTPClient) GetArticle(ctx context.Context, planetID, articleID string) (*models.Article, []byte, error) {
	body, err := c.get(ctx, c.ArticleURL(planetID, articleID))
	if err != nil {
		return nil, nil, err
	}
	var a models.Article
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, nil, fmt.Errorf("%w: decode article %s: %v", ErrTransferFailure, articleID, err)
	}
	if a.ID == "" {
		a.ID = articleID
	}
	if a.PlanetID == "" {
		a.PlanetID = planetID
	}
	return &a, body, nil
}

func (c *HTTPClient) ListArticles(ctx context.Context, planetID string) ([]models.Article, error) {
	body, err := c.get(ctx, c.ArticlesURL(planetID))
	if err != nil {
		return nil, err
	}
	var list []models.Article
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: decode article list: %v", ErrTransferFailure, err)
	}
	for i := range list {
		if list[i].PlanetID == "" {
			list[i].PlanetID = planetID
		}
	}
	return list, nil
}

func (c *HTTPClient) GetPlanet(ctx context.Context, planetID string) (*models.Planet, []byte, error) {
	body, err := c.get(ctx, c.apiURL("planets", "my", planetID))
	if err != nil {
		return nil, nil, err
	}
	var p models.Planet
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, nil, fmt.Errorf("%w: decode planet %s: %v", ErrTransferFailure, planetID, err)
	}
	if p.ID == "" {
		p.ID = planetID
	}
	return &p, body, nil
}

func (c *HTTPClient) ListPlanets(ctx context.Context) ([]models.Planet, error) {
	body, err := c.get(ctx, c.apiURL("planets", "my"))
	if err != nil {
		return nil, err
	}
	var list []models.Planet
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: decode planet list: %v", ErrTransferFailure, err)
	}
	return list, nil
}

func (c *HTTPClient) DeleteArticle(ctx context.Context, planetID, articleID string) error {
	_, err := c.send(ctx, http.MethodDelete, c.ArticleURL(planetID, articleID))
	return err
}

func (c *HTTPClient) FetchPublic(ctx context.Context, rawURL string) ([]byte, error) {
	return c.get(ctx, rawURL)
}

func (c *HTTPClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	return c.send(ctx, http.MethodGet, rawURL)
}

// send performs a body-less request under the fetch timeout and returns the
// body of a logically successful response.
func (c *HTTPClient) send(ctx context.Context, method, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransferFailure, err)
	}
	if method == http.MethodGet {
		req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer drain(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err)
	}
	if err := CheckResponse(resp.StatusCode, body); err != nil {
		return nil, err
	}
	// A fetch only counts with a 200; 204 and friends carry no content.
	if method == http.MethodGet && resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet(body)}
	}
	return body, nil
}
