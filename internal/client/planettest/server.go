// Package planettest runs an in-memory planet server for tests. It speaks
// the same routes as the real server, records every request and lets tests
// inject failures or hold requests open.
package planettest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/planetsync/internal/client/models"
	"github.com/julienschmidt/httprouter"
)

// Request is one recorded request.
type Request struct {
	Method string
	Path   string
	Range  string
	Auth   string
}

// Upload is a parsed create or edit body.
type Upload struct {
	Method      string
	PlanetID    string
	ArticleID   string
	Title       string
	Content     string
	Date        string
	Attachments map[string][]byte
	Types       map[string]string
}

type Server struct {
	*httptest.Server

	// Username and Password, when set, are required as Basic auth on /v0 routes.
	Username string
	Password string

	mu        sync.Mutex
	planets   map[string]models.Planet
	articles  map[string]map[string]*models.Article
	public    map[string][]byte
	failures  map[string]int
	bodies    map[string]string
	holds     map[string]chan struct{}
	entered   map[string]chan struct{}
	requests  []Request
	uploads   []Upload
	idCounter int
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		planets:  map[string]models.Planet{},
		articles: map[string]map[string]*models.Article{},
		public:   map[string][]byte{},
		failures: map[string]int{},
		bodies:   map[string]string{},
		holds:    map[string]chan struct{}{},
		entered:  map[string]chan struct{}{},
	}

	r := httprouter.New()
	r.GET("/v0/ping", s.ping)
	r.GET("/v0/planets/my", s.listPlanets)
	r.GET("/v0/planets/my/:planet", s.getPlanet)
	r.GET("/v0/planets/my/:planet/articles", s.listArticles)
	r.POST("/v0/planets/my/:planet/articles", s.createArticle)
	r.GET("/v0/planets/my/:planet/articles/:article", s.getArticle)
	r.POST("/v0/planets/my/:planet/articles/:article", s.editArticle)
	r.DELETE("/v0/planets/my/:planet/articles/:article", s.deleteArticle)
	r.GET("/public/:planet/*path", s.servePublic)

	s.Server = httptest.NewServer(s.intercept(r))
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the API root to configure the client with.
func (s *Server) BaseURL() string { return s.URL + "/v0" }

// PublicURL is the public content root.
func (s *Server) PublicURL() string { return s.URL + "/public" }

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Range:  r.Header.Get("Range"),
			Auth:   r.Header.Get("Authorization"),
		})
		hold := s.holds[key]
		entered := s.entered[key]
		status, failing := s.failures[key]
		body := s.bodies[key]
		s.mu.Unlock()

		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}

		if strings.HasPrefix(r.URL.Path, "/v0/") && s.Username != "" {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.Username || pass != s.Password {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}

		if failing {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Fail makes every METHOD path request answer status with body.
func (s *Server) Fail(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = status
	s.bodies[method+" "+path] = body
}

// Recover removes a failure installed with Fail.
func (s *Server) Recover(method, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, method+" "+path)
	delete(s.bodies, method+" "+path)
}

// Hold blocks METHOD path requests until release is called. The returned
// channel receives once per request that reached the hold.
func (s *Server) Hold(method, path string) (entered <-chan struct{}, release func()) {
	key := method + " " + path
	gate := make(chan struct{})
	in := make(chan struct{}, 16)

	s.mu.Lock()
	s.holds[key] = gate
	s.entered[key] = in
	s.mu.Unlock()

	var once sync.Once
	return in, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.holds, key)
			delete(s.entered, key)
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Count returns how many METHOD path requests were received.
func (s *Server) Count(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// CountPrefix counts requests whose path starts with prefix.
func (s *Server) CountPrefix(method, prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Method == method && strings.HasPrefix(r.Path, prefix) {
			n++
		}
	}
	return n
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

func (s *Server) AddPlanet(p models.Planet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.planets[p.ID] = p
	if s.articles[p.ID] == nil {
		s.articles[p.ID] = map[string]*models.Article{}
	}
}

func (s *Server) RemovePlanet(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.planets, id)
	delete(s.articles, id)
}

// AddArticle stores a and publishes files under /public/{planet}/{article}/.
// The attachment list of a is taken as given.
func (s *Server) AddArticle(planetID string, a models.Article, files map[string][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.articles[planetID] == nil {
		s.articles[planetID] = map[string]*models.Article{}
	}
	a.PlanetID = planetID
	s.articles[planetID][a.ID] = &a
	for name, b := range files {
		s.public[publicKey(planetID, a.ID, name)] = b
	}
}

func (s *Server) RemoveArticle(planetID, articleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.articles[planetID], articleID)
}

// SetPublic publishes a file under /public/{planet}/{elems...}.
func (s *Server) SetPublic(planetID string, body []byte, elems ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.public[publicKey(planetID, elems...)] = body
}

func (s *Server) Article(planetID, articleID string) (models.Article, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[planetID][articleID]
	if !ok {
		return models.Article{}, false
	}
	return *a, true
}

func publicKey(planetID string, elems ...string) string {
	return strings.Join(append([]string{planetID}, elems...), "/")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) ping(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	_, _ = io.WriteString(w, "pong")
}

func (s *Server) listPlanets(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.mu.Lock()
	list := make([]models.Planet, 0, len(s.planets))
	for _, p := range s.planets {
		list = append(list, p)
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	writeJSON(w, list)
}

func (s *Server) getPlanet(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	s.mu.Lock()
	p, ok := s.planets[ps.ByName("planet")]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, nil)
		return
	}
	writeJSON(w, p)
}

func (s *Server) listArticles(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	s.mu.Lock()
	byID, ok := s.articles[ps.ByName("planet")]
	list := make([]models.Article, 0, len(byID))
	for _, a := range byID {
		list = append(list, *a)
	}
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	writeJSON(w, list)
}

func (s *Server) getArticle(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	a, ok := s.Article(ps.ByName("planet"), ps.ByName("article"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, a)
}

func (s *Server) createArticle(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	planetID := ps.ByName("planet")
	up, err := parseUpload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if _, ok := s.planets[planetID]; !ok {
		s.mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.idCounter++
	id := fmt.Sprintf("A%d", s.idCounter)
	up.PlanetID, up.ArticleID = planetID, id
	s.uploads = append(s.uploads, up)
	a := s.storeLocked(planetID, id, up)
	s.mu.Unlock()

	writeJSON(w, a)
}

func (s *Server) editArticle(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	planetID, id := ps.ByName("planet"), ps.ByName("article")
	up, err := parseUpload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if _, ok := s.articles[planetID][id]; !ok {
		s.mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
		return
	}
	up.PlanetID, up.ArticleID = planetID, id
	s.uploads = append(s.uploads, up)
	a := s.storeLocked(planetID, id, up)
	s.mu.Unlock()

	writeJSON(w, a)
}

// storeLocked renders the article the way the real server would.
func (s *Server) storeLocked(planetID, id string, up Upload) models.Article {
	a := models.Article{
		ID:       id,
		PlanetID: planetID,
		Title:    up.Title,
		Content:  up.Content,
		Created:  models.Timestamp{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	if prev, ok := s.articles[planetID][id]; ok {
		a.Created = prev.Created
		a.Attachments = prev.Attachments
	}
	names := make([]string, 0, len(up.Attachments))
	for name, b := range up.Attachments {
		names = append(names, name)
		s.public[publicKey(planetID, id, name)] = b
	}
	sort.Strings(names)
	if len(names) > 0 {
		a.Attachments = names
	}
	s.articles[planetID][id] = &a

	page := fmt.Sprintf("<h1>%s</h1><p>%s</p>", html.EscapeString(up.Title), html.EscapeString(up.Content))
	s.public[publicKey(planetID, id, "index.html")] = []byte(page)
	s.public[publicKey(planetID, id, "simple.html")] = []byte("<p>" + html.EscapeString(up.Content) + "</p>")
	return a
}

func (s *Server) deleteArticle(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	planetID, id := ps.ByName("planet"), ps.ByName("article")
	s.mu.Lock()
	_, ok := s.articles[planetID][id]
	delete(s.articles[planetID], id)
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) servePublic(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	key := ps.ByName("planet") + ps.ByName("path")
	s.mu.Lock()
	body, ok := s.public[key]
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	http.ServeContent(w, r, key, time.Time{}, bytes.NewReader(body))
}

func parseUpload(r *http.Request) (Upload, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return Upload{}, err
	}
	up := Upload{
		Method:      r.Method,
		Title:       r.FormValue("title"),
		Content:     r.FormValue("content"),
		Date:        r.FormValue("date"),
		Attachments: map[string][]byte{},
		Types:       map[string]string{},
	}
	for _, fh := range r.MultipartForm.File["attachments"] {
		f, err := fh.Open()
		if err != nil {
			return Upload{}, err
		}
		b, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return Upload{}, err
		}
		up.Attachments[fh.Filename] = b
		up.Types[fh.Filename] = fh.Header.Get("Content-Type")
	}
	return up, nil
}
