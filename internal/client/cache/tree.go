// Package cache is the on-disk mirror of the server's planets and articles
// plus the local drafts. Layout under the data dir:
//
//	{nodeID}/My/{planetID}/planet.json
//	{nodeID}/My/{planetID}/avatar.png
//	{nodeID}/My/{planetID}/{articleID}/article.json, index.html, simple.html, blog.html, attachments
//	{nodeID}/Drafts/{draftID}/draft.json, draft.html, attachments
//
// Every file is written through a temp file and a rename, so readers never
// see a half-written file.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dmitrijs2005/planetsync/internal/client/models"
	"github.com/dmitrijs2005/planetsync/internal/filex"
)

const (
	ArticleFile = "article.json"
	PlanetFile  = "planet.json"
	AvatarFile  = "avatar.png"

	IndexHTML  = "index.html"
	SimpleHTML = "simple.html"
	BlogHTML   = "blog.html"

	myDir     = "My"
	draftsDir = "Drafts"
)

var (
	ErrNotCached   = errors.New("not in local cache")
	ErrInvalidName = errors.New("invalid path element")
)

// Tree is the cache of one server node.
type Tree struct {
	root string
}

func New(dataDir, nodeID string) (*Tree, error) {
	if err := checkName(nodeID); err != nil {
		return nil, fmt.Errorf("node id: %w", err)
	}
	root, err := filex.EnsureDir(filepath.Join(dataDir, nodeID))
	if err != nil {
		return nil, err
	}
	return &Tree{root: root}, nil
}

func (t *Tree) Root() string { return t.root }

func (t *Tree) PlanetDir(planetID string) string {
	return filepath.Join(t.root, myDir, planetID)
}

func (t *Tree) ArticleDir(planetID, articleID string) string {
	return filepath.Join(t.root, myDir, planetID, articleID)
}

// ArticlePath is the location of a named file inside an article directory.
func (t *Tree) ArticlePath(planetID, articleID, name string) (string, error) {
	for _, n := range []string{planetID, articleID, name} {
		if err := checkName(n); err != nil {
			return "", err
		}
	}
	return filepath.Join(t.ArticleDir(planetID, articleID), name), nil
}

// checkName rejects anything that would escape its parent directory.
func checkName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// WriteArticleMetadata stores the raw metadata body, creating the article
// directory on demand.
func (t *Tree) WriteArticleMetadata(planetID, articleID string, raw []byte) error {
	return t.WriteArticleFile(planetID, articleID, ArticleFile, raw)
}

func (t *Tree) WriteArticleFile(planetID, articleID, name string, data []byte) error {
	path, err := t.ArticlePath(planetID, articleID, name)
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(path, data, 0o640)
}

func (t *Tree) HasArticle(planetID, articleID string) bool {
	path, err := t.ArticlePath(planetID, articleID, ArticleFile)
	return err == nil && filex.Exists(path)
}

func (t *Tree) Article(planetID, articleID string) (*models.Article, error) {
	path, err := t.ArticlePath(planetID, articleID, ArticleFile)
	if err != nil {
		return nil, err
	}
	var a models.Article
	if err := readJSON(path, &a); err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = articleID
	}
	if a.PlanetID == "" {
		a.PlanetID = planetID
	}
	return &a, nil
}

// ArticleIDs lists article directories that hold metadata.
func (t *Tree) ArticleIDs(planetID string) ([]string, error) {
	if err := checkName(planetID); err != nil {
		return nil, err
	}
	return subdirsWith(t.PlanetDir(planetID), ArticleFile)
}

// Articles returns the cached articles of a planet, newest first. Entries
// whose metadata cannot be read are skipped.
func (t *Tree) Articles(planetID string) ([]models.Article, error) {
	ids, err := t.ArticleIDs(planetID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Article, 0, len(ids))
	for _, id := range ids {
		a, err := t.Article(planetID, id)
		if err != nil {
			continue
		}
		out = append(out, *a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created.Time) {
			return out[i].Created.After(out[j].Created.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *Tree) RemoveArticle(planetID, articleID string) error {
	if err := checkName(planetID); err != nil {
		return err
	}
	if err := checkName(articleID); err != nil {
		return err
	}
	if err := os.RemoveAll(t.ArticleDir(planetID, articleID)); err != nil {
		return fmt.Errorf("remove article %s/%s: %w", planetID, articleID, err)
	}
	return nil
}

func (t *Tree) WritePlanet(planetID string, raw []byte) error {
	if err := checkName(planetID); err != nil {
		return err
	}
	return filex.WriteFileAtomic(filepath.Join(t.PlanetDir(planetID), PlanetFile), raw, 0o640)
}

func (t *Tree) AvatarPath(planetID string) (string, error) {
	if err := checkName(planetID); err != nil {
		return "", err
	}
	return filepath.Join(t.PlanetDir(planetID), AvatarFile), nil
}

func (t *Tree) Planet(planetID string) (*models.Planet, error) {
	if err := checkName(planetID); err != nil {
		return nil, err
	}
	var p models.Planet
	if err := readJSON(filepath.Join(t.PlanetDir(planetID), PlanetFile), &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = planetID
	}
	return &p, nil
}

func (t *Tree) PlanetIDs() ([]string, error) {
	return subdirsWith(filepath.Join(t.root, myDir), PlanetFile)
}

// Planets returns the cached planets ordered by name.
func (t *Tree) Planets() ([]models.Planet, error) {
	ids, err := t.PlanetIDs()
	if err != nil {
		return nil, err
	}
	out := make([]models.Planet, 0, len(ids))
	for _, id := range ids {
		p, err := t.Planet(id)
		if err != nil {
			continue
		}
		out = append(out, *p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RemovePlanet deletes the planet and every cached article under it.
func (t *Tree) RemovePlanet(planetID string) error {
	if err := checkName(planetID); err != nil {
		return err
	}
	if err := os.RemoveAll(t.PlanetDir(planetID)); err != nil {
		return fmt.Errorf("remove planet %s: %w", planetID, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotCached, path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// subdirsWith lists the subdirectories of dir containing a file called
// marker. A missing dir yields an empty list.
func subdirsWith(dir, marker string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if filex.Exists(filepath.Join(dir, e.Name(), marker)) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
