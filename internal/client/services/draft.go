package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/planetsync/internal/client/models"
	"github.com/dmitrijs2005/planetsync/internal/logging"
)

var ErrDraftNoPlanet = errors.New("draft has no target planet")

// DraftService keeps unsent content on disk until it is published.
type DraftService interface {
	Create(ctx context.Context, in DraftInput) (*models.Draft, error)
	Update(ctx context.Context, draftID string, in DraftInput) (*models.Draft, error)
	Get(draftID string) (*models.Draft, error)
	List() ([]models.Draft, error)
	Delete(draftID string) error

	// Publish sends the draft as a new article, or as an edit when the
	// draft belongs to an existing article. The draft is removed only after
	// the server accepted it. An empty planetID uses the draft's own.
	Publish(ctx context.Context, draftID, planetID string) (*models.Article, error)
}

// DraftInput replaces the editable fields of a draft. Attachments are local
// paths copied into the draft directory; names already attached are kept.
type DraftInput struct {
	PlanetID    string
	ArticleID   string
	Title       string
	Content     string
	Attachments []string
}

type DraftDeps struct {
	Cache    DraftStore
	Articles ArticleService
	Clock    clock.Clock
	Logger   logging.Logger
}

type draftService struct {
	cache    DraftStore
	articles ArticleService
	clock    clock.Clock
	log      logging.Logger
}

func NewDraftService(d DraftDeps) DraftService {
	s := &draftService{cache: d.Cache, articles: d.Articles, clock: d.Clock, log: d.Logger}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	return s
}

func (s *draftService) Create(ctx context.Context, in DraftInput) (*models.Draft, error) {
	now := models.Timestamp{Time: s.clock.Now().UTC()}
	d := &models.Draft{ID: uuid.NewString(), Created: now}
	if err := s.apply(d, in, now); err != nil {
		_ = s.cache.RemoveDraft(d.ID)
		return nil, err
	}
	s.log.Debug(ctx, "draft created", "draft_id", d.ID)
	return d, nil
}

func (s *draftService) Update(ctx context.Context, draftID string, in DraftInput) (*models.Draft, error) {
	d, err := s.cache.Draft(draftID)
	if err != nil {
		return nil, err
	}
	if err := s.apply(d, in, models.Timestamp{Time: s.clock.Now().UTC()}); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *draftService) apply(d *models.Draft, in DraftInput, now models.Timestamp) error {
	d.PlanetID = in.PlanetID
	d.ArticleID = in.ArticleID
	d.Title = in.Title
	d.Content = in.Content
	d.Updated = now

	for _, src := range in.Attachments {
		name, err := s.cache.AddDraftAttachment(d.ID, src)
		if err != nil {
			return fmt.Errorf("attach %s: %w", src, err)
		}
		if !slices.Contains(d.Attachments, name) {
			d.Attachments = append(d.Attachments, name)
		}
	}
	return s.cache.SaveDraft(d)
}

func (s *draftService) Get(draftID string) (*models.Draft, error) { return s.cache.Draft(draftID) }

func (s *draftService) List() ([]models.Draft, error) { return s.cache.Drafts() }

func (s *draftService) Delete(draftID string) error { return s.cache.RemoveDraft(draftID) }

func (s *draftService) Publish(ctx context.Context, draftID, planetID string) (*models.Article, error) {
	d, err := s.cache.Draft(draftID)
	if err != nil {
		return nil, err
	}
	if planetID == "" {
		planetID = d.PlanetID
	}
	if strings.TrimSpace(planetID) == "" {
		return nil, ErrDraftNoPlanet
	}

	in := ArticleInput{
		Title:       d.Title,
		Content:     d.Content,
		Date:        d.Created.Time,
		Attachments: s.cache.DraftAttachmentPaths(d),
	}

	var a *models.Article
	if d.ArticleID != "" {
		if err := s.articles.ModifyArticle(ctx, planetID, d.ArticleID, in); err != nil {
			return nil, err
		}
		a, err = s.articles.Article(planetID, d.ArticleID)
		if err != nil {
			a = &models.Article{ID: d.ArticleID, PlanetID: planetID}
		}
	} else {
		a, err = s.articles.CreateArticle(ctx, planetID, in)
		if err != nil {
			return nil, err
		}
	}

	if err := s.cache.RemoveDraft(draftID); err != nil {
		s.log.Warn(ctx, "published draft not removed", "draft_id", draftID, "err", err)
	}
	s.log.Info(ctx, "draft published", "draft_id", draftID, "planet_id", planetID, "article_id", a.ID)
	return a, nil
}
