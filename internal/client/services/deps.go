package services

import (
	"context"

	"github.com/dmitrijs2005/planetsync/internal/client/models"
	"github.com/dmitrijs2005/planetsync/internal/client/transfer"
)

// ArticleStore is the part of the cache tree the article orchestrators use.
type ArticleStore interface {
	WriteArticleMetadata(planetID, articleID string, raw []byte) error
	WriteArticleFile(planetID, articleID, name string, data []byte) error
	ArticlePath(planetID, articleID, name string) (string, error)
	HasArticle(planetID, articleID string) bool
	Article(planetID, articleID string) (*models.Article, error)
	Articles(planetID string) ([]models.Article, error)
	ArticleIDs(planetID string) ([]string, error)
	RemoveArticle(planetID, articleID string) error
}

// PlanetStore is the part of the cache tree planet sync uses.
type PlanetStore interface {
	WritePlanet(planetID string, raw []byte) error
	AvatarPath(planetID string) (string, error)
	Planet(planetID string) (*models.Planet, error)
	Planets() ([]models.Planet, error)
	PlanetIDs() ([]string, error)
	RemovePlanet(planetID string) error
}

// DraftStore is the part of the cache tree drafts use.
type DraftStore interface {
	SaveDraft(d *models.Draft) error
	Draft(draftID string) (*models.Draft, error)
	Drafts() ([]models.Draft, error)
	RemoveDraft(draftID string) error
	AddDraftAttachment(draftID, src string) (string, error)
	DraftAttachmentPaths(d *models.Draft) []string
}

// Downloader is satisfied by *transfer.DownloadSession.
type Downloader interface {
	Download(ctx context.Context, url, dest string) (string, error)
}

// Uploader is satisfied by *transfer.UploadSession.
type Uploader interface {
	Upload(ctx context.Context, key models.ResourceKey, req transfer.UploadRequest) ([]byte, error)
	Submit(ctx context.Context, key models.ResourceKey, req transfer.UploadRequest, h transfer.Handler) error
}

// Gate is satisfied by *liveness.Monitor.
type Gate interface {
	Require(ctx context.Context) error
}
