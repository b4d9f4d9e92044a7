package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dmitrijs2005/planetsync/internal/client/cache"
	"github.com/dmitrijs2005/planetsync/internal/client/services"
)

var errCancelled = errors.New("cancelled")

func (a *App) Articles(ctx context.Context, planetID string) error {
	list, err := a.articles.Articles(planetID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintf(a.out, "No articles cached for %s, run 'sync %s'\n", planetID, planetID)
		return nil
	}
	for _, art := range list {
		line := fmt.Sprintf("%s  %-14s  %s", art.ID, humanize.Time(art.Created.Time), art.DisplayTitle())
		if a.locks.Held(art.ID) {
			line += "  (editing)"
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

func (a *App) Show(ctx context.Context, planetID, articleID string) error {
	art, err := a.articles.Article(planetID, articleID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s\n", art.DisplayTitle())
	fmt.Fprintf(a.out, "id: %s, created %s\n", art.ID, humanize.Time(art.Created.Time))
	if art.Link != "" {
		fmt.Fprintf(a.out, "link: %s\n", art.Link)
	}
	if art.Content != "" {
		fmt.Fprintf(a.out, "\n%s\n\n", art.Content)
	}
	for _, name := range art.Attachments {
		fmt.Fprintf(a.out, "  %s  %s\n", name, a.fileSize(planetID, articleID, name))
	}
	if path, err := a.files.ArticlePath(planetID, articleID, cache.IndexHTML); err == nil {
		fmt.Fprintf(a.out, "page: %s\n", path)
	}
	return nil
}

func (a *App) fileSize(planetID, articleID, name string) string {
	path, err := a.files.ArticlePath(planetID, articleID, name)
	if err != nil {
		return "invalid name"
	}
	fi, err := os.Stat(path)
	if err != nil {
		return "not downloaded"
	}
	return humanize.Bytes(uint64(fi.Size()))
}

// Pull downloads one article, drawing a progress bar for its attachments.
func (a *App) Pull(ctx context.Context, planetID, articleID string, force bool) error {
	progress, stop := a.bus.Progress.Subscribe(64)
	prefix := a.urls.PublicURL(planetID, articleID) + "/"

	done := make(chan int64)
	go func() {
		done <- renderProgress(a.out, "pulling "+articleID, prefix, progress)
	}()

	err := a.articles.Download(ctx, planetID, articleID, force)
	stop()
	total := <-done
	if err != nil {
		return err
	}

	if total > 0 {
		fmt.Fprintf(a.out, "Pulled %s (%s of attachments)\n", articleID, humanize.Bytes(uint64(total)))
	} else {
		fmt.Fprintf(a.out, "Pulled %s\n", articleID)
	}
	return nil
}

func (a *App) Post(ctx context.Context, planetID string) error {
	in, err := a.readArticle("", "")
	if err != nil {
		return err
	}
	art, err := a.articles.CreateArticle(ctx, planetID, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created article %s\n", art.ID)
	return nil
}

func (a *App) Edit(ctx context.Context, planetID, articleID string) error {
	var title, content string
	if art, err := a.articles.Article(planetID, articleID); err == nil {
		title, content = art.Title, art.Content
		fmt.Fprintf(a.out, "Editing %q (empty input keeps the current value)\n", art.DisplayTitle())
	}

	in, err := a.readArticle(title, content)
	if err != nil {
		return err
	}
	if err := a.articles.ModifyArticle(ctx, planetID, articleID, in); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated article %s\n", articleID)
	return nil
}

// readArticle prompts for article fields. Empty answers fall back to the
// given title and content.
func (a *App) readArticle(title, content string) (services.ArticleInput, error) {
	var in services.ArticleInput

	t, err := GetSimpleText(a.reader, "Title", a.out)
	if err != nil {
		return in, err
	}
	if t == "" {
		t = title
	}

	c, err := GetMultiline(a.reader, "Content", a.out)
	if err != nil {
		return in, err
	}
	if c == "" {
		c = content
	}

	files, err := GetList(a.reader, "Attachment paths", a.out)
	if err != nil {
		return in, err
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return in, fmt.Errorf("attachment %s: %w", f, err)
		}
	}

	if strings.TrimSpace(t) == "" && strings.TrimSpace(c) == "" {
		return in, errors.New("an article needs a title or content")
	}
	return services.ArticleInput{Title: t, Content: c, Date: time.Now(), Attachments: files}, nil
}

func (a *App) Delete(ctx context.Context, planetID, articleID string) error {
	name := articleID
	if art, err := a.articles.Article(planetID, articleID); err == nil {
		name = art.DisplayTitle()
	}
	ok, err := Confirm(a.reader, fmt.Sprintf("Delete %q?", name), a.out)
	if err != nil {
		return err
	}
	if !ok {
		return errCancelled
	}
	if err := a.articles.DeleteArticle(ctx, planetID, articleID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted article %s\n", articleID)
	return nil
}
