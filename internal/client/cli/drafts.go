package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/dmitrijs2005/planetsync/internal/client/services"
)

func (a *App) Drafts(ctx context.Context) error {
	list, err := a.drafts.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No drafts")
		return nil
	}
	for _, d := range list {
		target := d.PlanetID
		if target == "" {
			target = "-"
		}
		title := d.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(a.out, "%s  %-10s  %-14s  %s\n", d.ID, target, humanize.Time(d.Updated.Time), title)
	}
	return nil
}

func (a *App) NewDraft(ctx context.Context) error {
	planetID, err := GetSimpleText(a.reader, "Planet (optional)", a.out)
	if err != nil {
		return err
	}
	title, err := GetSimpleText(a.reader, "Title", a.out)
	if err != nil {
		return err
	}
	content, err := GetMultiline(a.reader, "Content", a.out)
	if err != nil {
		return err
	}
	files, err := GetList(a.reader, "Attachment paths", a.out)
	if err != nil {
		return err
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("attachment %s: %w", f, err)
		}
	}

	d, err := a.drafts.Create(ctx, services.DraftInput{
		PlanetID:    planetID,
		Title:       title,
		Content:     content,
		Attachments: files,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved draft %s\n", d.ID)
	return nil
}

// Publish sends a draft. An empty planetID uses the planet chosen when the
// draft was written.
func (a *App) Publish(ctx context.Context, draftID, planetID string) error {
	art, err := a.drafts.Publish(ctx, draftID, planetID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Published draft %s as article %s\n", draftID, art.ID)
	return nil
}
