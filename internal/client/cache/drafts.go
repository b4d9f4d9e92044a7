package cache

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dmitrijs2005/planetsync/internal/client/models"
	"github.com/dmitrijs2005/planetsync/internal/filex"
)

const (
	DraftFile = "draft.json"
	DraftHTML = "draft.html"
)

func (t *Tree) DraftDir(draftID string) string {
	return filepath.Join(t.root, draftsDir, draftID)
}

// SaveDraft writes draft.json and a plain preview in draft.html.
func (t *Tree) SaveDraft(d *models.Draft) error {
	if err := checkName(d.ID); err != nil {
		return err
	}
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encode draft %s: %w", d.ID, err)
	}
	dir := t.DraftDir(d.ID)
	if err := filex.WriteFileAtomic(filepath.Join(dir, DraftFile), b, 0o640); err != nil {
		return err
	}
	return filex.WriteFileAtomic(filepath.Join(dir, DraftHTML), []byte(renderDraft(d)), 0o640)
}

func renderDraft(d *models.Draft) string {
	var sb strings.Builder
	sb.WriteString("<!doctype html>\n<html><head><meta charset=\"utf-8\"><title>")
	sb.WriteString(html.EscapeString(d.Title))
	sb.WriteString("</title></head><body>\n<h1>")
	sb.WriteString(html.EscapeString(d.Title))
	sb.WriteString("</h1>\n")
	for _, para := range strings.Split(strings.TrimSpace(d.Content), "\n\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		sb.WriteString("<p>")
		sb.WriteString(html.EscapeString(para))
		sb.WriteString("</p>\n")
	}
	sb.WriteString("</body></html>\n")
	return sb.String()
}

func (t *Tree) Draft(draftID string) (*models.Draft, error) {
	if err := checkName(draftID); err != nil {
		return nil, err
	}
	var d models.Draft
	if err := readJSON(filepath.Join(t.DraftDir(draftID), DraftFile), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Drafts returns every readable draft, most recently updated first.
func (t *Tree) Drafts() ([]models.Draft, error) {
	ids, err := subdirsWith(filepath.Join(t.root, draftsDir), DraftFile)
	if err != nil {
		return nil, err
	}
	out := make([]models.Draft, 0, len(ids))
	for _, id := range ids {
		d, err := t.Draft(id)
		if err != nil {
			continue
		}
		out = append(out, *d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Updated.After(out[j].Updated.Time)
	})
	return out, nil
}

func (t *Tree) RemoveDraft(draftID string) error {
	if err := checkName(draftID); err != nil {
		return err
	}
	if err := os.RemoveAll(t.DraftDir(draftID)); err != nil {
		return fmt.Errorf("remove draft %s: %w", draftID, err)
	}
	return nil
}

// AddDraftAttachment copies src into the draft directory and returns the
// stored file name.
func (t *Tree) AddDraftAttachment(draftID, src string) (string, error) {
	name := filepath.Base(src)
	if err := checkName(draftID); err != nil {
		return "", err
	}
	if err := checkName(name); err != nil {
		return "", err
	}
	if name == DraftFile || name == DraftHTML {
		return "", fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open attachment: %w", err)
	}
	defer in.Close()

	dir, err := filex.EnsureDir(t.DraftDir(draftID))
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create attachment: %w", err)
	}
	_, err = io.Copy(tmp, in)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("copy attachment: %w", err)
	}
	if err := filex.ReplaceFile(tmp.Name(), filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return name, nil
}

// DraftAttachmentPaths resolves the attachment names of d to files on disk.
func (t *Tree) DraftAttachmentPaths(d *models.Draft) []string {
	out := make([]string, 0, len(d.Attachments))
	for _, name := range d.Attachments {
		out = append(out, filepath.Join(t.DraftDir(d.ID), name))
	}
	return out
}
