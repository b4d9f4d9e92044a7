package client

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ArticleForm is the body of a create or edit request.
type ArticleForm struct {
	Title   string
	Content string
	Date    time.Time
	// Attachments are local file paths; each becomes an "attachments" part
	// named after the file's base name.
	Attachments []string
}

// WriteArticleForm encodes f as multipart/form-data into w and returns the
// content type to send with it.
func WriteArticleForm(w io.Writer, f ArticleForm) (string, error) {
	mw := multipart.NewWriter(w)

	date := f.Date
	if date.IsZero() {
		date = time.Now()
	}
	fields := []struct{ name, value string }{
		{"title", f.Title},
		{"date", date.UTC().Format(time.RFC3339)},
		{"content", f.Content},
	}
	for _, field := range fields {
		if err := mw.WriteField(field.name, field.value); err != nil {
			return "", fmt.Errorf("write field %s: %w", field.name, err)
		}
	}

	for _, path := range f.Attachments {
		if err := writeAttachment(mw, path); err != nil {
			return "", err
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}
	return mw.FormDataContentType(), nil
}

func writeAttachment(mw *multipart.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	defer file.Close()

	contentType, err := detectContentType(file, path)
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="attachments"; filename=%q`, name))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create part %s: %w", name, err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy attachment %s: %w", name, err)
	}
	return nil
}

// detectContentType prefers the extension and falls back to sniffing the
// first bytes. The file offset is rewound afterwards.
func detectContentType(file *os.File, path string) (string, error) {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct, nil
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("sniff %s: %w", path, err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind %s: %w", path, err)
	}
	return http.DetectContentType(head[:n]), nil
}
