// Package models defines the client-side data models mirrored from the
// planet server and the records the transfer layer persists locally.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Article is one piece of content belonging to a planet. The server assigns
// the ID; the client never invents one.
type Article struct {
	ID          string    `json:"id"`
	PlanetID    string    `json:"planetID,omitempty"`
	Created     Timestamp `json:"created"`
	Title       string    `json:"title,omitempty"`
	Content     string    `json:"content,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Link        string    `json:"link,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
}

// DisplayTitle falls back to the first line of content for untitled articles.
func (a Article) DisplayTitle() string {
	if t := strings.TrimSpace(a.Title); t != "" {
		return t
	}
	first, _, _ := strings.Cut(strings.TrimSpace(a.Content), "\n")
	if len(first) > 60 {
		first = first[:60] + "…"
	}
	return first
}

// referenceDate is the epoch the planet server uses when it encodes dates as
// bare numbers (seconds since 2001-01-01 UTC).
var referenceDate = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// Timestamp decodes either an RFC 3339 string or a number of seconds since
// referenceDate. It always encodes as RFC 3339.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`null`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null" || s == "":
		t.Time = time.Time{}
		return nil
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", str, err)
		}
		t.Time = parsed
		return nil
	default:
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", s, err)
		}
		t.Time = referenceDate.Add(time.Duration(secs * float64(time.Second)))
		return nil
	}
}
