package models

// Draft is unsent local content. ArticleID is set when the draft edits an
// existing article; PlanetID records the intended target, if chosen.
type Draft struct {
	ID          string    `json:"id"`
	PlanetID    string    `json:"planetID,omitempty"`
	ArticleID   string    `json:"articleID,omitempty"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Attachments []string  `json:"attachments,omitempty"`
	Created     Timestamp `json:"created"`
	Updated     Timestamp `json:"updated"`
}
