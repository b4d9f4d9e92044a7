package models

// Planet is a user's independently published content node.
type Planet struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	About         string    `json:"about,omitempty"`
	TemplateName  string    `json:"templateName,omitempty"`
	Created       Timestamp `json:"created"`
	Updated       Timestamp `json:"updated"`
	LastPublished Timestamp `json:"lastPublished"`
	PublishedCID  string    `json:"lastPublishedCID,omitempty"`
	IPNS          string    `json:"ipns,omitempty"`
}
