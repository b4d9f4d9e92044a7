package models

import "time"

// TransferKind separates the two registries: keys are unique per kind only.
type TransferKind string

const (
	TransferDownload TransferKind = "download"
	TransferUpload   TransferKind = "upload"
)

// ResourceKey identifies a transferable unit: a fully-qualified source URL
// for downloads, an article ID or CreationKey for uploads.
type ResourceKey string

// CreationKey is the single upload key shared by all new-article uploads.
const CreationKey ResourceKey = "creation"

func DownloadKey(url string) ResourceKey { return ResourceKey(url) }

func UploadKey(articleID string) ResourceKey { return ResourceKey(articleID) }

// RequestSnapshot is what is needed to rebuild an HTTP request after the
// process restarts. The body is not included; uploads reopen PayloadPath.
type RequestSnapshot struct {
	Method string              `cbor:"method"`
	URL    string              `cbor:"url"`
	Header map[string][]string `cbor:"header,omitempty"`
}

// TransferRecord is one manifest row: written before a transfer starts and
// removed once its completion handler has run.
type TransferRecord struct {
	Key         ResourceKey
	Kind        TransferKind
	Request     RequestSnapshot
	Destination string // downloads: final path
	PayloadPath string // uploads: staged multipart body
	StagingPath string // downloads: partial body, kept for Range resume
	CreatedAt   time.Time
}
