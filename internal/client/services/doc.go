// Package services holds the orchestrators the front-ends call: article
// download, create, edit and delete, article list and planet
// reconciliation, and local drafts. Every service is built once by the
// composition root and shared.
package services
