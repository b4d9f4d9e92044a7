// Package transfers persists the transfer manifest: one row per in-flight
// upload or download, written before the transfer starts and removed after
// its completion handler ran. On restart the manifest is the only record of
// what was pending.
package transfers

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/planetsync/internal/client/models"
)

var ErrNotFound = errors.New("transfer record not found")

type Repository interface {
	// Put inserts or replaces the record for (rec.Kind, rec.Key).
	Put(ctx context.Context, rec *models.TransferRecord) error

	// Get returns ErrNotFound when no record exists.
	Get(ctx context.Context, kind models.TransferKind, key models.ResourceKey) (*models.TransferRecord, error)

	// Delete is a no-op for a missing record.
	Delete(ctx context.Context, kind models.TransferKind, key models.ResourceKey) error

	// List returns every record of the given kind, oldest first.
	List(ctx context.Context, kind models.TransferKind) ([]*models.TransferRecord, error)
}
