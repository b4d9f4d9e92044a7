// Package repositories bootstraps the client's local SQLite database and
// groups the repositories built on top of it.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/planetsync/internal/client/migrations"
	"github.com/dmitrijs2005/planetsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/planetsync/internal/client/repositories/transfers"
	"github.com/dmitrijs2005/planetsync/internal/dbx"
	"github.com/pressly/goose/v3"
)

type Repositories struct {
	DB        *sql.DB
	Metadata  metadata.Repository
	Transfers transfers.Repository
}

func (r *Repositories) Close() error {
	return r.DB.Close()
}

// RunMigrations applies the embedded goose migrations. It is idempotent.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (creating if needed) the SQLite file at path, migrates
// it and returns the repositories bound to it.
func InitDatabase(ctx context.Context, path string) (*Repositories, error) {
	db, err := dbx.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	return &Repositories{
		DB:        db,
		Metadata:  metadata.NewSQLiteRepository(db),
		Transfers: transfers.NewSQLiteRepository(db),
	}, nil
}
