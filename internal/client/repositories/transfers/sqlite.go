package transfers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/planetsync/internal/client/models"
	"github.com/dmitrijs2005/planetsync/internal/dbx"
	"github.com/fxamacker/cbor/v2"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Put(ctx context.Context, rec *models.TransferRecord) error {
	req, err := cbor.Marshal(rec.Request)
	if err != nil {
		return fmt.Errorf("failed to encode request for %s: %w", rec.Key, err)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	query := `INSERT INTO transfers (kind, key, request, destination, payload_path, staging_path, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(kind, key) DO UPDATE SET
				request = excluded.request,
				destination = excluded.destination,
				payload_path = excluded.payload_path,
				staging_path = excluded.staging_path,
				created_at = excluded.created_at`
	_, err = r.db.ExecContext(ctx, query, string(rec.Kind), string(rec.Key), req,
		rec.Destination, rec.PayloadPath, rec.StagingPath, created.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert transfer %s: %w", rec.Key, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, kind models.TransferKind, key models.ResourceKey) (*models.TransferRecord, error) {
	query := `SELECT kind, key, request, destination, payload_path, staging_path, created_at
			FROM transfers WHERE kind = ? AND key = ?`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, string(kind), string(key)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer %s: %w", key, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, kind models.TransferKind, key models.ResourceKey) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM transfers WHERE kind = ? AND key = ?`, string(kind), string(key))
	if err != nil {
		return fmt.Errorf("failed to delete transfer %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, kind models.TransferKind) ([]*models.TransferRecord, error) {
	query := `SELECT kind, key, request, destination, payload_path, staging_path, created_at
			FROM transfers WHERE kind = ? ORDER BY created_at, key`
	rows, err := r.db.QueryContext(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("error selecting transfers: %w", err)
	}
	defer rows.Close()

	var result []*models.TransferRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.TransferRecord, error) {
	var (
		kind, key string
		req       []byte
		createdMs int64
		rec       models.TransferRecord
	)
	if err := s.Scan(&kind, &key, &req, &rec.Destination, &rec.PayloadPath, &rec.StagingPath, &createdMs); err != nil {
		return nil, err
	}
	if err := cbor.Unmarshal(req, &rec.Request); err != nil {
		return nil, fmt.Errorf("failed to decode request for %s: %w", key, err)
	}
	rec.Kind = models.TransferKind(kind)
	rec.Key = models.ResourceKey(key)
	rec.CreatedAt = time.UnixMilli(createdMs)
	return &rec, nil
}
