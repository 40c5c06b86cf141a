// Package media keeps a catalog of stored files so clients can list them and
// delete them by a stable id, whatever backend holds the bytes.
package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one stored file.
type Record struct {
	ID           uuid.UUID `json:"id"`
	Backend      string    `json:"backend"`
	Identifier   string    `json:"identifier"`
	URL          string    `json:"url"`
	OriginalName string    `json:"originalName"`
	MIMEType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	Folder       string    `json:"folder,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ErrNotFound is returned when a media record does not exist.
var ErrNotFound = errors.New("media not found")

// Repository handles all media catalog database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, backend, identifier, url, original_name, mime_type, size_bytes, folder, created_at`

// Create inserts rec and fills in CreatedAt.
func (r *Repository) Create(ctx context.Context, rec *Record) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO media (id, backend, identifier, url, original_name, mime_type, size_bytes, folder)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		rec.ID, rec.Backend, rec.Identifier, rec.URL, rec.OriginalName, rec.MIMEType, rec.Size, rec.Folder,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create media: %w", err)
	}
	return nil
}

// GetByID fetches a record by its UUID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM media WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get media by id: %w", err)
	}
	return rec, nil
}

// List returns records newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Record, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+recordColumns+` FROM media
		 ORDER BY created_at DESC, id
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	return records, nil
}

// Delete removes the record with id.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM media WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	rec := &Record{}
	err := row.Scan(&rec.ID, &rec.Backend, &rec.Identifier, &rec.URL,
		&rec.OriginalName, &rec.MIMEType, &rec.Size, &rec.Folder, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
