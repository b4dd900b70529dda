package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists upload intents in Postgres. It is the explicit,
// single owner of intent state: Insert, Resolve, and Sweep are the only
// mutation points.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new upload Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Insert stores a freshly issued intent.
func (r *Repository) Insert(ctx context.Context, in *Intent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO upload_intents (id, base_id, object_key, content_type, max_bytes, status, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		in.ID, in.BaseID, in.ObjectKey, in.ContentType, in.MaxBytes, StatusIssued, in.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert intent: %w", err)
	}
	return nil
}

// Resolve consumes an issued, unexpired intent matching id and key in a
// single atomic update, so an intent can be finalized exactly once.
func (r *Repository) Resolve(ctx context.Context, uploadID, key string) (*Intent, error) {
	in := &Intent{}
	err := r.db.QueryRow(ctx,
		`UPDATE upload_intents
		 SET status = $3, finalized_at = NOW()
		 WHERE id = $1 AND object_key = $2 AND status = $4 AND expires_at > NOW()
		 RETURNING id, base_id, object_key, content_type, max_bytes, status, expires_at, created_at`,
		uploadID, key, StatusFinalized, StatusIssued,
	).Scan(&in.ID, &in.BaseID, &in.ObjectKey, &in.ContentType, &in.MaxBytes, &in.Status, &in.ExpiresAt, &in.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownOrExpiredIntent
	}
	if err != nil {
		return nil, fmt.Errorf("resolve intent: %w", err)
	}
	return in, nil
}

// Sweep marks lapsed issued intents as expired and returns how many it
// transitioned.
func (r *Repository) Sweep(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE upload_intents SET status = $1
		 WHERE status = $2 AND expires_at <= NOW()`,
		StatusExpired, StatusIssued,
	)
	if err != nil {
		return 0, fmt.Errorf("sweep intents: %w", err)
	}
	return tag.RowsAffected(), nil
}
