package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type PostgresRateLimitRepository struct {
	db *sql.DB
}

func NewPostgresRateLimitRepository(db *sql.DB) *PostgresRateLimitRepository {
	return &PostgresRateLimitRepository{db: db}
}

func (r *PostgresRateLimitRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM auth_rate_limits WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("error deleting rate-limit records: %w", err)
	}
	return res.RowsAffected()
}
