package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"perm_tracker/internal/domain/user"
)

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func scanUser(row rowScanner) (*user.User, error) {
	u := &user.User{}
	var deletedAt sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &deletedAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		u.DeletedAt = &t
	}
	return u, nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	query := `SELECT id, email, deleted_at, created_at, updated_at FROM users WHERE id = $1`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("error getting user by ID: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepository) SetDeletedAt(ctx context.Context, id string, deletedAt *time.Time) error {
	query := `UPDATE users SET deleted_at = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, deletedAt)
	if err != nil {
		return fmt.Errorf("error setting user deleted_at: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking rows affected for user update: %w", err)
	}
	if rows == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepository) ListExpiredDeletions(ctx context.Context, now time.Time, limit int) ([]*user.User, error) {
	query := `SELECT id, email, deleted_at, created_at, updated_at FROM users
		WHERE deleted_at IS NOT NULL AND deleted_at <= $1
		ORDER BY deleted_at
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing expired deletions: %w", err)
	}
	defer rows.Close()

	var out []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning user row: %w", err)
		}
		out = append(out, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}
	return out, nil
}

func (r *PostgresUserRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetProfile(ctx context.Context, userID string) (*user.Profile, error) {
	query := `SELECT user_id, full_name, company, created_at, updated_at FROM user_profiles WHERE user_id = $1`
	p := &user.Profile{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&p.UserID, &p.FullName, &p.Company, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrProfileNotFound
		}
		return nil, fmt.Errorf("error getting user profile: %w", err)
	}
	return p, nil
}

func (r *PostgresUserRepository) DeleteProfile(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_profiles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("error deleting user profile: %w", err)
	}
	return nil
}
