package user

import (
	"context"
	"time"
)

// Repository persists users and their profiles. Deletes of missing rows are no-ops.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	SetDeletedAt(ctx context.Context, id string, deletedAt *time.Time) error
	// ListExpiredDeletions returns at most limit users whose deletedAt is at or before now.
	ListExpiredDeletions(ctx context.Context, now time.Time, limit int) ([]*User, error)
	Delete(ctx context.Context, id string) error

	GetProfile(ctx context.Context, userID string) (*Profile, error)
	DeleteProfile(ctx context.Context, userID string) error
}

// PreferencesRepository persists per-user notification preferences.
type PreferencesRepository interface {
	Get(ctx context.Context, userID string) (*Preferences, error)
	Upsert(ctx context.Context, p *Preferences) error
	Delete(ctx context.Context, userID string) error
	// ListDigestRecipients returns preferences of active users with email and weekly digest enabled.
	// Users who never saved preferences are included with the defaults.
	ListDigestRecipients(ctx context.Context) ([]*Preferences, error)
}

// RateLimitRepository owns auth rate-limit records.
type RateLimitRepository interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
