package cases

import (
	"context"
	"time"
)

// Repository defines the operations for persisting and retrieving Case entities.
// Every query except the sweep-wide listing is scoped by owner.
type Repository interface {
	Create(ctx context.Context, c *Case) error
	Update(ctx context.Context, c *Case) error
	GetByID(ctx context.Context, id string) (*Case, error)
	ListByUser(ctx context.Context, userID string) ([]*Case, error)
	// ListReminderEligible returns all non-deleted, non-closed cases across users.
	ListReminderEligible(ctx context.Context) ([]*Case, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
	// DeleteByUser hard-deletes every case owned by userID. Deleting nothing is not an error.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
