// internal/domain/notification/repository.go
package notification

import (
	"context"
	"time"
)

// Repository defines operations for Notification records.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	// CreateReminder inserts n unless a reminder with the same natural key exists.
	// created is false when the insert was suppressed.
	CreateReminder(ctx context.Context, n *Notification) (created bool, err error)
	// ExistsReminder reports whether a reminder with this natural key was already created.
	ExistsReminder(ctx context.Context, key ReminderKey) (bool, error)
	GetByID(ctx context.Context, id string) (*Notification, error)
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
	MarkEmailSent(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error

	// DeleteReadBefore deletes at most limit read notifications whose readAt is before cutoff.
	DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
