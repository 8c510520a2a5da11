package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"perm_tracker/internal/domain/notification"
)

type NotificationRepository struct {
	mu    sync.RWMutex
	items map[string]*notification.Notification
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{items: make(map[string]*notification.Notification)}
}

func cloneNotification(n *notification.Notification) *notification.Notification {
	out := *n
	if n.DaysUntilDeadline != nil {
		d := *n.DaysUntilDeadline
		out.DaysUntilDeadline = &d
	}
	if n.ReadAt != nil {
		t := *n.ReadAt
		out.ReadAt = &t
	}
	if n.EmailSentAt != nil {
		t := *n.EmailSentAt
		out.EmailSentAt = &t
	}
	return &out
}

func (r *NotificationRepository) Create(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[n.ID] = cloneNotification(n)
	return nil
}

// CreateReminder checks and inserts under one lock, mirroring the unique
// partial index of the Postgres schema.
func (r *NotificationRepository) CreateReminder(_ context.Context, n *notification.Notification) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key, ok := n.ReminderKey(); ok && slices.Contains(notification.ReminderTypes, n.Type) && r.existsLocked(key) {
		return false, nil
	}
	r.items[n.ID] = cloneNotification(n)
	return true, nil
}

func (r *NotificationRepository) ExistsReminder(_ context.Context, key notification.ReminderKey) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.existsLocked(key), nil
}

func (r *NotificationRepository) existsLocked(key notification.ReminderKey) bool {
	for _, n := range r.items {
		if !slices.Contains(notification.ReminderTypes, n.Type) {
			continue
		}
		if k, ok := n.ReminderKey(); ok && k == key {
			return true
		}
	}
	return false
}

func (r *NotificationRepository) GetByID(_ context.Context, id string) (*notification.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.items[id]
	if !ok {
		return nil, notification.ErrNotFound
	}
	return cloneNotification(n), nil
}

func (r *NotificationRepository) ListByUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*notification.Notification{}
	for _, n := range r.items {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, cloneNotification(n))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *NotificationRepository) CountUnread(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, n := range r.items {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepository) MarkRead(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return notification.ErrNotFound
	}
	n.IsRead = true
	n.ReadAt = &at
	n.UpdatedAt = at
	return nil
}

func (r *NotificationRepository) MarkAllRead(_ context.Context, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, n := range r.items {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			readAt := at
			n.ReadAt = &readAt
			n.UpdatedAt = at
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepository) MarkEmailSent(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return notification.ErrNotFound
	}
	n.EmailSent = true
	n.EmailSentAt = &at
	n.UpdatedAt = at
	return nil
}

func (r *NotificationRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return notification.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *NotificationRepository) DeleteReadBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var victims []*notification.Notification
	for _, n := range r.items {
		if n.IsRead && n.ReadAt != nil && n.ReadAt.Before(cutoff) {
			victims = append(victims, n)
		}
	}
	sort.Slice(victims, func(i, j int) bool { return victims[i].ReadAt.Before(*victims[j].ReadAt) })
	if limit > 0 && len(victims) > limit {
		victims = victims[:limit]
	}
	for _, n := range victims {
		delete(r.items, n.ID)
	}
	return int64(len(victims)), nil
}

func (r *NotificationRepository) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for id, n := range r.items {
		if n.UserID == userID {
			delete(r.items, id)
			count++
		}
	}
	return count, nil
}

// All returns every stored notification, oldest first.
func (r *NotificationRepository) All() []*notification.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*notification.Notification, 0, len(r.items))
	for _, n := range r.items {
		out = append(out, cloneNotification(n))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
