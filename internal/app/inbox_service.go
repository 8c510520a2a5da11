package app

import (
	"context"
	"errors"
	"fmt"

	"perm_tracker/internal/domain/identity"
	"perm_tracker/internal/domain/notification"
)

const defaultInboxLimit = 50

// InboxService exposes the signed-in user's notifications.
type InboxService struct {
	repo     notification.Repository
	identity identity.Provider
	clock    Clock
}

func NewInboxService(repo notification.Repository, idp identity.Provider, clock Clock) *InboxService {
	return &InboxService{repo: repo, identity: idp, clock: clock}
}

// List returns the caller's newest notifications. Signed-out callers get an empty list.
func (s *InboxService) List(ctx context.Context, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return []*notification.Notification{}, nil
	}
	if limit <= 0 {
		limit = defaultInboxLimit
	}
	out, err := s.repo.ListByUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}

// UnreadCount returns 0 for signed-out callers.
func (s *InboxService) UnreadCount(ctx context.Context) (int, error) {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return 0, nil
	}
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

func (s *InboxService) owned(ctx context.Context, id string) (*notification.Notification, error) {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	n, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, notification.ErrNotFound) {
		return nil, ErrNotificationAccessDenied
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load notification %s: %w", id, err)
	}
	if n.UserID != userID {
		return nil, ErrNotificationAccessDenied
	}
	return n, nil
}

// MarkRead marks one notification read. Already-read notifications keep their readAt.
func (s *InboxService) MarkRead(ctx context.Context, id string) error {
	n, err := s.owned(ctx, id)
	if err != nil {
		return err
	}
	if n.IsRead {
		return nil
	}
	if err := s.repo.MarkRead(ctx, id, s.clock.Now()); err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	return nil
}

// MarkAllRead marks every unread notification of the caller read.
func (s *InboxService) MarkAllRead(ctx context.Context) (int64, error) {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return 0, ErrUnauthenticated
	}
	n, err := s.repo.MarkAllRead(ctx, userID, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return n, nil
}

func (s *InboxService) Delete(ctx context.Context, id string) error {
	if _, err := s.owned(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete notification %s: %w", id, err)
	}
	return nil
}

// BulkDelete deletes many notifications and reports a per-item tally.
func (s *InboxService) BulkDelete(ctx context.Context, ids []string) (BulkResult, error) {
	if _, ok := s.identity.CurrentUserID(ctx); !ok {
		return BulkResult{}, ErrUnauthenticated
	}
	var res BulkResult
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			res.fail(id, err)
			continue
		}
		res.Succeeded++
	}
	return res, nil
}
