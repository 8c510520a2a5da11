package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"perm_tracker/internal/domain/caldate"
	"perm_tracker/internal/domain/cases"
	"perm_tracker/internal/domain/identity"
	"perm_tracker/internal/domain/notification"
)

// CaseService handles case writes for the signed-in user. Every write
// recomputes the derived deadline fields before persisting.
type CaseService struct {
	repo          cases.Repository
	notifications *NotificationService
	identity      identity.Provider
	deferrer      Deferrer
	clock         Clock
	logger        *logrus.Entry
}

func NewCaseService(
	repo cases.Repository,
	notifications *NotificationService,
	idp identity.Provider,
	deferrer Deferrer,
	clock Clock,
	logger *logrus.Entry,
) *CaseService {
	return &CaseService{
		repo:          repo,
		notifications: notifications,
		identity:      idp,
		deferrer:      deferrer,
		clock:         clock,
		logger:        logger,
	}
}

func validateCase(c *cases.Case) error {
	if strings.TrimSpace(c.EmployerName) == "" {
		return &ValidationError{Field: "employerName", Message: "is required"}
	}
	if strings.TrimSpace(c.BeneficiaryIdentifier) == "" {
		return &ValidationError{Field: "beneficiaryIdentifier", Message: "is required"}
	}
	if c.CaseStatus == "" {
		c.CaseStatus = cases.StatusPWD
	}
	if !c.CaseStatus.Valid() {
		return &ValidationError{Field: "caseStatus", Message: fmt.Sprintf("unknown status %q", c.CaseStatus)}
	}
	for _, e := range c.RFIEntries {
		if e.ReceivedDate.IsZero() {
			return &ValidationError{Field: "rfiEntries", Message: "receivedDate is required"}
		}
	}
	for _, e := range c.RFEEntries {
		if e.ReceivedDate.IsZero() || e.ResponseDueDate.IsZero() {
			return &ValidationError{Field: "rfeEntries", Message: "receivedDate and responseDueDate are required"}
		}
	}
	return nil
}

func assignEntryIDs(c *cases.Case) {
	for i := range c.RFIEntries {
		if c.RFIEntries[i].ID == "" {
			c.RFIEntries[i].ID = uuid.NewString()
		}
	}
	for i := range c.RFEEntries {
		if c.RFEEntries[i].ID == "" {
			c.RFEEntries[i].ID = uuid.NewString()
		}
	}
}

// inheritEntryIDs gives entries sent without an id the id of the stored entry
// with the same dates. RFI due dates are derived, so RFIs match on the
// received date alone.
func inheritEntryIDs(c, existing *cases.Case) {
	used := make(map[string]bool)
	for _, e := range c.RFIEntries {
		if e.ID != "" {
			used[e.ID] = true
		}
	}
	for _, e := range c.RFEEntries {
		if e.ID != "" {
			used[e.ID] = true
		}
	}

	for i := range c.RFIEntries {
		e := &c.RFIEntries[i]
		if e.ID != "" {
			continue
		}
		for _, old := range existing.RFIEntries {
			if !used[old.ID] && old.ReceivedDate.Equal(e.ReceivedDate) {
				e.ID = old.ID
				used[old.ID] = true
				break
			}
		}
	}
	for i := range c.RFEEntries {
		e := &c.RFEEntries[i]
		if e.ID != "" {
			continue
		}
		for _, old := range existing.RFEEntries {
			if !used[old.ID] && old.ReceivedDate.Equal(e.ReceivedDate) && old.ResponseDueDate.Equal(e.ResponseDueDate) {
				e.ID = old.ID
				used[old.ID] = true
				break
			}
		}
	}
}

// CreateCase stores a new case for the caller.
func (s *CaseService) CreateCase(ctx context.Context, input cases.Case) (*cases.Case, error) {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	c := input
	if err := validateCase(&c); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	c.ID = uuid.NewString()
	c.UserID = userID
	c.DeletedAt = nil
	c.CreatedAt, c.UpdatedAt = now, now
	assignEntryIDs(&c)
	ApplyDerivedFields(&c)

	if err := s.repo.Create(ctx, &c); err != nil {
		return nil, fmt.Errorf("failed to create case: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"case_id": c.ID, "user_id": userID}).Info("Case created")
	s.alertNewEntries(&c, nil)
	return &c, nil
}

// UpdateCase replaces the editable fields of a case owned by the caller.
func (s *CaseService) UpdateCase(ctx context.Context, id string, input cases.Case) (*cases.Case, error) {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	existing, err := s.ownedCase(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	c := input
	if err := validateCase(&c); err != nil {
		return nil, err
	}
	c.ID = existing.ID
	c.UserID = existing.UserID
	c.CreatedAt = existing.CreatedAt
	c.DeletedAt = existing.DeletedAt
	c.UpdatedAt = s.clock.Now()
	inheritEntryIDs(&c, existing)
	assignEntryIDs(&c)
	ApplyDerivedFields(&c)

	if err := s.repo.Update(ctx, &c); err != nil {
		return nil, fmt.Errorf("failed to update case: %w", err)
	}

	if existing.CaseStatus != c.CaseStatus {
		s.notifyStatusChange(&c, existing.CaseStatus)
	}
	s.alertNewEntries(&c, existing)
	return &c, nil
}

// ownedCase loads a case for a mutation. Missing and foreign cases raise the
// same access error so other users' records are not revealed.
func (s *CaseService) ownedCase(ctx context.Context, userID, id string) (*cases.Case, error) {
	c, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, cases.ErrNotFound) {
		return nil, ErrCaseAccessDenied
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case %s: %w", id, err)
	}
	if c.UserID != userID || c.IsDeleted() {
		return nil, ErrCaseAccessDenied
	}
	return c, nil
}

// GetCase returns the caller's case, or nil when it is missing, foreign or
// the caller is signed out.
func (s *CaseService) GetCase(ctx context.Context, id string) (*cases.Case, error) {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return nil, nil
	}
	c, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, cases.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case %s: %w", id, err)
	}
	if c.UserID != userID || c.IsDeleted() {
		return nil, nil
	}
	return c, nil
}

// ListCases returns the caller's non-deleted cases.
func (s *CaseService) ListCases(ctx context.Context) ([]*cases.Case, error) {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return []*cases.Case{}, nil
	}
	out, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	return out, nil
}

// DeleteCase soft-deletes one of the caller's cases.
func (s *CaseService) DeleteCase(ctx context.Context, id string) error {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	if _, err := s.ownedCase(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id, s.clock.Now()); err != nil {
		return fmt.Errorf("failed to delete case %s: %w", id, err)
	}
	return nil
}

// BulkDeleteCases soft-deletes many cases and reports a per-item tally.
func (s *CaseService) BulkDeleteCases(ctx context.Context, ids []string) (BulkResult, error) {
	if _, ok := s.identity.CurrentUserID(ctx); !ok {
		return BulkResult{}, ErrUnauthenticated
	}
	var res BulkResult
	for _, id := range ids {
		if err := s.DeleteCase(ctx, id); err != nil {
			res.fail(id, err)
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

// DeadlineSummary is the dashboard view of a user's deadlines. Overdue counts
// every open deadline in the past, independent of reminder intervals.
type DeadlineSummary struct {
	Overdue      int             `json:"overdue"`
	DueThisWeek  int             `json:"dueThisWeek"`
	DueThisMonth int             `json:"dueThisMonth"`
	Upcoming     int             `json:"upcoming"`
	Next         *cases.Deadline `json:"next,omitempty"`
	NextCaseID   string          `json:"nextCaseId,omitempty"`
}

// DeadlineSummary aggregates open deadlines across the caller's active cases.
func (s *CaseService) DeadlineSummary(ctx context.Context) (DeadlineSummary, error) {
	var sum DeadlineSummary
	userCases, err := s.ListCases(ctx)
	if err != nil {
		return sum, err
	}
	today := caldate.Of(s.clock.Now().UTC())
	for _, c := range userCases {
		if c.IsClosed() {
			continue
		}
		for _, d := range OpenDeadlines(c) {
			days := d.Date.DaysSince(today)
			switch {
			case days < 0:
				sum.Overdue++
			case days <= 7:
				sum.DueThisWeek++
			case days <= 30:
				sum.DueThisMonth++
			default:
				sum.Upcoming++
			}
		}
		if next, ok := NextDeadline(c, today); ok {
			if sum.Next == nil || next.Date.Before(sum.Next.Date) {
				n := next
				sum.Next = &n
				sum.NextCaseID = c.ID
			}
		}
	}
	return sum, nil
}

// notifyStatusChange defers the status_change notification so the write
// path does not wait on it.
func (s *CaseService) notifyStatusChange(c *cases.Case, previous cases.Status) {
	snapshot := *c
	s.deferrer.RunAfter(0, "status-change-notification", func(ctx context.Context) error {
		content := BuildNotification(notification.TypeStatusChange, ContentContext{
			Case:           &snapshot,
			PreviousStatus: previous,
			NewStatus:      snapshot.CaseStatus,
		})
		return s.notifications.Dispatch(ctx, &notification.Notification{
			UserID:   snapshot.UserID,
			CaseID:   snapshot.ID,
			Type:     notification.TypeStatusChange,
			Title:    content.Title,
			Message:  content.Message,
			Priority: content.Priority,
		}, &snapshot)
	})
}

// alertNewEntries defers an rfi_alert/rfe_alert for every open entry that was
// not present before the write.
func (s *CaseService) alertNewEntries(c *cases.Case, before *cases.Case) {
	known := make(map[string]struct{})
	if before != nil {
		for _, e := range before.RFIEntries {
			known[e.ID] = struct{}{}
		}
		for _, e := range before.RFEEntries {
			known[e.ID] = struct{}{}
		}
	}

	var fresh []cases.Deadline
	for _, e := range c.RFIEntries {
		if _, ok := known[e.ID]; !ok && e.Open() {
			fresh = append(fresh, cases.Deadline{Type: cases.DeadlineRFIDue, Date: e.ResponseDueDate, EntryID: e.ID})
		}
	}
	for _, e := range c.RFEEntries {
		if _, ok := known[e.ID]; !ok && e.Open() {
			fresh = append(fresh, cases.Deadline{Type: cases.DeadlineRFEDue, Date: e.ResponseDueDate, EntryID: e.ID})
		}
	}
	if len(fresh) == 0 {
		return
	}

	snapshot := *c
	s.deferrer.RunAfter(0, "rfi-rfe-alert", func(ctx context.Context) error {
		today := caldate.Of(s.clock.Now().UTC())
		var errs []error
		for _, d := range fresh {
			t := notification.TypeRFIAlert
			if d.Type == cases.DeadlineRFEDue {
				t = notification.TypeRFEAlert
			}
			days := d.Date.DaysSince(today)
			content := BuildNotification(t, ContentContext{
				Case:              &snapshot,
				DeadlineType:      d.Type,
				DeadlineDate:      d.Date,
				DaysUntilDeadline: &days,
			})
			err := s.notifications.Dispatch(ctx, &notification.Notification{
				UserID:       snapshot.UserID,
				CaseID:       snapshot.ID,
				Type:         t,
				Title:        content.Title,
				Message:      content.Message,
				Priority:     content.Priority,
				DeadlineDate: d.Date,
				DeadlineType: d.Type,
			}, &snapshot)
			if err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
