package app_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"perm_tracker/internal/domain/caldate"
	"perm_tracker/internal/domain/cases"
	"perm_tracker/internal/domain/mail"
	"perm_tracker/internal/domain/notification"
	"perm_tracker/internal/domain/user"
	"perm_tracker/internal/infra/memory"
)

// fixedClock is a settable clock.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(now time.Time) *fixedClock { return &fixedClock{now: now} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// inlineDeferrer runs deferred work immediately and keeps the errors.
type inlineDeferrer struct {
	mu   sync.Mutex
	errs []error
}

func (d *inlineDeferrer) RunAfter(_ time.Duration, _ string, fn func(ctx context.Context) error) {
	err := fn(context.Background())
	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.errs = append(d.errs, err)
	}
}

type sentEmail struct {
	UserID  string
	Kind    mail.TemplateKind
	Payload any
}

// recordingMailer captures emails and can be told to fail, for everyone or
// for one user.
type recordingMailer struct {
	mu       sync.Mutex
	sent     []sentEmail
	fail     bool
	failUser string
}

func (m *recordingMailer) SendEmail(_ context.Context, userID string, kind mail.TemplateKind, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail || (m.failUser != "" && userID == m.failUser) {
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, sentEmail{UserID: userID, Kind: kind, Payload: payload})
	return nil
}

func (m *recordingMailer) Sent() []sentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentEmail(nil), m.sent...)
}

// sweepTime is 14:00 UTC, when the daily sweep runs.
var sweepTime = time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

func today() caldate.Date { return caldate.Of(sweepTime) }

func newCase(id, userID string) *cases.Case {
	return &cases.Case{
		ID:                    id,
		UserID:                userID,
		EmployerName:          "Acme Corp",
		BeneficiaryIdentifier: "J. Doe",
		CaseStatus:            cases.StatusPWD,
		CreatedAt:             sweepTime.Add(-48 * time.Hour),
		UpdatedAt:             sweepTime.Add(-48 * time.Hour),
	}
}

var errStoreDown = errors.New("store unavailable")

// flakyCases fails updates of one case and purges of one user.
type flakyCases struct {
	*memory.CaseRepository
	failUpdateID string
	failPurgeFor string
}

func (r *flakyCases) Update(ctx context.Context, c *cases.Case) error {
	if c.ID == r.failUpdateID {
		return errStoreDown
	}
	return r.CaseRepository.Update(ctx, c)
}

func (r *flakyCases) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	if userID == r.failPurgeFor {
		return 0, errStoreDown
	}
	return r.CaseRepository.DeleteByUser(ctx, userID)
}

// flakyNotifications fails the dedup lookup or the insert for one case.
type flakyNotifications struct {
	*memory.NotificationRepository
	failLookupFor string
	failInsertFor string
}

func (r *flakyNotifications) ExistsReminder(ctx context.Context, key notification.ReminderKey) (bool, error) {
	if key.CaseID == r.failLookupFor {
		return false, errStoreDown
	}
	return r.NotificationRepository.ExistsReminder(ctx, key)
}

func (r *flakyNotifications) CreateReminder(ctx context.Context, n *notification.Notification) (bool, error) {
	if n.CaseID == r.failInsertFor {
		return false, errStoreDown
	}
	return r.NotificationRepository.CreateReminder(ctx, n)
}

// flakyPreferences fails preference reads for one user.
type flakyPreferences struct {
	*memory.PreferencesRepository
	failUser string
}

func (r *flakyPreferences) Get(ctx context.Context, userID string) (*user.Preferences, error) {
	if userID == r.failUser {
		return nil, errStoreDown
	}
	return r.PreferencesRepository.Get(ctx, userID)
}
