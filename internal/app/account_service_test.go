package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"perm_tracker/internal/app"
	"perm_tracker/internal/domain/notification"
	"perm_tracker/internal/domain/user"
	"perm_tracker/internal/infra/identity"
	"perm_tracker/internal/infra/logger"
	"perm_tracker/internal/infra/memory"
)

type AccountServiceSuite struct {
	suite.Suite
	ctx        context.Context
	clock      *fixedClock
	users      *memory.UserRepository
	prefs      *memory.PreferencesRepository
	cases      *memory.CaseRepository
	notifs     *memory.NotificationRepository
	rateLimits *memory.RateLimitRepository
	svc        *app.AccountService
}

func TestAccountServiceSuite(t *testing.T) {
	suite.Run(t, new(AccountServiceSuite))
}

func (s *AccountServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = newClock(sweepTime)
	s.users = memory.NewUserRepository()
	s.prefs = memory.NewPreferencesRepository(s.users)
	s.cases = memory.NewCaseRepository()
	s.notifs = memory.NewNotificationRepository()
	s.rateLimits = memory.NewRateLimitRepository()
	s.svc = app.NewAccountService(s.users, s.prefs, s.cases, s.notifs, s.rateLimits,
		identity.ContextProvider{}, s.clock, nil, logger.Discard(), app.DefaultAccountConfig())
}

// seedUser stores a user with profile, one case, one notification and preferences.
func (s *AccountServiceSuite) seedUser(id string, deletedAt *time.Time) {
	s.users.Put(&user.User{ID: id, Email: id + "@example.com", DeletedAt: deletedAt}, &user.Profile{UserID: id, FullName: id})
	s.Require().NoError(s.cases.Create(s.ctx, newCase("case-"+id, id)))
	s.Require().NoError(s.notifs.Create(s.ctx, &notification.Notification{ID: "n-" + id, UserID: id, Type: notification.TypeSystem}))
	s.Require().NoError(s.prefs.Upsert(s.ctx, user.DefaultPreferences(id)))
}

func (s *AccountServiceSuite) as(id string) context.Context {
	return identity.WithUser(s.ctx, id)
}

func timePtr(t time.Time) *time.Time { return &t }

func (s *AccountServiceSuite) TestPermanentlyDeleteAccountAfterGracePeriod() {
	s.seedUser("u1", timePtr(sweepTime.Add(-time.Second)))
	s.seedUser("u2", nil)

	res, err := s.svc.PermanentlyDeleteAccount(s.ctx, "u1")
	s.Require().NoError(err)
	s.True(res.Success)
	s.Equal("Account permanently deleted", res.Message)

	_, err = s.users.GetByID(s.ctx, "u1")
	s.ErrorIs(err, user.ErrNotFound)
	_, err = s.users.GetProfile(s.ctx, "u1")
	s.ErrorIs(err, user.ErrProfileNotFound)
	_, err = s.prefs.Get(s.ctx, "u1")
	s.ErrorIs(err, user.ErrPreferencesNotFound)
	_, err = s.cases.GetByID(s.ctx, "case-u1")
	s.Error(err)
	_, err = s.notifs.GetByID(s.ctx, "n-u1")
	s.ErrorIs(err, notification.ErrNotFound)

	_, err = s.users.GetByID(s.ctx, "u2")
	s.NoError(err, "other users are untouched")
	_, err = s.cases.GetByID(s.ctx, "case-u2")
	s.NoError(err)

	s.Run("a second purge reports the user missing", func() {
		res, err := s.svc.PermanentlyDeleteAccount(s.ctx, "u1")
		s.Require().NoError(err)
		s.False(res.Success)
		s.Equal("User not found", res.Message)
	})
}

func (s *AccountServiceSuite) TestPermanentlyDeleteAccountRefusals() {
	s.Run("grace period still running", func() {
		s.seedUser("pending", timePtr(sweepTime.Add(30*24*time.Hour)))
		res, err := s.svc.PermanentlyDeleteAccount(s.ctx, "pending")
		s.Require().NoError(err)
		s.False(res.Success)
		s.Equal("Grace period has not expired", res.Message)

		u, err := s.users.GetByID(s.ctx, "pending")
		s.Require().NoError(err)
		s.NotNil(u.DeletedAt)
		_, err = s.cases.GetByID(s.ctx, "case-pending")
		s.NoError(err)
	})

	s.Run("deletion cancelled", func() {
		s.seedUser("active", nil)
		res, err := s.svc.PermanentlyDeleteAccount(s.ctx, "active")
		s.Require().NoError(err)
		s.False(res.Success)
		s.Equal("Deletion was cancelled", res.Message)
	})

	s.Run("unknown user", func() {
		res, err := s.svc.PermanentlyDeleteAccount(s.ctx, "ghost")
		s.Require().NoError(err)
		s.False(res.Success)
		s.Equal("User not found", res.Message)
	})
}

func (s *AccountServiceSuite) TestPurgeIsRetryableAfterPartialFailure() {
	s.seedUser("u1", timePtr(sweepTime.Add(-time.Hour)))
	s.Require().NoError(s.users.DeleteProfile(s.ctx, "u1"))
	_, err := s.cases.DeleteByUser(s.ctx, "u1")
	s.Require().NoError(err)

	res, err := s.svc.PermanentlyDeleteAccount(s.ctx, "u1")
	s.Require().NoError(err)
	s.True(res.Success)
}

func (s *AccountServiceSuite) TestScheduleAndCancelDeletion() {
	s.seedUser("u1", nil)
	ctx := s.as("u1")

	at, err := s.svc.ScheduleAccountDeletion(ctx)
	s.Require().NoError(err)
	s.Equal(sweepTime.Add(30*24*time.Hour), at)

	st, err := s.svc.DeletionStatus(ctx)
	s.Require().NoError(err)
	s.Equal(user.PhasePendingDeletion, st.Phase)
	s.Equal(at, st.At)

	_, err = s.svc.ScheduleAccountDeletion(ctx)
	s.ErrorIs(err, app.ErrDeletionAlreadyScheduled)

	s.Require().NoError(s.svc.CancelAccountDeletion(ctx))
	st, err = s.svc.DeletionStatus(ctx)
	s.Require().NoError(err)
	s.Equal(user.PhaseActive, st.Phase)

	s.ErrorIs(s.svc.CancelAccountDeletion(ctx), app.ErrDeletionNotScheduled)

	s.Run("expired grace period cannot be cancelled", func() {
		_, err := s.svc.ScheduleAccountDeletion(ctx)
		s.Require().NoError(err)
		s.clock.Set(sweepTime.Add(31 * 24 * time.Hour))
		s.ErrorIs(s.svc.CancelAccountDeletion(ctx), app.ErrGracePeriodExpired)
	})
}

func (s *AccountServiceSuite) TestScheduleDeletionErrors() {
	_, err := s.svc.ScheduleAccountDeletion(s.ctx)
	s.ErrorIs(err, app.ErrUnauthenticated)

	_, err = s.svc.ScheduleAccountDeletion(s.as("ghost"))
	s.ErrorIs(err, app.ErrUserNotFound)

	s.users.Put(&user.User{ID: "noprofile"}, nil)
	_, err = s.svc.ScheduleAccountDeletion(s.as("noprofile"))
	s.ErrorIs(err, app.ErrProfileNotFound)

	st, err := s.svc.DeletionStatus(s.ctx)
	s.Require().NoError(err)
	s.Equal(user.PhasePurged, st.Phase)
}

func (s *AccountServiceSuite) TestProcessExpiredDeletions() {
	s.seedUser("expired-1", timePtr(sweepTime.Add(-48*time.Hour)))
	s.seedUser("expired-2", timePtr(sweepTime))
	s.seedUser("pending", timePtr(sweepTime.Add(time.Hour)))
	s.seedUser("active", nil)

	report, err := s.svc.ProcessExpiredDeletions(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, report.Scanned)
	s.Equal(2, report.Affected)
	s.Equal(0, report.Failed)

	for _, id := range []string{"expired-1", "expired-2"} {
		_, err := s.users.GetByID(s.ctx, id)
		s.ErrorIs(err, user.ErrNotFound, id)
	}
	for _, id := range []string{"pending", "active"} {
		_, err := s.users.GetByID(s.ctx, id)
		s.NoError(err, id)
	}
}

func (s *AccountServiceSuite) TestProcessExpiredDeletionsIsolatesFailures() {
	for _, id := range []string{"expired-1", "expired-2", "expired-3"} {
		s.seedUser(id, timePtr(sweepTime.Add(-time.Hour)))
	}
	caseRepo := &flakyCases{CaseRepository: s.cases, failPurgeFor: "expired-2"}
	svc := app.NewAccountService(s.users, s.prefs, caseRepo, s.notifs, s.rateLimits,
		identity.ContextProvider{}, s.clock, nil, logger.Discard(), app.DefaultAccountConfig())

	report, err := svc.ProcessExpiredDeletions(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, report.Scanned)
	s.Equal(2, report.Affected)
	s.Equal(1, report.Failed)

	for _, id := range []string{"expired-1", "expired-3"} {
		_, err := s.users.GetByID(s.ctx, id)
		s.ErrorIs(err, user.ErrNotFound, id)
	}
	_, err = s.users.GetByID(s.ctx, "expired-2")
	s.NoError(err, "failed purge keeps the user for the next sweep")

	caseRepo.failPurgeFor = ""
	report, err = svc.ProcessExpiredDeletions(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Affected)
	s.Equal(0, report.Failed)
	_, err = s.users.GetByID(s.ctx, "expired-2")
	s.ErrorIs(err, user.ErrNotFound)
}

func (s *AccountServiceSuite) TestCleanupRateLimits() {
	s.rateLimits.Record(sweepTime.Add(-25 * time.Hour))
	s.rateLimits.Record(sweepTime.Add(-48 * time.Hour))
	s.rateLimits.Record(sweepTime.Add(-time.Hour))

	report, err := s.svc.CleanupRateLimits(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, report.Affected)
	s.Equal(1, s.rateLimits.Len())
}
