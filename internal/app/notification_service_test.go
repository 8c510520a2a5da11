package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"perm_tracker/internal/app"
	"perm_tracker/internal/domain/cases"
	"perm_tracker/internal/domain/mail"
	"perm_tracker/internal/domain/notification"
	"perm_tracker/internal/domain/user"
	"perm_tracker/internal/infra/logger"
	"perm_tracker/internal/infra/memory"
)

type NotificationServiceSuite struct {
	suite.Suite
	ctx    context.Context
	clock  *fixedClock
	cases  *memory.CaseRepository
	notifs *memory.NotificationRepository
	users  *memory.UserRepository
	prefs  *memory.PreferencesRepository
	mailer *recordingMailer
	cfg    app.NotificationConfig
	svc    *app.NotificationService
}

func TestNotificationServiceSuite(t *testing.T) {
	suite.Run(t, new(NotificationServiceSuite))
}

func (s *NotificationServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = newClock(sweepTime)
	s.cases = memory.NewCaseRepository()
	s.notifs = memory.NewNotificationRepository()
	s.users = memory.NewUserRepository()
	s.prefs = memory.NewPreferencesRepository(s.users)
	s.mailer = &recordingMailer{}
	s.cfg = app.DefaultNotificationConfig()
	s.rebuild()
}

func (s *NotificationServiceSuite) rebuild() {
	s.svc = app.NewNotificationService(s.cases, s.notifs, s.prefs, s.mailer, s.clock, nil, logger.Discard(), s.cfg)
}

func (s *NotificationServiceSuite) addCase(c *cases.Case) {
	s.Require().NoError(s.cases.Create(s.ctx, c))
}

func (s *NotificationServiceSuite) setPrefs(p *user.Preferences) {
	s.Require().NoError(s.prefs.Upsert(s.ctx, p))
}

func (s *NotificationServiceSuite) TestSweepCreatesExactlyOneReminder() {
	c := newCase("c1", "u1")
	c.PWDExpirationDate = today().AddDays(7)
	s.addCase(c)

	report, err := s.svc.CheckDeadlineReminders(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Scanned)
	s.Equal(1, report.Affected)
	s.Equal(1, report.EmailsSent)

	all := s.notifs.All()
	s.Require().Len(all, 1)
	n := all[0]
	s.Equal(notification.TypeDeadlineReminder, n.Type)
	s.Equal(cases.DeadlinePWDExpiration, n.DeadlineType)
	s.Equal(c.PWDExpirationDate, n.DeadlineDate)
	s.Require().NotNil(n.DaysUntilDeadline)
	s.Equal(7, *n.DaysUntilDeadline)
	s.Equal(notification.PriorityUrgent, n.Priority)
	s.Equal("PWD Expiration in 7 days", n.Title)
	s.True(n.EmailSent)
	s.NotNil(n.EmailSentAt)

	sent := s.mailer.Sent()
	s.Require().Len(sent, 1)
	s.Equal(mail.TemplateDeadlineReminder, sent[0].Kind)
	s.Equal("u1", sent[0].UserID)

	s.Run("second sweep on the same day creates nothing", func() {
		report, err := s.svc.CheckDeadlineReminders(s.ctx)
		s.Require().NoError(err)
		s.Equal(0, report.Affected)
		s.Len(s.notifs.All(), 1)
		s.Len(s.mailer.Sent(), 1)
	})

	s.Run("next interval on a later day creates a new reminder", func() {
		s.clock.Set(sweepTime.Add(4 * 24 * time.Hour))
		report, err := s.svc.CheckDeadlineReminders(s.ctx)
		s.Require().NoError(err)
		s.Equal(1, report.Affected)
		s.Len(s.notifs.All(), 2)
	})
}

func (s *NotificationServiceSuite) TestNoReminderBetweenIntervals() {
	c := newCase("c1", "u1")
	c.PWDExpirationDate = today().AddDays(8)
	s.addCase(c)

	report, err := s.svc.CheckDeadlineReminders(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, report.Affected)
	s.Empty(s.notifs.All())
}

func (s *NotificationServiceSuite) TestGetCasesNeedingReminders() {
	closed := newCase("closed", "u1")
	closed.CaseStatus = cases.StatusClosed
	closed.PWDExpirationDate = today().AddDays(7)
	s.addCase(closed)

	deleted := newCase("deleted", "u1")
	deleted.PWDExpirationDate = today().AddDays(7)
	s.addCase(deleted)
	s.Require().NoError(s.cases.SoftDelete(s.ctx, "deleted", sweepTime.Add(-time.Hour)))

	open := newCase("open", "u1")
	open.PWDExpirationDate = today().AddDays(7)
	s.addCase(open)

	due, err := s.svc.GetCasesNeedingReminders(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal("open", due[0].CaseID)

	_, err = s.svc.CheckDeadlineReminders(s.ctx)
	s.Require().NoError(err)

	due, err = s.svc.GetCasesNeedingReminders(s.ctx)
	s.Require().NoError(err)
	s.Empty(due)
}

func (s *NotificationServiceSuite) TestAlreadyNotifiedIgnoresNotificationType() {
	days := 3
	existing := &notification.Notification{
		ID:                "n1",
		UserID:            "u1",
		CaseID:            "c1",
		Type:              notification.TypeRFIAlert,
		DeadlineType:      cases.DeadlinePWDExpiration,
		DeadlineDate:      today().AddDays(3),
		DaysUntilDeadline: &days,
		CreatedAt:         sweepTime,
	}
	s.Require().NoError(s.notifs.Create(s.ctx, existing))

	key, ok := existing.ReminderKey()
	s.Require().True(ok)
	notified, err := s.svc.AlreadyNotified(s.ctx, key)
	s.Require().NoError(err)
	s.True(notified)

	key.DaysUntilDeadline = 1
	notified, err = s.svc.AlreadyNotified(s.ctx, key)
	s.Require().NoError(err)
	s.False(notified)
}

func (s *NotificationServiceSuite) TestOverdueReminderWithNegativeInterval() {
	p := user.DefaultPreferences("u1")
	p.ReminderDaysBefore = []int{-1, 7}
	s.setPrefs(p)

	c := newCase("c1", "u1")
	c.CaseStatus = cases.StatusI140
	c.RFEEntries = cases.RFEEntries{{ID: "e1", ReceivedDate: today().AddDays(-60), ResponseDueDate: today().AddDays(-1)}}
	s.addCase(c)

	report, err := s.svc.CheckDeadlineReminders(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Affected)

	all := s.notifs.All()
	s.Require().Len(all, 1)
	s.Equal(notification.TypeRFEAlert, all[0].Type)
	s.Equal("RFE Response Due Overdue", all[0].Title)
	s.Equal(-1, *all[0].DaysUntilDeadline)
	s.Equal(notification.PriorityUrgent, all[0].Priority)
	s.Len(s.mailer.Sent(), 1)
	s.Equal(mail.TemplateRFEAlert, s.mailer.Sent()[0].Kind)
}

func (s *NotificationServiceSuite) TestAutoClosure() {
	expired := newCase("expired", "u1")
	expired.PWDExpirationDate = today().AddDays(-1)
	s.addCase(expired)

	filed := newCase("filed", "u1")
	filed.CaseStatus = cases.StatusETA9089
	filed.PWDExpirationDate = today().AddDays(-1)
	filed.ETA9089FilingDate = today().AddDays(-20)
	s.addCase(filed)

	report, err := s.svc.CheckDeadlineReminders(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, report.Failed)

	got, err := s.cases.GetByID(s.ctx, "expired")
	s.Require().NoError(err)
	s.Equal(cases.StatusClosed, got.CaseStatus)

	got, err = s.cases.GetByID(s.ctx, "filed")
	s.Require().NoError(err)
	s.Equal(cases.StatusETA9089, got.CaseStatus)

	all := s.notifs.All()
	s.Require().Len(all, 1)
	s.Equal(notification.TypeAutoClosure, all[0].Type)
	s.Equal("expired", all[0].CaseID)
	s.Equal("PWD Expired - Case Closed", all[0].Title)
	s.Equal(notification.PriorityHigh, all[0].Priority)
	s.Equal(1, report.EmailsSent)

	s.Run("closed cases leave the sweep", func() {
		report, err := s.svc.CheckDeadlineReminders(s.ctx)
		s.Require().NoError(err)
		s.Equal(1, report.Scanned)
		s.Len(s.notifs.All(), 1)
	})
}

func (s *NotificationServiceSuite) TestAutoClosureDisabled() {
	s.cfg.AutoCloseEnabled = false
	s.rebuild()

	c := newCase("c1", "u1")
	c.PWDExpirationDate = today().AddDays(-1)
	s.addCase(c)

	_, err := s.svc.CheckDeadlineReminders(s.ctx)
	s.Require().NoError(err)

	got, err := s.cases.GetByID(s.ctx, "c1")
	s.Require().NoError(err)
	s.Equal(cases.StatusPWD, got.CaseStatus)
	s.Empty(s.notifs.All())
}

func (s *NotificationServiceSuite) TestDetectViolation() {
	s.Run("filing window missed", func() {
		c := newCase("c1", "u1")
		c.CaseStatus = cases.StatusRecruitment
		c.PWDExpirationDate = today().AddDays(60)
		c.RecruitmentStartDate = today().AddDays(-200)
		c.FilingWindowCloses = today().AddDays(-20)
		v := app.DetectViolation(c, today())
		s.Require().NotNil(v)
		s.Equal(app.ViolationFilingWindowMissed, v.Reason)
	})

	s.Run("certification expired before I-140", func() {
		c := newCase("c1", "u1")
		c.CaseStatus = cases.StatusETA9089
		c.ETA9089FilingDate = today().AddDays(-400)
		c.ETA9089CertificationDate = today().AddDays(-181)
		v := app.DetectViolation(c, today())
		s.Require().NotNil(v)
		s.Equal(app.ViolationETA9089Expired, v.Reason)

		c.I140FilingDate = today().AddDays(-10)
		s.Nil(app.DetectViolation(c, today()))
	})

	s.Run("deadline today is not missed", func() {
		c := newCase("c1", "u1")
		c.PWDExpirationDate = today()
		s.Nil(app.DetectViolation(c, today()))
	})
}

func (s *NotificationServiceSuite) TestQuietHoursSuppressEmailOnly() {
	s.clock.Set(time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC))
	p := user.DefaultPreferences("u1")
	p.QuietHoursEnabled = true
	s.setPrefs(p)

	c := newCase("c1", "u1")
	c.PWDExpirationDate = today().AddDays(14)
	s.addCase(c)

	report, err := s.svc.CheckDeadlineReminders(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Affected)
	s.Equal(0, report.EmailsSent)

	all := s.notifs.All()
	s.Require().Len(all, 1)
	s.Equal(notification.PriorityHigh, all[0].Priority)
	s.False(all[0].EmailSent)
	s.Empty(s.mailer.Sent())
}

func (s *NotificationServiceSuite) TestMailerFailureKeepsNotification() {
	s.mailer.fail = true

	c := newCase("c1", "u1")
	c.PWDExpirationDate = today().AddDays(3)
	s.addCase(c)

	report, err := s.svc.CheckDeadlineReminders(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Affected)
	s.Equal(0, report.Failed)
	s.Equal(0, report.EmailsSent)

	all := s.notifs.All()
	s.Require().Len(all, 1)
	s.False(all[0].EmailSent)
}

func (s *NotificationServiceSuite) TestDispatch() {
	n := &notification.Notification{
		UserID:   "u1",
		CaseID:   "c1",
		Type:     notification.TypeStatusChange,
		Title:    "Case Status Updated to I-140",
		Message:  "moved",
		Priority: notification.PriorityNormal,
	}
	s.Require().NoError(s.svc.Dispatch(s.ctx, n, newCase("c1", "u1")))

	s.NotEmpty(n.ID)
	stored, err := s.notifs.GetByID(s.ctx, n.ID)
	s.Require().NoError(err)
	s.True(stored.EmailSent)
	s.Equal(sweepTime, stored.CreatedAt)

	sent := s.mailer.Sent()
	s.Require().Len(sent, 1)
	s.Equal(mail.TemplateStatusChange, sent[0].Kind)
	payload, ok := sent[0].Payload.(mail.NotificationPayload)
	s.Require().True(ok)
	s.Equal("J. Doe at Acme Corp", payload.CaseLabel)
}

func (s *NotificationServiceSuite) TestCleanupOldNotifications() {
	readAt := func(days int) *time.Time {
		t := sweepTime.Add(-time.Duration(days) * 24 * time.Hour)
		return &t
	}
	old := readAt(91)
	recent := readAt(50)
	s.Require().NoError(s.notifs.Create(s.ctx, &notification.Notification{ID: "old", UserID: "u1", IsRead: true, ReadAt: old, CreatedAt: *old}))
	s.Require().NoError(s.notifs.Create(s.ctx, &notification.Notification{ID: "recent", UserID: "u1", IsRead: true, ReadAt: recent, CreatedAt: *recent}))
	s.Require().NoError(s.notifs.Create(s.ctx, &notification.Notification{ID: "unread", UserID: "u1", CreatedAt: *old}))

	report, err := s.svc.CleanupOldNotifications(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Affected)

	_, err = s.notifs.GetByID(s.ctx, "old")
	s.ErrorIs(err, notification.ErrNotFound)
	_, err = s.notifs.GetByID(s.ctx, "recent")
	s.NoError(err)
	_, err = s.notifs.GetByID(s.ctx, "unread")
	s.NoError(err)
}

func (s *NotificationServiceSuite) TestCleanupRespectsBatchSize() {
	s.cfg.CleanupBatchSize = 2
	s.rebuild()

	for i, id := range []string{"a", "b", "c"} {
		readAt := sweepTime.Add(-time.Duration(100+i) * 24 * time.Hour)
		s.Require().NoError(s.notifs.Create(s.ctx, &notification.Notification{ID: id, UserID: "u1", IsRead: true, ReadAt: &readAt}))
	}

	report, err := s.svc.CleanupOldNotifications(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, report.Affected)

	remaining := s.notifs.All()
	s.Require().Len(remaining, 1)
	s.Equal("a", remaining[0].ID, "oldest reads go first")
}

func (s *NotificationServiceSuite) TestSendWeeklyDigest() {
	for _, id := range []string{"u1", "u2", "u3"} {
		s.users.Put(&user.User{ID: id, Email: id + "@example.com"}, nil)
	}
	s.setPrefs(user.DefaultPreferences("u1"))
	optedOut := user.DefaultPreferences("u2")
	optedOut.EmailWeeklyDigest = false
	s.setPrefs(optedOut)
	s.setPrefs(user.DefaultPreferences("u3"))

	for _, uid := range []string{"u1", "u2"} {
		c := newCase("case-"+uid, uid)
		c.PWDExpirationDate = today().AddDays(3)
		c.ETA9089ExpirationDate = today().AddDays(40)
		s.addCase(c)
	}
	s.Require().NoError(s.notifs.Create(s.ctx, &notification.Notification{
		ID: "n1", UserID: "u1", Title: "Unread", Priority: notification.PriorityHigh, CreatedAt: sweepTime,
	}))

	report, err := s.svc.SendWeeklyDigest(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, report.Scanned)
	s.Equal(1, report.EmailsSent)
	s.Equal(1, report.Skipped, "nothing to report for u3")

	sent := s.mailer.Sent()
	s.Require().Len(sent, 1)
	s.Equal("u1", sent[0].UserID)
	s.Equal(mail.TemplateWeeklyDigest, sent[0].Kind)

	payload, ok := sent[0].Payload.(mail.DigestPayload)
	s.Require().True(ok)
	s.Require().Len(payload.UpcomingDeadlines, 1)
	s.Equal("PWD Expiration", payload.UpcomingDeadlines[0].Label)
	s.Equal(3, payload.UpcomingDeadlines[0].DaysUntil)
	s.Equal(1, payload.UnreadCount)
	s.Require().Len(payload.UnreadNotifications, 1)
	s.Equal("Unread", payload.UnreadNotifications[0].Title)
}

func (s *NotificationServiceSuite) TestDigestSkipsUsersPendingDeletion() {
	deletedAt := sweepTime.Add(24 * time.Hour)
	s.users.Put(&user.User{ID: "u1", DeletedAt: &deletedAt}, nil)
	s.setPrefs(user.DefaultPreferences("u1"))

	c := newCase("c1", "u1")
	c.PWDExpirationDate = today().AddDays(2)
	s.addCase(c)

	report, err := s.svc.SendWeeklyDigest(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, report.Scanned)
	s.Empty(s.mailer.Sent())
}

func (s *NotificationServiceSuite) TestSweepIsolatesFailingCases() {
	caseRepo := &flakyCases{CaseRepository: s.cases, failUpdateID: "c-close"}
	notifRepo := &flakyNotifications{NotificationRepository: s.notifs, failLookupFor: "c-lookup", failInsertFor: "c-insert"}
	prefsRepo := &flakyPreferences{PreferencesRepository: s.prefs, failUser: "u-prefs"}
	svc := app.NewNotificationService(caseRepo, notifRepo, prefsRepo, s.mailer, s.clock, nil, logger.Discard(), s.cfg)

	for id, uid := range map[string]string{
		"c-prefs":  "u-prefs",
		"c-lookup": "u-lookup",
		"c-insert": "u-insert",
		"c-ok-1":   "u-ok-1",
		"c-ok-2":   "u-ok-2",
	} {
		c := newCase(id, uid)
		c.PWDExpirationDate = today().AddDays(7)
		s.addCase(c)
	}
	expired := newCase("c-close", "u-close")
	expired.PWDExpirationDate = today().AddDays(-1)
	s.addCase(expired)

	report, err := svc.CheckDeadlineReminders(s.ctx)
	s.Require().NoError(err)
	s.Equal(6, report.Scanned)
	s.Equal(4, report.Failed)
	s.Equal(2, report.Affected)
	s.Equal(2, report.EmailsSent)

	var reminded []string
	for _, n := range s.notifs.All() {
		s.Equal(notification.TypeDeadlineReminder, n.Type)
		reminded = append(reminded, n.CaseID)
	}
	s.ElementsMatch([]string{"c-ok-1", "c-ok-2"}, reminded)

	stillOpen, err := s.cases.GetByID(s.ctx, "c-close")
	s.Require().NoError(err)
	s.Equal(cases.StatusPWD, stillOpen.CaseStatus, "failed auto-close leaves the case untouched")

	s.Run("failed items are picked up once the store recovers", func() {
		caseRepo.failUpdateID = ""
		notifRepo.failLookupFor, notifRepo.failInsertFor = "", ""
		prefsRepo.failUser = ""

		report, err := svc.CheckDeadlineReminders(s.ctx)
		s.Require().NoError(err)
		s.Equal(0, report.Failed)
		s.Equal(3, report.Affected)
		s.Len(s.notifs.All(), 6, "three reminders plus one auto-closure")
	})
}

func (s *NotificationServiceSuite) TestDigestIncludesUsersWithoutStoredPreferences() {
	s.users.Put(&user.User{ID: "u9", Email: "u9@example.com"}, nil)
	s.users.Put(&user.User{ID: "u2", Email: "u2@example.com"}, nil)
	optedOut := user.DefaultPreferences("u2")
	optedOut.EmailWeeklyDigest = false
	s.setPrefs(optedOut)

	for _, uid := range []string{"u9", "u2"} {
		c := newCase("case-"+uid, uid)
		c.PWDExpirationDate = today().AddDays(3)
		s.addCase(c)
	}

	report, err := s.svc.SendWeeklyDigest(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Scanned)
	s.Equal(1, report.EmailsSent)

	sent := s.mailer.Sent()
	s.Require().Len(sent, 1)
	s.Equal("u9", sent[0].UserID)
	s.Equal(mail.TemplateWeeklyDigest, sent[0].Kind)
}

func (s *NotificationServiceSuite) TestDigestIsolatesMailerFailures() {
	for _, uid := range []string{"u1", "u2", "u3"} {
		s.users.Put(&user.User{ID: uid, Email: uid + "@example.com"}, nil)
		c := newCase("case-"+uid, uid)
		c.PWDExpirationDate = today().AddDays(2)
		s.addCase(c)
	}
	s.mailer.failUser = "u2"

	report, err := s.svc.SendWeeklyDigest(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, report.Scanned)
	s.Equal(1, report.Failed)
	s.Equal(2, report.EmailsSent)

	var recipients []string
	for _, e := range s.mailer.Sent() {
		recipients = append(recipients, e.UserID)
	}
	s.ElementsMatch([]string{"u1", "u3"}, recipients)
}
