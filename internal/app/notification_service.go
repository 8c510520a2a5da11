// internal/app/notification_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"perm_tracker/internal/domain/caldate"
	"perm_tracker/internal/domain/cases"
	"perm_tracker/internal/domain/mail"
	"perm_tracker/internal/domain/notification"
	"perm_tracker/internal/domain/user"
)

// NotificationConfig tunes the batch jobs.
type NotificationConfig struct {
	RetentionDays     int
	CleanupBatchSize  int
	DigestConcurrency int
	DigestDays        int
	AutoCloseEnabled  bool
}

// DefaultNotificationConfig returns production defaults.
func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		RetentionDays:     90,
		CleanupBatchSize:  1000,
		DigestConcurrency: 4,
		DigestDays:        7,
		AutoCloseEnabled:  true,
	}
}

// NotificationService owns the deadline sweep, the dedup gate, notification
// dispatch and the notification maintenance jobs.
type NotificationService struct {
	caseRepo  cases.Repository
	notifRepo notification.Repository
	prefsRepo user.PreferencesRepository
	mailer    mail.Mailer
	clock     Clock
	metrics   Metrics
	logger    *logrus.Entry
	cfg       NotificationConfig
}

func NewNotificationService(
	cr cases.Repository,
	nr notification.Repository,
	pr user.PreferencesRepository,
	mailer mail.Mailer,
	clock Clock,
	metrics Metrics,
	logger *logrus.Entry,
	cfg NotificationConfig,
) *NotificationService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if cfg.CleanupBatchSize <= 0 {
		cfg.CleanupBatchSize = DefaultNotificationConfig().CleanupBatchSize
	}
	if cfg.DigestConcurrency <= 0 {
		cfg.DigestConcurrency = 1
	}
	if cfg.DigestDays <= 0 {
		cfg.DigestDays = DefaultNotificationConfig().DigestDays
	}
	return &NotificationService{
		caseRepo:  cr,
		notifRepo: nr,
		prefsRepo: pr,
		mailer:    mailer,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// dueReminder is a candidate that passed the dedup gate, together with what
// is needed to render and deliver it.
type dueReminder struct {
	CandidateReminder
	c     *cases.Case
	prefs *user.Preferences
}

// preferenceCache memoizes preferences for the duration of one sweep.
type preferenceCache struct {
	repo  user.PreferencesRepository
	mu    sync.Mutex
	items map[string]*user.Preferences
}

func newPreferenceCache(repo user.PreferencesRepository) *preferenceCache {
	return &preferenceCache{repo: repo, items: make(map[string]*user.Preferences)}
}

func (pc *preferenceCache) get(ctx context.Context, userID string) (*user.Preferences, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if p, ok := pc.items[userID]; ok {
		return p, nil
	}
	p, err := loadPreferences(ctx, pc.repo, userID)
	if err != nil {
		return nil, err
	}
	pc.items[userID] = p
	return p, nil
}

// loadPreferences returns stored preferences, or the defaults when none exist.
func loadPreferences(ctx context.Context, repo user.PreferencesRepository, userID string) (*user.Preferences, error) {
	p, err := repo.Get(ctx, userID)
	if errors.Is(err, user.ErrPreferencesNotFound) {
		return user.DefaultPreferences(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences for user %s: %w", userID, err)
	}
	if len(p.ReminderDaysBefore) == 0 {
		p.ReminderDaysBefore = append([]int(nil), user.DefaultReminderDaysBefore...)
	}
	return p, nil
}

// AlreadyNotified is the dedup gate: any existing reminder with the same
// natural key suppresses a new one.
func (s *NotificationService) AlreadyNotified(ctx context.Context, key notification.ReminderKey) (bool, error) {
	exists, err := s.notifRepo.ExistsReminder(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check existing reminder for case %s: %w", key.CaseID, err)
	}
	return exists, nil
}

// GetCasesNeedingReminders returns today's due reminders that were not sent yet.
func (s *NotificationService) GetCasesNeedingReminders(ctx context.Context) ([]CandidateReminder, error) {
	today := s.today()
	eligible, err := s.caseRepo.ListReminderEligible(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminder-eligible cases: %w", err)
	}
	due, _ := s.collectDue(ctx, today, eligible, newPreferenceCache(s.prefsRepo))
	out := make([]CandidateReminder, 0, len(due))
	for _, d := range due {
		out = append(out, d.CandidateReminder)
	}
	return out, nil
}

// collectDue runs the matcher and the dedup gate over cs. Per-case failures
// are logged and counted, never returned.
func (s *NotificationService) collectDue(ctx context.Context, today caldate.Date, cs []*cases.Case, prefs *preferenceCache) ([]dueReminder, int) {
	var (
		out    []dueReminder
		failed int
	)
	for _, c := range cs {
		log := s.logger.WithFields(logrus.Fields{"case_id": c.ID, "user_id": c.UserID})

		p, err := prefs.get(ctx, c.UserID)
		if err != nil {
			log.WithError(err).Error("Skipping case: could not load preferences")
			failed++
			continue
		}

		for _, cand := range MatchReminders(today, c, p.ReminderDaysBefore) {
			notified, err := s.AlreadyNotified(ctx, cand.Key())
			if err != nil {
				log.WithError(err).WithField("deadline_type", cand.DeadlineType).Error("Skipping reminder: dedup lookup failed")
				failed++
				continue
			}
			if notified {
				log.WithFields(logrus.Fields{
					"deadline_type": cand.DeadlineType,
					"days_until":    cand.DaysUntilDeadline,
				}).Debug("Reminder already sent")
				continue
			}
			out = append(out, dueReminder{CandidateReminder: cand, c: c, prefs: p})
		}
	}
	return out, failed
}

// CheckDeadlineReminders is the daily sweep: auto-close violated cases, find
// due reminders, dedup, persist and deliver. Safe to re-run.
func (s *NotificationService) CheckDeadlineReminders(ctx context.Context) (JobReport, error) {
	log := s.logger.WithField("job", JobDeadlineSweep)
	report := JobReport{Job: JobDeadlineSweep}
	now := s.clock.Now()
	today := caldate.Of(now.UTC())

	eligible, err := s.caseRepo.ListReminderEligible(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list reminder-eligible cases: %w", err)
	}
	report.Scanned = len(eligible)
	log.Infof("Deadline sweep for %s over %d cases", today, len(eligible))

	prefs := newPreferenceCache(s.prefsRepo)
	if s.cfg.AutoCloseEnabled {
		s.autoCloseViolations(ctx, today, eligible, prefs, &report)
	}

	due, failed := s.collectDue(ctx, today, eligible, prefs)
	report.Failed += failed

	for _, d := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		created, sent, err := s.createReminder(ctx, d, now)
		switch {
		case err != nil:
			log.WithError(err).WithFields(logrus.Fields{
				"case_id":       d.CaseID,
				"deadline_type": d.DeadlineType,
			}).Error("Failed to create reminder")
			report.Failed++
		case !created:
			report.Skipped++
		default:
			report.Affected++
			if sent {
				report.EmailsSent++
			}
		}
	}

	log.Info(report.String())
	return report, nil
}

func (s *NotificationService) createReminder(ctx context.Context, d dueReminder, now time.Time) (created bool, emailed bool, err error) {
	t := d.NotificationType()
	days := d.DaysUntilDeadline
	content := BuildNotification(t, ContentContext{
		Case:              d.c,
		DeadlineType:      d.DeadlineType,
		DeadlineDate:      d.DeadlineDate,
		DaysUntilDeadline: &days,
	})

	n := &notification.Notification{
		ID:                uuid.NewString(),
		UserID:            d.UserID,
		CaseID:            d.CaseID,
		Type:              t,
		Title:             content.Title,
		Message:           content.Message,
		Priority:          content.Priority,
		DeadlineDate:      d.DeadlineDate,
		DeadlineType:      d.DeadlineType,
		DaysUntilDeadline: &days,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	created, err = s.notifRepo.CreateReminder(ctx, n)
	if err != nil {
		return false, false, fmt.Errorf("failed to insert reminder: %w", err)
	}
	if !created {
		return false, false, nil
	}
	s.metrics.ReminderCreated(t)
	return true, s.deliver(ctx, n, d.c, d.prefs, now), nil
}

// Dispatch persists a notification produced by a case mutation and applies
// the delivery gate. Email failures are logged only.
func (s *NotificationService) Dispatch(ctx context.Context, n *notification.Notification, c *cases.Case) error {
	now := s.clock.Now()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt, n.UpdatedAt = now, now
	if err := s.notifRepo.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to create %s notification: %w", n.Type, err)
	}
	s.metrics.NotificationCreated(n.Type)

	p, err := loadPreferences(ctx, s.prefsRepo, n.UserID)
	if err != nil {
		s.logger.WithError(err).WithField("notification_id", n.ID).Warn("Notification stored without email: preferences unavailable")
		return nil
	}
	s.deliver(ctx, n, c, p, now)
	return nil
}

// deliver runs the delivery gate and hands the email to the mailer.
func (s *NotificationService) deliver(ctx context.Context, n *notification.Notification, c *cases.Case, p *user.Preferences, now time.Time) bool {
	log := s.logger.WithFields(logrus.Fields{"notification_id": n.ID, "user_id": n.UserID, "type": n.Type})
	if !ShouldSendEmail(n.Type, n.Priority, p, now) {
		reason := SuppressionReason(n.Type, n.Priority, p, now)
		s.metrics.EmailSuppressed(reason)
		log.WithField("reason", reason).Debug("Email suppressed")
		return false
	}

	kind := templateFor(n.Type)
	payload := mail.NotificationPayload{
		Title:        n.Title,
		Message:      n.Message,
		Priority:     string(n.Priority),
		CaseID:       n.CaseID,
		DeadlineDate: n.DeadlineDate.Human(),
		DaysUntil:    n.DaysUntilDeadline,
	}
	if c != nil {
		payload.CaseLabel = c.Label()
	}
	if err := s.mailer.SendEmail(ctx, n.UserID, kind, payload); err != nil {
		s.metrics.EmailFailed(kind)
		log.WithError(err).Warn("Email delivery failed")
		return false
	}
	s.metrics.EmailSent(kind)
	if err := s.notifRepo.MarkEmailSent(ctx, n.ID, now); err != nil {
		log.WithError(err).Warn("Email sent but could not be recorded")
	}
	return true
}

func templateFor(t notification.Type) mail.TemplateKind {
	switch t {
	case notification.TypeDeadlineReminder:
		return mail.TemplateDeadlineReminder
	case notification.TypeStatusChange:
		return mail.TemplateStatusChange
	case notification.TypeRFIAlert:
		return mail.TemplateRFIAlert
	case notification.TypeRFEAlert:
		return mail.TemplateRFEAlert
	case notification.TypeAutoClosure:
		return mail.TemplateAutoClosure
	default:
		return mail.TemplateSystem
	}
}

// DetectViolation reports the first regulatory deadline c has missed as of today.
func DetectViolation(c *cases.Case, today caldate.Date) *Violation {
	if c.IsClosed() || c.IsDeleted() {
		return nil
	}
	etaFiled := !c.ETA9089FilingDate.IsZero()
	if !etaFiled && !c.PWDExpirationDate.IsZero() && c.PWDExpirationDate.Before(today) {
		return &Violation{
			Reason:  ViolationPWDExpired,
			Date:    c.PWDExpirationDate,
			Message: fmt.Sprintf("The PWD expired on %s before ETA-9089 was filed.", c.PWDExpirationDate.Human()),
		}
	}
	if !etaFiled && !c.RecruitmentStartDate.IsZero() && !c.FilingWindowCloses.IsZero() && c.FilingWindowCloses.Before(today) {
		return &Violation{
			Reason:  ViolationFilingWindowMissed,
			Date:    c.FilingWindowCloses,
			Message: fmt.Sprintf("The ETA-9089 filing window closed on %s without a filing.", c.FilingWindowCloses.Human()),
		}
	}
	if c.I140FilingDate.IsZero() {
		expires := c.ETA9089ExpirationDate
		if expires.IsZero() {
			expires = I140FilingDeadline(c)
		}
		if !expires.IsZero() && expires.Before(today) {
			return &Violation{
				Reason:  ViolationETA9089Expired,
				Date:    expires,
				Message: fmt.Sprintf("The ETA-9089 certification expired on %s before I-140 was filed.", expires.Human()),
			}
		}
	}
	return nil
}

// autoCloseViolations closes cases that missed a regulatory deadline. Closed
// cases are updated in place so the reminder pass skips them.
func (s *NotificationService) autoCloseViolations(ctx context.Context, today caldate.Date, cs []*cases.Case, prefs *preferenceCache, report *JobReport) {
	now := s.clock.Now()
	for _, c := range cs {
		v := DetectViolation(c, today)
		if v == nil {
			continue
		}
		log := s.logger.WithFields(logrus.Fields{"case_id": c.ID, "user_id": c.UserID, "reason": v.Reason})

		previous := c.CaseStatus
		c.CaseStatus = cases.StatusClosed
		c.UpdatedAt = now
		if err := s.caseRepo.Update(ctx, c); err != nil {
			c.CaseStatus = previous
			log.WithError(err).Error("Failed to auto-close case")
			report.Failed++
			continue
		}
		s.metrics.CaseAutoClosed(string(v.Reason))
		log.Info("Case closed automatically")

		content := BuildNotification(notification.TypeAutoClosure, ContentContext{Case: c, Violation: v})
		n := &notification.Notification{
			ID:           uuid.NewString(),
			UserID:       c.UserID,
			CaseID:       c.ID,
			Type:         notification.TypeAutoClosure,
			Title:        content.Title,
			Message:      content.Message,
			Priority:     content.Priority,
			DeadlineDate: v.Date,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.notifRepo.Create(ctx, n); err != nil {
			log.WithError(err).Error("Case closed but auto-closure notification failed")
			report.Failed++
			continue
		}
		s.metrics.NotificationCreated(n.Type)
		if p, err := prefs.get(ctx, c.UserID); err == nil {
			if s.deliver(ctx, n, c, p, now) {
				report.EmailsSent++
			}
		}
	}
}

// CleanupOldNotifications deletes read notifications older than the retention
// period, at most one batch per invocation.
func (s *NotificationService) CleanupOldNotifications(ctx context.Context) (JobReport, error) {
	report := JobReport{Job: JobNotificationCleanup}
	cutoff := s.clock.Now().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)

	deleted, err := s.notifRepo.DeleteReadBefore(ctx, cutoff, s.cfg.CleanupBatchSize)
	if err != nil {
		return report, fmt.Errorf("failed to delete old notifications: %w", err)
	}
	report.Affected = int(deleted)
	s.metrics.RowsPurged(JobNotificationCleanup, deleted)

	log := s.logger.WithFields(logrus.Fields{"job": JobNotificationCleanup, "deleted": deleted, "cutoff": cutoff.Format(time.RFC3339)})
	if int(deleted) == s.cfg.CleanupBatchSize {
		log.Info("Cleanup batch full; remaining rows drain on the next run")
	} else {
		log.Info("Notification cleanup finished")
	}
	return report, nil
}

// SendWeeklyDigest emails each opted-in user a summary of deadlines in the
// next week and their unread notifications.
func (s *NotificationService) SendWeeklyDigest(ctx context.Context) (JobReport, error) {
	report := JobReport{Job: JobWeeklyDigest}
	log := s.logger.WithField("job", JobWeeklyDigest)

	recipients, err := s.prefsRepo.ListDigestRecipients(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list digest recipients: %w", err)
	}
	report.Scanned = len(recipients)
	today := s.today()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.DigestConcurrency)
	for _, p := range recipients {
		g.Go(func() error {
			sent, err := s.sendDigest(gctx, p.UserID, today)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				log.WithError(err).WithField("user_id", p.UserID).Error("Weekly digest failed")
				report.Failed++
			case sent:
				report.Affected++
				report.EmailsSent++
			default:
				report.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info(report.String())
	return report, nil
}

// BuildDigest aggregates the digest payload for one user.
func (s *NotificationService) BuildDigest(ctx context.Context, userID string, today caldate.Date) (*mail.DigestPayload, error) {
	userCases, err := s.caseRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	payload := &mail.DigestPayload{WeekOf: today.Human()}
	horizon := today.AddDays(s.cfg.DigestDays)
	for _, c := range userCases {
		if c.IsClosed() || c.IsDeleted() {
			continue
		}
		for _, d := range OpenDeadlines(c) {
			if d.Date.Before(today) {
				payload.OverdueCount++
				continue
			}
			if d.Date.After(horizon) {
				continue
			}
			payload.UpcomingDeadlines = append(payload.UpcomingDeadlines, mail.DigestDeadline{
				CaseID:    c.ID,
				CaseLabel: c.Label(),
				Label:     d.Type.Label(),
				Date:      d.Date.Human(),
				DaysUntil: d.Date.DaysSince(today),
			})
		}
	}

	unread, err := s.notifRepo.ListByUser(ctx, userID, true, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to list unread notifications: %w", err)
	}
	for _, n := range unread {
		payload.UnreadNotifications = append(payload.UnreadNotifications, mail.DigestNotification{
			Title:    n.Title,
			Priority: string(n.Priority),
			Created:  n.CreatedAt.Format("Jan 2"),
		})
	}
	payload.UnreadCount, err = s.notifRepo.CountUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return payload, nil
}

func (s *NotificationService) sendDigest(ctx context.Context, userID string, today caldate.Date) (bool, error) {
	payload, err := s.BuildDigest(ctx, userID, today)
	if err != nil {
		return false, err
	}
	if len(payload.UpcomingDeadlines) == 0 && payload.UnreadCount == 0 && payload.OverdueCount == 0 {
		return false, nil
	}
	if err := s.mailer.SendEmail(ctx, userID, mail.TemplateWeeklyDigest, *payload); err != nil {
		s.metrics.EmailFailed(mail.TemplateWeeklyDigest)
		return false, fmt.Errorf("failed to send digest: %w", err)
	}
	s.metrics.EmailSent(mail.TemplateWeeklyDigest)
	return true, nil
}

func (s *NotificationService) today() caldate.Date {
	return caldate.Of(s.clock.Now().UTC())
}
