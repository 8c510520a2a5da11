package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"perm_tracker/internal/domain/cases"
	"perm_tracker/internal/domain/identity"
	"perm_tracker/internal/domain/notification"
	"perm_tracker/internal/domain/user"
)

// AccountConfig tunes the deletion lifecycle and auth maintenance.
type AccountConfig struct {
	GracePeriod        time.Duration
	DeletionBatchSize  int
	RateLimitRetention time.Duration
}

func DefaultAccountConfig() AccountConfig {
	return AccountConfig{
		GracePeriod:        30 * 24 * time.Hour,
		DeletionBatchSize:  100,
		RateLimitRetention: 24 * time.Hour,
	}
}

// DeletionResult is the outcome of a permanent deletion attempt.
type DeletionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AccountService runs the account-deletion lifecycle.
type AccountService struct {
	users      user.Repository
	prefs      user.PreferencesRepository
	caseRepo   cases.Repository
	notifRepo  notification.Repository
	rateLimits user.RateLimitRepository
	identity   identity.Provider
	clock      Clock
	metrics    Metrics
	logger     *logrus.Entry
	cfg        AccountConfig
}

func NewAccountService(
	users user.Repository,
	prefs user.PreferencesRepository,
	cr cases.Repository,
	nr notification.Repository,
	rl user.RateLimitRepository,
	idp identity.Provider,
	clock Clock,
	metrics Metrics,
	logger *logrus.Entry,
	cfg AccountConfig,
) *AccountService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if cfg.DeletionBatchSize <= 0 {
		cfg.DeletionBatchSize = DefaultAccountConfig().DeletionBatchSize
	}
	return &AccountService{
		users:      users,
		prefs:      prefs,
		caseRepo:   cr,
		notifRepo:  nr,
		rateLimits: rl,
		identity:   idp,
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// DeletionStatus returns the caller's deletion state. Unauthenticated callers
// get the purged state rather than an error.
func (s *AccountService) DeletionStatus(ctx context.Context) (user.DeletionState, error) {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return user.DeletionState{Phase: user.PhasePurged}, nil
	}
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, user.ErrNotFound) {
		return user.ClassifyDeletion(nil, s.clock.Now()), nil
	}
	if err != nil {
		return user.DeletionState{}, fmt.Errorf("failed to load user: %w", err)
	}
	return user.ClassifyDeletion(u, s.clock.Now()), nil
}

// ScheduleAccountDeletion starts the grace period for the caller's account.
func (s *AccountService) ScheduleAccountDeletion(ctx context.Context) (time.Time, error) {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return time.Time{}, ErrUnauthenticated
	}
	u, err := s.loadUserWithProfile(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}

	now := s.clock.Now()
	switch st := user.ClassifyDeletion(u, now); st.Phase {
	case user.PhasePendingDeletion:
		return st.At, ErrDeletionAlreadyScheduled
	case user.PhaseDeletionExpired:
		return st.At, ErrGracePeriodExpired
	}

	at := now.Add(s.cfg.GracePeriod)
	if err := s.users.SetDeletedAt(ctx, userID, &at); err != nil {
		return time.Time{}, fmt.Errorf("failed to schedule deletion: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"user_id": userID, "deleted_at": at.Format(time.RFC3339)}).Info("Account deletion scheduled")
	return at, nil
}

// CancelAccountDeletion clears a pending deletion during its grace period.
func (s *AccountService) CancelAccountDeletion(ctx context.Context) error {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	u, err := s.loadUserWithProfile(ctx, userID)
	if err != nil {
		return err
	}

	switch user.ClassifyDeletion(u, s.clock.Now()).Phase {
	case user.PhaseActive:
		return ErrDeletionNotScheduled
	case user.PhaseDeletionExpired:
		return ErrGracePeriodExpired
	}

	if err := s.users.SetDeletedAt(ctx, userID, nil); err != nil {
		return fmt.Errorf("failed to cancel deletion: %w", err)
	}
	s.logger.WithField("user_id", userID).Info("Account deletion cancelled")
	return nil
}

func (s *AccountService) loadUserWithProfile(ctx context.Context, userID string) (*user.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if _, err := s.users.GetProfile(ctx, userID); err != nil {
		if errors.Is(err, user.ErrProfileNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return u, nil
}

// PermanentlyDeleteAccount purges a user whose grace period has expired.
// Every delete is idempotent, so a partially completed purge can be retried.
func (s *AccountService) PermanentlyDeleteAccount(ctx context.Context, userID string) (DeletionResult, error) {
	log := s.logger.WithField("user_id", userID)

	u, err := s.users.GetByID(ctx, userID)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return DeletionResult{}, fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	if err != nil {
		u = nil
	}

	switch user.ClassifyDeletion(u, s.clock.Now()).Phase {
	case user.PhasePurged:
		return DeletionResult{Message: ErrUserNotFound.Error()}, nil
	case user.PhaseActive:
		return DeletionResult{Message: ErrDeletionNotScheduled.Error()}, nil
	case user.PhasePendingDeletion:
		return DeletionResult{Message: ErrGracePeriodNotExpired.Error()}, nil
	}

	if err := s.users.DeleteProfile(ctx, userID); err != nil {
		return DeletionResult{}, fmt.Errorf("failed to delete profile: %w", err)
	}
	deletedCases, err := s.caseRepo.DeleteByUser(ctx, userID)
	if err != nil {
		return DeletionResult{}, fmt.Errorf("failed to delete cases: %w", err)
	}
	deletedNotifs, err := s.notifRepo.DeleteByUser(ctx, userID)
	if err != nil {
		return DeletionResult{}, fmt.Errorf("failed to delete notifications: %w", err)
	}
	if err := s.prefs.Delete(ctx, userID); err != nil {
		return DeletionResult{}, fmt.Errorf("failed to delete preferences: %w", err)
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return DeletionResult{}, fmt.Errorf("failed to delete user: %w", err)
	}

	s.metrics.AccountPurged()
	log.WithFields(logrus.Fields{
		"cases":         deletedCases,
		"notifications": deletedNotifs,
	}).Info("Account permanently deleted")
	return DeletionResult{Success: true, Message: "Account permanently deleted"}, nil
}

// ProcessExpiredDeletions is the hourly safety net that purges every account
// whose grace period is over. One failure never blocks the others.
func (s *AccountService) ProcessExpiredDeletions(ctx context.Context) (JobReport, error) {
	report := JobReport{Job: JobDeletionSweep}
	log := s.logger.WithField("job", JobDeletionSweep)

	expired, err := s.users.ListExpiredDeletions(ctx, s.clock.Now(), s.cfg.DeletionBatchSize)
	if err != nil {
		return report, fmt.Errorf("failed to list expired deletions: %w", err)
	}
	report.Scanned = len(expired)

	for _, u := range expired {
		res, err := s.PermanentlyDeleteAccount(ctx, u.ID)
		switch {
		case err != nil:
			log.WithError(err).WithField("user_id", u.ID).Error("Permanent deletion failed")
			report.Failed++
		case !res.Success:
			log.WithFields(logrus.Fields{"user_id": u.ID, "reason": res.Message}).Warn("Permanent deletion skipped")
			report.Skipped++
		default:
			report.Affected++
		}
	}

	log.Info(report.String())
	return report, nil
}

// CleanupRateLimits purges auth rate-limit records past their retention.
func (s *AccountService) CleanupRateLimits(ctx context.Context) (JobReport, error) {
	report := JobReport{Job: JobRateLimitCleanup}
	cutoff := s.clock.Now().Add(-s.cfg.RateLimitRetention)

	deleted, err := s.rateLimits.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("failed to delete rate-limit records: %w", err)
	}
	report.Affected = int(deleted)
	s.metrics.RowsPurged(JobRateLimitCleanup, deleted)
	s.logger.WithFields(logrus.Fields{"job": JobRateLimitCleanup, "deleted": deleted}).Info("Rate-limit cleanup finished")
	return report, nil
}
