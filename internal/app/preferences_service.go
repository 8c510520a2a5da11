package app

import (
	"context"
	"fmt"
	"time"

	"perm_tracker/internal/domain/identity"
	"perm_tracker/internal/domain/user"
)

// PreferencesService reads and validates notification preferences.
type PreferencesService struct {
	repo     user.PreferencesRepository
	identity identity.Provider
	clock    Clock
}

func NewPreferencesService(repo user.PreferencesRepository, idp identity.Provider, clock Clock) *PreferencesService {
	return &PreferencesService{repo: repo, identity: idp, clock: clock}
}

// Get returns the caller's preferences, the defaults if none were saved, or
// nil for signed-out callers.
func (s *PreferencesService) Get(ctx context.Context) (*user.Preferences, error) {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return nil, nil
	}
	return loadPreferences(ctx, s.repo, userID)
}

// Update validates and stores the caller's preferences.
func (s *PreferencesService) Update(ctx context.Context, p user.Preferences) (*user.Preferences, error) {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	if err := ValidatePreferences(&p); err != nil {
		return nil, err
	}

	current, err := loadPreferences(ctx, s.repo, userID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	p.UserID = userID
	p.CreatedAt = current.CreatedAt
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if err := s.repo.Upsert(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to save preferences: %w", err)
	}
	return &p, nil
}

// ValidatePreferences checks and normalizes p in place.
func ValidatePreferences(p *user.Preferences) error {
	if len(p.ReminderDaysBefore) == 0 {
		return &ValidationError{Field: "reminderDaysBefore", Message: "at least one interval is required"}
	}
	for _, d := range p.ReminderDaysBefore {
		if d < -365 || d > 365 {
			return &ValidationError{Field: "reminderDaysBefore", Message: fmt.Sprintf("%d is out of range", d)}
		}
	}
	p.ReminderDaysBefore = user.NormalizeReminderDays(p.ReminderDaysBefore)

	if p.Timezone == "" {
		p.Timezone = user.DefaultTimezone
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return &ValidationError{Field: "timezone", Message: fmt.Sprintf("unknown timezone %q", p.Timezone)}
	}
	if p.QuietHoursEnabled {
		if _, err := ParseClock(p.QuietHoursStart); err != nil {
			return &ValidationError{Field: "quietHoursStart", Message: "must be HH:MM"}
		}
		if _, err := ParseClock(p.QuietHoursEnd); err != nil {
			return &ValidationError{Field: "quietHoursEnd", Message: "must be HH:MM"}
		}
	}
	return nil
}
