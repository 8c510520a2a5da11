// internal/app/delivery_gate.go
package app

import (
	"fmt"
	"time"

	"perm_tracker/internal/domain/notification"
	"perm_tracker/internal/domain/user"
)

// ShouldSendEmail decides whether a notification is also delivered by email.
// now is converted to the user's timezone for the quiet-hours check.
func ShouldSendEmail(t notification.Type, p notification.Priority, prefs *user.Preferences, now time.Time) bool {
	if prefs == nil || !prefs.EmailNotificationsEnabled {
		return false
	}
	if !categoryEnabled(t, prefs) {
		return false
	}
	if p == notification.PriorityUrgent {
		return true
	}
	if prefs.QuietHoursEnabled && InQuietHours(prefs, now) {
		return false
	}
	return true
}

// SuppressionReason explains a false ShouldSendEmail result for metrics and logs.
func SuppressionReason(t notification.Type, p notification.Priority, prefs *user.Preferences, now time.Time) string {
	switch {
	case prefs == nil || !prefs.EmailNotificationsEnabled:
		return "email_disabled"
	case !categoryEnabled(t, prefs):
		return "category_disabled"
	case p != notification.PriorityUrgent && prefs.QuietHoursEnabled && InQuietHours(prefs, now):
		return "quiet_hours"
	default:
		return ""
	}
}

// categoryEnabled applies the per-type toggle. Types without a toggle pass.
func categoryEnabled(t notification.Type, prefs *user.Preferences) bool {
	switch t {
	case notification.TypeDeadlineReminder:
		return prefs.EmailDeadlineReminders
	case notification.TypeStatusChange:
		return prefs.EmailStatusUpdates
	case notification.TypeRFIAlert, notification.TypeRFEAlert:
		return prefs.EmailRfeAlerts
	default:
		return true
	}
}

// InQuietHours reports whether now, in the user's timezone, falls within
// [QuietHoursStart, QuietHoursEnd). The window may wrap midnight. An
// unparsable or empty window never matches.
func InQuietHours(prefs *user.Preferences, now time.Time) bool {
	start, err := ParseClock(prefs.QuietHoursStart)
	if err != nil {
		return false
	}
	end, err := ParseClock(prefs.QuietHoursEnd)
	if err != nil {
		return false
	}
	if start == end {
		return false
	}

	local := now.In(prefs.Location())
	minute := local.Hour()*60 + local.Minute()
	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
