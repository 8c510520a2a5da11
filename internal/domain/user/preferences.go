package user

import (
	"sort"
	"time"
)

// DefaultReminderDaysBefore are the reminder intervals used when a user never configured any.
var DefaultReminderDaysBefore = []int{1, 3, 7, 14, 30}

// DefaultTimezone applies when a user has no stored timezone.
const DefaultTimezone = "UTC"

// Preferences controls which emails a user receives and when.
type Preferences struct {
	UserID                    string    `json:"userId"`
	EmailNotificationsEnabled bool      `json:"emailNotificationsEnabled"`
	EmailDeadlineReminders    bool      `json:"emailDeadlineReminders"`
	EmailStatusUpdates        bool      `json:"emailStatusUpdates"`
	EmailRfeAlerts            bool      `json:"emailRfeAlerts"` // shared by RFI and RFE alerts
	EmailWeeklyDigest         bool      `json:"emailWeeklyDigest"`
	ReminderDaysBefore        []int     `json:"reminderDaysBefore"`
	QuietHoursEnabled         bool      `json:"quietHoursEnabled"`
	QuietHoursStart           string    `json:"quietHoursStart"` // HH:MM in Timezone
	QuietHoursEnd             string    `json:"quietHoursEnd"`   // HH:MM in Timezone
	Timezone                  string    `json:"timezone"`        // IANA name
	CreatedAt                 time.Time `json:"createdAt"`
	UpdatedAt                 time.Time `json:"updatedAt"`
}

// DefaultPreferences returns the preferences a user has before saving any.
func DefaultPreferences(userID string) *Preferences {
	days := make([]int, len(DefaultReminderDaysBefore))
	copy(days, DefaultReminderDaysBefore)
	return &Preferences{
		UserID:                    userID,
		EmailNotificationsEnabled: true,
		EmailDeadlineReminders:    true,
		EmailStatusUpdates:        true,
		EmailRfeAlerts:            true,
		EmailWeeklyDigest:         true,
		ReminderDaysBefore:        days,
		QuietHoursStart:           "22:00",
		QuietHoursEnd:             "08:00",
		Timezone:                  DefaultTimezone,
	}
}

// Location resolves Timezone, falling back to UTC for unknown names.
func (p *Preferences) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NormalizeReminderDays sorts and de-duplicates intervals.
func NormalizeReminderDays(days []int) []int {
	seen := make(map[int]struct{}, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
