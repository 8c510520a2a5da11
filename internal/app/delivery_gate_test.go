package app_test

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"

	"perm_tracker/internal/app"
	"perm_tracker/internal/domain/notification"
	"perm_tracker/internal/domain/user"
)

func quietPrefs() *user.Preferences {
	p := user.DefaultPreferences("u1")
	p.QuietHoursEnabled = true
	p.QuietHoursStart = "22:00"
	p.QuietHoursEnd = "08:00"
	return p
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 2, hour, minute, 0, 0, time.UTC)
}

func TestShouldSendEmailMasterSwitch(t *testing.T) {
	assert.False(t, app.ShouldSendEmail(notification.TypeDeadlineReminder, notification.PriorityUrgent, nil, at(12, 0)))

	p := user.DefaultPreferences("u1")
	p.EmailNotificationsEnabled = false
	for _, typ := range []notification.Type{
		notification.TypeDeadlineReminder,
		notification.TypeStatusChange,
		notification.TypeRFIAlert,
		notification.TypeAutoClosure,
		notification.TypeSystem,
	} {
		assert.False(t, app.ShouldSendEmail(typ, notification.PriorityUrgent, p, at(12, 0)), "type=%s", typ)
	}
	assert.Equal(t, "email_disabled", app.SuppressionReason(notification.TypeSystem, notification.PriorityLow, p, at(12, 0)))
}

func TestShouldSendEmailQuietHours(t *testing.T) {
	p := quietPrefs()

	assert.True(t, app.ShouldSendEmail(notification.TypeDeadlineReminder, notification.PriorityUrgent, p, at(23, 0)),
		"urgent bypasses quiet hours")
	assert.False(t, app.ShouldSendEmail(notification.TypeDeadlineReminder, notification.PriorityHigh, p, at(23, 0)))
	assert.Equal(t, "quiet_hours", app.SuppressionReason(notification.TypeDeadlineReminder, notification.PriorityHigh, p, at(23, 0)))
	assert.False(t, app.ShouldSendEmail(notification.TypeStatusChange, notification.PriorityNormal, p, at(7, 59)))
	assert.True(t, app.ShouldSendEmail(notification.TypeStatusChange, notification.PriorityNormal, p, at(8, 0)))
	assert.True(t, app.ShouldSendEmail(notification.TypeStatusChange, notification.PriorityNormal, p, at(12, 0)))

	p.QuietHoursEnabled = false
	assert.True(t, app.ShouldSendEmail(notification.TypeStatusChange, notification.PriorityNormal, p, at(23, 0)))
}

func TestShouldSendEmailCategories(t *testing.T) {
	p := user.DefaultPreferences("u1")
	p.EmailDeadlineReminders = false
	p.EmailRfeAlerts = false

	assert.False(t, app.ShouldSendEmail(notification.TypeDeadlineReminder, notification.PriorityUrgent, p, at(12, 0)))
	assert.Equal(t, "category_disabled", app.SuppressionReason(notification.TypeDeadlineReminder, notification.PriorityUrgent, p, at(12, 0)))
	assert.False(t, app.ShouldSendEmail(notification.TypeRFIAlert, notification.PriorityUrgent, p, at(12, 0)))
	assert.False(t, app.ShouldSendEmail(notification.TypeRFEAlert, notification.PriorityUrgent, p, at(12, 0)))
	assert.True(t, app.ShouldSendEmail(notification.TypeStatusChange, notification.PriorityNormal, p, at(12, 0)))
	assert.True(t, app.ShouldSendEmail(notification.TypeAutoClosure, notification.PriorityHigh, p, at(12, 0)))
	assert.True(t, app.ShouldSendEmail(notification.TypeSystem, notification.PriorityNormal, p, at(12, 0)))
}

func TestInQuietHours(t *testing.T) {
	t.Run("same-day window", func(t *testing.T) {
		p := quietPrefs()
		p.QuietHoursStart, p.QuietHoursEnd = "12:00", "14:00"
		assert.True(t, app.InQuietHours(p, at(12, 0)))
		assert.True(t, app.InQuietHours(p, at(13, 59)))
		assert.False(t, app.InQuietHours(p, at(14, 0)))
		assert.False(t, app.InQuietHours(p, at(11, 59)))
	})

	t.Run("uses the user's timezone", func(t *testing.T) {
		p := quietPrefs()
		p.Timezone = "America/New_York"
		// 03:00 UTC is 23:00 EDT.
		assert.True(t, app.InQuietHours(p, at(3, 0)))
		// 23:00 UTC is 19:00 EDT.
		assert.False(t, app.InQuietHours(p, at(23, 0)))
	})

	t.Run("unknown timezone falls back to UTC", func(t *testing.T) {
		p := quietPrefs()
		p.Timezone = "Mars/Olympus"
		assert.True(t, app.InQuietHours(p, at(23, 0)))
	})

	t.Run("empty or invalid windows never match", func(t *testing.T) {
		p := quietPrefs()
		p.QuietHoursStart, p.QuietHoursEnd = "09:00", "09:00"
		assert.False(t, app.InQuietHours(p, at(9, 0)))

		p.QuietHoursStart = "25:00"
		assert.False(t, app.InQuietHours(p, at(23, 0)))
	})
}

func TestParseClock(t *testing.T) {
	m, err := app.ParseClock("08:30")
	assert.NoError(t, err)
	assert.Equal(t, 510, m)

	_, err = app.ParseClock("8pm")
	assert.Error(t, err)
}
