// internal/app/reminder_matcher.go
package app

import (
	"slices"

	"perm_tracker/internal/domain/caldate"
	"perm_tracker/internal/domain/cases"
	"perm_tracker/internal/domain/notification"
)

// CandidateReminder is a deadline that sits exactly on one of its owner's
// reminder intervals today.
type CandidateReminder struct {
	UserID            string
	CaseID            string
	DeadlineType      cases.DeadlineType
	DeadlineDate      caldate.Date
	DaysUntilDeadline int
}

// Key returns the dedup natural key of the candidate.
func (r CandidateReminder) Key() notification.ReminderKey {
	return notification.ReminderKey{
		UserID:            r.UserID,
		CaseID:            r.CaseID,
		DeadlineType:      r.DeadlineType,
		DeadlineDate:      r.DeadlineDate,
		DaysUntilDeadline: r.DaysUntilDeadline,
	}
}

// NotificationType maps RFI/RFE deadlines to their alert types.
func (r CandidateReminder) NotificationType() notification.Type {
	switch r.DeadlineType {
	case cases.DeadlineRFIDue:
		return notification.TypeRFIAlert
	case cases.DeadlineRFEDue:
		return notification.TypeRFEAlert
	default:
		return notification.TypeDeadlineReminder
	}
}

// ReminderDeadlines enumerates the deadlines of c that reminders are sent for:
// PWD expiration, ETA-9089 expiration, I-140 filing deadline and every open
// RFI/RFE due date. Deleted and closed cases have none.
func ReminderDeadlines(c *cases.Case) []cases.Deadline {
	if c.IsDeleted() || c.IsClosed() {
		return nil
	}
	var out []cases.Deadline
	if !c.PWDExpirationDate.IsZero() {
		out = append(out, cases.Deadline{Type: cases.DeadlinePWDExpiration, Date: c.PWDExpirationDate})
	}
	if !c.ETA9089ExpirationDate.IsZero() {
		out = append(out, cases.Deadline{Type: cases.DeadlineETA9089Expiration, Date: c.ETA9089ExpirationDate})
	}
	if d := I140FilingDeadline(c); !d.IsZero() {
		out = append(out, cases.Deadline{Type: cases.DeadlineI140Filing, Date: d})
	}
	for _, e := range c.RFIEntries {
		if e.Open() && !e.ResponseDueDate.IsZero() {
			out = append(out, cases.Deadline{Type: cases.DeadlineRFIDue, Date: e.ResponseDueDate, EntryID: e.ID})
		}
	}
	for _, e := range c.RFEEntries {
		if e.Open() && !e.ResponseDueDate.IsZero() {
			out = append(out, cases.Deadline{Type: cases.DeadlineRFEDue, Date: e.ResponseDueDate, EntryID: e.ID})
		}
	}
	return out
}

// MatchReminders returns the deadlines of c whose day count equals one of
// reminderDays exactly. Overdue deadlines only match negative intervals.
func MatchReminders(today caldate.Date, c *cases.Case, reminderDays []int) []CandidateReminder {
	var out []CandidateReminder
	for _, d := range ReminderDeadlines(c) {
		days := d.Date.DaysSince(today)
		if !slices.Contains(reminderDays, days) {
			continue
		}
		out = append(out, CandidateReminder{
			UserID:            c.UserID,
			CaseID:            c.ID,
			DeadlineType:      d.Type,
			DeadlineDate:      d.Date,
			DaysUntilDeadline: days,
		})
	}
	return out
}

// FindDueReminders runs MatchReminders over cases using each owner's
// intervals. intervalsFor must return the intervals of a given user.
func FindDueReminders(today caldate.Date, all []*cases.Case, intervalsFor func(userID string) []int) []CandidateReminder {
	var out []CandidateReminder
	for _, c := range all {
		out = append(out, MatchReminders(today, c, intervalsFor(c.UserID))...)
	}
	return out
}
