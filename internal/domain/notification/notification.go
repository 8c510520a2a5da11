// internal/domain/notification/notification.go
package notification

import (
	"time"

	"perm_tracker/internal/domain/caldate"
	"perm_tracker/internal/domain/cases"
)

// Type is the kind of alert.
type Type string

const (
	TypeDeadlineReminder Type = "deadline_reminder"
	TypeStatusChange     Type = "status_change"
	TypeRFEAlert         Type = "rfe_alert"
	TypeRFIAlert         Type = "rfi_alert"
	TypeSystem           Type = "system"
	TypeAutoClosure      Type = "auto_closure"
)

// ReminderTypes are the notification types produced by the deadline sweep.
// Dedup lookups span all of them.
var ReminderTypes = []Type{TypeDeadlineReminder, TypeRFIAlert, TypeRFEAlert}

// Priority orders notifications by urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var priorityRank = map[Priority]int{
	PriorityLow:    0,
	PriorityNormal: 1,
	PriorityHigh:   2,
	PriorityUrgent: 3,
}

// Rank returns an ordinal usable for comparisons.
func (p Priority) Rank() int { return priorityRank[p] }

// MaxPriority returns the more urgent of a and b.
func MaxPriority(a, b Priority) Priority {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Notification is one delivered or pending alert.
type Notification struct {
	ID                string             `json:"id"`
	UserID            string             `json:"userId"`
	CaseID            string             `json:"caseId"` // empty for user-level notifications
	Type              Type               `json:"type"`
	Title             string             `json:"title"`
	Message           string             `json:"message"`
	Priority          Priority           `json:"priority"`
	DeadlineDate      caldate.Date       `json:"deadlineDate"`
	DeadlineType      cases.DeadlineType `json:"deadlineType"`
	DaysUntilDeadline *int               `json:"daysUntilDeadline,omitempty"`
	IsRead            bool               `json:"isRead"`
	ReadAt            *time.Time         `json:"readAt,omitempty"`
	EmailSent         bool               `json:"emailSent"`
	EmailSentAt       *time.Time         `json:"emailSentAt,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// ReminderKey is the natural key that makes a reminder unique:
// (user, case, deadline type, deadline date, days until deadline).
type ReminderKey struct {
	UserID            string
	CaseID            string
	DeadlineType      cases.DeadlineType
	DeadlineDate      caldate.Date
	DaysUntilDeadline int
}

// ReminderKey extracts the natural key. ok is false for non-reminder notifications.
func (n *Notification) ReminderKey() (ReminderKey, bool) {
	if n.DaysUntilDeadline == nil || n.DeadlineType == "" || n.DeadlineDate.IsZero() {
		return ReminderKey{}, false
	}
	return ReminderKey{
		UserID:            n.UserID,
		CaseID:            n.CaseID,
		DeadlineType:      n.DeadlineType,
		DeadlineDate:      n.DeadlineDate,
		DaysUntilDeadline: *n.DaysUntilDeadline,
	}, true
}
