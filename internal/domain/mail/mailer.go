package mail

import "context"

// TemplateKind selects the email template.
type TemplateKind string

const (
	TemplateDeadlineReminder TemplateKind = "deadline_reminder"
	TemplateStatusChange     TemplateKind = "status_change"
	TemplateRFIAlert         TemplateKind = "rfi_alert"
	TemplateRFEAlert         TemplateKind = "rfe_alert"
	TemplateAutoClosure      TemplateKind = "auto_closure"
	TemplateSystem           TemplateKind = "system"
	TemplateWeeklyDigest     TemplateKind = "weekly_digest"
)

// Mailer delivers an email to a user. Failures are reported but callers treat
// delivery as fire-and-forget.
type Mailer interface {
	SendEmail(ctx context.Context, userID string, kind TemplateKind, payload any) error
}

// NotificationPayload is the payload for single-notification templates.
type NotificationPayload struct {
	Title        string
	Message      string
	Priority     string
	CaseID       string
	CaseLabel    string
	DeadlineDate string
	DaysUntil    *int
}

// DigestDeadline is one upcoming deadline listed in the weekly digest.
type DigestDeadline struct {
	CaseID    string
	CaseLabel string
	Label     string
	Date      string
	DaysUntil int
}

// DigestNotification is one unread notification listed in the weekly digest.
type DigestNotification struct {
	Title    string
	Priority string
	Created  string
}

// DigestPayload is the weekly digest summary.
type DigestPayload struct {
	WeekOf              string
	UpcomingDeadlines   []DigestDeadline
	UnreadNotifications []DigestNotification
	UnreadCount         int
	OverdueCount        int
}
