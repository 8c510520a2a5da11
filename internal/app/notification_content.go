// internal/app/notification_content.go
package app

import (
	"fmt"
	"strings"

	"perm_tracker/internal/domain/caldate"
	"perm_tracker/internal/domain/cases"
	"perm_tracker/internal/domain/notification"
)

// ViolationReason explains why a case was closed automatically.
type ViolationReason string

const (
	ViolationPWDExpired         ViolationReason = "pwd_expired"
	ViolationFilingWindowMissed ViolationReason = "filing_window_missed"
	ViolationETA9089Expired     ViolationReason = "eta9089_expired"
)

// Label returns the title fragment of the reason.
func (v ViolationReason) Label() string {
	switch v {
	case ViolationPWDExpired:
		return "PWD Expired"
	case ViolationFilingWindowMissed:
		return "Filing Window Missed"
	case ViolationETA9089Expired:
		return "ETA-9089 Expired"
	default:
		return titleCase(string(v))
	}
}

// Violation describes an auto-closure trigger.
type Violation struct {
	Reason  ViolationReason
	Date    caldate.Date
	Message string
}

// ContentContext carries what the builder needs to render a notification.
type ContentContext struct {
	Case *cases.Case
	// CaseLabel overrides Case.Label() when set.
	CaseLabel string

	DeadlineType      cases.DeadlineType
	DeadlineDate      caldate.Date
	DaysUntilDeadline *int

	PreviousStatus cases.Status
	NewStatus      cases.Status

	Violation *Violation

	// System notifications render these verbatim.
	Title   string
	Message string
}

func (cc ContentContext) label() string {
	if cc.CaseLabel != "" {
		return cc.CaseLabel
	}
	if cc.Case != nil {
		return cc.Case.Label()
	}
	return "your case"
}

// Content is the rendered notification text and priority.
type Content struct {
	Title    string
	Message  string
	Priority notification.Priority
}

// CalculatePriority derives priority from the day count. RFI and RFE alerts
// never drop below high.
func CalculatePriority(daysUntilDeadline int, t notification.Type) notification.Priority {
	var p notification.Priority
	switch {
	case daysUntilDeadline <= 7:
		p = notification.PriorityUrgent
	case daysUntilDeadline <= 14:
		p = notification.PriorityHigh
	case daysUntilDeadline <= 30:
		p = notification.PriorityNormal
	default:
		p = notification.PriorityLow
	}
	if t == notification.TypeRFIAlert || t == notification.TypeRFEAlert {
		p = notification.MaxPriority(p, notification.PriorityHigh)
	}
	return p
}

// BuildNotification renders title, message and priority for t.
func BuildNotification(t notification.Type, cc ContentContext) Content {
	switch t {
	case notification.TypeDeadlineReminder, notification.TypeRFIAlert, notification.TypeRFEAlert:
		return buildDeadlineContent(t, cc)
	case notification.TypeStatusChange:
		return Content{
			Title:    fmt.Sprintf("Case Status Updated to %s", statusTitle(cc.NewStatus)),
			Message:  statusChangeMessage(cc),
			Priority: notification.PriorityNormal,
		}
	case notification.TypeAutoClosure:
		return buildAutoClosureContent(cc)
	default:
		msg := cc.Message
		if msg == "" {
			msg = cc.Title
		}
		return Content{
			Title:    "System Notification",
			Message:  msg,
			Priority: notification.PriorityNormal,
		}
	}
}

func buildDeadlineContent(t notification.Type, cc ContentContext) Content {
	label := cc.DeadlineType.Label()
	date := cc.DeadlineDate.Human()
	caseLabel := cc.label()

	if cc.DaysUntilDeadline == nil {
		p := notification.PriorityNormal
		if t != notification.TypeDeadlineReminder {
			p = notification.PriorityHigh
		}
		return Content{
			Title:    label,
			Message:  fmt.Sprintf("%s for %s is due on %s.", label, caseLabel, date),
			Priority: p,
		}
	}
	days := *cc.DaysUntilDeadline

	var title, msg string
	switch {
	case days < 0:
		overdue := -days
		title = fmt.Sprintf("%s Overdue", label)
		msg = fmt.Sprintf("%s for %s was due on %s. %d %s overdue — Immediate action required.",
			label, caseLabel, date, overdue, pluralDays(overdue))
	case days == 0:
		title = fmt.Sprintf("%s Due Today", label)
		msg = fmt.Sprintf("%s for %s is due today (%s).", label, caseLabel, date)
	case days == 1:
		title = fmt.Sprintf("%s Tomorrow", label)
		msg = fmt.Sprintf("%s for %s is due tomorrow (%s).", label, caseLabel, date)
	default:
		title = fmt.Sprintf("%s in %d days", label, days)
		msg = fmt.Sprintf("%s for %s is due in %d days on %s.", label, caseLabel, days, date)
	}

	return Content{Title: title, Message: msg, Priority: CalculatePriority(days, t)}
}

func statusChangeMessage(cc ContentContext) string {
	if cc.PreviousStatus != "" && cc.PreviousStatus != cc.NewStatus {
		return fmt.Sprintf("%s moved from %s to %s.", cc.label(), statusTitle(cc.PreviousStatus), statusTitle(cc.NewStatus))
	}
	return fmt.Sprintf("%s is now in the %s stage.", cc.label(), statusTitle(cc.NewStatus))
}

func buildAutoClosureContent(cc ContentContext) Content {
	reason := "Deadline Missed"
	detail := ""
	if cc.Violation != nil {
		reason = cc.Violation.Reason.Label()
		detail = cc.Violation.Message
	}
	msg := fmt.Sprintf("%s was closed automatically: %s.", cc.label(), strings.ToLower(reason))
	if detail != "" {
		msg = fmt.Sprintf("%s was closed automatically. %s", cc.label(), detail)
	}
	return Content{
		Title:    fmt.Sprintf("%s - Case Closed", reason),
		Message:  msg,
		Priority: notification.PriorityHigh,
	}
}

func statusTitle(s cases.Status) string {
	switch s {
	case cases.StatusPWD:
		return "PWD"
	case cases.StatusETA9089:
		return "ETA-9089"
	case cases.StatusI140:
		return "I-140"
	default:
		return titleCase(string(s))
	}
}

func titleCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == ' ' || r == '-' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func pluralDays(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}
