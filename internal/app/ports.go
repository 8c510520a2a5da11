package app

import (
	"context"
	"time"

	"perm_tracker/internal/domain/mail"
	"perm_tracker/internal/domain/notification"
)

// Clock supplies the current time. Every date computation takes its "now" from here.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Deferrer runs work after a delay, outside of the calling request.
// A zero delay means "as soon as possible".
type Deferrer interface {
	RunAfter(delay time.Duration, name string, fn func(ctx context.Context) error)
}

// Metrics receives counters from the services.
type Metrics interface {
	ReminderCreated(t notification.Type)
	NotificationCreated(t notification.Type)
	EmailSent(kind mail.TemplateKind)
	EmailSuppressed(reason string)
	EmailFailed(kind mail.TemplateKind)
	CaseAutoClosed(reason string)
	RowsPurged(job JobName, n int64)
	AccountPurged()
}

type nopMetrics struct{}

func (nopMetrics) ReminderCreated(notification.Type)     {}
func (nopMetrics) NotificationCreated(notification.Type) {}
func (nopMetrics) EmailSent(mail.TemplateKind)           {}
func (nopMetrics) EmailSuppressed(string)                {}
func (nopMetrics) EmailFailed(mail.TemplateKind)         {}
func (nopMetrics) CaseAutoClosed(string)                 {}
func (nopMetrics) RowsPurged(JobName, int64)             {}
func (nopMetrics) AccountPurged()                        {}
