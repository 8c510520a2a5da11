package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"perm_tracker/internal/app"
	"perm_tracker/internal/domain/mail"
	"perm_tracker/internal/domain/notification"
)

// Metrics implements app.Metrics and the job instrumentation used by the scheduler.
type Metrics struct {
	RemindersCreated     *prometheus.CounterVec
	NotificationsCreated *prometheus.CounterVec
	EmailsSent           *prometheus.CounterVec
	EmailsSuppressed     *prometheus.CounterVec
	EmailsFailed         *prometheus.CounterVec
	CasesAutoClosed      *prometheus.CounterVec
	RowsPurgedTotal      *prometheus.CounterVec
	AccountsPurged       prometheus.Counter
	JobRuns              *prometheus.CounterVec
	JobDuration          *prometheus.HistogramVec
	JobLastSuccess       *prometheus.GaugeVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RemindersCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perm_reminders_created_total",
			Help: "Deadline reminders created by the sweep",
		}, []string{"type"}),
		NotificationsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perm_notifications_created_total",
			Help: "Notifications created, by type",
		}, []string{"type"}),
		EmailsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perm_emails_sent_total",
			Help: "Emails handed to the mailer successfully",
		}, []string{"template"}),
		EmailsSuppressed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perm_emails_suppressed_total",
			Help: "Emails skipped by user preferences",
		}, []string{"reason"}),
		EmailsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perm_emails_failed_total",
			Help: "Emails the mailer failed to deliver",
		}, []string{"template"}),
		CasesAutoClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perm_cases_auto_closed_total",
			Help: "Cases closed automatically, by violation",
		}, []string{"reason"}),
		RowsPurgedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perm_rows_purged_total",
			Help: "Rows removed by cleanup jobs",
		}, []string{"job"}),
		AccountsPurged: f.NewCounter(prometheus.CounterOpts{
			Name: "perm_accounts_purged_total",
			Help: "Accounts permanently deleted",
		}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "perm_job_runs_total",
			Help: "Batch job runs, by outcome",
		}, []string{"job", "outcome"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perm_job_duration_seconds",
			Help:    "Batch job duration",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"job"}),
		JobLastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perm_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}, []string{"job"}),
	}
}

func (m *Metrics) ReminderCreated(t notification.Type) {
	m.RemindersCreated.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) NotificationCreated(t notification.Type) {
	m.NotificationsCreated.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) EmailSent(kind mail.TemplateKind) {
	m.EmailsSent.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) EmailSuppressed(reason string) {
	m.EmailsSuppressed.WithLabelValues(reason).Inc()
}

func (m *Metrics) EmailFailed(kind mail.TemplateKind) {
	m.EmailsFailed.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) CaseAutoClosed(reason string) {
	m.CasesAutoClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) RowsPurged(job app.JobName, n int64) {
	if n > 0 {
		m.RowsPurgedTotal.WithLabelValues(string(job)).Add(float64(n))
	}
}

func (m *Metrics) AccountPurged() {
	m.AccountsPurged.Inc()
}

// ObserveJob records one job run.
func (m *Metrics) ObserveJob(job app.JobName, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	} else {
		m.JobLastSuccess.WithLabelValues(string(job)).SetToCurrentTime()
	}
	m.JobRuns.WithLabelValues(string(job), outcome).Inc()
	m.JobDuration.WithLabelValues(string(job)).Observe(d.Seconds())
}
