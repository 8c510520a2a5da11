package app

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// JobName identifies a recurring batch job.
type JobName string

const (
	JobDeadlineSweep       JobName = "deadline-sweep"
	JobNotificationCleanup JobName = "notification-cleanup"
	JobWeeklyDigest        JobName = "weekly-digest"
	JobDeletionSweep       JobName = "deletion-sweep"
	JobRateLimitCleanup    JobName = "rate-limit-cleanup"
)

var ErrUnknownJob = errors.New("unknown job")

// JobReport summarizes one invocation of a batch job.
type JobReport struct {
	Job        JobName       `json:"job"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	Scanned    int           `json:"scanned"`
	Affected   int           `json:"affected"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	EmailsSent int           `json:"emailsSent"`
}

func (r JobReport) String() string {
	return fmt.Sprintf("%s: scanned=%d affected=%d skipped=%d failed=%d emails=%d (%s)",
		r.Job, r.Scanned, r.Affected, r.Skipped, r.Failed, r.EmailsSent, r.Duration.Round(time.Millisecond))
}

// JobFunc is the entry point of a batch job. It must be idempotent.
type JobFunc func(ctx context.Context) (JobReport, error)

// Jobs is the registry of batch entry points shared by the cron scheduler,
// the CLI, the HTTP trigger and the ops bot.
type Jobs struct {
	clock Clock
	order []JobName
	funcs map[JobName]JobFunc
}

// NewJobs registers the five recurring jobs.
func NewJobs(clock Clock, notifications *NotificationService, accounts *AccountService) *Jobs {
	j := &Jobs{clock: clock, funcs: make(map[JobName]JobFunc)}
	j.register(JobDeadlineSweep, notifications.CheckDeadlineReminders)
	j.register(JobNotificationCleanup, notifications.CleanupOldNotifications)
	j.register(JobWeeklyDigest, notifications.SendWeeklyDigest)
	j.register(JobDeletionSweep, accounts.ProcessExpiredDeletions)
	j.register(JobRateLimitCleanup, accounts.CleanupRateLimits)
	return j
}

func (j *Jobs) register(name JobName, fn JobFunc) {
	j.order = append(j.order, name)
	j.funcs[name] = fn
}

// Names lists registered jobs in registration order.
func (j *Jobs) Names() []JobName {
	out := make([]JobName, len(j.order))
	copy(out, j.order)
	return out
}

// Run executes one job and stamps its report with timing information.
func (j *Jobs) Run(ctx context.Context, name JobName) (JobReport, error) {
	fn, ok := j.funcs[name]
	if !ok {
		return JobReport{Job: name}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	started := j.clock.Now()
	report, err := fn(ctx)
	report.Job = name
	report.StartedAt = started
	report.Duration = j.clock.Now().Sub(started)
	return report, err
}
