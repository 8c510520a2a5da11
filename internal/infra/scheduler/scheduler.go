package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"perm_tracker/internal/app"
)

// JobObserver records job outcomes, typically as metrics.
type JobObserver interface {
	ObserveJob(job app.JobName, d time.Duration, err error)
}

// Reporter publishes a finished job report, e.g. to the ops chat.
type Reporter interface {
	ReportJob(ctx context.Context, report app.JobReport, err error)
}

// Specs maps each job to its cron expression. Jobs with an empty spec are not scheduled.
type Specs map[app.JobName]string

type JobScheduler struct {
	cronEngine *cron.Cron
	jobs       *app.Jobs
	specs      Specs
	timeout    time.Duration
	observer   JobObserver
	reporter   Reporter
	logger     *logrus.Entry

	mu       sync.Mutex
	stopped  bool
	deferred sync.WaitGroup
}

func NewJobScheduler(
	jobs *app.Jobs,
	specs Specs,
	timeout time.Duration,
	observer JobObserver,
	reporter Reporter,
	logger *logrus.Entry,
) *JobScheduler {
	cronLogger := cron.PrintfLogger(logger)
	return &JobScheduler{
		// Every schedule is evaluated in UTC regardless of the host timezone.
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		jobs:     jobs,
		specs:    specs,
		timeout:  timeout,
		observer: observer,
		reporter: reporter,
		logger:   logger,
	}
}

// Start registers every job that has a spec and starts the cron engine.
func (s *JobScheduler) Start() error {
	s.logger.Info("Starting job scheduler...")
	for _, name := range s.jobs.Names() {
		spec := s.specs[name]
		if spec == "" {
			s.logger.WithField("job", name).Warn("No cron spec configured, job will only run on demand")
			continue
		}
		if _, err := s.cronEngine.AddFunc(spec, func() {
			s.logger.WithField("job", name).Info("Cron job triggered")
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			_, _ = s.RunJob(ctx, name)
		}); err != nil {
			return fmt.Errorf("could not add cron job %s (%q): %w", name, spec, err)
		}
		s.logger.WithFields(logrus.Fields{"job": name, "spec": spec}).Info("Job scheduled (UTC)")
	}
	s.cronEngine.Start()
	s.logger.Info("Job scheduler started")
	return nil
}

// RunJob executes one job now and records its outcome. The cron engine, the
// CLI, the HTTP trigger and the ops bot all go through here.
func (s *JobScheduler) RunJob(ctx context.Context, name app.JobName) (app.JobReport, error) {
	log := s.logger.WithField("job", name)
	report, err := s.jobs.Run(ctx, name)
	if s.observer != nil {
		s.observer.ObserveJob(name, report.Duration, err)
	}
	if err != nil {
		log.WithError(err).Error("Job failed")
	} else {
		log.WithFields(logrus.Fields{
			"scanned":  report.Scanned,
			"affected": report.Affected,
			"skipped":  report.Skipped,
			"failed":   report.Failed,
			"emails":   report.EmailsSent,
			"duration": report.Duration.String(),
		}).Info("Job finished")
	}
	if s.reporter != nil {
		s.reporter.ReportJob(ctx, report, err)
	}
	return report, err
}

// RunAfter runs fn once after delay on its own goroutine with the job
// timeout applied. Errors are logged, never returned. Tasks submitted after
// Stop has begun are dropped.
func (s *JobScheduler) RunAfter(delay time.Duration, name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.logger.WithField("task", name).Warn("Scheduler stopping, deferred task dropped")
		return
	}
	s.deferred.Add(1)
	s.mu.Unlock()

	time.AfterFunc(delay, func() {
		defer s.deferred.Done()
		log := s.logger.WithField("task", name)
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("Deferred task panicked: %v", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.WithError(err).Error("Deferred task failed")
		}
	})
}

// Stop halts the cron engine and waits for running jobs and deferred tasks.
func (s *JobScheduler) Stop() {
	s.logger.Info("Stopping job scheduler...")
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.deferred.Wait()
	s.logger.Info("Job scheduler gracefully stopped")
}

// Entries lists the next run of every scheduled job.
func (s *JobScheduler) Entries() []time.Time {
	entries := s.cronEngine.Entries()
	out := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Next)
	}
	return out
}
