package main

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"perm_tracker/internal/app"
	domainmail "perm_tracker/internal/domain/mail"
	"perm_tracker/internal/infra/config"
	idb "perm_tracker/internal/infra/database"
	"perm_tracker/internal/infra/identity"
	"perm_tracker/internal/infra/logger"
	"perm_tracker/internal/infra/mail"
	"perm_tracker/internal/infra/metrics"
	"perm_tracker/internal/infra/scheduler"
	"perm_tracker/internal/infra/telegram"
)

// application is the fully wired object graph shared by every command.
type application struct {
	cfg      *config.AppConfig
	log      *logrus.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	notifications *app.NotificationService
	accounts      *app.AccountService
	cases         *app.CaseService
	inbox         *app.InboxService
	preferences   *app.PreferencesService
	jobs          *app.Jobs
	scheduler     *scheduler.JobScheduler
	bot           *telebot.Bot
}

func buildApplication(cfg *config.AppConfig, log *logrus.Logger, db *sql.DB) (*application, error) {
	a := &application{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	caseRepo := idb.NewPostgresCaseRepository(db)
	notifRepo := idb.NewPostgresNotificationRepository(db)
	userRepo := idb.NewPostgresUserRepository(db)
	prefsRepo := idb.NewPostgresPreferencesRepository(db)
	rateLimitRepo := idb.NewPostgresRateLimitRepository(db)

	var mailer domainmail.Mailer
	if cfg.SMTPEnabled() {
		dialer := mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
		mailer = mail.NewSMTPMailer(userRepo, dialer, cfg.SMTPFrom, cfg.AppBaseURL, logger.Component(log, "mailer"))
	} else {
		log.Warn("SMTP_HOST is not set, emails will only be logged")
		mailer = mail.NewLogMailer(logger.Component(log, "mailer"))
	}

	clock := app.SystemClock{}
	idp := identity.ContextProvider{}

	a.notifications = app.NewNotificationService(
		caseRepo, notifRepo, prefsRepo, mailer, clock, a.metrics,
		logger.Component(log, "notifications"),
		app.NotificationConfig{
			RetentionDays:     cfg.NotificationRetentionDays,
			CleanupBatchSize:  cfg.CleanupBatchSize,
			DigestConcurrency: cfg.DigestConcurrency,
			DigestDays:        app.DefaultNotificationConfig().DigestDays,
			AutoCloseEnabled:  cfg.AutoCloseEnabled,
		},
	)
	a.accounts = app.NewAccountService(
		userRepo, prefsRepo, caseRepo, notifRepo, rateLimitRepo, idp, clock, a.metrics,
		logger.Component(log, "accounts"),
		app.AccountConfig{
			GracePeriod:        time.Duration(cfg.DeletionGraceDays) * 24 * time.Hour,
			DeletionBatchSize:  cfg.DeletionSweepBatchSize,
			RateLimitRetention: cfg.RateLimitRetention,
		},
	)
	a.jobs = app.NewJobs(clock, a.notifications, a.accounts)

	var reporter scheduler.Reporter
	if cfg.TelegramEnabled() {
		bot, err := newBot(cfg, log)
		if err != nil {
			return nil, err
		}
		a.bot = bot
		reporter = telegram.NewOpsReporter(telegram.NewTelebotAdapter(bot), cfg.AdminTelegramID, logger.Component(log, "ops_reporter"))
	}

	a.scheduler = scheduler.NewJobScheduler(
		a.jobs,
		scheduler.Specs{
			app.JobDeadlineSweep:       cfg.CronDeadlineSweep,
			app.JobNotificationCleanup: cfg.CronNotificationCleanup,
			app.JobWeeklyDigest:        cfg.CronWeeklyDigest,
			app.JobDeletionSweep:       cfg.CronDeletionSweep,
			app.JobRateLimitCleanup:    cfg.CronRateLimitCleanup,
		},
		cfg.JobTimeout,
		a.metrics,
		reporter,
		logger.Component(log, "scheduler"),
	)

	a.cases = app.NewCaseService(caseRepo, a.notifications, idp, a.scheduler, clock, logger.Component(log, "cases"))
	a.inbox = app.NewInboxService(notifRepo, idp, clock)
	a.preferences = app.NewPreferencesService(prefsRepo, idp, clock)
	return a, nil
}

func newBot(cfg *config.AppConfig, log *logrus.Logger) (*telebot.Bot, error) {
	botLogger := logger.Component(log, "telebot")
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := botLogger.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID})
			}
			entry.Error("Telebot error")
		},
	}
	return telebot.NewBot(pref)
}
