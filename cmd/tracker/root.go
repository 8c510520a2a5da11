package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"perm_tracker/internal/app"
	"perm_tracker/internal/infra/config"
	idb "perm_tracker/internal/infra/database"
	"perm_tracker/internal/infra/httpapi"
	"perm_tracker/internal/infra/logger"
	"perm_tracker/internal/infra/telegram"
)

const shutdownTimeout = 15 * time.Second

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tracker",
		Short:         "PERM deadline tracking and reminder engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newRunCommand(), newPurgeCommand(), newMigrateCommand())
	return root
}

// bootstrap loads configuration, opens the database and optionally migrates it.
func bootstrap(migrate bool) (*config.AppConfig, *logrus.Logger, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.Environment)
	log.WithFields(logrus.Fields{"log_level": cfg.LogLevel, "environment": cfg.Environment}).Info("Configuration loaded")

	if err := cfg.RequireDatabase(); err != nil {
		return nil, nil, nil, err
	}
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("could not connect to database: %w", err)
	}
	log.Info("Database connection established")

	if migrate {
		if err := idb.RunMigrations(db, logger.Component(log, "migrate")); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
	}
	return cfg, log, db, nil
}

func newServeCommand() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, the HTTP API and the ops bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, db, err := bootstrap(migrate)
			if err != nil {
				return err
			}
			defer db.Close()

			a, err := buildApplication(cfg, log, db)
			if err != nil {
				return err
			}
			if err := a.scheduler.Start(); err != nil {
				return err
			}

			srv := &http.Server{
				Addr: cfg.HTTPAddr,
				Handler: httpapi.NewRouter(httpapi.Deps{
					Jobs:        a.scheduler,
					Accounts:    a.accounts,
					Cases:       a.cases,
					Inbox:       a.inbox,
					Preferences: a.preferences,
					Gatherer:    a.registry,
					JobsToken:   cfg.JobsToken,
					Logger:      logger.Component(log, "http"),
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}
			serverErr := make(chan error, 1)
			go func() {
				log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			if a.bot != nil {
				botLogger := logger.Component(log, "telegram")
				cmds := telegram.NewAdminCommands(a.scheduler, a.accounts, a.jobs.Names(), cfg.JobTimeout, botLogger)
				telegram.RegisterAdminHandlers(cmd.Context(), a.bot, cmds, cfg.AdminTelegramID, botLogger)
				telegram.RegisterBotCommands(a.bot, cfg.AdminTelegramID, botLogger)
				// Start bot in a goroutine so it doesn't block graceful shutdown handling
				go a.bot.Start()
				log.Info("Ops bot started")
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
			case err := <-serverErr:
				log.WithError(err).Error("HTTP server failed")
			}

			log.Info("Shutting down application...")
			if a.bot != nil {
				a.bot.Stop()
			}
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.WithError(err).Warn("HTTP server shutdown incomplete")
			}
			a.scheduler.Stop()
			log.Info("Application shut down gracefully")
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations on startup")
	return cmd
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Run one batch job now and print its report",
		Long: "Jobs: " + string(app.JobDeadlineSweep) + ", " + string(app.JobNotificationCleanup) + ", " +
			string(app.JobWeeklyDigest) + ", " + string(app.JobDeletionSweep) + ", " + string(app.JobRateLimitCleanup),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap(false)
			if err != nil {
				return err
			}
			defer db.Close()

			a, err := buildApplication(cfg, log, db)
			if err != nil {
				return err
			}
			defer a.scheduler.Stop()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.JobTimeout)
			defer cancel()
			report, err := a.scheduler.RunJob(ctx, app.JobName(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
}

func newPurgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-account <userID>",
		Short: "Permanently delete an account whose grace period has expired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap(false)
			if err != nil {
				return err
			}
			defer db.Close()

			a, err := buildApplication(cfg, log, db)
			if err != nil {
				return err
			}
			res, err := a.accounts.PermanentlyDeleteAccount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			_, _, db, err := bootstrap(true)
			if err != nil {
				return err
			}
			return db.Close()
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
