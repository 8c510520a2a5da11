package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL string
	LogLevel    string
	Environment string
	HTTPAddr    string
	JobsToken   string

	// Cron specs are evaluated in UTC.
	CronDeadlineSweep       string
	CronNotificationCleanup string
	CronWeeklyDigest        string
	CronDeletionSweep       string
	CronRateLimitCleanup    string
	JobTimeout              time.Duration

	NotificationRetentionDays int
	CleanupBatchSize          int
	DigestConcurrency         int
	AutoCloseEnabled          bool
	DeletionGraceDays         int
	DeletionSweepBatchSize    int
	RateLimitRetention        time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	AppBaseURL   string

	// Optional ops bot.
	TelegramToken   string
	AdminTelegramID int64
}

// SMTPEnabled reports whether outbound email is configured.
func (c *AppConfig) SMTPEnabled() bool { return c.SMTPHost != "" }

// TelegramEnabled reports whether the ops bot is configured.
func (c *AppConfig) TelegramEnabled() bool { return c.TelegramToken != "" && c.AdminTelegramID != 0 }

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load does not override variables that are already set.
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a lookup function.
func FromEnv(getenv func(string) string) (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = getenv("DATABASE_URL")

	cfg.LogLevel = strings.ToLower(getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.HTTPAddr = stringOr(getenv("HTTP_ADDR"), ":8080")
	cfg.JobsToken = getenv("JOBS_TOKEN")

	cfg.CronDeadlineSweep = stringOr(getenv("CRON_DEADLINE_SWEEP"), "0 14 * * *")          // 14:00 UTC daily
	cfg.CronNotificationCleanup = stringOr(getenv("CRON_NOTIFICATION_CLEANUP"), "30 * * * *") // hourly at :30
	cfg.CronWeeklyDigest = stringOr(getenv("CRON_WEEKLY_DIGEST"), "0 14 * * 1")             // Mondays 14:00 UTC
	cfg.CronDeletionSweep = stringOr(getenv("CRON_DELETION_SWEEP"), "45 * * * *")            // hourly at :45
	cfg.CronRateLimitCleanup = stringOr(getenv("CRON_RATE_LIMIT_CLEANUP"), "15 * * * *")     // hourly at :15

	if cfg.JobTimeout, err = durationOr(getenv, "JOB_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.NotificationRetentionDays, err = intOr(getenv, "NOTIFICATION_RETENTION_DAYS", 90); err != nil {
		return nil, err
	}
	if cfg.CleanupBatchSize, err = intOr(getenv, "CLEANUP_BATCH_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.DigestConcurrency, err = intOr(getenv, "DIGEST_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.AutoCloseEnabled, err = boolOr(getenv, "AUTO_CLOSE_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.DeletionGraceDays, err = intOr(getenv, "DELETION_GRACE_DAYS", 30); err != nil {
		return nil, err
	}
	if cfg.DeletionSweepBatchSize, err = intOr(getenv, "DELETION_SWEEP_BATCH_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.RateLimitRetention, err = durationOr(getenv, "RATE_LIMIT_RETENTION", 24*time.Hour); err != nil {
		return nil, err
	}

	cfg.SMTPHost = getenv("SMTP_HOST")
	if cfg.SMTPPort, err = intOr(getenv, "SMTP_PORT", 587); err != nil {
		return nil, err
	}
	cfg.SMTPUser = getenv("SMTP_USER")
	cfg.SMTPPassword = getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = stringOr(getenv("SMTP_FROM"), "PERM Tracker <noreply@permtracker.app>")
	cfg.AppBaseURL = stringOr(getenv("APP_BASE_URL"), "http://localhost:3000")

	cfg.TelegramToken = getenv("TELEGRAM_TOKEN")
	if adminIDStr := getenv("ADMIN_TELEGRAM_ID"); adminIDStr != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	if cfg.CleanupBatchSize <= 0 {
		return nil, fmt.Errorf("CLEANUP_BATCH_SIZE must be positive, got %d", cfg.CleanupBatchSize)
	}
	if cfg.NotificationRetentionDays <= 0 {
		return nil, fmt.Errorf("NOTIFICATION_RETENTION_DAYS must be positive, got %d", cfg.NotificationRetentionDays)
	}
	return cfg, nil
}

// RequireDatabase fails when DATABASE_URL is missing.
func (c *AppConfig) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	return nil
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func boolOr(getenv func(string) string, key string, def bool) (bool, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func durationOr(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
