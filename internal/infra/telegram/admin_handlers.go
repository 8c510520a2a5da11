package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"perm_tracker/internal/app"
)

// JobRunner runs a batch job on demand.
type JobRunner interface {
	RunJob(ctx context.Context, name app.JobName) (app.JobReport, error)
}

// AccountPurger permanently deletes an account whose grace period is over.
type AccountPurger interface {
	PermanentlyDeleteAccount(ctx context.Context, userID string) (app.DeletionResult, error)
}

const unauthorizedMsg = "Error: you are not allowed to run this command."

// AdminCommands holds the logic behind the admin commands, independent of the bot.
type AdminCommands struct {
	runner  JobRunner
	purger  AccountPurger
	jobs    []app.JobName
	timeout time.Duration
	logger  *logrus.Entry
}

func NewAdminCommands(runner JobRunner, purger AccountPurger, jobs []app.JobName, timeout time.Duration, logger *logrus.Entry) *AdminCommands {
	return &AdminCommands{runner: runner, purger: purger, jobs: jobs, timeout: timeout, logger: logger}
}

// RunJob handles "/run_job <name>".
func (a *AdminCommands) RunJob(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Invalid format. Use: /run_job <" + a.jobList("|") + ">"
	}
	name := app.JobName(strings.TrimSpace(args[0]))
	log := a.logger.WithField("job", name)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	report, err := a.runner.RunJob(ctx, name)
	if errors.Is(err, app.ErrUnknownJob) {
		log.Warn("Unknown job requested")
		return fmt.Sprintf("Unknown job %q. Available: %s", name, a.jobList(", "))
	}
	if err != nil {
		log.WithError(err).Error("Manual job run failed")
	}
	return FormatReport(report, err)
}

// PurgeAccount handles "/purge_account <userID>".
func (a *AdminCommands) PurgeAccount(ctx context.Context, args []string) string {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "Invalid format. Use: /purge_account <userID>"
	}
	userID := strings.TrimSpace(args[0])
	log := a.logger.WithField("user_id", userID)

	res, err := a.purger.PermanentlyDeleteAccount(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Manual purge failed")
		return fmt.Sprintf("Purge of %s failed: %v", userID, err)
	}
	if !res.Success {
		log.WithField("reason", res.Message).Info("Manual purge declined")
		return fmt.Sprintf("Purge of %s declined: %s", userID, res.Message)
	}
	log.Info("Account purged by admin")
	return fmt.Sprintf("%s: %s", res.Message, userID)
}

// Help lists the admin commands.
func (a *AdminCommands) Help() string {
	var b strings.Builder
	b.WriteString("Admin commands:\n")
	b.WriteString("/run_job <job> - run a batch job now\n")
	b.WriteString("/purge_account <userID> - purge an account whose grace period expired\n")
	b.WriteString("/help - this message\n\n")
	b.WriteString("Jobs: " + a.jobList(", "))
	return b.String()
}

func (a *AdminCommands) jobList(sep string) string {
	names := make([]string, len(a.jobs))
	for i, j := range a.jobs {
		names[i] = string(j)
	}
	return strings.Join(names, sep)
}

// RegisterAdminHandlers registers handlers for admin commands.
// Only the configured admin Telegram ID may use them.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, cmds *AdminCommands, adminTelegramID int64, baseLogger *logrus.Entry) {
	guard := func(command string, run func(c telebot.Context) string) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			handlerLogger := baseLogger.WithFields(logrus.Fields{
				"handler":   command,
				"sender_id": c.Sender().ID,
			})
			handlerLogger.Info("Command received")

			if c.Sender().ID != adminTelegramID {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(unauthorizedMsg)
			}
			return c.Send(run(c))
		}
	}

	b.Handle("/run_job", guard("/run_job", func(c telebot.Context) string {
		return cmds.RunJob(ctx, c.Args())
	}))
	b.Handle("/purge_account", guard("/purge_account", func(c telebot.Context) string {
		return cmds.PurgeAccount(ctx, c.Args())
	}))
	b.Handle("/help", guard("/help", func(c telebot.Context) string {
		return cmds.Help()
	}))
}
