// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterBotCommands wires /start and publishes the command menu.
func RegisterBotCommands(b *telebot.Bot, adminTelegramID int64, baseLogger *logrus.Entry) {
	startLogger := baseLogger.WithField("handler_group", "start")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if senderID == adminTelegramID {
			logCtx.Info("User identified as Admin")
			return c.Send(fmt.Sprintf("Hello %s. Job reports will be posted here. Use /help for commands.", c.Sender().FirstName))
		}
		logCtx.Info("User is unknown")
		return c.Send("This bot is the operations channel of PERM Tracker and is restricted to administrators.")
	})

	commands := []telebot.Command{
		{Text: "run_job", Description: "Run a batch job now"},
		{Text: "purge_account", Description: "Purge an expired account"},
		{Text: "help", Description: "List admin commands"},
	}
	if err := b.SetCommands(commands); err != nil {
		baseLogger.WithError(err).Warn("Failed to publish bot command menu")
	}
}
