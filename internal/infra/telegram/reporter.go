package telegram

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"perm_tracker/internal/app"
	domaintelegram "perm_tracker/internal/domain/telegram"
)

// OpsReporter posts job reports to the admin chat. Clean runs that touched
// nothing stay quiet.
type OpsReporter struct {
	client domaintelegram.Client
	chatID int64
	logger *logrus.Entry
}

func NewOpsReporter(client domaintelegram.Client, chatID int64, logger *logrus.Entry) *OpsReporter {
	return &OpsReporter{client: client, chatID: chatID, logger: logger}
}

func (r *OpsReporter) ReportJob(_ context.Context, report app.JobReport, err error) {
	if err == nil && report.Failed == 0 && report.Affected == 0 {
		return
	}
	if sendErr := r.client.SendText(r.chatID, FormatReport(report, err)); sendErr != nil {
		r.logger.WithError(sendErr).WithField("job", report.Job).Warn("Failed to post job report")
	}
}

// FormatReport renders a job report for the ops chat.
func FormatReport(report app.JobReport, err error) string {
	if err != nil {
		return fmt.Sprintf("❌ %s failed: %v", report.Job, err)
	}
	icon := "✅"
	if report.Failed > 0 {
		icon = "⚠️"
	}
	return icon + " " + report.String()
}
