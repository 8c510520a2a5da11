package mail

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	domainmail "perm_tracker/internal/domain/mail"
	"perm_tracker/internal/domain/user"
)

// Sender delivers a composed message. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer renders templates and sends them over SMTP to the user's address.
type SMTPMailer struct {
	users   user.Repository
	sender  Sender
	from    string
	baseURL string
	logger  *logrus.Entry
}

func NewSMTPMailer(users user.Repository, sender Sender, from, baseURL string, logger *logrus.Entry) *SMTPMailer {
	return &SMTPMailer{users: users, sender: sender, from: from, baseURL: baseURL, logger: logger}
}

// NewDialer builds the gomail dialer from SMTP settings.
func NewDialer(host string, port int, username, password string) *gomail.Dialer {
	return gomail.NewDialer(host, port, username, password)
}

func (m *SMTPMailer) SendEmail(ctx context.Context, userID string, kind domainmail.TemplateKind, payload any) error {
	u, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve recipient %s: %w", userID, err)
	}
	if u.Email == "" {
		return fmt.Errorf("user %s has no email address", userID)
	}

	subject, body, err := Render(kind, payload, m.baseURL)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", u.Email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send %s email: %w", kind, err)
	}
	m.logger.WithFields(logrus.Fields{"user_id": userID, "template": kind}).Debug("Email sent")
	return nil
}

// LogMailer logs emails instead of sending them. Used when SMTP is not configured.
type LogMailer struct {
	logger *logrus.Entry
}

func NewLogMailer(logger *logrus.Entry) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendEmail(_ context.Context, userID string, kind domainmail.TemplateKind, payload any) error {
	subject, _, err := Render(kind, payload, "")
	if err != nil {
		return err
	}
	m.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"template": kind,
		"subject":  subject,
	}).Info("Email not sent (SMTP disabled)")
	return nil
}
