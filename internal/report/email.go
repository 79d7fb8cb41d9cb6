package report

import (
	"context"
	"fmt"

	mail "gopkg.in/mail.v2"
)

// EmailSettings configures the SMTP notifier.
type EmailSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// EmailNotifier delivers messages over SMTP.
type EmailNotifier struct {
	settings EmailSettings
	dialer   *mail.Dialer
}

// NewEmailNotifier returns a notifier for the given SMTP settings.
func NewEmailNotifier(settings EmailSettings) *EmailNotifier {
	return &EmailNotifier{
		settings: settings,
		dialer:   mail.NewDialer(settings.Host, settings.Port, settings.Username, settings.Password),
	}
}

// Notify sends msg as a plain-text mail to all configured recipients.
func (n *EmailNotifier) Notify(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", n.settings.From)
	m.SetHeader("To", n.settings.To...)
	m.SetHeader("Subject", "conn-mon alert")
	m.SetBody("text/plain", msg)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
