package smtp

import (
	"context"
	"fmt"

	"github.com/go-jobboard-trust/internal/config"
	"gopkg.in/gomail.v2"
)

// Mailer sends plain-text emails.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type mailer struct {
	from string
	send func(m *gomail.Message) error
}

func NewMailer(cfg *config.Config) Mailer {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	return &mailer{from: cfg.SMTPFrom, send: func(m *gomail.Message) error { return dialer.DialAndSend(m) }}
}

func (m *mailer) SendEmail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
