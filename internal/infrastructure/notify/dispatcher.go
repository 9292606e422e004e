// Package notify routes verification messages to the email or SMS provider.
package notify

import (
	"context"
	"fmt"

	"github.com/go-jobboard-trust/internal/domain"
)

const emailSubject = "Your verification code"

type mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// Dispatcher sends a message over the provider matching its channel.
type Dispatcher struct {
	mail mailer
	sms  smsSender
}

// NewDispatcher accepts nil for a provider that is not configured; sends on
// that channel then fail with domain.ErrUnavailable.
func NewDispatcher(mail mailer, sms smsSender) *Dispatcher {
	return &Dispatcher{mail: mail, sms: sms}
}

func (d *Dispatcher) Dispatch(ctx context.Context, ch domain.Channel, destination, message string) error {
	switch ch {
	case domain.ChannelEmail:
		if d.mail == nil {
			return fmt.Errorf("email provider not configured: %w", domain.ErrUnavailable)
		}
		return d.mail.SendEmail(ctx, destination, emailSubject, message)
	case domain.ChannelPhone:
		if d.sms == nil {
			return fmt.Errorf("sms provider not configured: %w", domain.ErrUnavailable)
		}
		return d.sms.SendSMS(ctx, destination, message)
	}
	return domain.ErrInvalidChannel
}
