package domain

import "time"

// Channel is a contact channel that can be proven reachable.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// ParseChannel validates a channel name taken from a URL or request body.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelEmail, ChannelPhone:
		return Channel(s), nil
	}
	return "", ErrInvalidChannel
}

// VerificationRecord is the single outstanding code for a (subject, channel) pair.
// PK: subject_id, SK: channel.
type VerificationRecord struct {
	SubjectID string    `json:"subject_id"`
	Channel   Channel   `json:"channel"`
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the record is no longer valid at now.
func (v *VerificationRecord) Expired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

// DeliveryStatus describes what happened to the notification carrying a code.
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliveryPending DeliveryStatus = "pending"
)

type ConfirmCodeRequest struct {
	Code string `json:"code" validate:"required,numeric,len=6"`
}
