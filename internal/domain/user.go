package domain

import "time"

// User is the subset of the user record the trust and moderation core reads and writes.
type User struct {
	UserID        string    `json:"id" dynamodbav:"user_id"`
	Email         string    `json:"email" dynamodbav:"email"`
	Phone         *string   `json:"phone" dynamodbav:"phone"`
	Role          string    `json:"role" dynamodbav:"role"`
	EmailVerified bool      `json:"email_verified" dynamodbav:"email_verified"`
	PhoneVerified bool      `json:"phone_verified" dynamodbav:"phone_verified"`
	IsApproved    bool      `json:"is_approved" dynamodbav:"is_approved"` // employers only
	CreatedAt     time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt     time.Time `json:"updated" dynamodbav:"updated_at"`
}

// Destination returns the contact address for ch, or "" when none is on file.
func (u *User) Destination(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return u.Email
	case ChannelPhone:
		if u.Phone != nil {
			return *u.Phone
		}
	}
	return ""
}

// Verified reports the trust flag for ch.
func (u *User) Verified(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return u.EmailVerified
	case ChannelPhone:
		return u.PhoneVerified
	}
	return false
}

// IsEmployer reports whether the user posts jobs.
func (u *User) IsEmployer() bool { return u.Role == RoleEmployer }
