package id

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewAt generates a ULID whose time component is t. Report IDs use the
// report's creation time so the job_reports sort key follows the clock.
func NewAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// Floor returns the smallest ULID whose time component is t's millisecond.
// Every ID generated at or after that millisecond sorts at or above it.
func Floor(t time.Time) string {
	var u ulid.ULID
	if err := u.SetTime(ulid.Timestamp(t)); err != nil {
		return ulid.ULID{}.String()
	}
	return u.String()
}
