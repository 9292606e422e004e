package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrUnavailable  = errors.New("unavailable")
)

// Specific failures. Each wraps one of the categories above, so
// errors.Is(err, ErrBadRequest) also matches ErrInvalidOrExpiredCode.
var (
	ErrUserNotFound         = fmt.Errorf("user not found: %w", ErrNotFound)
	ErrJobNotFound          = fmt.Errorf("job not found: %w", ErrNotFound)
	ErrNoDestination        = fmt.Errorf("no destination configured: %w", ErrBadRequest)
	ErrInvalidChannel       = fmt.Errorf("invalid channel: %w", ErrBadRequest)
	ErrInvalidOrExpiredCode = fmt.Errorf("invalid or expired code: %w", ErrBadRequest)
	ErrInvalidDecision      = fmt.Errorf("invalid decision: %w", ErrBadRequest)
	ErrInvalidTransition    = fmt.Errorf("invalid transition: %w", ErrBadRequest)
	ErrEmptyReason          = fmt.Errorf("reason is required: %w", ErrBadRequest)
	ErrNotEmployer          = fmt.Errorf("user is not an employer: %w", ErrBadRequest)
	ErrNotFlagged           = fmt.Errorf("job is not flagged: %w", ErrConflict)
	ErrDispatchFailed       = fmt.Errorf("notification dispatch failed: %w", ErrUnavailable)

	// ErrStatusMismatch is returned by job directories when a conditional
	// status write finds a different current status.
	ErrStatusMismatch = fmt.Errorf("job status precondition failed: %w", ErrConflict)
)
