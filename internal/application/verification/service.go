package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-jobboard-trust/internal/domain"
	"github.com/go-jobboard-trust/internal/metrics"
	"github.com/go-jobboard-trust/internal/pkg/clock"
	"github.com/go-jobboard-trust/internal/pkg/otp"
)

const (
	defaultCodeTTL      = 10 * time.Minute
	defaultDispatchWait = 3 * time.Second
	// dispatchTimeout caps a send that outlives the request.
	dispatchTimeout = 30 * time.Second
)

// Result describes an issued code. Code is only populated when the service
// was built with ExposeCodes.
type Result struct {
	Channel   domain.Channel        `json:"channel"`
	ExpiresAt time.Time             `json:"expires_at"`
	Delivery  domain.DeliveryStatus `json:"delivery"`
	Code      string                `json:"code,omitempty"`
}

// Status describes one channel of a subject: whether it is verified and
// whether a code is outstanding. Code is only populated when the service was
// built with ExposeCodes.
type Status struct {
	Channel   domain.Channel `json:"channel"`
	Verified  bool           `json:"verified"`
	Pending   bool           `json:"pending"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Code      string         `json:"code,omitempty"`
}

type Service interface {
	// RequestCode issues a fresh code for the subject's channel, superseding any
	// outstanding one, and sends it. A delivery failure is returned as
	// domain.ErrDispatchFailed together with a non-nil Result: the stored code
	// stays valid.
	RequestCode(ctx context.Context, subjectID string, ch domain.Channel) (*Result, error)
	// VerifyCode consumes the code and sets the channel's trust flag.
	VerifyCode(ctx context.Context, subjectID string, ch domain.Channel, code string) error
	// Status reports the channel's trust flag and the outstanding code, if any.
	Status(ctx context.Context, subjectID string, ch domain.Channel) (*Status, error)
}

type codeStore interface {
	Put(ctx context.Context, v *domain.VerificationRecord) error
	Consume(ctx context.Context, subjectID string, ch domain.Channel, code string, now time.Time) (bool, error)
	Get(ctx context.Context, subjectID string, ch domain.Channel) (*domain.VerificationRecord, error)
}

type userDirectory interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	SetVerified(ctx context.Context, userID string, ch domain.Channel) error
}

type dispatcher interface {
	Dispatch(ctx context.Context, ch domain.Channel, destination, message string) error
}

type ServiceDeps struct {
	Store      codeStore
	Users      userDirectory
	Dispatcher dispatcher
	Clock      clock.Clock
	Metrics    metrics.Recorder

	CodeTTL      time.Duration
	DispatchWait time.Duration
	ExposeCodes  bool
}

type service struct {
	store        codeStore
	users        userDirectory
	dispatcher   dispatcher
	clock        clock.Clock
	metrics      metrics.Recorder
	codeTTL      time.Duration
	dispatchWait time.Duration
	exposeCodes  bool
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		store:        deps.Store,
		users:        deps.Users,
		dispatcher:   deps.Dispatcher,
		clock:        deps.Clock,
		metrics:      deps.Metrics,
		codeTTL:      deps.CodeTTL,
		dispatchWait: deps.DispatchWait,
		exposeCodes:  deps.ExposeCodes,
	}
	if s.clock == nil {
		s.clock = clock.System()
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.codeTTL <= 0 {
		s.codeTTL = defaultCodeTTL
	}
	if s.dispatchWait <= 0 {
		s.dispatchWait = defaultDispatchWait
	}
	return s
}

func (s *service) RequestCode(ctx context.Context, subjectID string, ch domain.Channel) (*Result, error) {
	u, err := s.users.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	dest := u.Destination(ch)
	if dest == "" {
		return nil, fmt.Errorf("%s: %w", ch, domain.ErrNoDestination)
	}

	now := s.clock.Now()
	v := &domain.VerificationRecord{
		SubjectID: subjectID,
		Channel:   ch,
		Code:      otp.Generate(),
		ExpiresAt: now.Add(s.codeTTL),
		CreatedAt: now,
	}
	if err := s.store.Put(ctx, v); err != nil {
		return nil, fmt.Errorf("store verification code: %w", err)
	}
	s.metrics.CodeIssued(string(ch))

	res := &Result{Channel: ch, ExpiresAt: v.ExpiresAt}
	if s.exposeCodes {
		res.Code = v.Code
		slog.Debug("verification code issued", "user_id", subjectID, "channel", ch, "code", v.Code)
	}

	res.Delivery, err = s.send(ctx, subjectID, ch, dest, message(ch, v.Code, s.codeTTL))
	return res, err
}

// send hands the message to the dispatcher on its own goroutine and waits at
// most dispatchWait for the outcome. A send still running after that is left
// to finish in the background and only logged.
func (s *service) send(ctx context.Context, subjectID string, ch domain.Channel, dest, msg string) (domain.DeliveryStatus, error) {
	done := make(chan error, 1)
	go func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
		defer cancel()
		done <- s.dispatcher.Dispatch(dctx, ch, dest, msg)
	}()

	timer := time.NewTimer(s.dispatchWait)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			s.dispatchFailed(subjectID, ch, err)
			return domain.DeliveryFailed, domain.ErrDispatchFailed
		}
		return domain.DeliverySent, nil
	case <-timer.C:
		go func() {
			if err := <-done; err != nil {
				s.dispatchFailed(subjectID, ch, err)
			}
		}()
		return domain.DeliveryPending, nil
	}
}

func (s *service) dispatchFailed(subjectID string, ch domain.Channel, err error) {
	s.metrics.DispatchFailed(string(ch))
	slog.Warn("verification code dispatch failed", "user_id", subjectID, "channel", ch, "err", err)
}

func (s *service) VerifyCode(ctx context.Context, subjectID string, ch domain.Channel, code string) error {
	if !otp.WellFormed(code) {
		s.metrics.CodeVerified(string(ch), false)
		return domain.ErrInvalidOrExpiredCode
	}
	ok, err := s.store.Consume(ctx, subjectID, ch, code, s.clock.Now())
	if err != nil {
		return fmt.Errorf("consume verification code: %w", err)
	}
	s.metrics.CodeVerified(string(ch), ok)
	if !ok {
		return domain.ErrInvalidOrExpiredCode
	}
	if err := s.users.SetVerified(ctx, subjectID, ch); err != nil {
		// The code is already spent; the subject has to request a new one.
		slog.Error("code consumed but trust flag not set", "user_id", subjectID, "channel", ch, "err", err)
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("set %s verified: %w", ch, err)
	}
	return nil
}

func (s *service) Status(ctx context.Context, subjectID string, ch domain.Channel) (*Status, error) {
	u, err := s.users.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	st := &Status{Channel: ch, Verified: u.Verified(ch)}

	v, err := s.store.Get(ctx, subjectID, ch)
	if errors.Is(err, domain.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read verification code: %w", err)
	}
	if v.Expired(s.clock.Now()) {
		return st, nil
	}
	st.Pending = true
	st.ExpiresAt = &v.ExpiresAt
	if s.exposeCodes {
		st.Code = v.Code
	}
	return st, nil
}

func message(ch domain.Channel, code string, ttl time.Duration) string {
	mins := int(ttl.Minutes())
	if ch == domain.ChannelPhone {
		return fmt.Sprintf("Your verification code: %s (valid %d min)", code, mins)
	}
	return fmt.Sprintf("Your verification code is %s.\r\n\r\nIt expires in %d minutes. If you did not request it, ignore this email.", code, mins)
}
