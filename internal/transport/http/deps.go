package http

import (
	"context"
	"time"

	"github.com/go-jobboard-trust/internal/domain"
	jwtinfra "github.com/go-jobboard-trust/internal/infrastructure/jwt"
	"github.com/go-jobboard-trust/internal/metrics"
	"github.com/go-jobboard-trust/internal/pkg/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// UserRepository is the minimal interface the router requires from a user store.
type UserRepository interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	SetVerified(ctx context.Context, userID string, ch domain.Channel) error
	SetApproved(ctx context.Context, userID string, approved bool) error
}

// JobRepository is the minimal interface the router requires from a job store.
type JobRepository interface {
	Create(ctx context.Context, j *domain.Job) error
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	CompareAndSetStatus(ctx context.Context, jobID string, from, to domain.JobStatus, resetFlags bool, now time.Time) error
	IncrementFlagCount(ctx context.Context, jobID string) (int, error)
	// ListByEmployerStatus reads the employer_id-status-index GSI on DynamoDB.
	ListByEmployerStatus(ctx context.Context, employerID string, status domain.JobStatus) ([]domain.Job, error)
}

// ReportRepository is the minimal interface the router requires from a flag report log.
type ReportRepository interface {
	Append(ctx context.Context, r *domain.FlagReport) error
	List(ctx context.Context, jobID string) ([]domain.FlagReport, error)
	DeleteBefore(ctx context.Context, jobID string, cutoff time.Time) (int, error)
}

// VerificationRepository is the minimal interface the router requires from an OTP store.
type VerificationRepository interface {
	Put(ctx context.Context, v *domain.VerificationRecord) error
	Consume(ctx context.Context, subjectID string, ch domain.Channel, code string, now time.Time) (bool, error)
	Get(ctx context.Context, subjectID string, ch domain.Channel) (*domain.VerificationRecord, error)
}

// Dispatcher delivers a message over a verification channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, ch domain.Channel, destination, message string) error
}

// ReportArchiver keeps the report log of a removed job.
type ReportArchiver interface {
	Archive(ctx context.Context, jobID string, reports []domain.FlagReport) error
}

// Settings carries the tunables of the verification and moderation services.
type Settings struct {
	CodeTTL       time.Duration
	DispatchWait  time.Duration
	ExposeCodes   bool
	FlagThreshold int
	SendCodeRate  float64
	SendCodeBurst int
}

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo          UserRepository
	JobRepo           JobRepository
	ReportRepo        ReportRepository
	VerificationStore VerificationRepository
	Dispatcher        Dispatcher
	// Archiver is optional.
	Archiver    ReportArchiver
	JWTProvider *jwtinfra.Provider

	Metrics metrics.Recorder
	// Gatherer backs GET /metrics; the route is not mounted when nil.
	Gatherer prometheus.Gatherer
	Clock    clock.Clock

	Settings Settings
}
