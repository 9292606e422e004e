package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-jobboard-trust/internal/domain"
	"github.com/go-jobboard-trust/internal/metrics"
	"github.com/go-jobboard-trust/internal/pkg/clock"
	"github.com/go-jobboard-trust/internal/pkg/id"
)

type jobDirectory interface {
	Create(ctx context.Context, j *domain.Job) error
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	// CompareAndSetStatus writes to only if the stored status is from, in one
	// conditional write. resetFlags zeroes the flag counter in the same write.
	// A different stored status yields domain.ErrStatusMismatch.
	CompareAndSetStatus(ctx context.Context, jobID string, from, to domain.JobStatus, resetFlags bool, now time.Time) error
	IncrementFlagCount(ctx context.Context, jobID string) (int, error)
	ListByEmployerStatus(ctx context.Context, employerID string, status domain.JobStatus) ([]domain.Job, error)
}

type userReader interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type edge struct {
	from, to domain.JobStatus
}

// transitions lists every status change the gate accepts. The value says
// whether the flag counter is cleared as part of the write. Every edge into
// active clears it, so a job only counts reports received while active.
var transitions = map[edge]bool{
	{domain.JobPending, domain.JobActive}: true,  // employer approved
	{domain.JobActive, domain.JobFlagged}: false, // flag threshold reached
	{domain.JobFlagged, domain.JobActive}: true,  // admin approve
	{domain.JobFlagged, domain.JobClosed}: false, // admin remove
	{domain.JobClosed, domain.JobActive}:  true,  // manual reopen
}

// Gate owns job status. Every status write in the system goes through it.
type Gate struct {
	jobs    jobDirectory
	users   userReader
	clock   clock.Clock
	metrics metrics.Recorder
}

type GateDeps struct {
	Jobs    jobDirectory
	Users   userReader
	Clock   clock.Clock
	Metrics metrics.Recorder
}

func NewGate(deps GateDeps) *Gate {
	g := &Gate{jobs: deps.Jobs, users: deps.Users, clock: deps.Clock, metrics: deps.Metrics}
	if g.clock == nil {
		g.clock = clock.System()
	}
	if g.metrics == nil {
		g.metrics = metrics.Nop{}
	}
	return g
}

// CreateJob stores a new job as active when the employer is approved and
// pending otherwise.
func (g *Gate) CreateJob(ctx context.Context, employerID, title string) (*domain.Job, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("title is required: %w", domain.ErrBadRequest)
	}
	emp, err := g.users.Get(ctx, employerID)
	if err != nil {
		return nil, err
	}
	if !emp.IsEmployer() {
		return nil, domain.ErrNotEmployer
	}

	now := g.clock.Now()
	j := &domain.Job{
		JobID:      id.NewAt(now),
		EmployerID: employerID,
		Title:      title,
		Status:     domain.JobPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if emp.IsApproved {
		j.Status = domain.JobActive
	}
	if err := g.jobs.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	g.metrics.JobTransitioned("none", string(j.Status))

	if j.Status == domain.JobPending {
		g.catchUpApproval(ctx, j)
	}
	return j, nil
}

// catchUpApproval promotes a job that was inserted as pending while the
// employer's approval was being granted. Without it the approval cascade
// could have listed pending jobs just before this one was written.
func (g *Gate) catchUpApproval(ctx context.Context, j *domain.Job) {
	emp, err := g.users.Get(ctx, j.EmployerID)
	if err != nil || !emp.IsApproved {
		return
	}
	err = g.Transition(ctx, j.JobID, domain.JobPending, domain.JobActive)
	switch {
	case err == nil:
		j.Status = domain.JobActive
	case errors.Is(err, domain.ErrInvalidTransition):
		// The cascade got there first.
		if cur, gerr := g.jobs.Get(ctx, j.JobID); gerr == nil {
			*j = *cur
		}
	default:
		slog.Warn("could not promote job created during approval", "job_id", j.JobID, "err", err)
	}
}

// Job returns the current job record.
func (g *Gate) Job(ctx context.Context, jobID string) (*domain.Job, error) {
	return g.jobs.Get(ctx, jobID)
}

// Transition moves jobID from one status to another. Pairs outside the
// transition table, or a stored status other than from, fail with
// domain.ErrInvalidTransition and leave the job unchanged. Requesting
// active -> flagged on a job that is already flagged is a no-op.
func (g *Gate) Transition(ctx context.Context, jobID string, from, to domain.JobStatus) error {
	resetFlags, ok := transitions[edge{from, to}]
	if !ok {
		return fmt.Errorf("%s -> %s: %w", from, to, domain.ErrInvalidTransition)
	}

	err := g.jobs.CompareAndSetStatus(ctx, jobID, from, to, resetFlags, g.clock.Now())
	if err == nil {
		g.metrics.JobTransitioned(string(from), string(to))
		slog.Info("job status changed", "job_id", jobID, "from", from, "to", to)
		return nil
	}
	if !errors.Is(err, domain.ErrStatusMismatch) {
		return err
	}

	cur, gerr := g.jobs.Get(ctx, jobID)
	if gerr != nil {
		return gerr
	}
	if from == domain.JobActive && to == domain.JobFlagged && cur.Status == domain.JobFlagged {
		return nil
	}
	return fmt.Errorf("job is %s, cannot go %s -> %s: %w", cur.Status, from, to, domain.ErrInvalidTransition)
}

// PromoteEmployerJobs moves every pending job of employerID to active and
// returns how many were promoted. Jobs that left pending concurrently are
// skipped.
func (g *Gate) PromoteEmployerJobs(ctx context.Context, employerID string) (int, error) {
	pending, err := g.jobs.ListByEmployerStatus(ctx, employerID, domain.JobPending)
	if err != nil {
		return 0, fmt.Errorf("list pending jobs: %w", err)
	}
	promoted := 0
	for _, j := range pending {
		err := g.Transition(ctx, j.JobID, domain.JobPending, domain.JobActive)
		switch {
		case err == nil:
			promoted++
		case errors.Is(err, domain.ErrInvalidTransition):
			slog.Debug("job left pending before promotion", "job_id", j.JobID, "err", err)
		default:
			return promoted, fmt.Errorf("promote job %s: %w", j.JobID, err)
		}
	}
	return promoted, nil
}
