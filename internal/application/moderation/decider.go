package moderation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-jobboard-trust/internal/domain"
	"github.com/go-jobboard-trust/internal/pkg/clock"
)

type archiver interface {
	Archive(ctx context.Context, jobID string, reports []domain.FlagReport) error
}

// Decider applies admin decisions to flagged jobs.
type Decider struct {
	gate     *Gate
	tracker  *Tracker
	archiver archiver
	clock    clock.Clock
}

type DeciderDeps struct {
	Gate    *Gate
	Tracker *Tracker
	// Archiver is optional; when set, the report log of a removed job is
	// archived before it can be lost.
	Archiver archiver
	Clock    clock.Clock
}

func NewDecider(deps DeciderDeps) *Decider {
	d := &Decider{gate: deps.Gate, tracker: deps.Tracker, archiver: deps.Archiver, clock: deps.Clock}
	if d.clock == nil {
		d.clock = clock.System()
	}
	return d
}

// Decide resolves a flagged job. approve restores it to active and clears
// its flag history; remove closes it for good.
func (d *Decider) Decide(ctx context.Context, jobID string, decision domain.Decision) error {
	var to domain.JobStatus
	switch decision {
	case domain.DecisionApprove:
		to = domain.JobActive
	case domain.DecisionRemove:
		to = domain.JobClosed
	default:
		return domain.ErrInvalidDecision
	}

	job, err := d.gate.Job(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobFlagged {
		return domain.ErrNotFlagged
	}

	decidedAt := d.clock.Now()
	if err := d.gate.Transition(ctx, jobID, domain.JobFlagged, to); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Another decision won the race.
			return domain.ErrNotFlagged
		}
		return err
	}

	switch decision {
	case domain.DecisionApprove:
		if err := d.tracker.Reset(ctx, jobID, decidedAt); err != nil {
			slog.Warn("job restored but flag history not cleared", "job_id", jobID, "err", err)
		}
	case domain.DecisionRemove:
		d.archive(ctx, jobID)
	}
	return nil
}

func (d *Decider) archive(ctx context.Context, jobID string) {
	if d.archiver == nil {
		return
	}
	reports, err := d.tracker.Reports(ctx, jobID)
	if err != nil {
		slog.Warn("could not load flag reports for archive", "job_id", jobID, "err", err)
		return
	}
	if err := d.archiver.Archive(ctx, jobID, reports); err != nil {
		slog.Warn("moderation archive failed", "job_id", jobID, "err", err)
	}
}

// Reopen returns a closed job to active with a fresh flag counter.
func (d *Decider) Reopen(ctx context.Context, jobID string) error {
	return d.gate.Transition(ctx, jobID, domain.JobClosed, domain.JobActive)
}
