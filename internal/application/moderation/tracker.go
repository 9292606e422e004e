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

// DefaultFlagThreshold is the report count that flags an active job.
const DefaultFlagThreshold = 3

type reportLog interface {
	Append(ctx context.Context, r *domain.FlagReport) error
	List(ctx context.Context, jobID string) ([]domain.FlagReport, error)
	DeleteBefore(ctx context.Context, jobID string, cutoff time.Time) (int, error)
}

// Tracker records community reports and asks the gate to flag a job once
// enough of them accumulate. Reports are not deduplicated per reporter.
type Tracker struct {
	gate      *Gate
	jobs      jobDirectory
	reports   reportLog
	clock     clock.Clock
	metrics   metrics.Recorder
	threshold int
}

type TrackerDeps struct {
	Gate      *Gate
	Jobs      jobDirectory
	Reports   reportLog
	Clock     clock.Clock
	Metrics   metrics.Recorder
	Threshold int
}

func NewTracker(deps TrackerDeps) *Tracker {
	t := &Tracker{
		gate:      deps.Gate,
		jobs:      deps.Jobs,
		reports:   deps.Reports,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		threshold: deps.Threshold,
	}
	if t.clock == nil {
		t.clock = clock.System()
	}
	if t.metrics == nil {
		t.metrics = metrics.Nop{}
	}
	if t.threshold <= 0 {
		t.threshold = DefaultFlagThreshold
	}
	return t
}

// ReportJob appends a report and bumps the job's counter atomically. Once the
// counter reaches the threshold the gate is asked for active -> flagged; the
// gate's conditional write makes that happen at most once per cycle.
func (t *Tracker) ReportJob(ctx context.Context, jobID, reporterID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.ErrEmptyReason
	}
	if _, err := t.jobs.Get(ctx, jobID); err != nil {
		return err
	}

	now := t.clock.Now()
	r := &domain.FlagReport{
		JobID:      jobID,
		ReportID:   id.NewAt(now),
		ReporterID: reporterID,
		Reason:     reason,
		CreatedAt:  now,
	}
	if err := t.reports.Append(ctx, r); err != nil {
		return fmt.Errorf("append flag report: %w", err)
	}

	count, err := t.jobs.IncrementFlagCount(ctx, jobID)
	if err != nil {
		return fmt.Errorf("increment flag count: %w", err)
	}
	t.metrics.FlagReported()

	if count < t.threshold {
		return nil
	}
	err = t.gate.Transition(ctx, jobID, domain.JobActive, domain.JobFlagged)
	if errors.Is(err, domain.ErrInvalidTransition) {
		// Pending or closed jobs keep counting but are not flagged.
		slog.Info("flag threshold reached on job that is not active", "job_id", jobID, "count", count, "err", err)
		return nil
	}
	return err
}

// Reports returns the job's report log, oldest first.
func (t *Tracker) Reports(ctx context.Context, jobID string) ([]domain.FlagReport, error) {
	if _, err := t.jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return t.reports.List(ctx, jobID)
}

// Reset drops the report history recorded before cutoff so a later, unrelated
// flagging cycle starts from nothing. The counter itself is cleared by the
// gate in the same write that restores the job.
func (t *Tracker) Reset(ctx context.Context, jobID string, cutoff time.Time) error {
	n, err := t.reports.DeleteBefore(ctx, jobID, cutoff)
	if err != nil {
		return fmt.Errorf("clear flag reports: %w", err)
	}
	slog.Debug("flag reports cleared", "job_id", jobID, "count", n)
	return nil
}
