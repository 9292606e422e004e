package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/go-jobboard-trust/internal/domain"
	"github.com/go-jobboard-trust/internal/infrastructure/memory"
	"github.com/go-jobboard-trust/internal/pkg/clock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockArchiver struct{ mock.Mock }

func (m *mockArchiver) Archive(ctx context.Context, jobID string, reports []domain.FlagReport) error {
	return m.Called(ctx, jobID, reports).Error(0)
}

type env struct {
	users   *memory.UserDirectory
	jobs    *memory.JobDirectory
	reports *memory.ReportLog
	clk     *clock.Fake
	gate    *Gate
	tracker *Tracker
	decider *Decider
}

func newEnv(t *testing.T, arch archiver) *env {
	t.Helper()
	e := &env{
		users:   memory.NewUserDirectory(),
		jobs:    memory.NewJobDirectory(),
		reports: memory.NewReportLog(),
		clk:     clock.NewFake(t0),
	}
	e.gate = NewGate(GateDeps{Jobs: e.jobs, Users: e.users, Clock: e.clk})
	e.tracker = NewTracker(TrackerDeps{Gate: e.gate, Jobs: e.jobs, Reports: e.reports, Clock: e.clk, Threshold: 3})
	e.decider = NewDecider(DeciderDeps{Gate: e.gate, Tracker: e.tracker, Archiver: arch, Clock: e.clk})

	ctx := context.Background()
	require.NoError(t, e.users.Put(ctx, &domain.User{UserID: "emp-ok", Role: domain.RoleEmployer, IsApproved: true}))
	require.NoError(t, e.users.Put(ctx, &domain.User{UserID: "emp-new", Role: domain.RoleEmployer}))
	require.NoError(t, e.users.Put(ctx, &domain.User{UserID: "seeker", Role: domain.RoleUser}))
	return e
}

// seed inserts a job directly with the given status and flag count.
func (e *env) seed(t *testing.T, id string, status domain.JobStatus, flags int) {
	t.Helper()
	require.NoError(t, e.jobs.Create(context.Background(), &domain.Job{
		JobID: id, EmployerID: "emp-ok", Title: "Welder", Status: status, FlagCount: flags,
		CreatedAt: t0, UpdatedAt: t0,
	}))
}

func (e *env) job(t *testing.T, id string) *domain.Job {
	t.Helper()
	j, err := e.jobs.Get(context.Background(), id)
	require.NoError(t, err)
	return j
}

// report files one report and moves the clock on so report IDs and
// timestamps are strictly ordered.
func (e *env) report(t *testing.T, jobID, reporter string) {
	t.Helper()
	require.NoError(t, e.tracker.ReportJob(context.Background(), jobID, reporter, "looks like a scam"))
	e.clk.Advance(time.Second)
}
