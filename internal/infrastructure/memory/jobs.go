package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-jobboard-trust/internal/domain"
)

type JobDirectory struct {
	mu   sync.Mutex
	jobs map[string]domain.Job
}

func NewJobDirectory() *JobDirectory {
	return &JobDirectory{jobs: make(map[string]domain.Job)}
}

func (d *JobDirectory) Create(_ context.Context, j *domain.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.jobs[j.JobID]; ok {
		return fmt.Errorf("job %s already exists: %w", j.JobID, domain.ErrConflict)
	}
	d.jobs[j.JobID] = *j
	return nil
}

func (d *JobDirectory) Get(_ context.Context, jobID string) (*domain.Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	j, ok := d.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return &j, nil
}

func (d *JobDirectory) CompareAndSetStatus(_ context.Context, jobID string, from, to domain.JobStatus, resetFlags bool, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	j, ok := d.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if j.Status != from {
		return fmt.Errorf("job %s is %s: %w", jobID, j.Status, domain.ErrStatusMismatch)
	}
	j.Status = to
	if resetFlags {
		j.FlagCount = 0
	}
	j.UpdatedAt = now
	d.jobs[jobID] = j
	return nil
}

func (d *JobDirectory) IncrementFlagCount(_ context.Context, jobID string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	j, ok := d.jobs[jobID]
	if !ok {
		return 0, domain.ErrJobNotFound
	}
	j.FlagCount++
	d.jobs[jobID] = j
	return j.FlagCount, nil
}

func (d *JobDirectory) ListByEmployerStatus(_ context.Context, employerID string, status domain.JobStatus) ([]domain.Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.Job
	for _, j := range d.jobs {
		if j.EmployerID == employerID && j.Status == status {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].JobID < out[b].JobID })
	return out, nil
}
