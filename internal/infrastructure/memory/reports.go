package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-jobboard-trust/internal/domain"
)

type ReportLog struct {
	mu      sync.Mutex
	reports map[string][]domain.FlagReport
}

func NewReportLog() *ReportLog {
	return &ReportLog{reports: make(map[string][]domain.FlagReport)}
}

func (l *ReportLog) Append(_ context.Context, r *domain.FlagReport) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports[r.JobID] = append(l.reports[r.JobID], *r)
	return nil
}

func (l *ReportLog) List(_ context.Context, jobID string) ([]domain.FlagReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]domain.FlagReport(nil), l.reports[jobID]...)
	sort.Slice(out, func(a, b int) bool { return out[a].ReportID < out[b].ReportID })
	return out, nil
}

// DeleteBefore removes the job's reports created strictly before cutoff.
func (l *ReportLog) DeleteBefore(_ context.Context, jobID string, cutoff time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.reports[jobID][:0]
	removed := 0
	for _, r := range l.reports[jobID] {
		if r.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		delete(l.reports, jobID)
	} else {
		l.reports[jobID] = kept
	}
	return removed, nil
}
