package employer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-jobboard-trust/internal/domain"
)

type Service interface {
	// SetApproval records the employer's approval. Granting it promotes every
	// pending job of that employer and returns how many were promoted.
	SetApproval(ctx context.Context, employerID string, approved bool) (int, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	SetApproved(ctx context.Context, userID string, approved bool) error
}

type jobPromoter interface {
	PromoteEmployerJobs(ctx context.Context, employerID string) (int, error)
}

type service struct {
	users userStore
	gate  jobPromoter
}

func NewService(users userStore, gate jobPromoter) Service {
	return &service{users: users, gate: gate}
}

func (s *service) SetApproval(ctx context.Context, employerID string, approved bool) (int, error) {
	u, err := s.users.Get(ctx, employerID)
	if err != nil {
		return 0, err
	}
	if !u.IsEmployer() {
		return 0, domain.ErrNotEmployer
	}
	// The flag is written before pending jobs are listed; jobs created in
	// between see the approval themselves (see moderation.Gate.CreateJob).
	if err := s.users.SetApproved(ctx, employerID, approved); err != nil {
		return 0, fmt.Errorf("set approval: %w", err)
	}
	if !approved {
		return 0, nil
	}
	n, err := s.gate.PromoteEmployerJobs(ctx, employerID)
	if err != nil {
		return n, err
	}
	slog.Info("employer approved", "employer_id", employerID, "promoted_jobs", n)
	return n, nil
}
