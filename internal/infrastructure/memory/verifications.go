// Package memory holds in-process stores used for local development and tests.
// Each store serialises access with a mutex, which gives the same
// atomicity guarantees the DynamoDB conditional writes provide.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-jobboard-trust/internal/domain"
)

type verificationKey struct {
	subjectID string
	channel   domain.Channel
}

// VerificationStore keeps one record per (subject, channel).
type VerificationStore struct {
	mu      sync.Mutex
	records map[verificationKey]domain.VerificationRecord
}

func NewVerificationStore() *VerificationStore {
	return &VerificationStore{records: make(map[verificationKey]domain.VerificationRecord)}
}

// Put replaces any existing record for the same subject and channel.
func (s *VerificationStore) Put(_ context.Context, v *domain.VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[verificationKey{v.SubjectID, v.Channel}] = *v
	return nil
}

// Consume deletes the record if the code matches and it has not expired at now.
// Expired records are dropped on the way.
func (s *VerificationStore) Consume(_ context.Context, subjectID string, ch domain.Channel, code string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := verificationKey{subjectID, ch}
	v, ok := s.records[k]
	if !ok {
		return false, nil
	}
	if v.Expired(now) {
		delete(s.records, k)
		return false, nil
	}
	if v.Code != code {
		return false, nil
	}
	delete(s.records, k)
	return true, nil
}

func (s *VerificationStore) Get(_ context.Context, subjectID string, ch domain.Channel) (*domain.VerificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.records[verificationKey{subjectID, ch}]
	if !ok {
		return nil, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	return &v, nil
}

// Len reports the number of stored records.
func (s *VerificationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
