package audit

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps call attempts in process memory for tests and
// storeless deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	attempts []CallAttempt
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, attempt CallAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt)
	return nil
}

func (s *InMemoryStore) ListByPhone(_ context.Context, phone string) ([]CallAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CallAttempt
	for _, a := range s.attempts {
		if a.SubjectPhone == phone {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *InMemoryStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	kept := s.attempts[:0]
	for _, a := range s.attempts {
		if a.AttemptedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, a)
	}
	s.attempts = kept
	return purged, nil
}
