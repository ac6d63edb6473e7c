package consent

import (
	"context"
	"sort"
	"sync"
	"time"

	"callguard/pkg/platform/sentinel"
)

type ledgerKey struct {
	phone   string
	channel Channel
}

// InMemoryStore keeps the ledger in process memory. Used by tests and by
// deployments without Postgres configured. The single mutex makes every
// mutation atomic, which trivially satisfies the supersede+insert contract.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[ledgerKey][]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[ledgerKey][]Record)}
}

func (s *InMemoryStore) GrantSupersede(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ledgerKey{phone: rec.SubjectPhone, channel: rec.Channel}
	now := rec.GrantedAt
	existing := s.records[key]
	for i := range existing {
		if existing[i].IsActive(now) {
			revokedAt := now
			existing[i].RevokedAt = &revokedAt
		}
	}
	s.records[key] = append(existing, rec)
	return nil
}

func (s *InMemoryStore) RevokeActive(_ context.Context, phone string, channel Channel, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ledgerKey{phone: phone, channel: channel}
	records := s.records[key]
	for i := range records {
		if records[i].IsActive(revokedAt) {
			at := revokedAt
			records[i].RevokedAt = &at
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *InMemoryStore) FindActive(_ context.Context, phone string, channel Channel, now time.Time) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records[ledgerKey{phone: phone, channel: channel}] {
		if rec.IsActive(now) {
			found := rec
			return &found, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) History(_ context.Context, phone string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for key, records := range s.records {
		if key.phone == phone {
			out = append(out, records...)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.Before(out[j].GrantedAt) })
	return out, nil
}

func (s *InMemoryStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for key, records := range s.records {
		kept := records[:0]
		for _, rec := range records {
			if rec.GrantedAt.Before(cutoff) {
				purged++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(s.records, key)
		} else {
			s.records[key] = kept
		}
	}
	return purged, nil
}

func (s *InMemoryStore) RedactProofsOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var redacted int64
	for key, records := range s.records {
		for i := range records {
			if records[i].GrantedAt.Before(cutoff) && records[i].EncryptedProof != nil {
				records[i].EncryptedProof = nil
				redacted++
			}
		}
		s.records[key] = records
	}
	return redacted, nil
}
