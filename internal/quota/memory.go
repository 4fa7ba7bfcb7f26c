package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the localFallback store: same semantics as the redis store,
// held in a mutex-guarded map. Also used by unit tests.
type MemoryStore struct {
	mu           sync.Mutex
	records      map[string]*Record
	defaultLimit int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(defaultLimit int64) *MemoryStore {
	if defaultLimit <= 0 {
		defaultLimit = 5
	}
	return &MemoryStore{
		records:      make(map[string]*Record),
		defaultLimit: defaultLimit,
	}
}

// ensureLocked creates the default record lazily and applies the
// calendar-month rollover. Caller holds the mutex.
func (s *MemoryStore) ensureLocked(userID string, now time.Time) *Record {
	rec, ok := s.records[userID]
	if !ok {
		rec = &Record{
			Limit:       s.defaultLimit,
			Used:        0,
			PeriodStart: now,
			Tier:        "free",
			Status:      "active",
		}
		s.records[userID] = rec
		return rec
	}
	if !SamePeriod(rec.PeriodStart, now) {
		rec.Used = 0
		rec.PeriodStart = now
	}
	return rec
}

func (s *MemoryStore) Status(ctx context.Context, userID string, now time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.ensureLocked(userID, now), nil
}

func (s *MemoryStore) Reserve(ctx context.Context, userID string, now time.Time) (bool, Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.ensureLocked(userID, now)
	if rec.Used >= rec.Limit {
		return false, *rec, nil
	}
	rec.Used++
	return true, *rec, nil
}

func (s *MemoryStore) Release(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[userID]; ok && rec.Used > 0 {
		rec.Used--
	}
	return nil
}
