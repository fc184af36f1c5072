package memory

import (
	"context"
	"slices"
	"sync"
	"time"
)

// defaultRetention bounds how many turns the in-process archive keeps per session.
const defaultRetention = 500

// InMemoryStore keeps the newest archived turns of each session in process.
type InMemoryStore struct {
	mu        sync.Mutex
	retention int
	bySession map[string][]TurnRecord
	now       func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		retention: defaultRetention,
		bySession: make(map[string][]TurnRecord),
		now:       time.Now,
	}
}

func (s *InMemoryStore) SaveTurn(_ context.Context, record TurnRecord) error {
	record = stamp(record, s.now())
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := append(s.bySession[record.SessionID], record)
	if over := len(turns) - s.retention; over > 0 {
		turns = slices.Delete(turns, 0, over)
	}
	s.bySession[record.SessionID] = turns
	return nil
}

// RecentTurns returns up to limit turns, oldest first; limit <= 0 means all.
func (s *InMemoryStore) RecentTurns(_ context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.bySession[sessionID]
	if limit > 0 && limit < len(turns) {
		turns = turns[len(turns)-limit:]
	}
	if len(turns) == 0 {
		return nil, nil
	}
	return slices.Clone(turns), nil
}

func (s *InMemoryStore) Close() error { return nil }
