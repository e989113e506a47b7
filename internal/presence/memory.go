package presence

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	entry    Entry
	expireAt time.Time
}

// MemoryStore keeps presence in process memory. It backs tests and the
// no-Redis development mode; expiry is evaluated lazily on read.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]map[string]memoryEntry
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]map[string]memoryEntry),
		now:      time.Now,
	}
}

func (s *MemoryStore) Set(_ context.Context, sessionID string, entry Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sessionID] == nil {
		s.sessions[sessionID] = make(map[string]memoryEntry)
	}
	s.sessions[sessionID][entry.ParticipantID] = memoryEntry{
		entry:    entry,
		expireAt: s.now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) Refresh(_ context.Context, sessionID, participantID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.sessions[sessionID][participantID]
	if !ok || s.now().After(m.expireAt) {
		return ErrNoEntry
	}
	m.entry.LastSeen = s.now().UTC()
	m.expireAt = s.now().Add(ttl)
	s.sessions[sessionID][participantID] = m
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, sessionID, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.sessions[sessionID]; m != nil {
		delete(m, participantID)
		if len(m) == 0 {
			delete(s.sessions, sessionID)
		}
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, sessionID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var entries []Entry
	for id, m := range s.sessions[sessionID] {
		if now.After(m.expireAt) {
			delete(s.sessions[sessionID], id)
			continue
		}
		entries = append(entries, m.entry)
	}
	return entries, nil
}

func (s *MemoryStore) Count(ctx context.Context, sessionID string) (int, error) {
	entries, err := s.List(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// SetClock replaces the time source; tests use it to force expiry.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
