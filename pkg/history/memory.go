package history

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore lives for the lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Message
	closed   bool
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]Message),
		now:      time.Now,
	}
}

func (s *MemoryStore) Messages(_ context.Context, sessionID string) ([]Message, error) {
	if err := validate(sessionID, nil); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return slices.Clone(s.sessions[sessionID]), nil
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, msgs ...Message) error {
	if err := validate(sessionID, msgs); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, m := range msgs {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.now().UTC()
		}
		s.sessions[sessionID] = append(s.sessions[sessionID], m)
	}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	if err := validate(sessionID, nil); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.sessions = nil
	s.mu.Unlock()
	return nil
}
