package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"calobot.app/bot/internal/model"
)

type memoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
}

// NewMemoryStore returns an in-process Store for development and tests.
// Sessions round-trip through JSON so stored values behave exactly like the
// redis-backed store's.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[string][]byte)}
}

func (s *memoryStore) Get(_ context.Context, userID string) (*model.Session, error) {
	s.mu.Lock()
	data, ok := s.sessions[userID]
	s.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}

	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &sess, nil
}

func (s *memoryStore) Put(_ context.Context, sess *model.Session) error {
	sess.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	s.mu.Lock()
	s.sessions[sess.UserID] = data
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
	return nil
}
