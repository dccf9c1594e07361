package sessionstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core/auth"
)

// MemoryStore keeps sessions in process, for development and tests.
// Expired sessions are swept at most once per ttl, on save.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[string]memEntry
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

var _ auth.SessionStore = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memEntry), ttl: ttl, now: time.Now}
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok {
		return nil, auth.ErrSessionNotFound
	}
	if s.now().After(entry.expiresAt) {
		delete(s.sessions, id)
		return nil, auth.ErrSessionNotFound
	}
	var sess auth.Session
	if err := json.Unmarshal(entry.data, &sess); err != nil {
		return nil, errors.Wrap(err, "unmarshalling session")
	}
	return &sess, nil
}

func (s *MemoryStore) SaveSession(_ context.Context, sess *auth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "marshalling session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastSweep) >= s.ttl {
		s.sweep(now)
	}
	s.sessions[sess.ID] = memEntry{data: data, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStore) sweep(now time.Time) {
	for id, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			delete(s.sessions, id)
		}
	}
	s.lastSweep = now
}

// Len returns the number of sessions held, expired ones included until the next sweep.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
