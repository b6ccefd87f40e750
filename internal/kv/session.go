package kv

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSessionCapacity bounds how many user sessions stay resident.
const DefaultSessionCapacity = 1024

// Session holds per-user conversational context carried between
// commands, such as the last event discussed or a pending
// clarification.
type Session struct {
	UserID string
	Data   map[string]any

	mu sync.Mutex
}

// Lock serializes access to Data. Callers hold the lock for the whole
// command so session reads and writes within one request stay coherent.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// SessionStore keeps recent user sessions in an LRU cache. Sessions are
// reconstructible from scratch, so eviction only costs a cold start for
// that user.
type SessionStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *Session]
}

// NewSessionStore builds a store holding at most capacity sessions. A
// non-positive capacity selects DefaultSessionCapacity.
func NewSessionStore(capacity int) (*SessionStore, error) {
	if capacity <= 0 {
		capacity = DefaultSessionCapacity
	}
	cache, err := lru.New[string, *Session](capacity)
	if err != nil {
		return nil, fmt.Errorf("kv: failed to create session cache: %w", err)
	}
	return &SessionStore{cache: cache}, nil
}

// Get returns the session for a user, creating an empty one on first
// access. Concurrent callers for the same user get the same session.
func (s *SessionStore) Get(userID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.cache.Get(userID); ok {
		return session
	}
	session := &Session{UserID: userID, Data: make(map[string]any)}
	s.cache.Add(userID, session)
	return session
}

// Put stores a session, promoting it to most recently used.
func (s *SessionStore) Put(session *Session) {
	s.cache.Add(session.UserID, session)
}

// Forget drops a user's session. It reports whether one existed.
func (s *SessionStore) Forget(userID string) bool {
	return s.cache.Remove(userID)
}

// Len returns the number of resident sessions.
func (s *SessionStore) Len() int {
	return s.cache.Len()
}
