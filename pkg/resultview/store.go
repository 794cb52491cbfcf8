package resultview

import (
	"context"
	"sync"

	"github.com/gorilla/sessions"
)

// Store persists view preferences as string key/value pairs. Get reports
// false for keys that were never set.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// MemoryStore keeps preferences in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

var _ Store = (*MemoryStore)(nil)

// CookieSessionStore stores preferences in a gorilla session. The caller
// loads the session for the request and saves it before writing the response.
type CookieSessionStore struct {
	session *sessions.Session
}

// NewCookieSessionStore wraps an already loaded session.
func NewCookieSessionStore(session *sessions.Session) *CookieSessionStore {
	return &CookieSessionStore{session: session}
}

func (s *CookieSessionStore) Get(_ context.Context, key string) (string, bool, error) {
	raw, ok := s.session.Values[key]
	if !ok {
		return "", false, nil
	}
	v, ok := raw.(string)
	return v, ok, nil
}

func (s *CookieSessionStore) Set(_ context.Context, key, value string) error {
	s.session.Values[key] = value
	return nil
}

var _ Store = (*CookieSessionStore)(nil)
