// Package session keeps per-browser state (current user, selected area,
// favorite areas) across reloads and across tabs sharing one session id.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Persisted keys
const (
	KeyCurrentUser   = "current_user"
	KeySelectedArea  = "selected_area"
	KeyFavoriteAreas = "favorite_areas"
)

// ErrNotFound is returned by Store.Get for absent keys
var ErrNotFound = errors.New("session key not found")

// Store persists string values per session id
type Store interface {
	Get(ctx context.Context, sessionID, key string) (string, error)
	Set(ctx context.Context, sessionID, key, value string) error
	Delete(ctx context.Context, sessionID, key string) error
}

// Toucher is implemented by stores whose values expire; Touch extends the
// lifetime of every value of a session.
type Toucher interface {
	Touch(ctx context.Context, sessionID string) error
}

// Change describes a persisted value changing in one session. An empty
// Value means the key was cleared.
type Change struct {
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

// Notifier publishes changes so other tabs of the same session can observe them
type Notifier interface {
	Publish(ctx context.Context, change Change) error
}

// Subscriber delivers published changes to fn until ctx is done
type Subscriber interface {
	Subscribe(ctx context.Context, fn func(Change)) error
}

// NewID issues a fresh session id
func NewID() string {
	return uuid.NewString()
}

// MemoryStore is an in-process Store, Notifier and Subscriber
type MemoryStore struct {
	mu        sync.RWMutex
	values    map[string]map[string]string
	listeners map[int]func(Change)
	nextID    int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:    make(map[string]map[string]string),
		listeners: make(map[int]func(Change)),
	}
}

// Get returns the value stored under key
func (s *MemoryStore) Get(_ context.Context, sessionID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[sessionID][key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key
func (s *MemoryStore) Set(_ context.Context, sessionID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[sessionID]; !ok {
		s.values[sessionID] = make(map[string]string)
	}
	s.values[sessionID][key] = value
	return nil
}

// Delete removes key
func (s *MemoryStore) Delete(_ context.Context, sessionID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if values, ok := s.values[sessionID]; ok {
		delete(values, key)
		if len(values) == 0 {
			delete(s.values, sessionID)
		}
	}
	return nil
}

// Publish delivers change synchronously to every active subscriber
func (s *MemoryStore) Publish(_ context.Context, change Change) error {
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
	return nil
}

// Subscribe registers fn and blocks until ctx is done
func (s *MemoryStore) Subscribe(ctx context.Context, fn func(Change)) error {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	delete(s.listeners, id)
	s.mu.Unlock()
	return nil
}

// SubscriberCount returns the number of active subscribers
func (s *MemoryStore) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}
