package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/grus-gras/internal/area"
	"github.com/grus-gras/internal/domain"
)

// Preferences is the user-facing view of the persisted preferences
type Preferences struct {
	SelectedArea  string   `json:"selectedArea"`
	FavoriteAreas []string `json:"favoriteAreas"`
}

// Manager opens session state over a shared store
type Manager struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
}

// NewManager creates a session manager
func NewManager(store Store, notifier Notifier, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// Open loads the state for sessionID and extends its lifetime when the store
// expires values. It never fails: unreadable values are logged and treated
// as absent.
func (m *Manager) Open(ctx context.Context, sessionID string) *State {
	s := &State{
		id:       sessionID,
		store:    m.store,
		notifier: m.notifier,
		logger:   m.logger.With("session_id", sessionID),
	}
	s.load(ctx)

	if t, ok := m.store.(Toucher); ok {
		if err := t.Touch(ctx, sessionID); err != nil {
			s.logger.Warn("failed to extend session lifetime", "error", err)
		}
	}
	return s
}

// State holds one session's identity and preferences. Writes update memory
// first and then persist; persistence failures are logged and swallowed so
// the session keeps working without durability.
type State struct {
	id       string
	store    Store
	notifier Notifier
	logger   *slog.Logger

	mu           sync.RWMutex
	user         *domain.User
	selectedArea string
	favorites    []string
}

// ID returns the session id
func (s *State) ID() string {
	return s.id
}

// CurrentUser returns a copy of the logged-in user, or nil
func (s *State) CurrentUser() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// SelectedArea returns the normalized selected area, possibly empty
func (s *State) SelectedArea() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedArea
}

// FavoriteAreas returns a copy of the favorite areas
func (s *State) FavoriteAreas() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.favorites))
	copy(out, s.favorites)
	return out
}

// Preferences returns the selected and favorite areas
func (s *State) Preferences() Preferences {
	return Preferences{
		SelectedArea:  s.SelectedArea(),
		FavoriteAreas: s.FavoriteAreas(),
	}
}

// SetCurrentUser replaces the session identity. A nil user logs out. The
// role defaults to user when absent.
func (s *State) SetCurrentUser(ctx context.Context, u *domain.User) {
	var stored *domain.User
	if u != nil {
		cp := *u
		if cp.Role == "" {
			cp.Role = domain.RoleUser
		}
		stored = &cp
	}

	s.mu.Lock()
	s.user = stored
	s.mu.Unlock()

	if stored == nil {
		s.remove(ctx, KeyCurrentUser)
		return
	}
	data, err := json.Marshal(stored)
	if err != nil {
		s.logger.Warn("failed to encode current user", "error", err)
		return
	}
	s.persist(ctx, KeyCurrentUser, string(data))
}

// SetSelectedArea normalizes and stores the selected area, clearing it when
// empty, and notifies other tabs. It returns the stored value.
func (s *State) SetSelectedArea(ctx context.Context, selected string) string {
	normalized := area.Normalize(selected)

	s.mu.Lock()
	s.selectedArea = normalized
	s.mu.Unlock()

	if normalized == "" {
		s.remove(ctx, KeySelectedArea)
	} else {
		s.persist(ctx, KeySelectedArea, normalized)
	}

	if s.notifier != nil {
		change := Change{SessionID: s.id, Key: KeySelectedArea, Value: normalized}
		if err := s.notifier.Publish(ctx, change); err != nil {
			s.logger.Warn("failed to publish area change", "error", err)
		}
	}
	return normalized
}

// AddFavoriteArea adds a normalized area to the favorites if missing
func (s *State) AddFavoriteArea(ctx context.Context, favorite string) []string {
	normalized := area.Normalize(favorite)
	if normalized == "" {
		return s.FavoriteAreas()
	}

	s.mu.Lock()
	for _, existing := range s.favorites {
		if existing == normalized {
			s.mu.Unlock()
			return s.FavoriteAreas()
		}
	}
	s.favorites = append(s.favorites, normalized)
	s.mu.Unlock()

	s.saveFavorites(ctx)
	return s.FavoriteAreas()
}

// RemoveFavoriteArea removes an area from the favorites
func (s *State) RemoveFavoriteArea(ctx context.Context, favorite string) []string {
	normalized := area.Normalize(favorite)

	s.mu.Lock()
	kept := s.favorites[:0:0]
	for _, existing := range s.favorites {
		if existing != normalized {
			kept = append(kept, existing)
		}
	}
	s.favorites = kept
	s.mu.Unlock()

	s.saveFavorites(ctx)
	return s.FavoriteAreas()
}

func (s *State) saveFavorites(ctx context.Context) {
	favorites := s.FavoriteAreas()
	if len(favorites) == 0 {
		s.remove(ctx, KeyFavoriteAreas)
		return
	}
	data, err := json.Marshal(favorites)
	if err != nil {
		s.logger.Warn("failed to encode favorite areas", "error", err)
		return
	}
	s.persist(ctx, KeyFavoriteAreas, string(data))
}

// load restores persisted values; anything unreadable is skipped
func (s *State) load(ctx context.Context) {
	if raw, ok := s.read(ctx, KeyCurrentUser); ok {
		var u domain.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			s.logger.Warn("discarding unreadable current user", "error", err)
		} else {
			if u.Role == "" {
				u.Role = domain.RoleUser
			}
			s.user = &u
		}
	}

	if raw, ok := s.read(ctx, KeySelectedArea); ok {
		s.selectedArea = area.Normalize(raw)
	}

	if raw, ok := s.read(ctx, KeyFavoriteAreas); ok {
		var favorites []string
		if err := json.Unmarshal([]byte(raw), &favorites); err != nil {
			s.logger.Warn("discarding unreadable favorite areas", "error", err)
		} else {
			s.favorites = favorites
		}
	}
}

func (s *State) read(ctx context.Context, key string) (string, bool) {
	if s.store == nil {
		return "", false
	}
	v, err := s.store.Get(ctx, s.id, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("failed to read session value", "key", key, "error", err)
		}
		return "", false
	}
	return v, true
}

func (s *State) persist(ctx context.Context, key, value string) {
	if s.store == nil {
		return
	}
	if err := s.store.Set(ctx, s.id, key, value); err != nil {
		s.logger.Warn("failed to persist session value", "key", key, "error", err)
	}
}

func (s *State) remove(ctx context.Context, key string) {
	if s.store == nil {
		return
	}
	if err := s.store.Delete(ctx, s.id, key); err != nil {
		s.logger.Warn("failed to clear session value", "key", key, "error", err)
	}
}
