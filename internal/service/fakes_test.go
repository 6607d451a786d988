package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/grus-gras/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMatchRepo is an in-memory MatchRepository with compare-and-set semantics
type fakeMatchRepo struct {
	mu      sync.Mutex
	matches map[string]domain.Match
	order   int

	// beforeUpdate runs before each compare-and-set, outside the lock
	beforeUpdate func()
	updateErr    error
	updates      int
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{matches: make(map[string]domain.Match)}
}

func (r *fakeMatchRepo) ListMatches(context.Context) ([]domain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Match, 0, len(r.matches))
	for _, m := range r.matches {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeMatchRepo) GetMatch(_ context.Context, id string) (*domain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	m.Players = append([]domain.Player{}, m.Players...)
	return &m, nil
}

func (r *fakeMatchRepo) InsertMatch(_ context.Context, m domain.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches[m.ID] = m
	return nil
}

func (r *fakeMatchRepo) UpdateMatchPlayers(_ context.Context, m domain.Match, expected []domain.Player) error {
	if r.beforeUpdate != nil {
		r.beforeUpdate()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.matches[m.ID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	if !samePlayers(stored.Players, expected) {
		return domain.ErrConflict
	}
	stored.Players = m.Players
	stored.CreatedBy = m.CreatedBy
	stored.CreatorName = m.CreatorName
	r.matches[m.ID] = stored
	return nil
}

func (r *fakeMatchRepo) DeleteMatch(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.matches[id]; !ok {
		return domain.ErrMatchNotFound
	}
	delete(r.matches, id)
	return nil
}

// appendPlayer simulates another writer
func (r *fakeMatchRepo) appendPlayer(id string, p domain.Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.matches[id]
	m.Players = append(append([]domain.Player{}, m.Players...), p)
	r.matches[id] = m
}

func samePlayers(a, b []domain.Player) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

type fakeEventStore struct {
	mu     sync.Mutex
	events []domain.MatchEvent
	err    error
}

func (s *fakeEventStore) RecordEvent(_ context.Context, e domain.MatchEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func (s *fakeEventStore) ListEvents(_ context.Context, matchID string, limit int) ([]domain.MatchEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.MatchEvent{}
	for _, e := range s.events {
		if e.MatchID == matchID && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeEventStore) types() []domain.MatchEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MatchEventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

type fakePublisher struct {
	mu        sync.Mutex
	published []domain.MatchEvent
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, e domain.MatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, e)
	return nil
}

// fakeUserRepo is an in-memory UserRepository
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.UserCredentials
	err   error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]domain.UserCredentials)}
}

func (r *fakeUserRepo) CreateUser(_ context.Context, creds domain.UserCredentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for _, u := range r.users {
		if u.Username == creds.Username {
			return domain.ErrUsernameTaken
		}
	}
	r.users[creds.ID] = creds
	return nil
}

func (r *fakeUserRepo) GetUserByUsername(_ context.Context, username string) (*domain.UserCredentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, u := range r.users {
		if u.Username == username {
			creds := u
			return &creds, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *fakeUserRepo) GetUser(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	user := u.User
	return &user, nil
}

func (r *fakeUserRepo) UpdateHomeCity(_ context.Context, id, city string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.HomeCity = city
	r.users[id] = u
	return nil
}

func (r *fakeUserRepo) ListUsers(context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.User{}
	for _, u := range r.users {
		out = append(out, u.User)
	}
	return out, nil
}

func (r *fakeUserRepo) DeleteUser(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

var errBoom = errors.New("boom")
