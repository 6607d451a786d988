package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/grus-gras/internal/config"
	"github.com/grus-gras/internal/domain"
	"github.com/grus-gras/internal/filter"
	"github.com/grus-gras/internal/metrics"
	"github.com/grus-gras/internal/team"
)

// MatchRepository is the match storage used by MatchService
type MatchRepository interface {
	ListMatches(ctx context.Context) ([]domain.Match, error)
	GetMatch(ctx context.Context, matchID string) (*domain.Match, error)
	InsertMatch(ctx context.Context, m domain.Match) error
	UpdateMatchPlayers(ctx context.Context, m domain.Match, expected []domain.Player) error
	DeleteMatch(ctx context.Context, matchID string) error
}

// EventStore keeps the audit trail of match events
type EventStore interface {
	RecordEvent(ctx context.Context, event domain.MatchEvent) error
	ListEvents(ctx context.Context, matchID string, limit int) ([]domain.MatchEvent, error)
}

// EventPublisher announces match events to other listeners
type EventPublisher interface {
	Publish(ctx context.Context, event domain.MatchEvent) error
}

const maxEventsListed = 500

// MatchService provides business logic for match operations. Every mutation
// returns the freshly reloaded list.
type MatchService struct {
	repo      MatchRepository
	events    EventStore
	publisher EventPublisher
	config    *config.MatchesConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewMatchService creates a new match service. events, publisher and m may
// be nil.
func NewMatchService(
	repo MatchRepository,
	events EventStore,
	publisher EventPublisher,
	cfg *config.MatchesConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *MatchService {
	return &MatchService{
		repo:      repo,
		events:    events,
		publisher: publisher,
		config:    cfg,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns all matches, newest first
func (s *MatchService) List(ctx context.Context) ([]domain.Match, error) {
	matches, err := s.repo.ListMatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	return matches, nil
}

// Get returns one match
func (s *MatchService) Get(ctx context.Context, matchID string) (*domain.Match, error) {
	return s.repo.GetMatch(ctx, matchID)
}

// Visible returns the matches shown for selectedArea at now
func (s *MatchService) Visible(ctx context.Context, now time.Time, selectedArea string) ([]domain.Match, error) {
	matches, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return filter.Visible(matches, now.In(s.config.Location()), selectedArea), nil
}

// Create validates and stores a new match. The creator, when known, becomes
// the first player.
func (s *MatchService) Create(ctx context.Context, req domain.CreateMatchRequest, creator *domain.User) (domain.Match, []domain.Match, error) {
	if err := req.Validate(); err != nil {
		return domain.Match{}, nil, err
	}

	var creatorID, creatorName string
	if creator != nil {
		creatorID = creator.ID
		creatorName = creator.DisplayName()
	}
	m := req.ToMatch(uuid.NewString(), creatorID, creatorName, s.now())

	if err := s.repo.InsertMatch(ctx, m); err != nil {
		return domain.Match{}, nil, fmt.Errorf("creating match: %w", err)
	}

	s.logger.Info("match created", "match_id", m.ID, "area", m.Area, "created_by", creatorID)
	s.afterMutation(ctx, domain.NewMatchEvent(domain.MatchEventCreated, m, creatorID, creatorID))

	matches, err := s.List(ctx)
	if err != nil {
		return m, nil, err
	}
	return m, matches, nil
}

// Join adds player to the roster. Already being on the roster or the match
// being full are outcomes, not errors; the roster is left unchanged.
func (s *MatchService) Join(ctx context.Context, matchID string, player domain.Player) (domain.JoinOutcome, []domain.Match, error) {
	if player.ID == "" {
		return "", nil, domain.ErrInvalidRequest
	}

	var outcome domain.JoinOutcome
	err := s.updateRoster(ctx, matchID, func(m domain.Match) (domain.Match, bool) {
		next, o := m.WithPlayer(player)
		outcome = o
		return next, o == domain.JoinOutcomeJoined
	}, func(next domain.Match) {
		s.logger.Info("player joined match", "match_id", matchID, "player_id", player.ID)
		s.afterMutation(ctx, domain.NewMatchEvent(domain.MatchEventPlayerJoined, next, player.ID, player.ID))
	})
	if err != nil {
		return "", nil, err
	}
	s.metrics.RecordJoin(string(outcome))

	matches, err := s.List(ctx)
	if err != nil {
		return outcome, nil, err
	}
	return outcome, matches, nil
}

// Leave removes playerID from the roster. When playerID is the recorded
// creator the creator fields are cleared too.
func (s *MatchService) Leave(ctx context.Context, matchID, playerID string) ([]domain.Match, error) {
	if playerID == "" {
		return nil, domain.ErrInvalidRequest
	}

	err := s.updateRoster(ctx, matchID, func(m domain.Match) (domain.Match, bool) {
		return m.WithoutPlayer(playerID)
	}, func(next domain.Match) {
		s.logger.Info("player left match", "match_id", matchID, "player_id", playerID)
		s.afterMutation(ctx, domain.NewMatchEvent(domain.MatchEventPlayerLeft, next, playerID, playerID))
	})
	if err != nil {
		return nil, err
	}
	return s.List(ctx)
}

// updateRoster reads the match, applies change and writes the result only if
// the stored roster did not move in between. On a lost race it re-reads and
// re-decides, up to the configured number of attempts.
func (s *MatchService) updateRoster(
	ctx context.Context,
	matchID string,
	change func(domain.Match) (domain.Match, bool),
	onWritten func(domain.Match),
) error {
	attempts := s.config.JoinRetries
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		current, err := s.repo.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}

		next, changed := change(*current)
		if !changed {
			return nil
		}

		err = s.repo.UpdateMatchPlayers(ctx, next, current.Players)
		if errors.Is(err, domain.ErrConflict) {
			s.metrics.RecordJoinConflict()
			s.logger.Debug("roster changed concurrently, retrying", "match_id", matchID, "attempt", attempt)
			continue
		}
		if err != nil {
			return fmt.Errorf("updating roster: %w", err)
		}

		onWritten(next)
		return nil
	}

	s.logger.Warn("giving up on roster update after conflicts", "match_id", matchID, "attempts", attempts)
	return domain.ErrConflict
}

// Delete removes a match. Only its creator or an admin may do so.
func (s *MatchService) Delete(ctx context.Context, matchID string, caller *domain.User) ([]domain.Match, error) {
	if caller == nil {
		return nil, domain.ErrUnauthenticated
	}

	m, err := s.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.CanDelete(caller) {
		return nil, domain.ErrForbidden
	}

	if err := s.repo.DeleteMatch(ctx, matchID); err != nil {
		return nil, err
	}

	s.logger.Info("match deleted", "match_id", matchID, "deleted_by", caller.ID)
	s.afterMutation(ctx, domain.NewMatchEvent(domain.MatchEventDeleted, *m, "", caller.ID))

	return s.List(ctx)
}

// Teams splits the stored roster of a match into n teams
func (s *MatchService) Teams(ctx context.Context, matchID string, n int) ([][]domain.Player, error) {
	if s.config.MaxTeamCount > 0 && n > s.config.MaxTeamCount {
		return nil, domain.ErrInvalidRequest
	}
	m, err := s.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	return team.Divide(m.Players, n), nil
}

// Events returns the audit trail of a match. Admin only.
func (s *MatchService) Events(ctx context.Context, matchID string, caller *domain.User) ([]domain.MatchEvent, error) {
	if caller == nil {
		return nil, domain.ErrUnauthenticated
	}
	if !caller.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if s.events == nil {
		return []domain.MatchEvent{}, nil
	}
	events, err := s.events.ListEvents(ctx, matchID, maxEventsListed)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}

// afterMutation records and publishes an event. Failures are logged only.
func (s *MatchService) afterMutation(ctx context.Context, event domain.MatchEvent) {
	s.metrics.RecordMatchEvent(string(event.Type))

	if s.events != nil {
		if err := s.events.RecordEvent(ctx, event); err != nil {
			s.logger.Warn("failed to record match event", "match_id", event.MatchID, "type", event.Type, "error", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish match event", "match_id", event.MatchID, "type", event.Type, "error", err)
		}
	}
}
