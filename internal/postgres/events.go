package postgres

import (
	"context"
	"fmt"

	"github.com/grus-gras/internal/domain"
)

// RecordEvent appends a match event to the audit table
func (r *Repository) RecordEvent(ctx context.Context, event domain.MatchEvent) error {
	query := `
		INSERT INTO match_events (match_id, event_type, player_id, actor_id, area, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		event.MatchID,
		string(event.Type),
		nullable(event.PlayerID),
		nullable(event.ActorID),
		nullable(event.Area),
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

// ListEvents returns the events of a match in the order they happened
func (r *Repository) ListEvents(ctx context.Context, matchID string, limit int) ([]domain.MatchEvent, error) {
	query := `
		SELECT match_id, event_type, player_id, actor_id, area, created_at
		FROM match_events
		WHERE match_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, matchID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	events := []domain.MatchEvent{}
	for rows.Next() {
		var (
			event                    domain.MatchEvent
			eventType                string
			playerID, actorID, areaV *string
		)
		if err := rows.Scan(&event.MatchID, &eventType, &playerID, &actorID, &areaV, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		event.Type = domain.MatchEventType(eventType)
		event.PlayerID = deref(playerID)
		event.ActorID = deref(actorID)
		event.Area = deref(areaV)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}
