package domain

import "time"

// MatchEventType names a match mutation
type MatchEventType string

const (
	MatchEventCreated      MatchEventType = "match_created"
	MatchEventPlayerJoined MatchEventType = "player_joined"
	MatchEventPlayerLeft   MatchEventType = "player_left"
	MatchEventDeleted      MatchEventType = "match_deleted"

	// MatchEventAgedOut is pushed to clients when a match leaves the visible
	// window. It is not stored or published on the event bus.
	MatchEventAgedOut MatchEventType = "match_aged_out"
)

// MatchEvent records a successful mutation of a match. It is published on the
// event bus and kept in the audit table.
type MatchEvent struct {
	Type      MatchEventType `json:"type"`
	MatchID   string         `json:"match_id"`
	PlayerID  string         `json:"player_id,omitempty"`
	ActorID   string         `json:"actor_id,omitempty"`
	Area      string         `json:"area,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewMatchEvent stamps an event for m with the current time
func NewMatchEvent(eventType MatchEventType, m Match, playerID, actorID string) MatchEvent {
	return MatchEvent{
		Type:      eventType,
		MatchID:   m.ID,
		PlayerID:  playerID,
		ActorID:   actorID,
		Area:      m.Area,
		Timestamp: time.Now(),
	}
}
