package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Surface is the pitch surface of a match
type Surface string

const (
	SurfaceGravel     Surface = "Grus"
	SurfaceArtificial Surface = "Konstgräs"
	SurfaceGrass      Surface = "Naturgräs"
	SurfaceAsphalt    Surface = "Asfalt"
)

// Valid reports whether s is one of the known surfaces
func (s Surface) Valid() bool {
	switch s {
	case SurfaceGravel, SurfaceArtificial, SurfaceGrass, SurfaceAsphalt:
		return true
	}
	return false
}

// PlayStyle describes how serious a match is meant to be
type PlayStyle string

const (
	PlayStyleNone        PlayStyle = ""
	PlayStyleSpontaneous PlayStyle = "spontanspel"
	PlayStyleTraining    PlayStyle = "träning"
	PlayStyleMatch       PlayStyle = "match"
)

// Valid reports whether p is empty or one of the known play styles
func (p PlayStyle) Valid() bool {
	switch p {
	case PlayStyleNone, PlayStyleSpontaneous, PlayStyleTraining, PlayStyleMatch:
		return true
	}
	return false
}

// Player is a roster entry
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Match is the canonical in-memory match record. Optional fields are empty
// when absent.
type Match struct {
	ID                    string    `json:"id"`
	Title                 string    `json:"title"`
	Description           string    `json:"description,omitempty"`
	Date                  string    `json:"date"`
	Time                  string    `json:"time"`
	MaxPlayers            int       `json:"maxPlayers"`
	Surface               Surface   `json:"surface"`
	HasBall               bool      `json:"hasBall"`
	RequiresFootballShoes bool      `json:"requiresFootballShoes"`
	PlayStyle             PlayStyle `json:"playStyle,omitempty"`
	Players               []Player  `json:"players"`
	Area                  string    `json:"area"`
	City                  string    `json:"city,omitempty"`
	CreatedBy             string    `json:"createdBy,omitempty"`
	CreatorName           string    `json:"creatorName,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`
}

// JoinOutcome describes what a join attempt did
type JoinOutcome string

const (
	JoinOutcomeJoined        JoinOutcome = "joined"
	JoinOutcomeAlreadyJoined JoinOutcome = "already_joined"
	JoinOutcomeFull          JoinOutcome = "full"
)

// HasPlayer reports whether playerID is on the roster
func (m *Match) HasPlayer(playerID string) bool {
	for _, p := range m.Players {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

// IsFull reports whether the roster has reached MaxPlayers
func (m *Match) IsFull() bool {
	return len(m.Players) >= m.MaxPlayers
}

// RemainingSpots is the number of open roster places, never negative
func (m *Match) RemainingSpots() int {
	if n := m.MaxPlayers - len(m.Players); n > 0 {
		return n
	}
	return 0
}

// WithPlayer returns a copy of m with p appended to the roster. The roster is
// unchanged when p is already on it or the match is full.
func (m Match) WithPlayer(p Player) (Match, JoinOutcome) {
	if m.HasPlayer(p.ID) {
		return m, JoinOutcomeAlreadyJoined
	}
	if m.IsFull() {
		return m, JoinOutcomeFull
	}
	players := make([]Player, 0, len(m.Players)+1)
	players = append(players, m.Players...)
	m.Players = append(players, p)
	return m, JoinOutcomeJoined
}

// WithoutPlayer returns a copy of m with playerID removed. If playerID is the
// recorded creator the creator fields are cleared. The bool is false when the
// player was not on the roster and nothing changed.
func (m Match) WithoutPlayer(playerID string) (Match, bool) {
	players := make([]Player, 0, len(m.Players))
	removed := false
	for _, p := range m.Players {
		if p.ID == playerID {
			removed = true
			continue
		}
		players = append(players, p)
	}

	clearCreator := m.CreatedBy != "" && m.CreatedBy == playerID
	if !removed && !clearCreator {
		return m, false
	}

	m.Players = players
	if clearCreator {
		m.CreatedBy = ""
		m.CreatorName = ""
	}
	return m, true
}

// CanDelete reports whether u may delete m: the recorded creator or an admin.
func (m *Match) CanDelete(u *User) bool {
	if u == nil {
		return false
	}
	if u.IsAdmin() {
		return true
	}
	return m.CreatedBy != "" && m.CreatedBy == u.ID
}

// CreateMatchRequest carries the fields of the create-match form
type CreateMatchRequest struct {
	Title                 string    `json:"title"`
	Description           string    `json:"description,omitempty"`
	Date                  string    `json:"date"`
	Time                  string    `json:"time"`
	MaxPlayers            int       `json:"maxPlayers"`
	Surface               Surface   `json:"surface"`
	HasBall               bool      `json:"hasBall"`
	RequiresFootballShoes bool      `json:"requiresFootballShoes"`
	PlayStyle             PlayStyle `json:"playStyle,omitempty"`
	Area                  string    `json:"area"`
	City                  string    `json:"city,omitempty"`
}

// Column limits of the stored text fields, in characters
const (
	MaxTextLength     = 255
	MaxDateLength     = len("2006-01-02")
	MaxTimeLength     = len("15:04:05")
	MaxUsernameLength = 64
)

// TooLong reports whether s, trimmed, exceeds limit characters
func TooLong(s string, limit int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) > limit
}

// Validate checks required fields, enumerations and column limits
func (r *CreateMatchRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" ||
		strings.TrimSpace(r.Area) == "" ||
		strings.TrimSpace(r.Date) == "" ||
		strings.TrimSpace(r.Time) == "" {
		return ErrInvalidMatch
	}
	if r.MaxPlayers <= 0 {
		return ErrInvalidMatch
	}
	if TooLong(r.Title, MaxTextLength) ||
		TooLong(r.Area, MaxTextLength) ||
		TooLong(r.City, MaxTextLength) ||
		TooLong(r.Date, MaxDateLength) ||
		TooLong(r.Time, MaxTimeLength) {
		return ErrInvalidMatch
	}
	if !r.Surface.Valid() || !r.PlayStyle.Valid() {
		return ErrInvalidMatch
	}
	return nil
}

// ToMatch builds a new match from the request. The creator is put on the
// roster only when both id and name are known.
func (r *CreateMatchRequest) ToMatch(id, creatorID, creatorName string, now time.Time) Match {
	m := Match{
		ID:                    id,
		Title:                 strings.TrimSpace(r.Title),
		Description:           strings.TrimSpace(r.Description),
		Date:                  strings.TrimSpace(r.Date),
		Time:                  strings.TrimSpace(r.Time),
		MaxPlayers:            r.MaxPlayers,
		Surface:               r.Surface,
		HasBall:               r.HasBall,
		RequiresFootballShoes: r.RequiresFootballShoes,
		PlayStyle:             r.PlayStyle,
		Players:               []Player{},
		Area:                  strings.TrimSpace(r.Area),
		City:                  strings.TrimSpace(r.City),
		CreatedBy:             creatorID,
		CreatorName:           creatorName,
		CreatedAt:             now,
	}
	if creatorID != "" && creatorName != "" {
		m.Players = append(m.Players, Player{ID: creatorID, Name: creatorName})
	}
	return m
}
