package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/grus-gras/internal/domain"
	"github.com/jackc/pgx/v5"
)

// matchRecord mirrors one row of the matches table
type matchRecord struct {
	ID                    string
	Title                 string
	Description           *string
	Date                  string
	Time                  string
	MaxPlayers            int
	Surface               string
	HasBall               bool
	RequiresFootballShoes bool
	PlayStyle             *string
	Players               []byte
	Area                  string
	City                  *string
	CreatedBy             *string
	CreatorName           *string
	CreatedAt             time.Time
}

// recordFromMatch is the only place a domain match becomes a row
func recordFromMatch(m domain.Match) (matchRecord, error) {
	players, err := encodePlayers(m.Players)
	if err != nil {
		return matchRecord{}, err
	}
	return matchRecord{
		ID:                    m.ID,
		Title:                 m.Title,
		Description:           nullable(m.Description),
		Date:                  m.Date,
		Time:                  m.Time,
		MaxPlayers:            m.MaxPlayers,
		Surface:               string(m.Surface),
		HasBall:               m.HasBall,
		RequiresFootballShoes: m.RequiresFootballShoes,
		PlayStyle:             nullable(string(m.PlayStyle)),
		Players:               players,
		Area:                  m.Area,
		City:                  nullable(m.City),
		CreatedBy:             nullable(m.CreatedBy),
		CreatorName:           nullable(m.CreatorName),
		CreatedAt:             m.CreatedAt,
	}, nil
}

// toMatch is the only place a row becomes a domain match
func (r matchRecord) toMatch() (domain.Match, error) {
	players := []domain.Player{}
	if len(r.Players) > 0 {
		if err := json.Unmarshal(r.Players, &players); err != nil {
			return domain.Match{}, fmt.Errorf("decoding players of match %s: %w", r.ID, err)
		}
		if players == nil {
			players = []domain.Player{}
		}
	}
	return domain.Match{
		ID:                    r.ID,
		Title:                 r.Title,
		Description:           deref(r.Description),
		Date:                  r.Date,
		Time:                  r.Time,
		MaxPlayers:            r.MaxPlayers,
		Surface:               domain.Surface(r.Surface),
		HasBall:               r.HasBall,
		RequiresFootballShoes: r.RequiresFootballShoes,
		PlayStyle:             domain.PlayStyle(deref(r.PlayStyle)),
		Players:               players,
		Area:                  r.Area,
		City:                  deref(r.City),
		CreatedBy:             deref(r.CreatedBy),
		CreatorName:           deref(r.CreatorName),
		CreatedAt:             r.CreatedAt,
	}, nil
}

func encodePlayers(players []domain.Player) ([]byte, error) {
	if players == nil {
		players = []domain.Player{}
	}
	data, err := json.Marshal(players)
	if err != nil {
		return nil, fmt.Errorf("encoding players: %w", err)
	}
	return data, nil
}

const matchColumns = `id, title, description, date, time, max_players, surface, has_ball,
	requires_football_shoes, play_style, players, area, city, created_by, creator_name, created_at`

func scanMatch(row pgx.Row) (domain.Match, error) {
	var rec matchRecord
	err := row.Scan(
		&rec.ID,
		&rec.Title,
		&rec.Description,
		&rec.Date,
		&rec.Time,
		&rec.MaxPlayers,
		&rec.Surface,
		&rec.HasBall,
		&rec.RequiresFootballShoes,
		&rec.PlayStyle,
		&rec.Players,
		&rec.Area,
		&rec.City,
		&rec.CreatedBy,
		&rec.CreatorName,
		&rec.CreatedAt,
	)
	if err != nil {
		return domain.Match{}, err
	}
	return rec.toMatch()
}

// ListMatches returns every match, newest first
func (r *Repository) ListMatches(ctx context.Context) ([]domain.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	matches := []domain.Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	return matches, nil
}

// GetMatch retrieves a match by ID
func (r *Repository) GetMatch(ctx context.Context, matchID string) (*domain.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	m, err := scanMatch(r.pool.QueryRow(ctx, query, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMatchNotFound
		}
		return nil, fmt.Errorf("getting match: %w", err)
	}
	return &m, nil
}

// InsertMatch stores a new match
func (r *Repository) InsertMatch(ctx context.Context, m domain.Match) error {
	rec, err := recordFromMatch(m)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO matches (` + matchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = r.pool.Exec(ctx, query,
		rec.ID,
		rec.Title,
		rec.Description,
		rec.Date,
		rec.Time,
		rec.MaxPlayers,
		rec.Surface,
		rec.HasBall,
		rec.RequiresFootballShoes,
		rec.PlayStyle,
		rec.Players,
		rec.Area,
		rec.City,
		rec.CreatedBy,
		rec.CreatorName,
		rec.CreatedAt,
	)
	if hasCode(err, stringTooLong) {
		return domain.ErrInvalidMatch
	}
	if err != nil {
		return fmt.Errorf("inserting match: %w", err)
	}
	return nil
}

// UpdateMatchPlayers writes the roster and creator fields of m, but only if
// the stored roster still equals expected. It returns domain.ErrConflict when
// another writer got there first.
func (r *Repository) UpdateMatchPlayers(ctx context.Context, m domain.Match, expected []domain.Player) error {
	rec, err := recordFromMatch(m)
	if err != nil {
		return err
	}
	expectedJSON, err := encodePlayers(expected)
	if err != nil {
		return err
	}

	query := `
		UPDATE matches
		SET players = $2::jsonb, created_by = $3, creator_name = $4
		WHERE id = $1 AND players = $5::jsonb
	`
	result, err := r.pool.Exec(ctx, query, rec.ID, rec.Players, rec.CreatedBy, rec.CreatorName, expectedJSON)
	if err != nil {
		return fmt.Errorf("updating match players: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM matches WHERE id = $1)`, rec.ID).Scan(&exists); err != nil {
		return fmt.Errorf("checking match existence: %w", err)
	}
	if !exists {
		return domain.ErrMatchNotFound
	}
	return domain.ErrConflict
}

// DeleteMatch removes a match
func (r *Repository) DeleteMatch(ctx context.Context, matchID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM matches WHERE id = $1`, matchID)
	if err != nil {
		return fmt.Errorf("deleting match: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrMatchNotFound
	}
	return nil
}

// DeleteAllMatches removes every match and returns how many were deleted
func (r *Repository) DeleteAllMatches(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM matches`)
	if err != nil {
		return 0, fmt.Errorf("deleting all matches: %w", err)
	}
	return result.RowsAffected(), nil
}
