// Package team splits a match roster into teams.
package team

import "github.com/grus-gras/internal/domain"

// DefaultCount is the number of teams when none is requested
const DefaultCount = 2

// Divide assigns players round-robin: the player at index i goes to team
// i mod n. With n <= 0 every player ends up in a single team; an empty
// roster always yields n empty teams, so none at all when n <= 0.
func Divide(players []domain.Player, n int) [][]domain.Player {
	if len(players) == 0 {
		n = max(n, 0)
	} else if n <= 0 {
		all := make([]domain.Player, len(players))
		copy(all, players)
		return [][]domain.Player{all}
	}

	teams := make([][]domain.Player, n)
	for i := range teams {
		teams[i] = make([]domain.Player, 0, len(players)/n+1)
	}
	for i, p := range players {
		teams[i%n] = append(teams[i%n], p)
	}
	return teams
}
