// Package filter decides which matches a user sees in the list view.
package filter

import (
	"strings"
	"time"

	"github.com/grus-gras/internal/area"
	"github.com/grus-gras/internal/domain"
)

// GracePeriod keeps a match visible for this long after its start time
const GracePeriod = 2 * time.Hour

var startLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
}

// Visible returns the matches that pass both the time and the area
// predicate, in input order. Date and time are read in now's location.
// An empty selected area yields no matches.
func Visible(matches []domain.Match, now time.Time, selectedArea string) []domain.Match {
	selected := area.Normalize(selectedArea)
	visible := make([]domain.Match, 0, len(matches))
	if selected == "" {
		return visible
	}

	cutoff := now.Add(-GracePeriod)
	for _, m := range matches {
		if InTimeWindow(m, cutoff) && InArea(m, selected) {
			visible = append(visible, m)
		}
	}
	return visible
}

// InTimeWindow reports whether m starts at or after cutoff. Matches whose
// date or time is missing or unparsable are always in the window.
func InTimeWindow(m domain.Match, cutoff time.Time) bool {
	start, ok := StartTime(m, cutoff.Location())
	if !ok {
		return true
	}
	return !start.Before(cutoff)
}

// InArea reports whether m belongs to the normalized area selected. Matches
// with neither area nor city are in every area.
func InArea(m domain.Match, selected string) bool {
	matchArea := area.Normalize(m.Area)
	matchCity := area.Normalize(m.City)
	if matchArea == "" && matchCity == "" {
		return true
	}
	return matchArea == selected || matchCity == selected
}

// StartTime parses the match's date and time in loc
func StartTime(m domain.Match, loc *time.Location) (time.Time, bool) {
	date := strings.TrimSpace(m.Date)
	clock := strings.TrimSpace(m.Time)
	if date == "" || clock == "" {
		return time.Time{}, false
	}
	value := date + "T" + clock
	for _, layout := range startLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
