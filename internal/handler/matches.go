package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/grus-gras/internal/domain"
	"github.com/grus-gras/internal/team"
)

// mutationResponse carries the affected match and the reloaded list
type mutationResponse struct {
	Match   *domain.Match      `json:"match,omitempty"`
	Outcome domain.JoinOutcome `json:"outcome,omitempty"`
	Matches []domain.Match     `json:"matches"`
}

// ListVisibleMatches returns the upcoming matches in the session's area.
// Without a selected area the list is empty.
func (h *Handler) ListVisibleMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.matches.Visible(r.Context(), time.Now(), currentState(r).SelectedArea())
	if err != nil {
		h.writeServiceError(w, r, "failed to list matches", err)
		return
	}
	h.writeSuccess(w, matches)
}

// ListAllMatches returns every stored match, newest first
func (h *Handler) ListAllMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.matches.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "failed to list matches", err)
		return
	}
	h.writeSuccess(w, matches)
}

// CreateMatch handles match creation. Anonymous callers may create matches
// that have no creator.
func (h *Handler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateMatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	m, matches, err := h.matches.Create(r.Context(), req, currentState(r).CurrentUser())
	if err != nil {
		h.writeServiceError(w, r, "failed to create match", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    mutationResponse{Match: &m, Matches: matches},
	})
}

// GetMatch returns a match by ID
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	m, err := h.matches.Get(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		h.writeServiceError(w, r, "failed to get match", err)
		return
	}
	h.writeSuccess(w, m)
}

// JoinMatch puts the logged-in user on the roster
func (h *Handler) JoinMatch(w http.ResponseWriter, r *http.Request) {
	user := currentState(r).CurrentUser()
	if user == nil {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
		return
	}

	outcome, matches, err := h.matches.Join(r.Context(), chi.URLParam(r, "matchID"), user.AsPlayer())
	if err != nil {
		h.writeServiceError(w, r, "failed to join match", err)
		return
	}
	h.writeSuccess(w, mutationResponse{Outcome: outcome, Matches: matches})
}

// LeaveMatch takes the logged-in user off the roster
func (h *Handler) LeaveMatch(w http.ResponseWriter, r *http.Request) {
	user := currentState(r).CurrentUser()
	if user == nil {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
		return
	}

	matches, err := h.matches.Leave(r.Context(), chi.URLParam(r, "matchID"), user.ID)
	if err != nil {
		h.writeServiceError(w, r, "failed to leave match", err)
		return
	}
	h.writeSuccess(w, mutationResponse{Matches: matches})
}

// DeleteMatch deletes a match for its creator or an admin
func (h *Handler) DeleteMatch(w http.ResponseWriter, r *http.Request) {
	matches, err := h.matches.Delete(r.Context(), chi.URLParam(r, "matchID"), currentState(r).CurrentUser())
	if err != nil {
		h.writeServiceError(w, r, "failed to delete match", err)
		return
	}
	h.writeSuccess(w, mutationResponse{Matches: matches})
}

// GetTeams splits the roster into teams; count defaults to two
func (h *Handler) GetTeams(w http.ResponseWriter, r *http.Request) {
	count := team.DefaultCount
	if countStr := r.URL.Query().Get("count"); countStr != "" {
		c, err := strconv.Atoi(countStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		count = c
	}

	teams, err := h.matches.Teams(r.Context(), chi.URLParam(r, "matchID"), count)
	if err != nil {
		h.writeServiceError(w, r, "failed to divide teams", err)
		return
	}
	h.writeSuccess(w, teams)
}

// GetMatchEvents returns the audit trail of a match to an admin
func (h *Handler) GetMatchEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.matches.Events(r.Context(), chi.URLParam(r, "matchID"), currentState(r).CurrentUser())
	if err != nil {
		h.writeServiceError(w, r, "failed to list match events", err)
		return
	}
	h.writeSuccess(w, events)
}
