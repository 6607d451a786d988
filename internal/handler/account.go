package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/grus-gras/internal/domain"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type cityRequest struct {
	City string `json:"city"`
}

type areaRequest struct {
	Area string `json:"area"`
}

// meResponse is the session view returned by the account endpoints
type meResponse struct {
	User          *domain.User `json:"user"`
	SelectedArea  string       `json:"selectedArea"`
	FavoriteAreas []string     `json:"favoriteAreas"`
}

func (h *Handler) me(r *http.Request) meResponse {
	state := currentState(r)
	return meResponse{
		User:          state.CurrentUser(),
		SelectedArea:  state.SelectedArea(),
		FavoriteAreas: state.FavoriteAreas(),
	}
}

// signIn stores u on the session and selects its home city
func (h *Handler) signIn(r *http.Request, u *domain.User) {
	state := currentState(r)
	state.SetCurrentUser(r.Context(), u)
	if u.HomeCity != "" {
		state.SetSelectedArea(r.Context(), u.HomeCity)
	}
}

// Register creates an account and logs it in
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	u, err := h.auth.Register(r.Context(), req.Username, req.Password, req.Name)
	if err != nil {
		h.writeServiceError(w, r, "failed to register user", err)
		return
	}
	h.signIn(r, u)

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    h.me(r),
	})
}

// Login authenticates and stores the user on the session
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	u, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, r, "failed to log in", err)
		return
	}
	h.signIn(r, u)

	h.writeSuccess(w, h.me(r))
}

// Logout clears the session identity; area preferences are kept
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	currentState(r).SetCurrentUser(r.Context(), nil)
	h.writeSuccess(w, h.me(r))
}

// Me returns the session's user and preferences
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.me(r))
}

// ChangeCity updates the logged-in user's home city and selects it
func (h *Handler) ChangeCity(w http.ResponseWriter, r *http.Request) {
	state := currentState(r)
	user := state.CurrentUser()
	if user == nil {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
		return
	}

	var req cityRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.auth.ChangeHomeCity(r.Context(), user.ID, req.City)
	if err != nil {
		h.writeServiceError(w, r, "failed to change home city", err)
		return
	}
	h.signIn(r, updated)

	h.writeSuccess(w, h.me(r))
}

// GetPreferences returns the selected and favorite areas
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, currentState(r).Preferences())
}

// SelectArea changes the selected area. An empty area clears it.
func (h *Handler) SelectArea(w http.ResponseWriter, r *http.Request) {
	var req areaRequest
	if !h.decode(w, r, &req) {
		return
	}
	state := currentState(r)
	state.SetSelectedArea(r.Context(), req.Area)
	h.writeSuccess(w, state.Preferences())
}

// AddFavorite adds an area to the favorites
func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	var req areaRequest
	if !h.decode(w, r, &req) {
		return
	}
	state := currentState(r)
	state.AddFavoriteArea(r.Context(), req.Area)
	h.writeSuccess(w, state.Preferences())
}

// RemoveFavorite removes an area from the favorites
func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	favorite, err := pathParam(r, "area")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	state := currentState(r)
	state.RemoveFavoriteArea(r.Context(), favorite)
	h.writeSuccess(w, state.Preferences())
}

// ListUsers returns every account to an admin
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.ListUsers(r.Context(), currentState(r).CurrentUser())
	if err != nil {
		h.writeServiceError(w, r, "failed to list users", err)
		return
	}
	h.writeSuccess(w, users)
}

// DeleteUser removes an account
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.auth.DeleteUser(r.Context(), userID, currentState(r).CurrentUser()); err != nil {
		h.writeServiceError(w, r, "failed to delete user", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// pathParam returns a decoded URL parameter. chi matches against the raw
// path, leaving parameters escaped, only when the request carries one
// (an encoded "/" for instance).
func pathParam(r *http.Request, key string) (string, error) {
	value := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return value, nil
	}
	return url.PathUnescape(value)
}
