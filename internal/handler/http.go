package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gorillaws "github.com/gorilla/websocket"
	"github.com/grus-gras/internal/config"
	"github.com/grus-gras/internal/domain"
	"github.com/grus-gras/internal/metrics"
	"github.com/grus-gras/internal/service"
	"github.com/grus-gras/internal/session"
	"github.com/grus-gras/internal/websocket"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for the match API
type Handler struct {
	matches  *service.MatchService
	auth     *service.AuthService
	sessions *session.Manager
	hub      *websocket.Hub
	upgrader *gorillaws.Upgrader
	db       Pinger
	config   *config.Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Options collects the dependencies of a Handler. DB and Metrics may be nil.
type Options struct {
	Matches  *service.MatchService
	Auth     *service.AuthService
	Sessions *session.Manager
	Hub      *websocket.Hub
	DB       Pinger
	Config   *config.Config
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(opts Options) *Handler {
	return &Handler{
		matches:  opts.Matches,
		auth:     opts.Auth,
		sessions: opts.Sessions,
		hub:      opts.Hub,
		upgrader: websocket.NewUpgrader(opts.Config.Server.AllowedOrigins),
		db:       opts.DB,
		config:   opts.Config,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.metrics.Middleware)
	r.Use(h.corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(h.sessionMiddleware)

		// WebSocket endpoint
		r.Get("/ws", h.HandleWebSocket)

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/auth", func(r chi.Router) {
				r.Post("/register", h.Register)
				r.Post("/login", h.Login)
				r.Post("/logout", h.Logout)
			})

			r.Get("/me", h.Me)
			r.Put("/me/city", h.ChangeCity)

			r.Route("/preferences", func(r chi.Router) {
				r.Get("/", h.GetPreferences)
				r.Put("/area", h.SelectArea)
				r.Post("/favorites", h.AddFavorite)
				r.Delete("/favorites/{area}", h.RemoveFavorite)
			})

			r.Route("/matches", func(r chi.Router) {
				r.Get("/", h.ListVisibleMatches)
				r.Get("/all", h.ListAllMatches)
				r.Post("/", h.CreateMatch)

				r.Route("/{matchID}", func(r chi.Router) {
					r.Get("/", h.GetMatch)
					r.Delete("/", h.DeleteMatch)
					r.Post("/join", h.JoinMatch)
					r.Post("/leave", h.LeaveMatch)
					r.Get("/teams", h.GetTeams)
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Get("/users", h.ListUsers)
				r.Delete("/users/{userID}", h.DeleteUser)
				r.Get("/matches/{matchID}/events", h.GetMatchEvents)
			})

			// WebSocket info endpoint
			r.Get("/ws/stats", h.GetWebSocketStats)
		})
	})

	return r
}

// corsMiddleware adds CORS headers for the configured origins. Listed
// origins are echoed with credentials so the session cookie travels with
// cross-origin requests. "*" opens the API to any origin without
// credentials; no origins means same-origin only.
func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool)
	for _, o := range h.config.Server.AllowedOrigins {
		if o == "*" {
			allowAll = true
			continue
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case origin == "":
		case allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID, "+sessionHeader)
		w.Header().Set("Access-Control-Expose-Headers", sessionHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps a domain error to its status code. Anything
// unrecognized is logged and reported as an internal error.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidMatch), errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, domain.ErrForbidden):
		h.writeError(w, http.StatusForbidden, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrUsernameTaken):
		h.writeError(w, http.StatusConflict, err)
	default:
		h.logger.Error(msg, "error", err, "request_id", middleware.GetReqID(r.Context()))
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// decode reads a JSON body into v, answering 400 on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return false
	}
	return true
}

// HandleWebSocket handles WebSocket upgrade requests. The connection is
// attached to the caller's session so area changes reach it.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.upgrader, currentState(r).ID(), h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections":   h.hub.GetTotalConnections(),
		"session_connections": h.hub.GetSubscriberCount(currentState(r).ID()),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports ready once the database answers
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			h.writeError(w, http.StatusServiceUnavailable, errors.New("database unavailable"))
			return
		}
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}
