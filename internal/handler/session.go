package handler

import (
	"context"
	"net/http"

	"github.com/grus-gras/internal/session"
)

const sessionHeader = "X-Session-ID"

// Session ids are issued as UUID strings; anything much longer is rejected.
const maxSessionIDLength = 64

type ctxKey struct{}

// sessionMiddleware resolves the caller's session id from the cookie or the
// X-Session-ID header, issuing a new one when neither is present, and puts
// the restored session state on the request context.
func (h *Handler) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := ""
		fromCookie := false
		if c, err := r.Cookie(h.config.Session.CookieName); err == nil && validSessionID(c.Value) {
			sid = c.Value
			fromCookie = true
		} else if v := r.Header.Get(sessionHeader); validSessionID(v) {
			sid = v
		}

		if sid == "" {
			sid = session.NewID()
		}
		if !fromCookie {
			http.SetCookie(w, &http.Cookie{
				Name:     h.config.Session.CookieName,
				Value:    sid,
				Path:     "/",
				MaxAge:   int(h.config.Session.TTL.Seconds()),
				HttpOnly: true,
				Secure:   h.config.Server.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}
		w.Header().Set(sessionHeader, sid)

		state := h.sessions.Open(r.Context(), sid)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, state)))
	})
}

func validSessionID(v string) bool {
	return v != "" && len(v) <= maxSessionIDLength
}

// currentState returns the session state installed by sessionMiddleware
func currentState(r *http.Request) *session.State {
	return r.Context().Value(ctxKey{}).(*session.State)
}
