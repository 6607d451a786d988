package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := New("grus_test")

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/matches/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/metrics", m.Handler().ServeHTTP)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/matches/abc", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	want := `grus_test_http_requests_total{method="GET",path="/api/v1/matches/{id}",status="404"} 1`
	if !strings.Contains(string(body), want) {
		t.Errorf("expected metrics output to contain %q", want)
	}
}

func TestDomainCounters(t *testing.T) {
	m := New("grus_test")
	m.RecordMatchEvent("player_joined")
	m.RecordJoin("full")
	m.RecordJoinConflict()
	m.RecordAuth("login", false)
	m.SetWebSocketClients(3)
	m.RecordAgedOut(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`grus_test_match_events_total{type="player_joined"} 1`,
		`grus_test_match_join_outcomes_total{outcome="full"} 1`,
		`grus_test_match_join_conflicts_total 1`,
		`grus_test_auth_attempts_total{action="login",result="failure"} 1`,
		`grus_test_websocket_clients 3`,
		`grus_test_matches_aged_out_total 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordMatchEvent("match_created")
	m.RecordJoin("joined")
	m.RecordJoinConflict()
	m.RecordAuth("register", true)
	m.SetWebSocketClients(1)
	m.RecordAgedOut(1)

	called := false
	h := m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("expected nil middleware to pass through")
	}
}
