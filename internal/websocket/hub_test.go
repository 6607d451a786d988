package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grus-gras/internal/domain"
	"github.com/grus-gras/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil, testLogger())
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func newTestClient(hub *Hub) *Client {
	return &Client{id: "c", hub: hub, send: make(chan []byte, 8), logger: testLogger()}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decoding message: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Errorf("expected no message, got %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAreaChangeOnlyReachesSameSession(t *testing.T) {
	hub := startHub(t)
	tabA, tabB, other := newTestClient(hub), newTestClient(hub), newTestClient(hub)
	for _, c := range []*Client{tabA, tabB, other} {
		hub.Register(c)
	}
	hub.Subscribe(tabA, "s1")
	hub.Subscribe(tabB, "s1")
	hub.Subscribe(other, "s2")
	waitFor(t, func() bool { return hub.GetSubscriberCount("s1") == 2 && hub.GetSubscriberCount("s2") == 1 })

	hub.BroadcastSessionChange(session.Change{SessionID: "s1", Key: session.KeySelectedArea, Value: "lerum"})

	for _, c := range []*Client{tabA, tabB} {
		msg := receive(t, c)
		if msg.Type != MessageTypeAreaChanged || msg.SessionID != "s1" {
			t.Errorf("expected area_changed for s1, got %+v", msg)
		}
		data, _ := msg.Data.(map[string]interface{})
		if data["selected_area"] != "lerum" {
			t.Errorf("expected selected_area lerum, got %v", msg.Data)
		}
	}
	expectNothing(t, other)
}

func TestSessionChangeIgnoresOtherKeys(t *testing.T) {
	hub := startHub(t)
	c := newTestClient(hub)
	hub.Register(c)
	hub.Subscribe(c, "s1")
	waitFor(t, func() bool { return hub.GetSubscriberCount("s1") == 1 })

	hub.BroadcastSessionChange(session.Change{SessionID: "s1", Key: session.KeyFavoriteAreas, Value: "[]"})
	expectNothing(t, c)
}

func TestMatchesChangedReachesEveryone(t *testing.T) {
	hub := startHub(t)
	a, b := newTestClient(hub), newTestClient(hub)
	hub.Register(a)
	hub.Register(b)
	hub.Subscribe(a, "s1")
	waitFor(t, func() bool { return hub.GetTotalConnections() == 2 })

	if err := hub.Publish(context.Background(), domain.MatchEvent{Type: domain.MatchEventCreated, MatchID: "m1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		if msg.Type != MessageTypeMatchesChanged {
			t.Errorf("expected matches_changed, got %s", msg.Type)
		}
	}
}

func TestResubscribeMovesClient(t *testing.T) {
	hub := startHub(t)
	c := newTestClient(hub)
	hub.Register(c)
	hub.Subscribe(c, "s1")
	hub.Subscribe(c, "s2")
	waitFor(t, func() bool { return hub.GetSubscriberCount("s2") == 1 })

	if n := hub.GetSubscriberCount("s1"); n != 0 {
		t.Errorf("expected client moved off s1, got %d", n)
	}
}

func TestUnregisterClosesSendAndDropsSubscriptions(t *testing.T) {
	hub := startHub(t)
	c := newTestClient(hub)
	hub.Register(c)
	hub.Subscribe(c, "s1")
	waitFor(t, func() bool { return hub.GetSubscriberCount("s1") == 1 })

	hub.Unregister(c)
	waitFor(t, func() bool { return hub.GetTotalConnections() == 0 })

	if hub.GetSubscriberCount("s1") != 0 {
		t.Error("expected subscription removed")
	}
	if _, ok := <-c.send; ok {
		t.Error("expected send channel closed")
	}
}

func TestClientMessages(t *testing.T) {
	hub := startHub(t)
	c := newTestClient(hub)
	hub.Register(c)

	c.handleMessage(&ClientMessage{Type: MessageTypeSubscribe})
	if msg := receive(t, c); msg.Type != MessageTypeError {
		t.Errorf("expected error without session_id, got %s", msg.Type)
	}

	c.ownSession = "s1"
	c.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, SessionID: "s1"})
	if msg := receive(t, c); msg.Type != MessageTypeSubscribed || msg.SessionID != "s1" {
		t.Errorf("expected subscribed ack, got %+v", msg)
	}
	waitFor(t, func() bool { return hub.GetSubscriberCount("s1") == 1 })

	c.handleMessage(&ClientMessage{Type: MessageTypePing})
	if msg := receive(t, c); msg.Type != MessageTypePong {
		t.Errorf("expected pong, got %s", msg.Type)
	}

	c.handleMessage(&ClientMessage{Type: MessageTypeUnsubscribe})
	if msg := receive(t, c); msg.Type != MessageTypeUnsubscribed {
		t.Errorf("expected unsubscribed ack, got %s", msg.Type)
	}
	waitFor(t, func() bool { return hub.GetSubscriberCount("s1") == 0 })
}

func TestSubscribeLimitedToOwnSession(t *testing.T) {
	hub := startHub(t)
	victim := newTestClient(hub)
	hub.Register(victim)
	hub.Subscribe(victim, "victim")

	c := newTestClient(hub)
	c.ownSession = "mine"
	hub.Register(c)

	c.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, SessionID: "victim"})
	if msg := receive(t, c); msg.Type != MessageTypeError {
		t.Errorf("expected error subscribing to another session, got %+v", msg)
	}

	c.handleMessage(&ClientMessage{Type: MessageTypeSubscribe})
	if msg := receive(t, c); msg.Type != MessageTypeSubscribed || msg.SessionID != "mine" {
		t.Errorf("expected subscribed ack for own session, got %+v", msg)
	}
	waitFor(t, func() bool { return hub.GetSubscriberCount("mine") == 1 })

	hub.BroadcastSessionChange(session.Change{SessionID: "victim", Key: session.KeySelectedArea, Value: "lerum"})
	if msg := receive(t, victim); msg.Type != MessageTypeAreaChanged {
		t.Errorf("expected victim tab notified, got %s", msg.Type)
	}
	expectNothing(t, c)
	if n := hub.GetSubscriberCount("victim"); n != 1 {
		t.Errorf("expected only the owning tab on the session, got %d", n)
	}
}

func TestServeWsEndToEnd(t *testing.T) {
	hub := startHub(t)
	upgrader := NewUpgrader([]string{"*"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, upgrader, "s1", testLogger(), w, r)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.GetSubscriberCount("s1") == 1 })
	hub.BroadcastSessionChange(session.Change{SessionID: "s1", Key: session.KeySelectedArea, Value: "floda"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msg.Type != MessageTypeAreaChanged {
		t.Errorf("expected area_changed, got %s", msg.Type)
	}
}

func TestUpgraderOrigins(t *testing.T) {
	upgrader := NewUpgrader([]string{"https://grus.example/"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://grus.example", true},
		{"https://evil.example", false},
		{"http://example.com", true}, // the request's own host
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := upgrader.CheckOrigin(r); got != tt.want {
			t.Errorf("origin %q: expected %v, got %v", tt.origin, tt.want, got)
		}
	}
}

func TestUpgraderWithoutOriginsIsSameHost(t *testing.T) {
	upgrader := NewUpgrader(nil)
	r := httptest.NewRequest(http.MethodGet, "http://grus.example/ws", nil)
	r.Header.Set("Origin", "https://evil.example")
	if upgrader.CheckOrigin(r) {
		t.Error("expected foreign origin refused")
	}
	r.Header.Set("Origin", "https://GRUS.example")
	if !upgrader.CheckOrigin(r) {
		t.Error("expected same host accepted")
	}
}
