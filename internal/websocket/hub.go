package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/grus-gras/internal/domain"
	"github.com/grus-gras/internal/metrics"
	"github.com/grus-gras/internal/session"
)

// Message types
const (
	MessageTypeMatchesChanged = "matches_changed"
	MessageTypeAreaChanged    = "area_changed"
	MessageTypeSubscribe      = "subscribe"
	MessageTypeUnsubscribe    = "unsubscribe"
	MessageTypeSubscribed     = "subscribed"
	MessageTypeUnsubscribed   = "unsubscribed"
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
	MessageTypeError          = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// AreaChange is the payload of an area_changed message
type AreaChange struct {
	SelectedArea string `json:"selected_area"`
}

// Hub maintains the set of active clients. Match changes go to every client;
// session changes only to the clients subscribed to that session id, which
// are the open tabs of one browser.
type Hub struct {
	// Clients by session ID
	sessions map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu      sync.RWMutex
	metrics *metrics.Metrics
	logger  *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client    *Client
	sessionID string
}

// NewHub creates a new Hub. m may be nil.
func NewHub(m *metrics.Metrics, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:    make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		metrics:     m,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			n := len(h.allClients)
			h.mu.Unlock()
			h.metrics.SetWebSocketClients(n)
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				h.removeFromSessions(client)
				close(client.send)
			}
			n := len(h.allClients)
			h.mu.Unlock()
			h.metrics.SetWebSocketClients(n)
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.allClients[req.client]; ok {
				// A tab belongs to one session at a time
				h.removeFromSessions(req.client)
				if _, ok := h.sessions[req.sessionID]; !ok {
					h.sessions[req.sessionID] = make(map[*Client]bool)
				}
				h.sessions[req.sessionID][req.client] = true
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "session_id", req.sessionID)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.sessions[req.sessionID]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.sessions, req.sessionID)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "session_id", req.sessionID)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// removeFromSessions drops client from every session. Caller holds mu.
func (h *Hub) removeFromSessions(client *Client) {
	for sessionID, clients := range h.sessions {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.sessions, sessionID)
			}
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to its session's clients, or to everyone
// when it carries no session ID
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	targets := h.allClients
	if message.SessionID != "" {
		targets = h.sessions[message.SessionID]
	}
	for client := range targets {
		select {
		case client.send <- data:
		default:
			// Client's buffer is full, skip
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", message.Type)
	}
}

// BroadcastMatchesChanged tells every client to reload its match list
func (h *Hub) BroadcastMatchesChanged(event domain.MatchEvent) {
	h.enqueue(&Message{
		Type:      MessageTypeMatchesChanged,
		Data:      event,
		Timestamp: time.Now(),
	})
}

// BroadcastSessionChange forwards a selected-area change to the other tabs of
// the same session. Other keys are not pushed.
func (h *Hub) BroadcastSessionChange(change session.Change) {
	if change.Key != session.KeySelectedArea || change.SessionID == "" {
		return
	}
	h.enqueue(&Message{
		Type:      MessageTypeAreaChanged,
		SessionID: change.SessionID,
		Data:      AreaChange{SelectedArea: change.Value},
		Timestamp: time.Now(),
	})
}

// HandleMatchEvent forwards an event read from the event bus
func (h *Hub) HandleMatchEvent(_ context.Context, event domain.MatchEvent) {
	h.BroadcastMatchesChanged(event)
}

// Publish pushes an event straight to this hub's clients. It is used as the
// event publisher when no event bus is configured.
func (h *Hub) Publish(_ context.Context, event domain.MatchEvent) error {
	h.BroadcastMatchesChanged(event)
	return nil
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe attaches a client to a session
func (h *Hub) Subscribe(client *Client, sessionID string) {
	h.subscribe <- &subscriptionRequest{
		client:    client,
		sessionID: sessionID,
	}
}

// Unsubscribe detaches a client from a session
func (h *Hub) Unsubscribe(client *Client, sessionID string) {
	h.unsubscribe <- &subscriptionRequest{
		client:    client,
		sessionID: sessionID,
	}
}

// GetSubscriberCount returns the number of clients attached to a session
func (h *Hub) GetSubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
