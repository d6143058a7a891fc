package handler

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/polite-concession/internal/auth"
)

// Event types sent over WebSocket that do not originate in the service layer.
const (
	EventConnected  = "connected"
	EventSubscribed = "subscribed"
	EventError      = "error"
)

// WSEvent is the envelope for all WebSocket messages.
type WSEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Data      any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Action    string `json:"action"` // "subscribe" or "unsubscribe"
	SessionID string `json:"session_id"`
}

// WSConn wraps a WebSocket connection with its caller and subscriptions.
type WSConn struct {
	conn   *websocket.Conn
	claims *auth.Claims
	send   chan []byte
}

// isParty reports whether the connection authenticated with a party token.
func (c *WSConn) isParty() bool {
	return c.claims != nil && c.claims.SessionID != ""
}

func (c *WSConn) userID() string {
	if c.claims == nil {
		return ""
	}
	return c.claims.UserID
}

// Hub manages WebSocket connections and session-channel subscriptions.
type Hub struct {
	mu          sync.RWMutex
	connections map[*WSConn]bool
	sessions    map[string]map[*WSConn]bool // sessionID -> set of connections
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*WSConn]bool),
		sessions:    make(map[string]map[*WSConn]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = true
}

// Unregister removes a connection from the hub and all its subscriptions.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, c)
	for sessionID, conns := range h.sessions {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	close(c.send)
}

// Subscribe adds a connection to a session channel.
func (h *Hub) Subscribe(c *WSConn, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*WSConn]bool)
	}
	h.sessions[sessionID][c] = true
}

// Unsubscribe removes a connection from a session channel.
func (h *Hub) Unsubscribe(c *WSConn, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.sessions[sessionID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.sessions, sessionID)
		}
	}
}

// BroadcastToSession sends an event to all connections subscribed to a session.
func (h *Hub) BroadcastToSession(sessionID string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.sessions[sessionID] {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("userId", c.userID()).Str("sessionId", sessionID).Msg("Dropping WebSocket message, buffer full")
		}
	}
}

// broadcastViews is BroadcastToSession with a separate event for party-token
// connections.
func (h *Hub) broadcastViews(sessionID string, owner, party WSEvent) {
	ownerData, err := json.Marshal(owner)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to marshal WebSocket event")
		return
	}
	partyData, err := json.Marshal(party)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.sessions[sessionID] {
		data := ownerData
		if c.isParty() {
			data = partyData
		}
		select {
		case c.send <- data:
		default:
			log.Warn().Str("userId", c.userID()).Str("sessionId", sessionID).Msg("Dropping WebSocket message, buffer full")
		}
	}
}

// sendTo queues an event for one connection.
func (h *Hub) sendTo(c *WSConn, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal WebSocket event")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.connections[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SessionSubscriberCount returns the number of connections subscribed to a session.
func (h *Hub) SessionSubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}
