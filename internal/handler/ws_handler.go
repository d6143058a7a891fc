package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/polite-concession/internal/auth"
	"github.com/freeeve/polite-concession/internal/model"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // Must be less than pongWait
	maxMsgSize  = 4096
	sendBufSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS handled by middleware
	},
}

// sessionLookup finds a session so subscriptions can be authorized.
type sessionLookup interface {
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
}

// WSHandler handles WebSocket connections.
type WSHandler struct {
	hub      *Hub
	jwtMgr   *auth.JWTManager
	sessions sessionLookup
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *Hub, jwtMgr *auth.JWTManager, sessions sessionLookup) *WSHandler {
	return &WSHandler{hub: hub, jwtMgr: jwtMgr, sessions: sessions}
}

// ServeWS handles GET /api/v1/ws and upgrades to WebSocket.
// Auth via ?token= query parameter (WebSocket can't send headers).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, `{"error":"missing token parameter"}`, http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtMgr.ValidateToken(tokenStr)
	if err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &WSConn{
		conn:   conn,
		claims: claims,
		send:   make(chan []byte, sendBufSize),
	}
	h.hub.Register(c)
	h.hub.sendTo(c, WSEvent{Type: EventConnected, Data: map[string]any{}})

	ctx, cancel := context.WithCancel(context.Background())
	// A party token names its session, so there is nothing else to subscribe to.
	if claims.SessionID != "" {
		h.handleMessage(ctx, c, ClientMessage{Action: actionSubscribe, SessionID: claims.SessionID})
	}

	go h.writePump(c)
	go h.readPump(ctx, cancel, c)

	log.Info().Str("userId", claims.UserID).Int("total", h.hub.ConnectionCount()).Msg("WebSocket client connected")
}

// Client actions.
const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

func (h *WSHandler) sendError(c *WSConn, sessionID, msg string) {
	h.hub.sendTo(c, WSEvent{Type: EventError, SessionID: sessionID, Data: map[string]string{"error": msg}})
}

// handleMessage applies one client message. Subscriptions require the same
// access as the session's REST endpoints.
func (h *WSHandler) handleMessage(ctx context.Context, c *WSConn, msg ClientMessage) {
	if msg.SessionID == "" {
		h.sendError(c, "", "session_id is required")
		return
	}
	switch msg.Action {
	case actionSubscribe:
		sess, err := h.sessions.GetSession(ctx, msg.SessionID)
		if err == nil {
			err = auth.AuthorizeSession(auth.WithClaims(ctx, c.claims), sess.ID, sess.OwnerID)
		}
		if err != nil {
			h.sendError(c, msg.SessionID, err.Error())
			return
		}
		h.hub.Subscribe(c, msg.SessionID)
		h.hub.sendTo(c, WSEvent{Type: EventSubscribed, SessionID: msg.SessionID, Data: viewSession(sess, c.isParty())})
	case actionUnsubscribe:
		h.hub.Unsubscribe(c, msg.SessionID)
	default:
		h.sendError(c, msg.SessionID, "unknown action "+msg.Action)
	}
}

// readPump applies client messages until the connection drops, then cancels
// ctx and unregisters the connection.
func (h *WSHandler) readPump(ctx context.Context, cancel context.CancelFunc, c *WSConn) {
	defer func() {
		cancel()
		h.hub.Unregister(c)
		c.conn.Close()
		log.Info().Str("userId", c.userID()).Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("userId", c.userID()).Msg("WebSocket unexpected close")
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.sendError(c, "", "malformed message")
			continue
		}
		h.handleMessage(ctx, c, msg)
	}
}

// writePump writes messages to the WebSocket connection.
func (h *WSHandler) writePump(c *WSConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued messages into the same write
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
