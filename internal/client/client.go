// Package client is an HTTP and WebSocket client for the hosted negotiation API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/polite-concession/internal/model"
	"github.com/freeeve/polite-concession/pkg/negotiation"
)

// WSEvent mirrors handler.WSEvent for client-side deserialization.
type WSEvent struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
}

// CreateSessionRequest matches service.CreateSessionInput.
type CreateSessionRequest struct {
	Name      string             `json:"name,omitempty"`
	Scenario  string             `json:"scenario,omitempty"`
	AgentSide string             `json:"agent_side,omitempty"`
	Params    map[string]float64 `json:"params,omitempty"`
	MaxRounds int                `json:"max_rounds,omitempty"`
}

// TurnResult matches service.TurnResult.
type TurnResult struct {
	Session *model.Session `json:"session"`
	Rounds  []model.Round  `json:"rounds"`
}

// Client talks to one server as one user.
type Client struct {
	name     string
	baseURL  string
	token    string
	userID   string
	wsConn   *websocket.Conn
	events   chan WSEvent
	httpC    *http.Client
	mu       sync.Mutex
	closedWS bool
}

// New creates a client targeting the given server URL.
func New(name, baseURL string) *Client {
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		events:  make(chan WSEvent, 64),
		httpC:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the client's login name.
func (c *Client) Name() string { return c.name }

// UserID returns the user ID after login.
func (c *Client) UserID() string { return c.userID }

// SetToken uses an existing token, e.g. a party token for one session.
func (c *Client) SetToken(token string) { c.token = token }

// Login authenticates via the dev login endpoint.
func (c *Client) Login(ctx context.Context) error {
	var tokens struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/dev?name="+url.QueryEscape(c.name), nil, &tokens); err != nil {
		return fmt.Errorf("dev login: %w", err)
	}
	c.token = tokens.AccessToken
	c.userID = tokens.UserID
	log.Debug().Str("client", c.name).Str("userId", c.userID).Msg("Client logged in")
	return nil
}

// CreateSession starts a hosted session against the server's agent.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*TurnResult, error) {
	var res TurnResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetSession fetches a session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	var s model.Session
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+sessionID, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListRounds fetches every round of a session.
func (c *Client) ListRounds(ctx context.Context, sessionID string) ([]model.Round, error) {
	var rounds []model.Round
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+sessionID+"/rounds", nil, &rounds); err != nil {
		return nil, err
	}
	return rounds, nil
}

// SubmitOffer sends a counter-offer and returns the agent's reply.
func (c *Client) SubmitOffer(ctx context.Context, sessionID string, o negotiation.Offer) (*TurnResult, error) {
	var res TurnResult
	body := map[string]negotiation.Offer{"offer": o}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/offers", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Accept accepts the agent's latest offer.
func (c *Client) Accept(ctx context.Context, sessionID string) (*TurnResult, error) {
	var res TurnResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/accept", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Abort ends a session without agreement.
func (c *Client) Abort(ctx context.Context, sessionID, reason string) (*model.Session, error) {
	var s model.Session
	path := "/api/v1/sessions/" + sessionID + "?reason=" + url.QueryEscape(reason)
	if err := c.do(ctx, http.MethodDelete, path, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// PartyToken requests a token limited to one session.
func (c *Client) PartyToken(ctx context.Context, sessionID string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/token", nil, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// ConnectWS opens a WebSocket connection and starts listening for events.
func (c *Client) ConnectWS() error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/api/v1/ws?token=" + url.QueryEscape(c.token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
	}
	c.wsConn = conn

	go c.readWSLoop()
	return nil
}

// Subscribe sends a subscribe message for the given session.
func (c *Client) Subscribe(sessionID string) error {
	msg := map[string]string{"action": "subscribe", "session_id": sessionID}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wsConn.WriteJSON(msg)
}

// Events returns the channel of incoming WebSocket events.
func (c *Client) Events() <-chan WSEvent { return c.events }

// CloseWS closes the WebSocket connection.
func (c *Client) CloseWS() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wsConn != nil && !c.closedWS {
		c.closedWS = true
		c.wsConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.wsConn.Close()
	}
}

func (c *Client) readWSLoop() {
	defer close(c.events)
	for {
		_, msg, err := c.wsConn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closedWS
			c.mu.Unlock()
			if !closed {
				log.Debug().Err(err).Str("client", c.name).Msg("WS read error")
			}
			return
		}
		// The server may batch queued events into one frame, one per line.
		for _, line := range bytes.Split(msg, []byte("\n")) {
			var event WSEvent
			if err := json.Unmarshal(line, &event); err != nil {
				continue
			}
			c.events <- event
		}
	}
}

// StatusError is a non-2xx API response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// do sends a JSON request and decodes the JSON response into out, if non-nil.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	} else if method == http.MethodPost {
		bodyReader = bytes.NewReader([]byte("{}"))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpC.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
