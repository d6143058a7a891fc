package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key patterns for live session state.
func agentKey(sessionID string) string { return "session:" + sessionID + ":agent" }
func roundKey(sessionID string) string { return "session:" + sessionID + ":round" }
func idleKey(sessionID string) string  { return "session:" + sessionID + ":idle" }

// IdleKeySessionID extracts the session ID from an idle timer key.
func IdleKeySessionID(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, "session:")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, ":idle")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// SetAgentState stores the agent snapshot for a hosted session.
func (c *Client) SetAgentState(ctx context.Context, sessionID string, state json.RawMessage, ttl time.Duration) error {
	return c.rdb.Set(ctx, agentKey(sessionID), []byte(state), ttl).Err()
}

// GetAgentState retrieves the agent snapshot, or nil if none is cached.
func (c *Client) GetAgentState(ctx context.Context, sessionID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, agentKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent state: %w", err)
	}
	return json.RawMessage(data), nil
}

// DeleteAgentState removes all live data for a session (on session end).
func (c *Client) DeleteAgentState(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, agentKey(sessionID), roundKey(sessionID), idleKey(sessionID)).Err()
}

// SetRound stores the number of rounds played so far.
func (c *Client) SetRound(ctx context.Context, sessionID string, round int, ttl time.Duration) error {
	return c.rdb.Set(ctx, roundKey(sessionID), round, ttl).Err()
}

// GetRound returns the cached round count and whether it was present.
func (c *Client) GetRound(ctx context.Context, sessionID string) (int, bool, error) {
	v, err := c.rdb.Get(ctx, roundKey(sessionID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get round: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("parse round %q: %w", v, err)
	}
	return n, true, nil
}

// SetIdleTimer creates a timer key that expires when the remote party has been
// silent for ttl. Redis keyspace notifications report the expiry.
func (c *Client) SetIdleTimer(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, idleKey(sessionID), time.Now().Add(ttl).Unix(), ttl).Err()
}

// HasIdleTimer reports whether the session's idle timer is still running.
func (c *Client) HasIdleTimer(ctx context.Context, sessionID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, idleKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("check idle timer: %w", err)
	}
	return n > 0, nil
}
