package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/freeeve/polite-concession/internal/model"
)

// SessionRepository defines negotiation session persistence.
type SessionRepository interface {
	Create(ctx context.Context, s *model.Session) (*model.Session, error)
	FindByID(ctx context.Context, id string) (*model.Session, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Session, error)
	ListActive(ctx context.Context) ([]model.Session, error)
	SetFinished(ctx context.Context, id string, outcome model.Outcome) error
}

// RoundRepository defines per-round persistence.
type RoundRepository interface {
	SaveRound(ctx context.Context, r model.Round) error
	ListBySession(ctx context.Context, sessionID string) ([]model.Round, error)
}

// SessionCache holds live agent state between hosted rounds (Redis).
type SessionCache interface {
	SetAgentState(ctx context.Context, sessionID string, state json.RawMessage, ttl time.Duration) error
	GetAgentState(ctx context.Context, sessionID string) (json.RawMessage, error)
	DeleteAgentState(ctx context.Context, sessionID string) error
	SetRound(ctx context.Context, sessionID string, round int, ttl time.Duration) error
	GetRound(ctx context.Context, sessionID string) (int, bool, error)
	SetIdleTimer(ctx context.Context, sessionID string, ttl time.Duration) error
	HasIdleTimer(ctx context.Context, sessionID string) (bool, error)
}
