package model

import (
	"encoding/json"
	"time"
)

// Session statuses.
const (
	StatusActive  = "active"
	StatusAgreed  = "agreed"
	StatusNoDeal  = "no_deal"
	StatusAborted = "aborted"
)

// Sides of a bilateral session.
const (
	SideA = "a"
	SideB = "b"
)

// PartyRemote marks the side played by a remote client in hosted sessions.
const PartyRemote = "remote"

// Session is one bilateral negotiation, either an arena match between two
// built-in parties or a hosted session against a remote opponent.
type Session struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	OwnerID   string             `json:"owner_id,omitempty"`
	Scenario  string             `json:"scenario"`
	Domain    json.RawMessage    `json:"domain"`
	PartyA    string             `json:"party_a"`
	PartyB    string             `json:"party_b"`
	AgentSide string             `json:"agent_side,omitempty"` // hosted sessions: side the agent plays
	Params    map[string]float64 `json:"params,omitempty"`
	MaxRounds int                `json:"max_rounds"`
	Status    string             `json:"status"`

	Agreement  json.RawMessage `json:"agreement,omitempty"`
	UtilityA   float64         `json:"utility_a,omitempty"`
	UtilityB   float64         `json:"utility_b,omitempty"`
	Rounds     int             `json:"rounds"`
	AcceptedBy string          `json:"accepted_by,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Outcome is the final result written when a session ends.
type Outcome struct {
	Status     string
	Agreement  json.RawMessage
	UtilityA   float64
	UtilityB   float64
	Rounds     int
	AcceptedBy string
}

// Round is one turn of a session: a side either offers or accepts.
type Round struct {
	ID        string          `json:"id,omitempty"`
	SessionID string          `json:"session_id"`
	Number    int             `json:"number"`
	Side      string          `json:"side"`
	Action    string          `json:"action"`
	Offer     json.RawMessage `json:"offer"`
	Utility   float64         `json:"utility,omitempty"` // offer utility for the acting side
	Target    float64         `json:"target,omitempty"`
	Time      float64         `json:"time"`
	CreatedAt time.Time       `json:"created_at"`
}

// OpponentView returns a copy of a hosted session as the agent's opponent may
// see it: without the agent's parameters or its utility for the outcome.
func (s *Session) OpponentView() *Session {
	cp := *s
	cp.Params = nil
	switch s.AgentSide {
	case SideA:
		cp.UtilityA = 0
	case SideB:
		cp.UtilityB = 0
	}
	return &cp
}

// OpponentView returns the round with the agent's own utility and concession
// target removed when the agent made it.
func (r Round) OpponentView(agentSide string) Round {
	if agentSide != "" && r.Side == agentSide {
		r.Utility, r.Target = 0, 0
	}
	return r
}

// OpponentRounds applies Round.OpponentView to every round.
func OpponentRounds(rounds []Round, agentSide string) []Round {
	out := make([]Round, len(rounds))
	for i, r := range rounds {
		out[i] = r.OpponentView(agentSide)
	}
	return out
}
