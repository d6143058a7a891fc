package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/freeeve/polite-concession/internal/model"
)

// Model conversion helpers

// ActionToRound converts one party action into a persisted round.
func ActionToRound(sessionID string, number int, side string, act Action) (model.Round, error) {
	offer, err := json.Marshal(act.Offer.Offer)
	if err != nil {
		return model.Round{}, fmt.Errorf("marshal offer: %w", err)
	}
	return model.Round{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Number:    number,
		Side:      side,
		Action:    string(act.Type),
		Offer:     offer,
		Utility:   act.Offer.Utility,
		Target:    act.Plan.Target,
		Time:      act.Plan.Time,
		CreatedAt: time.Now(),
	}, nil
}

func resultToOutcome(r *ArenaResult) model.Outcome {
	out := model.Outcome{
		Status:     model.StatusNoDeal,
		UtilityA:   r.UtilityA,
		UtilityB:   r.UtilityB,
		Rounds:     r.Rounds,
		AcceptedBy: r.AcceptedBy,
	}
	if r.Agreement {
		out.Status = model.StatusAgreed
		if b, err := json.Marshal(r.Offer); err == nil {
			out.Agreement = b
		}
	}
	return out
}

// ParseMatchup parses a matchup string like "agent007:boulware" into the
// party kinds for sides a and b. A single kind plays both sides.
func ParseMatchup(s string) (string, string) {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return s, s
	}
	return a, b
}
