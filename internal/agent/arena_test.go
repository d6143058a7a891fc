package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/freeeve/polite-concession/internal/model"
)

func TestRunSessionDryRun(t *testing.T) {
	cfg := ArenaConfig{
		SessionName: "test-dry-run",
		Scenario:    "laptop",
		PartyA:      KindAgent007,
		PartyB:      KindConceder,
		MaxRounds:   60,
		Seed:        42,
		DryRun:      true,
	}
	result, err := RunSession(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("RunSession failed: %v", err)
	}
	if result.Rounds == 0 || result.Rounds > cfg.MaxRounds {
		t.Errorf("rounds = %d, want 1..%d", result.Rounds, cfg.MaxRounds)
	}
	if !result.Agreement {
		t.Fatalf("expected agreement against a conceder, got none after %d rounds", result.Rounds)
	}
	if result.UtilityA < 0 || result.UtilityA > 1 || result.UtilityB < 0 || result.UtilityB > 1 {
		t.Errorf("utilities out of range: %v %v", result.UtilityA, result.UtilityB)
	}
	t.Logf("Result: accepted_by=%s rounds=%d uA=%.3f uB=%.3f offer=%s",
		result.AcceptedBy, result.Rounds, result.UtilityA, result.UtilityB, result.Offer)
}

func TestRunSessionHardlinersDisagree(t *testing.T) {
	cfg := ArenaConfig{
		Scenario:  "holiday",
		PartyA:    KindHardliner,
		PartyB:    KindHardliner,
		MaxRounds: 20,
		DryRun:    true,
	}
	result, err := RunSession(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("RunSession failed: %v", err)
	}
	if result.Agreement {
		t.Fatalf("hardliners with opposed profiles agreed on %s", result.Offer)
	}
	if result.Rounds != cfg.MaxRounds {
		t.Errorf("rounds = %d, want %d", result.Rounds, cfg.MaxRounds)
	}
	if result.UtilityA != 0.2 || result.UtilityB != 0.2 {
		t.Errorf("no-deal utilities = %v/%v, want reservation 0.2", result.UtilityA, result.UtilityB)
	}
}

func TestRunSessionCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunSession(ctx, ArenaConfig{DryRun: true}, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestRunSessionUnknownParty(t *testing.T) {
	_, err := RunSession(context.Background(), ArenaConfig{PartyA: "nope", DryRun: true}, nil, nil)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
}

func TestResultToOutcome(t *testing.T) {
	out := resultToOutcome(&ArenaResult{Agreement: true, Offer: offer("x", "a"), Rounds: 3, AcceptedBy: model.SideB})
	if out.Status != model.StatusAgreed || string(out.Agreement) != `{"x":"a"}` {
		t.Errorf("outcome = %+v (%s)", out, out.Agreement)
	}
	out = resultToOutcome(&ArenaResult{Rounds: 5})
	if out.Status != model.StatusNoDeal || out.Agreement != nil {
		t.Errorf("no-deal outcome = %+v", out)
	}
}

func TestParseMatchup(t *testing.T) {
	a, b := ParseMatchup("agent007:boulware")
	if a != KindAgent007 || b != KindBoulware {
		t.Errorf("got %q %q", a, b)
	}
	a, b = ParseMatchup("linear")
	if a != KindLinear || b != KindLinear {
		t.Errorf("got %q %q", a, b)
	}
}
