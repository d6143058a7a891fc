package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSessionOpponentView(t *testing.T) {
	s := &Session{
		ID:        "s-1",
		AgentSide: SideB,
		Params:    map[string]float64{"e": 0.02},
		UtilityA:  0.6,
		UtilityB:  0.9,
	}
	v := s.OpponentView()
	if v.Params != nil || v.UtilityB != 0 || v.UtilityA != 0.6 {
		t.Fatalf("unexpected opponent view %+v", v)
	}
	if s.Params == nil || s.UtilityB != 0.9 {
		t.Fatal("opponent view modified the original session")
	}
}

func TestRoundOpponentView(t *testing.T) {
	rounds := []Round{
		{Number: 0, Side: SideA, Action: "offer", Utility: 1, Target: 1},
		{Number: 1, Side: SideB, Action: "offer", Utility: 0.4},
	}
	got := OpponentRounds(rounds, SideA)
	if got[0].Utility != 0 || got[0].Target != 0 {
		t.Errorf("agent round kept private values: %+v", got[0])
	}
	if got[1].Utility != 0.4 {
		t.Errorf("opponent round lost its own utility: %+v", got[1])
	}
	if rounds[0].Utility != 1 {
		t.Error("OpponentRounds modified its input")
	}

	b, err := json.Marshal(got[0])
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), `"utility"`) || strings.Contains(string(b), `"target"`) {
		t.Errorf("agent round JSON still carries private fields: %s", b)
	}
}
