package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/freeeve/polite-concession/internal/agent"
	"github.com/freeeve/polite-concession/internal/model"
	"github.com/freeeve/polite-concession/pkg/negotiation"
)

var testParams = agent.Params{"e": 0.02, "k": 0.05, "max": 0.99, "min": 0}

type fixture struct {
	sessions *mockSessionRepo
	rounds   *mockRoundRepo
	cache    *mockCache
	events   *mockBroadcaster
	svc      *NegotiationService
}

func newFixture(maxRounds int) *fixture {
	f := &fixture{
		sessions: newMockSessionRepo(),
		rounds:   newMockRoundRepo(),
		cache:    newMockCache(),
		events:   &mockBroadcaster{},
	}
	f.svc = f.restart(maxRounds)
	return f
}

// restart builds a new service over the same storage, as after a process restart.
func (f *fixture) restart(maxRounds int) *NegotiationService {
	return NewNegotiationService(f.sessions, f.rounds, f.cache, f.events, Options{
		DefaultParams: testParams,
		MaxRounds:     maxRounds,
	})
}

func laptopOffer(brand, memory, monitor string) negotiation.Offer {
	return negotiation.NewOffer(map[string]string{"brand": brand, "memory": memory, "monitor": monitor})
}

// Best for side a of the laptop scenario, poor for side b.
var bestForA = laptopOffer("mac", "32gb", "23in")

// Poor for side a.
var poorForA = laptopOffer("hp", "8gb", "19in")

func approxEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCreateSessionAgentOpens(t *testing.T) {
	f := newFixture(180)
	res, err := f.svc.CreateSession(context.Background(), "user-1", CreateSessionInput{Scenario: "laptop", AgentSide: model.SideA})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if res.Session.Status != model.StatusActive {
		t.Errorf("status = %s, want active", res.Session.Status)
	}
	if res.Session.PartyA != agent.KindAgent007 || res.Session.PartyB != model.PartyRemote {
		t.Errorf("parties = %s/%s", res.Session.PartyA, res.Session.PartyB)
	}
	if len(res.Rounds) != 1 {
		t.Fatalf("expected 1 opening round, got %d", len(res.Rounds))
	}
	r := res.Rounds[0]
	if r.Number != 0 || r.Side != model.SideA || r.Action != string(agent.ActionOffer) {
		t.Errorf("opening round = %+v", r)
	}
	if !approxEqual(r.Utility, 1) {
		t.Errorf("opening utility = %v, want 1 (best offer inside the opening window)", r.Utility)
	}
	var o negotiation.Offer
	if err := json.Unmarshal(r.Offer, &o); err != nil {
		t.Fatalf("decode offer: %v", err)
	}
	if !o.Equal(bestForA) {
		t.Errorf("opening offer = %v, want %v", o, bestForA)
	}
	if res.Session.Rounds != 1 {
		t.Errorf("session rounds = %d, want 1", res.Session.Rounds)
	}

	if _, ok := f.cache.states[res.Session.ID]; !ok {
		t.Error("expected agent state to be cached")
	}
	if ttl := f.cache.idle[res.Session.ID]; ttl <= 0 {
		t.Error("expected idle timer to be armed")
	}
	if got := f.events.count(EventRoundCompleted); got != 1 {
		t.Errorf("round_completed events = %d, want 1", got)
	}
}

func TestCreateSessionRemoteOpens(t *testing.T) {
	f := newFixture(180)
	res, err := f.svc.CreateSession(context.Background(), "user-1", CreateSessionInput{AgentSide: model.SideB})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if len(res.Rounds) != 0 {
		t.Errorf("expected no rounds before the remote opens, got %d", len(res.Rounds))
	}
	if res.Session.Scenario != "laptop" {
		t.Errorf("scenario = %s, want laptop default", res.Session.Scenario)
	}
	if res.Session.PartyA != model.PartyRemote {
		t.Errorf("party a = %s, want remote", res.Session.PartyA)
	}

	_, err = f.svc.AcceptOffer(context.Background(), res.Session.ID)
	if !errors.Is(err, ErrNothingToAccept) {
		t.Errorf("AcceptOffer before any agent offer: got %v, want ErrNothingToAccept", err)
	}

	turn, err := f.svc.SubmitOffer(context.Background(), res.Session.ID, bestForA)
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	if len(turn.Rounds) != 2 {
		t.Fatalf("expected remote round and agent reply, got %d rounds", len(turn.Rounds))
	}
	if turn.Rounds[0].Side != model.SideA || turn.Rounds[1].Side != model.SideB {
		t.Errorf("round sides = %s,%s", turn.Rounds[0].Side, turn.Rounds[1].Side)
	}
	if turn.Rounds[1].Action != string(agent.ActionOffer) {
		t.Errorf("agent should counter an offer poor for side b, got %s", turn.Rounds[1].Action)
	}
}

func TestCreateSessionRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		in   CreateSessionInput
		want error
	}{
		{"bad side", CreateSessionInput{AgentSide: "c"}, ErrInvalidSession},
		{"unknown scenario", CreateSessionInput{Scenario: "moon"}, ErrInvalidSession},
		{"negative rounds", CreateSessionInput{MaxRounds: -3}, ErrInvalidSession},
		{"zero b", CreateSessionInput{Params: map[string]float64{"b": 0}}, ErrInvalidParams},
		{"learning coefficient too high", CreateSessionInput{Params: map[string]float64{"learningCoefficient": 0.9}}, ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(180)
			_, err := f.svc.CreateSession(context.Background(), "user-1", tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
			if len(f.sessions.sessions) != 0 {
				t.Error("rejected session should not be persisted")
			}
		})
	}
}

func TestSubmitOfferAgentCounters(t *testing.T) {
	f := newFixture(180)
	ctx := context.Background()
	res, err := f.svc.CreateSession(ctx, "user-1", CreateSessionInput{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	id := res.Session.ID

	turn, err := f.svc.SubmitOffer(ctx, id, poorForA)
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	if len(turn.Rounds) != 2 {
		t.Fatalf("expected 2 rounds, got %d", len(turn.Rounds))
	}
	remote, reply := turn.Rounds[0], turn.Rounds[1]
	if remote.Number != 1 || remote.Side != model.SideB {
		t.Errorf("remote round = %+v", remote)
	}
	if reply.Number != 2 || reply.Action != string(agent.ActionOffer) {
		t.Errorf("agent reply = %+v, want offer at round 2", reply)
	}
	if turn.Session.Status != model.StatusActive {
		t.Errorf("status = %s", turn.Session.Status)
	}

	rounds, err := f.svc.ListRounds(ctx, id)
	if err != nil {
		t.Fatalf("ListRounds: %v", err)
	}
	if len(rounds) != 3 {
		t.Errorf("stored rounds = %d, want 3", len(rounds))
	}
	if n := f.cache.rounds[id]; n != 3 {
		t.Errorf("cached round = %d, want 3", n)
	}
}

func TestSubmitOfferRejectsMalformedOffer(t *testing.T) {
	f := newFixture(180)
	ctx := context.Background()
	res, err := f.svc.CreateSession(ctx, "user-1", CreateSessionInput{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	bad := negotiation.NewOffer(map[string]string{"brand": "acer", "memory": "8gb", "monitor": "19in"})
	if _, err := f.svc.SubmitOffer(ctx, res.Session.ID, bad); !errors.Is(err, ErrInvalidOffer) {
		t.Errorf("got %v, want ErrInvalidOffer", err)
	}
	partial := negotiation.NewOffer(map[string]string{"brand": "mac"})
	if _, err := f.svc.SubmitOffer(ctx, res.Session.ID, partial); !errors.Is(err, ErrInvalidOffer) {
		t.Errorf("partial offer: got %v, want ErrInvalidOffer", err)
	}
	if n := len(f.rounds.rounds[res.Session.ID]); n != 1 {
		t.Errorf("malformed offers should not be stored, have %d rounds", n)
	}

	// The session still accepts a valid offer afterwards.
	if _, err := f.svc.SubmitOffer(ctx, res.Session.ID, poorForA); err != nil {
		t.Errorf("SubmitOffer after rejection: %v", err)
	}
}

func TestAgentAcceptsGoodOffer(t *testing.T) {
	f := newFixture(180)
	ctx := context.Background()
	res, err := f.svc.CreateSession(ctx, "user-1", CreateSessionInput{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	id := res.Session.ID

	turn, err := f.svc.SubmitOffer(ctx, id, bestForA)
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	last := turn.Rounds[len(turn.Rounds)-1]
	if last.Action != string(agent.ActionAccept) {
		t.Fatalf("agent action = %s, want accept", last.Action)
	}
	s := turn.Session
	if s.Status != model.StatusAgreed {
		t.Errorf("status = %s, want agreed", s.Status)
	}
	if s.AcceptedBy != model.SideA {
		t.Errorf("accepted by = %s, want a", s.AcceptedBy)
	}
	if !approxEqual(s.UtilityA, 1) {
		t.Errorf("utility a = %v, want 1", s.UtilityA)
	}
	if s.Rounds != 3 {
		t.Errorf("rounds = %d, want 3 including the acceptance", s.Rounds)
	}

	stored := f.sessions.sessions[id]
	if stored.Status != model.StatusAgreed || stored.FinishedAt == nil {
		t.Errorf("stored session = %+v", stored)
	}
	if _, ok := f.cache.states[id]; ok {
		t.Error("agent state should be cleared after the session ends")
	}
	if got := f.events.count(EventSessionEnded); got != 1 {
		t.Errorf("session_ended events = %d, want 1", got)
	}
	if len(f.svc.ActiveSessionIDs()) != 0 {
		t.Error("finished session still live")
	}

	if _, err := f.svc.SubmitOffer(ctx, id, poorForA); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("SubmitOffer after agreement: got %v, want ErrSessionNotActive", err)
	}
}

func TestRemoteAcceptsAgentOffer(t *testing.T) {
	f := newFixture(180)
	ctx := context.Background()
	res, err := f.svc.CreateSession(ctx, "user-1", CreateSessionInput{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	turn, err := f.svc.AcceptOffer(ctx, res.Session.ID)
	if err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	s := turn.Session
	if s.Status != model.StatusAgreed || s.AcceptedBy != model.SideB {
		t.Errorf("session = %s accepted by %s", s.Status, s.AcceptedBy)
	}
	var agreed negotiation.Offer
	if err := json.Unmarshal(s.Agreement, &agreed); err != nil {
		t.Fatalf("decode agreement: %v", err)
	}
	if !agreed.Equal(bestForA) {
		t.Errorf("agreement = %v, want the agent's opening offer", agreed)
	}
	if !approxEqual(s.UtilityA, 1) {
		t.Errorf("utility a = %v", s.UtilityA)
	}
	if s.Rounds != 2 {
		t.Errorf("rounds = %d, want 2", s.Rounds)
	}
}

func TestDeadlineEndsWithoutDeal(t *testing.T) {
	f := newFixture(2)
	ctx := context.Background()
	res, err := f.svc.CreateSession(ctx, "user-1", CreateSessionInput{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	turn, err := f.svc.SubmitOffer(ctx, res.Session.ID, poorForA)
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	if len(turn.Rounds) != 1 {
		t.Errorf("expected only the remote round before the deadline, got %d", len(turn.Rounds))
	}
	s := turn.Session
	if s.Status != model.StatusNoDeal {
		t.Errorf("status = %s, want no_deal", s.Status)
	}
	if s.UtilityA != 0 || s.UtilityB != 0 {
		t.Errorf("utilities = %v/%v, want reservations", s.UtilityA, s.UtilityB)
	}
	if len(s.Agreement) != 0 {
		t.Error("no-deal session should have no agreement")
	}
}

func TestAbortSession(t *testing.T) {
	f := newFixture(180)
	ctx := context.Background()
	res, err := f.svc.CreateSession(ctx, "user-1", CreateSessionInput{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	s, err := f.svc.AbortSession(ctx, res.Session.ID, "user left")
	if err != nil {
		t.Fatalf("AbortSession: %v", err)
	}
	if s.Status != model.StatusAborted {
		t.Errorf("status = %s, want aborted", s.Status)
	}
	if _, err := f.svc.AbortSession(ctx, res.Session.ID, "again"); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("second abort: got %v, want ErrSessionNotActive", err)
	}
	got, err := f.svc.GetSession(ctx, res.Session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != model.StatusAborted {
		t.Errorf("stored status = %s", got.Status)
	}
}

func TestFailedAgentMoveAbortsSession(t *testing.T) {
	f := newFixture(180)
	ctx := context.Background()
	res, err := f.svc.CreateSession(ctx, "user-1", CreateSessionInput{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	id := res.Session.ID

	errDisk := errors.New("disk full")
	f.rounds.fail = func(r model.Round) error {
		if r.Side == model.SideA {
			return errDisk
		}
		return nil
	}
	if _, err := f.svc.SubmitOffer(ctx, id, poorForA); !errors.Is(err, errDisk) {
		t.Fatalf("SubmitOffer: got %v, want disk error", err)
	}

	got, err := f.svc.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != model.StatusAborted {
		t.Errorf("status = %s, want aborted", got.Status)
	}
	if _, err := f.svc.SubmitOffer(ctx, id, poorForA); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("SubmitOffer after failed move: got %v, want ErrSessionNotActive", err)
	}
	if got := f.events.count(EventSessionEnded); got != 1 {
		t.Errorf("session_ended events = %d, want 1", got)
	}
}

func TestBroadcastOmitsAgentPreferencesForOpponent(t *testing.T) {
	f := newFixture(180)
	ctx := context.Background()
	res, err := f.svc.CreateSession(ctx, "user-1", CreateSessionInput{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := f.svc.AbortSession(ctx, res.Session.ID, "done"); err != nil {
		t.Fatalf("AbortSession: %v", err)
	}

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	for _, e := range f.events.events {
		switch v := e.opponent.(type) {
		case model.Round:
			if v.Side == model.SideA && (v.Utility != 0 || v.Target != 0) {
				t.Errorf("opponent round %d carries agent utility %v target %v", v.Number, v.Utility, v.Target)
			}
		case *model.Session:
			if v.Params != nil || v.UtilityA != 0 {
				t.Errorf("opponent session carries agent params or utility: %+v", v)
			}
		default:
			t.Errorf("unexpected opponent payload %T", e.opponent)
		}
	}
	if len(f.events.events) != 2 {
		t.Errorf("events = %d, want round_completed and session_ended", len(f.events.events))
	}
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(180)
	ctx := context.Background()
	if _, err := f.svc.SubmitOffer(ctx, "missing", poorForA); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("SubmitOffer: got %v", err)
	}
	if _, err := f.svc.GetSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession: got %v", err)
	}
	if _, err := f.svc.ListRounds(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("ListRounds: got %v", err)
	}
}

func TestSessionSurvivesRestart(t *testing.T) {
	f := newFixture(180)
	ctx := context.Background()
	res, err := f.svc.CreateSession(ctx, "user-1", CreateSessionInput{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	id := res.Session.ID
	if _, err := f.svc.SubmitOffer(ctx, id, poorForA); err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}

	svc := f.restart(180)
	turn, err := svc.SubmitOffer(ctx, id, laptopOffer("dell", "8gb", "19in"))
	if err != nil {
		t.Fatalf("SubmitOffer after restart: %v", err)
	}
	if turn.Rounds[0].Number != 3 || turn.Rounds[1].Number != 4 {
		t.Errorf("round numbers = %d,%d, want 3,4", turn.Rounds[0].Number, turn.Rounds[1].Number)
	}
	ls := svc.live[id]
	if ls == nil {
		t.Fatal("session not live after restore")
	}
	if seen := ls.agent.Snapshot().Seen; seen != 2 {
		t.Errorf("agent folded %d opponent offers, want 2", seen)
	}
	if n := ls.agent.Model().Observed(); n != 2 {
		t.Errorf("model observed %d offers, want 2", n)
	}
}

func TestRestoreDiscardsBadSnapshot(t *testing.T) {
	tests := []struct {
		name  string
		state json.RawMessage
	}{
		{"corrupt", json.RawMessage(`{not json`)},
		{"ahead of history", json.RawMessage(`{"pseudo_deadline":0.1,"seen":9}`)},
		{"missing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(180)
			ctx := context.Background()
			res, err := f.svc.CreateSession(ctx, "user-1", CreateSessionInput{})
			if err != nil {
				t.Fatalf("CreateSession: %v", err)
			}
			id := res.Session.ID
			if _, err := f.svc.SubmitOffer(ctx, id, poorForA); err != nil {
				t.Fatalf("SubmitOffer: %v", err)
			}
			f.cache.states[id] = tt.state

			svc := f.restart(180)
			if _, err := svc.SubmitOffer(ctx, id, poorForA); err != nil {
				t.Fatalf("SubmitOffer after restore: %v", err)
			}
			if n := svc.live[id].agent.Model().Observed(); n != 2 {
				t.Errorf("model observed %d offers, want 2 after refolding", n)
			}
		})
	}
}

func TestRestoreActive(t *testing.T) {
	f := newFixture(180)
	ctx := context.Background()
	res, err := f.svc.CreateSession(ctx, "user-1", CreateSessionInput{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	arena := &model.Session{ID: "arena-1", Scenario: "laptop", PartyA: "agent007", PartyB: "boulware", MaxRounds: 180}
	if _, err := f.sessions.Create(ctx, arena); err != nil {
		t.Fatal(err)
	}

	svc := f.restart(180)
	n, err := svc.RestoreActive(ctx)
	if err != nil {
		t.Fatalf("RestoreActive: %v", err)
	}
	if n != 1 {
		t.Errorf("restored %d sessions, want 1", n)
	}
	if ids := svc.ActiveSessionIDs(); len(ids) != 1 || ids[0] != res.Session.ID {
		t.Errorf("active ids = %v", ids)
	}
	if got := f.sessions.sessions["arena-1"].Status; got != model.StatusAborted {
		t.Errorf("interrupted arena session status = %s, want aborted", got)
	}
}

func TestListSessions(t *testing.T) {
	f := newFixture(180)
	ctx := context.Background()
	for _, owner := range []string{"user-1", "user-1", "user-2"} {
		if _, err := f.svc.CreateSession(ctx, owner, CreateSessionInput{}); err != nil {
			t.Fatal(err)
		}
	}
	sessions, err := f.svc.ListSessions(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("got %d sessions, want 2", len(sessions))
	}
}
