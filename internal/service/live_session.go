package service

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/freeeve/polite-concession/internal/agent"
	"github.com/freeeve/polite-concession/internal/model"
	"github.com/freeeve/polite-concession/pkg/negotiation"
)

// liveSession is the in-memory state of one hosted session. mu serializes
// rounds; the agent inside is not safe for concurrent use.
type liveSession struct {
	mu sync.Mutex

	sess     *model.Session
	agent    *agent.Agent
	view     *negotiation.Session // the agent's side
	remoteUS *negotiation.UtilitySpace
	timeline *negotiation.RoundTimeline

	turn           string // side expected to move next
	lastAgentOffer *negotiation.OfferRecord
	ended          bool
}

func otherSide(side string) string {
	if side == model.SideA {
		return model.SideB
	}
	return model.SideA
}

func (ls *liveSession) remoteSide() string { return otherSide(ls.sess.AgentSide) }

// buildLiveSession constructs the agent and its view for a session row.
func buildLiveSession(sess *model.Session) (*liveSession, error) {
	sc, err := negotiation.LoadScenario(sess.Scenario)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	usA, usB, err := sc.Spaces()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sess.Scenario, err)
	}
	agentUS, remoteUS := usA, usB
	if sess.AgentSide == model.SideB {
		agentUS, remoteUS = usB, usA
	}

	tl := negotiation.NewRoundTimeline(sess.MaxRounds)
	view, err := negotiation.NewSession(agentUS, tl)
	if err != nil {
		return nil, fmt.Errorf("agent view: %w", err)
	}
	a, err := agent.NewAgent(agent.KindAgent007, view.Domain, view.Outcomes, agent.Params(sess.Params))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return &liveSession{
		sess:     sess,
		agent:    a,
		view:     view,
		remoteUS: remoteUS,
		timeline: tl,
		turn:     model.SideA,
	}, nil
}

// replay rebuilds histories and the timeline from persisted rounds. The agent's
// model is left to fold the opponent history on its next response unless a
// snapshot is restored afterwards.
func (ls *liveSession) replay(rounds []model.Round) error {
	for _, r := range rounds {
		var o negotiation.Offer
		if err := json.Unmarshal(r.Offer, &o); err != nil {
			return fmt.Errorf("round %d offer: %w", r.Number, err)
		}
		ls.timeline.SetRound(r.Number)
		if r.Action == string(agent.ActionAccept) {
			ls.ended = true
			return nil
		}
		if r.Side == ls.sess.AgentSide {
			rec := negotiation.OfferRecord{Offer: o, Utility: r.Utility}
			ls.view.RecordOwnOffer(rec)
			ls.lastAgentOffer = &rec
		}
		ls.timeline.SetRound(r.Number + 1)
		if r.Side != ls.sess.AgentSide {
			if _, err := ls.view.ReceiveOffer(o); err != nil {
				return fmt.Errorf("round %d: %w", r.Number, err)
			}
		}
		ls.turn = otherSide(r.Side)
	}
	return nil
}

// restoreSnapshot loads cached agent state, if any.
func (ls *liveSession) restoreSnapshot(data json.RawMessage) error {
	if len(data) == 0 {
		return nil
	}
	var snap agent.AgentSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode agent snapshot: %w", err)
	}
	if snap.Seen > len(ls.view.OpponentHistory()) {
		return fmt.Errorf("agent snapshot saw %d offers, history has %d", snap.Seen, len(ls.view.OpponentHistory()))
	}
	return ls.agent.Restore(ls.view.Domain, snap)
}

func (ls *liveSession) snapshot() (json.RawMessage, error) {
	return json.Marshal(ls.agent.Snapshot())
}

// utilities evaluates an offer for sides a and b.
func (ls *liveSession) utilities(o negotiation.Offer) (float64, float64, error) {
	own, err := ls.view.OwnUtility(o)
	if err != nil {
		return 0, 0, err
	}
	remote, err := ls.remoteUS.Utility(o)
	if err != nil {
		return 0, 0, err
	}
	if ls.sess.AgentSide == model.SideA {
		return own, remote, nil
	}
	return remote, own, nil
}

// current returns a copy of the session row with live progress filled in.
func (ls *liveSession) current() *model.Session {
	cp := *ls.sess
	if !ls.ended {
		cp.Rounds = ls.timeline.Round()
	}
	return &cp
}
