package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/polite-concession/internal/agent"
	"github.com/freeeve/polite-concession/internal/model"
	"github.com/freeeve/polite-concession/pkg/negotiation"
)

// Player plays a built-in party kind as the remote side of a hosted session.
type Player struct {
	client *Client
	kind   string
	params agent.Params
	seed   int64

	// Created, if set, is called once the session exists.
	Created func(s *model.Session)
}

// NewPlayer creates a Player.
func NewPlayer(c *Client, kind string, params agent.Params, seed int64) *Player {
	return &Player{client: c, kind: kind, params: params, seed: seed}
}

// remoteView is the player's local record of the session.
type remoteView struct {
	side     string
	timeline *negotiation.RoundTimeline
	session  *negotiation.Session
}

// observe folds server rounds into the local view. The agent's offers become
// opponent history; the timeline moves past each round.
func (v *remoteView) observe(rounds []model.Round) error {
	for _, r := range rounds {
		v.timeline.SetRound(r.Number + 1)
		if r.Side == v.side || r.Action == string(agent.ActionAccept) {
			continue
		}
		var o negotiation.Offer
		if err := json.Unmarshal(r.Offer, &o); err != nil {
			return fmt.Errorf("round %d offer: %w", r.Number, err)
		}
		if _, err := v.session.ReceiveOffer(o); err != nil {
			return fmt.Errorf("round %d: %w", r.Number, err)
		}
	}
	return nil
}

// Play creates a session and negotiates until it is no longer active.
func (p *Player) Play(ctx context.Context, req CreateSessionRequest) (*model.Session, error) {
	res, err := p.client.CreateSession(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	sess := res.Session
	if p.Created != nil {
		p.Created(sess)
	}

	view, party, err := p.setup(sess)
	if err != nil {
		return nil, err
	}
	if err := view.observe(res.Rounds); err != nil {
		return nil, err
	}

	for sess.Status == model.StatusActive {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		act, err := party.Respond(view.session)
		if err != nil {
			return nil, fmt.Errorf("%s response: %w", party.Name(), err)
		}

		var turn *TurnResult
		if act.Type == agent.ActionAccept {
			turn, err = p.client.Accept(ctx, sess.ID)
		} else {
			view.session.RecordOwnOffer(act.Offer)
			turn, err = p.client.SubmitOffer(ctx, sess.ID, act.Offer.Offer)
		}
		if err != nil {
			return nil, err
		}
		if err := view.observe(turn.Rounds); err != nil {
			return nil, err
		}
		sess = turn.Session
		log.Debug().Str("sessionId", sess.ID).Str("action", string(act.Type)).
			Float64("utility", act.Offer.Utility).Int("rounds", sess.Rounds).Msg("Turn played")
	}
	return sess, nil
}

// setup builds the local view and party for the side the agent does not play.
func (p *Player) setup(sess *model.Session) (*remoteView, agent.Party, error) {
	sc, err := negotiation.LoadScenario(sess.Scenario)
	if err != nil {
		return nil, nil, err
	}
	usA, usB, err := sc.Spaces()
	if err != nil {
		return nil, nil, err
	}
	side, own := model.SideB, usB
	if sess.AgentSide == model.SideB {
		side, own = model.SideA, usA
	}

	tl := negotiation.NewRoundTimeline(sess.MaxRounds)
	s, err := negotiation.NewSession(own, tl)
	if err != nil {
		return nil, nil, err
	}
	party, err := agent.NewParty(p.kind, s, p.params, p.seed)
	if err != nil {
		return nil, nil, err
	}
	return &remoteView{side: side, timeline: tl, session: s}, party, nil
}
