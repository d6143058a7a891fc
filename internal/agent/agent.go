package agent

import (
	"fmt"

	"github.com/freeeve/polite-concession/pkg/negotiation"
)

// ActionType is what a party does on its turn.
type ActionType string

const (
	ActionOffer  ActionType = "offer"
	ActionAccept ActionType = "accept"
)

// Action is a party's response for one round. For ActionAccept, Offer is the
// opponent offer being accepted; for ActionOffer it is the counter-offer.
type Action struct {
	Type  ActionType
	Offer negotiation.OfferRecord
	Plan  Plan
}

// Party is one side of a bilateral negotiation.
type Party interface {
	Name() string
	Respond(view SessionView) (Action, error)
}

// Agent composes the frequency opponent model, time-dependent offering and the
// a/b acceptance policy. Each round the host calls ObserveOpponentOffer,
// ProposeNextOffer and Decide in that order, or Respond which does all three.
//
// An Agent belongs to exactly one session and is not safe for concurrent use.
type Agent struct {
	name       string
	model      *FrequencyModel
	offering   *TimeDependentOffering
	acceptance AcceptancePolicy
	seen       int
}

// AgentParameters lists every parameter NewAgent understands.
func AgentParameters() []Parameter {
	params := []Parameter{
		{Name: "useModel", Default: 1, Description: "1 to model the opponent and pick opponent-friendly offers, 0 to pick the offer nearest the target"},
		{Name: "bestBidWindow", Default: DefaultBestBidWindow, Description: "Own-utility band above the target searched for opponent-friendly offers"},
	}
	params = append(params, FrequencyModelParameters()...)
	params = append(params, ConcessionParameters()...)
	return append(params, AcceptanceParameters()...)
}

// NewAgent builds an agent over a domain and its own sorted outcome space.
func NewAgent(name string, d *negotiation.Domain, space OutcomeSpace, p Params) (*Agent, error) {
	ccfg, err := ParseConcessionConfig(p, space)
	if err != nil {
		return nil, err
	}
	schedule, err := NewConcessionSchedule(ccfg)
	if err != nil {
		return nil, err
	}
	acceptance, err := NewAcceptancePolicy(p)
	if err != nil {
		return nil, err
	}

	a := &Agent{name: name, acceptance: acceptance}
	selector := OfferSelector{}
	if p.Get("useModel", 1) != 0 {
		a.model, err = NewFrequencyModel(d, p)
		if err != nil {
			return nil, err
		}
		selector.Chooser = BestBidChooser{Window: p.Get("bestBidWindow", DefaultBestBidWindow)}
	}
	a.offering = NewTimeDependentOffering(space, schedule, selector)
	return a, nil
}

// Name returns the name the agent was built with.
func (a *Agent) Name() string { return a.name }

// Model returns the opponent model, or nil when modelling is disabled.
func (a *Agent) Model() *FrequencyModel { return a.model }

// Schedule returns the agent's concession schedule.
func (a *Agent) Schedule() *ConcessionSchedule { return a.offering.Schedule() }

// Acceptance returns the acceptance policy.
func (a *Agent) Acceptance() AcceptancePolicy { return a.acceptance }

func (a *Agent) opponentModel() OpponentModel {
	if a.model == nil {
		return nil
	}
	return a.model
}

// ObserveOpponentOffer updates the opponent model with the opponent's latest offer.
func (a *Agent) ObserveOpponentOffer(o negotiation.Offer) error {
	if a.model == nil {
		return nil
	}
	return a.model.Update(o)
}

// ProposeNextOffer returns the offer the agent would present at time t.
func (a *Agent) ProposeNextOffer(t float64) (negotiation.OfferRecord, Plan, error) {
	return a.offering.NextOffer(t, a.opponentModel())
}

// Decide applies the acceptance policy to own utilities.
func (a *Agent) Decide(opponentUtility, candidateUtility float64) Decision {
	return a.acceptance.Decide(opponentUtility, candidateUtility)
}

// Respond runs one round against the session view.
func (a *Agent) Respond(view SessionView) (Action, error) {
	history := view.OpponentHistory()
	if a.seen > len(history) {
		return Action{}, fmt.Errorf("%w: opponent history shrank from %d to %d offers", ErrEstimation, a.seen, len(history))
	}
	for _, r := range history[a.seen:] {
		if err := a.ObserveOpponentOffer(r.Offer); err != nil {
			return Action{}, fmt.Errorf("observe opponent offer %d: %w", a.seen+1, err)
		}
		a.seen++
	}

	next, plan, err := a.ProposeNextOffer(view.Time())
	if err != nil {
		return Action{}, fmt.Errorf("propose next offer: %w", err)
	}
	if len(history) == 0 {
		return Action{Type: ActionOffer, Offer: next, Plan: plan}, nil
	}

	last := history[len(history)-1]
	u, err := view.OwnUtility(last.Offer)
	if err != nil {
		return Action{}, fmt.Errorf("%w: evaluate opponent offer: %w", ErrEstimation, err)
	}
	last.Utility = u
	if a.Decide(u, next.Utility) == Accept {
		return Action{Type: ActionAccept, Offer: last, Plan: plan}, nil
	}
	return Action{Type: ActionOffer, Offer: next, Plan: plan}, nil
}

// AgentSnapshot is the persisted per-session state of an Agent.
type AgentSnapshot struct {
	Model          *ModelSnapshot `json:"model,omitempty"`
	PseudoDeadline float64        `json:"pseudo_deadline"`
	Seen           int            `json:"seen"`
}

// Snapshot captures the agent's mutable state.
func (a *Agent) Snapshot() AgentSnapshot {
	s := AgentSnapshot{
		PseudoDeadline: a.Schedule().PseudoDeadline(),
		Seen:           a.seen,
	}
	if a.model != nil {
		ms := a.model.Snapshot()
		s.Model = &ms
	}
	return s
}

// Restore loads state captured by Snapshot into an agent built with the same
// domain and parameters.
func (a *Agent) Restore(d *negotiation.Domain, s AgentSnapshot) error {
	if (s.Model != nil) != (a.model != nil) {
		return fmt.Errorf("%w: snapshot opponent model presence does not match agent", ErrConfiguration)
	}
	if s.Model != nil {
		m, err := RestoreFrequencyModel(d, *s.Model)
		if err != nil {
			return err
		}
		a.model = m
	}
	a.Schedule().SetPseudoDeadline(s.PseudoDeadline)
	a.seen = s.Seen
	return nil
}
