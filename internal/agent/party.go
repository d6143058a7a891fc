package agent

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/freeeve/polite-concession/pkg/negotiation"
)

// Built-in party kinds.
const (
	KindAgent007  = "agent007"
	KindBoulware  = "boulware"
	KindConceder  = "conceder"
	KindLinear    = "linear"
	KindHardliner = "hardliner"
	KindRandom    = "random"
)

// agent007Defaults are the tuned parameters of the full agent.
var agent007Defaults = Params{"e": 0.02, "k": 0.05, "max": 0.99, "min": 0}

// baselineParams configures a plain time-dependent party: no opponent model, no
// opening window, no early floor, real deadline throughout, and acceptance when
// the offer is at least as good as its own next offer.
func baselineParams(e float64) Params {
	return Params{
		"e": e, "k": 0, "useModel": 0,
		"openingWindow": 0, "earlyFloor": 0, "latePhase": 0,
		"a": 1, "b": 1,
	}
}

var partyKinds = map[string]func() Params{
	KindAgent007:  func() Params { return agent007Defaults },
	KindBoulware:  func() Params { return baselineParams(0.2) },
	KindConceder:  func() Params { return baselineParams(2) },
	KindLinear:    func() Params { return baselineParams(1) },
	KindHardliner: func() Params { return baselineParams(0) },
}

// PartyKinds lists the names NewParty accepts.
func PartyKinds() []string {
	kinds := []string{KindRandom}
	for k := range partyKinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// NewParty builds a party of the given kind for a session. Explicit params
// override the kind's defaults.
func NewParty(kind string, s *negotiation.Session, overrides Params, seed int64) (Party, error) {
	if kind == "" {
		kind = KindAgent007
	}
	if kind == KindRandom {
		return &RandomParty{space: s.Outcomes, reservation: s.Utility.Reservation(), rng: newRng(seed)}, nil
	}
	defaults, ok := partyKinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown party kind %q (have %v)", ErrConfiguration, kind, PartyKinds())
	}
	p := defaults()
	for k, v := range overrides {
		p = p.With(k, v)
	}
	a, err := NewAgent(kind, s.Domain, s.Outcomes, p)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", kind, err)
	}
	return a, nil
}

// RandomParty offers a random outcome at or above its reservation value and
// accepts any offer worth at least as much as the one it was about to make.
type RandomParty struct {
	space       *negotiation.SortedOutcomeSpace
	reservation float64
	rng         *rand.Rand
}

// Name returns KindRandom.
func (p *RandomParty) Name() string { return KindRandom }

// Respond picks a random outcome above the reservation value and accepts the
// opponent's last offer instead when it is worth at least as much.
func (p *RandomParty) Respond(view SessionView) (Action, error) {
	options := p.space.OffersInRange(p.reservation, 1)
	if len(options) == 0 {
		options = p.space.All()
	}
	if len(options) == 0 {
		return Action{}, fmt.Errorf("%w: %w", ErrSelection, negotiation.ErrEmptyOutcomeSpace)
	}
	next := options[p.rng.Intn(len(options))]
	plan := Plan{Time: view.Time(), Target: next.Utility}

	history := view.OpponentHistory()
	if len(history) > 0 {
		last := history[len(history)-1]
		u, err := view.OwnUtility(last.Offer)
		if err != nil {
			return Action{}, fmt.Errorf("%w: evaluate opponent offer: %w", ErrEstimation, err)
		}
		if u >= next.Utility {
			last.Utility = u
			return Action{Type: ActionAccept, Offer: last, Plan: plan}, nil
		}
	}
	return Action{Type: ActionOffer, Offer: next, Plan: plan}, nil
}
