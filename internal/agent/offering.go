package agent

import (
	"fmt"

	"github.com/freeeve/polite-concession/pkg/negotiation"
)

// OfferSelector turns a target utility into a concrete offer. It holds no state.
type OfferSelector struct {
	Chooser OpponentAwareChooser
}

// Select returns the offer nearest target when model is nil, and otherwise
// delegates to the opponent-aware chooser.
func (s OfferSelector) Select(space OutcomeSpace, target float64, model OpponentModel) (negotiation.OfferRecord, error) {
	if model == nil || s.Chooser == nil {
		r, err := space.NearestOfferToUtility(target)
		if err != nil {
			return negotiation.OfferRecord{}, fmt.Errorf("%w: nearest offer to %.4f: %w", ErrSelection, target, err)
		}
		return r, nil
	}
	r, err := s.Chooser.Choose(space, target, model)
	if err != nil {
		return negotiation.OfferRecord{}, err
	}
	return r, nil
}

// Plan describes how the next offer was chosen.
type Plan struct {
	Time    float64
	Opening bool
	Target  float64
}

// TimeDependentOffering chooses the next offer from elapsed time: the best offer
// during the opening window, then the schedule's target utility routed through
// the selector.
type TimeDependentOffering struct {
	space    OutcomeSpace
	schedule *ConcessionSchedule
	selector OfferSelector
}

// NewTimeDependentOffering wires a schedule and selector over an outcome space.
func NewTimeDependentOffering(space OutcomeSpace, schedule *ConcessionSchedule, selector OfferSelector) *TimeDependentOffering {
	return &TimeDependentOffering{space: space, schedule: schedule, selector: selector}
}

// Schedule returns the underlying concession schedule.
func (o *TimeDependentOffering) Schedule() *ConcessionSchedule { return o.schedule }

// NextOffer picks the offer to present at time t. model may be nil.
func (o *TimeDependentOffering) NextOffer(t float64, model OpponentModel) (negotiation.OfferRecord, Plan, error) {
	if o.schedule.InOpening(t) {
		r, err := o.space.MaxUtilityOffer()
		if err != nil {
			return negotiation.OfferRecord{}, Plan{}, fmt.Errorf("%w: opening offer: %w", ErrSelection, err)
		}
		return r, Plan{Time: t, Opening: true, Target: r.Utility}, nil
	}
	target := o.schedule.TargetUtility(t)
	r, err := o.selector.Select(o.space, target, model)
	if err != nil {
		return negotiation.OfferRecord{}, Plan{}, err
	}
	return r, Plan{Time: t, Target: target}, nil
}
