package agent

import "github.com/freeeve/polite-concession/pkg/negotiation"

// SessionView is what a party can see of a running negotiation.
type SessionView interface {
	Time() float64
	OpponentHistory() []negotiation.OfferRecord
	OwnUtility(o negotiation.Offer) (float64, error)
}

// OutcomeSpace answers utility queries over every possible offer.
// *negotiation.SortedOutcomeSpace implements it.
type OutcomeSpace interface {
	MaxUtilityOffer() (negotiation.OfferRecord, error)
	MinUtilityOffer() (negotiation.OfferRecord, error)
	NearestOfferToUtility(target float64) (negotiation.OfferRecord, error)
	OffersInRange(lo, hi float64) []negotiation.OfferRecord
}

// OpponentModel estimates the opponent's utility from the offers it makes.
type OpponentModel interface {
	Name() string
	Update(o negotiation.Offer) error
	EstimateUtility(o negotiation.Offer) (float64, error)
}

// OpponentAwareChooser picks, among offers near a target own utility, the one
// best for the modelled opponent.
type OpponentAwareChooser interface {
	Choose(space OutcomeSpace, target float64, model OpponentModel) (negotiation.OfferRecord, error)
}
