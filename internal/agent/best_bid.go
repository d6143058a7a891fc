package agent

import (
	"fmt"

	"github.com/freeeve/polite-concession/pkg/negotiation"
)

// DefaultBestBidWindow is the own-utility band above the target searched for
// opponent-friendly offers.
const DefaultBestBidWindow = 0.01

// BestBidChooser picks the offer the opponent model rates highest among those
// within [target, target+Window] of own utility. With no offer in the band it
// falls back to the offer nearest the target.
type BestBidChooser struct {
	Window float64
}

// Choose implements OpponentAwareChooser.
func (c BestBidChooser) Choose(space OutcomeSpace, target float64, model OpponentModel) (negotiation.OfferRecord, error) {
	window := c.Window
	if window <= 0 {
		window = DefaultBestBidWindow
	}

	candidates := space.OffersInRange(target, target+window)
	switch len(candidates) {
	case 0:
		r, err := space.NearestOfferToUtility(target)
		if err != nil {
			return negotiation.OfferRecord{}, fmt.Errorf("%w: nearest offer to %.4f: %w", ErrSelection, target, err)
		}
		return r, nil
	case 1:
		return candidates[0], nil
	}

	// Candidates are best-first for us, so strict > keeps our better offer on ties.
	best := candidates[0]
	bestEst, err := model.EstimateUtility(best.Offer)
	if err != nil {
		return negotiation.OfferRecord{}, fmt.Errorf("estimate candidate: %w", err)
	}
	for _, r := range candidates[1:] {
		est, err := model.EstimateUtility(r.Offer)
		if err != nil {
			return negotiation.OfferRecord{}, fmt.Errorf("estimate candidate: %w", err)
		}
		if est > bestEst {
			best, bestEst = r, est
		}
	}
	return best, nil
}
