package negotiation

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrEmptyOutcomeSpace    = errors.New("outcome space has no offers")
	ErrOutcomeSpaceTooLarge = errors.New("outcome space too large to enumerate")
)

// MaxOutcomes caps how many offers SortedOutcomeSpace will enumerate.
const MaxOutcomes = 1 << 20

// SortedOutcomeSpace holds every possible offer of a domain sorted by descending
// own utility. Ties are broken by offer key so ordering is deterministic.
type SortedOutcomeSpace struct {
	records []OfferRecord
}

// NewSortedOutcomeSpace enumerates the full Cartesian product of the domain.
func NewSortedOutcomeSpace(us *UtilitySpace) (*SortedOutcomeSpace, error) {
	d := us.Domain()
	n := d.OutcomeCount()
	if n > MaxOutcomes {
		return nil, fmt.Errorf("%w: %d outcomes (max %d)", ErrOutcomeSpaceTooLarge, n, MaxOutcomes)
	}

	records := make([]OfferRecord, 0, n)
	idx := make([]int, d.IssueCount())
	for {
		values := make(map[string]string, len(idx))
		for i, is := range d.Issues {
			values[is.Name] = is.Values[idx[i]]
		}
		o := NewOffer(values)
		u, err := us.Utility(o)
		if err != nil {
			return nil, fmt.Errorf("evaluate outcome %s: %w", o, err)
		}
		records = append(records, OfferRecord{Offer: o, Utility: u})

		// Odometer increment over issue value indices.
		pos := len(idx) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(d.Issues[pos].Values) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}

	return newSortedOutcomeSpace(records), nil
}

func newSortedOutcomeSpace(records []OfferRecord) *SortedOutcomeSpace {
	keys := make([]string, len(records))
	order := make([]int, len(records))
	for i, r := range records {
		keys[i] = r.Offer.Key()
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if records[i].Utility != records[j].Utility {
			return records[i].Utility > records[j].Utility
		}
		return keys[i] < keys[j]
	})
	sorted := make([]OfferRecord, len(records))
	for a, i := range order {
		sorted[a] = records[i]
	}
	records = sorted
	return &SortedOutcomeSpace{records: records}
}

// Len returns the number of enumerated offers.
func (s *SortedOutcomeSpace) Len() int { return len(s.records) }

// All returns the offers in descending utility order. The slice must not be modified.
func (s *SortedOutcomeSpace) All() []OfferRecord { return s.records }

// MaxUtilityOffer returns the best offer for the owner.
func (s *SortedOutcomeSpace) MaxUtilityOffer() (OfferRecord, error) {
	if len(s.records) == 0 {
		return OfferRecord{}, ErrEmptyOutcomeSpace
	}
	return s.records[0], nil
}

// MinUtilityOffer returns the worst offer for the owner.
func (s *SortedOutcomeSpace) MinUtilityOffer() (OfferRecord, error) {
	if len(s.records) == 0 {
		return OfferRecord{}, ErrEmptyOutcomeSpace
	}
	return s.records[len(s.records)-1], nil
}

// NearestOfferToUtility returns the offer whose utility is closest to target.
// On equal distance the higher-utility offer wins.
func (s *SortedOutcomeSpace) NearestOfferToUtility(target float64) (OfferRecord, error) {
	if len(s.records) == 0 {
		return OfferRecord{}, ErrEmptyOutcomeSpace
	}
	if math.IsNaN(target) {
		return OfferRecord{}, fmt.Errorf("nearest offer: target utility is NaN")
	}
	// First index whose utility is <= target.
	i := sort.Search(len(s.records), func(i int) bool { return s.records[i].Utility <= target })
	switch {
	case i == 0:
		return s.records[0], nil
	case i == len(s.records):
		return s.records[len(s.records)-1], nil
	}
	above, below := s.records[i-1], s.records[i]
	if above.Utility-target <= target-below.Utility {
		return above, nil
	}
	return below, nil
}

// OffersInRange returns all offers with lo <= utility <= hi, best first.
func (s *SortedOutcomeSpace) OffersInRange(lo, hi float64) []OfferRecord {
	start := sort.Search(len(s.records), func(i int) bool { return s.records[i].Utility <= hi })
	end := sort.Search(len(s.records), func(i int) bool { return s.records[i].Utility < lo })
	if start >= end {
		return nil
	}
	out := make([]OfferRecord, end-start)
	copy(out, s.records[start:end])
	return out
}
