package negotiation

import (
	"fmt"
	"sync"
)

// DefaultDeadline is the nominal deadline expressed as a time fraction.
const DefaultDeadline = 1.0

// Timeline reports elapsed negotiation time as a fraction in [0,1].
type Timeline interface {
	Time() float64
}

// RoundTimeline measures time in protocol rounds: round r of total elapses r/total.
type RoundTimeline struct {
	mu    sync.Mutex
	round int
	total int
}

// NewRoundTimeline creates a timeline that ends after total rounds.
func NewRoundTimeline(total int) *RoundTimeline {
	if total < 1 {
		total = 1
	}
	return &RoundTimeline{total: total}
}

// Time returns the elapsed fraction, clamped to [0,1].
func (rt *RoundTimeline) Time() float64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.round >= rt.total {
		return 1
	}
	return float64(rt.round) / float64(rt.total)
}

// Round returns the current round number, starting at 0.
func (rt *RoundTimeline) Round() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.round
}

// Total returns the number of rounds before the deadline.
func (rt *RoundTimeline) Total() int { return rt.total }

// Advance moves to the next round.
func (rt *RoundTimeline) Advance() {
	rt.mu.Lock()
	rt.round++
	rt.mu.Unlock()
}

// SetRound jumps to a round, used when resuming a session.
func (rt *RoundTimeline) SetRound(r int) {
	rt.mu.Lock()
	rt.round = r
	rt.mu.Unlock()
}

// Expired reports whether the deadline has been reached.
func (rt *RoundTimeline) Expired() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.round >= rt.total
}

// FixedTimeline always reports the same time. Useful for tests and replays.
type FixedTimeline float64

func (f FixedTimeline) Time() float64 { return float64(f) }

// BidHistory is an append-only sequence of offers.
type BidHistory struct {
	records []OfferRecord
}

// Add appends a record.
func (h *BidHistory) Add(r OfferRecord) { h.records = append(h.records, r) }

// Len returns the number of recorded offers.
func (h *BidHistory) Len() int { return len(h.records) }

// Last returns the latest record.
func (h *BidHistory) Last() (OfferRecord, bool) {
	if len(h.records) == 0 {
		return OfferRecord{}, false
	}
	return h.records[len(h.records)-1], true
}

// Records returns a copy of the history, oldest first.
func (h *BidHistory) Records() []OfferRecord {
	out := make([]OfferRecord, len(h.records))
	copy(out, h.records)
	return out
}

// Session is one party's view of a bilateral negotiation: its own utility space,
// the outcome space sorted by that utility, both bid histories and the timeline.
type Session struct {
	Domain   *Domain
	Utility  *UtilitySpace
	Outcomes *SortedOutcomeSpace
	Timeline Timeline

	opponent BidHistory
	own      BidHistory
}

// NewSession builds a session for one party.
func NewSession(us *UtilitySpace, tl Timeline) (*Session, error) {
	outcomes, err := NewSortedOutcomeSpace(us)
	if err != nil {
		return nil, fmt.Errorf("build outcome space: %w", err)
	}
	return &Session{
		Domain:   us.Domain(),
		Utility:  us,
		Outcomes: outcomes,
		Timeline: tl,
	}, nil
}

// Time returns the elapsed time fraction.
func (s *Session) Time() float64 { return s.Timeline.Time() }

// OwnUtility evaluates an offer with this party's utility.
func (s *Session) OwnUtility(o Offer) (float64, error) { return s.Utility.Utility(o) }

// OpponentHistory returns the opponent's offers, oldest first.
func (s *Session) OpponentHistory() []OfferRecord { return s.opponent.Records() }

// OwnHistory returns this party's offers, oldest first.
func (s *Session) OwnHistory() []OfferRecord { return s.own.Records() }

// LastOpponentOffer returns the opponent's latest offer.
func (s *Session) LastOpponentOffer() (OfferRecord, bool) { return s.opponent.Last() }

// ReceiveOffer records an opponent offer, evaluated with own utility.
func (s *Session) ReceiveOffer(o Offer) (OfferRecord, error) {
	u, err := s.Utility.Utility(o)
	if err != nil {
		return OfferRecord{}, fmt.Errorf("evaluate opponent offer: %w", err)
	}
	r := OfferRecord{Offer: o, Utility: u, Time: s.Time()}
	s.opponent.Add(r)
	return r, nil
}

// RecordOwnOffer records an offer this party sent.
func (s *Session) RecordOwnOffer(r OfferRecord) {
	r.Time = s.Time()
	s.own.Add(r)
}
