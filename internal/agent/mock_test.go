package agent

import (
	"sort"
	"testing"

	"github.com/freeeve/polite-concession/pkg/negotiation"
)

// stubSpace is an in-memory OutcomeSpace over hand-picked records.
type stubSpace struct {
	records []negotiation.OfferRecord
}

func newStubSpace(records ...negotiation.OfferRecord) *stubSpace {
	sort.SliceStable(records, func(i, j int) bool { return records[i].Utility > records[j].Utility })
	return &stubSpace{records: records}
}

func (s *stubSpace) MaxUtilityOffer() (negotiation.OfferRecord, error) {
	if len(s.records) == 0 {
		return negotiation.OfferRecord{}, negotiation.ErrEmptyOutcomeSpace
	}
	return s.records[0], nil
}

func (s *stubSpace) MinUtilityOffer() (negotiation.OfferRecord, error) {
	if len(s.records) == 0 {
		return negotiation.OfferRecord{}, negotiation.ErrEmptyOutcomeSpace
	}
	return s.records[len(s.records)-1], nil
}

func (s *stubSpace) NearestOfferToUtility(target float64) (negotiation.OfferRecord, error) {
	if len(s.records) == 0 {
		return negotiation.OfferRecord{}, negotiation.ErrEmptyOutcomeSpace
	}
	best := s.records[0]
	for _, r := range s.records[1:] {
		if abs(r.Utility-target) < abs(best.Utility-target) {
			best = r
		}
	}
	return best, nil
}

func (s *stubSpace) OffersInRange(lo, hi float64) []negotiation.OfferRecord {
	var out []negotiation.OfferRecord
	for _, r := range s.records {
		if r.Utility >= lo && r.Utility <= hi {
			out = append(out, r)
		}
	}
	return out
}

// stubModel rates offers from a fixed table keyed by Offer.Key.
type stubModel struct {
	ratings map[string]float64
	updates int
}

func (m *stubModel) Name() string { return "stub" }

func (m *stubModel) Update(negotiation.Offer) error {
	m.updates++
	return nil
}

func (m *stubModel) EstimateUtility(o negotiation.Offer) (float64, error) {
	return m.ratings[o.Key()], nil
}

// stubView is a fixed SessionView.
type stubView struct {
	time    float64
	history []negotiation.OfferRecord
	utility func(negotiation.Offer) (float64, error)
}

func (v *stubView) Time() float64                              { return v.time }
func (v *stubView) OpponentHistory() []negotiation.OfferRecord { return v.history }
func (v *stubView) OwnUtility(o negotiation.Offer) (float64, error) {
	return v.utility(o)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func approxEqual(a, b float64) bool { return abs(a-b) < 1e-9 }

func offer(kv ...string) negotiation.Offer {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return negotiation.NewOffer(m)
}

func record(u float64, kv ...string) negotiation.OfferRecord {
	return negotiation.OfferRecord{Offer: offer(kv...), Utility: u}
}

func testDomain(t *testing.T) *negotiation.Domain {
	t.Helper()
	d, err := negotiation.NewDomain("test",
		negotiation.Issue{Name: "color", Values: []string{"red", "green", "blue"}},
		negotiation.Issue{Name: "size", Values: []string{"s", "m", "l"}},
		negotiation.Issue{Name: "price", Values: []string{"low", "high"}},
	)
	if err != nil {
		t.Fatalf("build domain: %v", err)
	}
	return d
}

func laptopSession(t *testing.T, side int, tl negotiation.Timeline) *negotiation.Session {
	t.Helper()
	sc, err := negotiation.LoadScenario("laptop")
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	us, err := negotiation.NewUtilitySpace(sc.Domain, sc.Profiles[side])
	if err != nil {
		t.Fatalf("utility space: %v", err)
	}
	s, err := negotiation.NewSession(us, tl)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return s
}
