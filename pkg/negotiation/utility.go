package negotiation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var ErrInvalidProfile = errors.New("invalid utility profile")

// weightTolerance is how far issue weights may drift from summing to 1.
const weightTolerance = 1e-6

// UtilityProfile is the serialized form of an additive utility function.
type UtilityProfile struct {
	Weights     map[string]float64            `json:"weights"`
	Evaluations map[string]map[string]float64 `json:"evaluations"`
	Reservation float64                       `json:"reservation,omitempty"`
}

// UtilitySpace is an additive utility function over a domain: the utility of an
// offer is the weighted sum of per-issue value evaluations, each normalized by the
// best evaluation of that issue. The result is in [0,1].
type UtilitySpace struct {
	domain      *Domain
	weights     []float64
	evaluations []map[string]float64
	maxEval     []float64
	reservation float64
}

// NewUtilitySpace validates a profile against the domain. Values missing from the
// profile evaluate to 0.
func NewUtilitySpace(d *Domain, p UtilityProfile) (*UtilitySpace, error) {
	us := &UtilitySpace{
		domain:      d,
		weights:     make([]float64, d.IssueCount()),
		evaluations: make([]map[string]float64, d.IssueCount()),
		maxEval:     make([]float64, d.IssueCount()),
		reservation: p.Reservation,
	}
	for name := range p.Weights {
		if _, ok := d.IssueIndex(name); !ok {
			return nil, fmt.Errorf("%w: weight for unknown issue %q", ErrInvalidProfile, name)
		}
	}
	sum := 0.0
	for i, is := range d.Issues {
		w := p.Weights[is.Name]
		if w < 0 || math.IsNaN(w) {
			return nil, fmt.Errorf("%w: issue %q weight %v", ErrInvalidProfile, is.Name, w)
		}
		us.weights[i] = w
		sum += w

		evals := make(map[string]float64, len(is.Values))
		for v, e := range p.Evaluations[is.Name] {
			if !is.HasValue(v) {
				return nil, fmt.Errorf("%w: %q=%q", ErrInvalidProfile, is.Name, v)
			}
			if e < 0 || math.IsNaN(e) {
				return nil, fmt.Errorf("%w: %q=%q evaluation %v", ErrInvalidProfile, is.Name, v, e)
			}
			evals[v] = e
			if e > us.maxEval[i] {
				us.maxEval[i] = e
			}
		}
		us.evaluations[i] = evals
	}
	if math.Abs(sum-1) > weightTolerance {
		return nil, fmt.Errorf("%w: weights sum to %v", ErrInvalidProfile, sum)
	}
	if p.Reservation < 0 || p.Reservation > 1 {
		return nil, fmt.Errorf("%w: reservation %v", ErrInvalidProfile, p.Reservation)
	}
	return us, nil
}

// ParseUtilitySpace decodes a JSON profile for the given domain.
func ParseUtilitySpace(data []byte, d *Domain) (*UtilitySpace, error) {
	var p UtilityProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	return NewUtilitySpace(d, p)
}

// Domain returns the domain the space is defined over.
func (us *UtilitySpace) Domain() *Domain { return us.domain }

// Reservation returns the utility of no agreement.
func (us *UtilitySpace) Reservation() float64 { return us.reservation }

// Weight returns the weight of the i-th issue.
func (us *UtilitySpace) Weight(i int) float64 { return us.weights[i] }

// Utility evaluates an offer. Malformed offers return an error.
func (us *UtilitySpace) Utility(o Offer) (float64, error) {
	if err := us.domain.CheckOffer(o); err != nil {
		return 0, err
	}
	u := 0.0
	for i, is := range us.domain.Issues {
		if us.maxEval[i] == 0 {
			continue
		}
		v, _ := o.Value(is.Name)
		u += us.weights[i] * us.evaluations[i][v] / us.maxEval[i]
	}
	return u, nil
}

// Profile returns the serializable form of the space.
func (us *UtilitySpace) Profile() UtilityProfile {
	p := UtilityProfile{
		Weights:     make(map[string]float64, len(us.weights)),
		Evaluations: make(map[string]map[string]float64, len(us.weights)),
		Reservation: us.reservation,
	}
	for i, is := range us.domain.Issues {
		p.Weights[is.Name] = us.weights[i]
		evals := make(map[string]float64, len(us.evaluations[i]))
		for v, e := range us.evaluations[i] {
			evals[v] = e
		}
		p.Evaluations[is.Name] = evals
	}
	return p
}
