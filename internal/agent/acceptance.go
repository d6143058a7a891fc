package agent

import (
	"fmt"
	"math"
)

// Decision is the outcome of an acceptance check.
type Decision int

const (
	Reject Decision = iota
	Accept
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// AcceptanceParameters lists the parameters NewAcceptancePolicy accepts.
func AcceptanceParameters() []Parameter {
	return []Parameter{
		{Name: "a", Default: 3, Description: "Accept when the opponent's offer utility is at least a/b of our next offer's utility (numerator)"},
		{Name: "b", Default: 4, Description: "Accept when the opponent's offer utility is at least a/b of our next offer's utility (denominator)"},
	}
}

// AcceptancePolicy accepts an opponent offer worth at least a/b of the offer the
// agent is about to make. Both utilities are the agent's own, undiscounted.
type AcceptancePolicy struct {
	A float64
	B float64
}

// NewAcceptancePolicy reads a and b (defaults 3 and 4).
func NewAcceptancePolicy(p Params) (AcceptancePolicy, error) {
	ap := AcceptancePolicy{A: p.Get("a", 3), B: p.Get("b", 4)}
	if math.IsNaN(ap.A) || ap.A < 0 {
		return AcceptancePolicy{}, fmt.Errorf("%w: acceptance a=%v must be >= 0", ErrConfiguration, ap.A)
	}
	if math.IsNaN(ap.B) || ap.B <= 0 {
		return AcceptancePolicy{}, fmt.Errorf("%w: acceptance b=%v must be > 0", ErrConfiguration, ap.B)
	}
	return ap, nil
}

// Decide compares opponentUtility*b against candidateUtility*a so the a/b
// boundary is exact; equality accepts.
func (ap AcceptancePolicy) Decide(opponentUtility, candidateUtility float64) Decision {
	if opponentUtility*ap.B >= candidateUtility*ap.A {
		return Accept
	}
	return Reject
}
