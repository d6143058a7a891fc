package agent

import (
	"fmt"
	"math"

	"github.com/freeeve/polite-concession/pkg/negotiation"
)

const (
	defaultOffset        = 0.05
	defaultLatePhase     = 0.7
	defaultEarlyFloor    = 0.75
	defaultPseudoSteps   = 12
	defaultOpeningWindow = 0.2
)

// ConcessionParameters lists the parameters NewConcessionSchedule accepts.
func ConcessionParameters() []Parameter {
	return []Parameter{
		{Name: "e", Default: 0.02, Required: true, Description: "Concession rate; below 1 concedes late (boulware), above 1 early (conceder)"},
		{Name: "k", Default: defaultOffset, Description: "Offset of the initial offer below the maximum target"},
		{Name: "min", Default: 0, Description: "Minimum target utility (defaults to the worst outcome)"},
		{Name: "max", Default: 0.99, Description: "Maximum target utility (defaults to the best outcome)"},
		{Name: "latePhase", Default: defaultLatePhase, Description: "Time after which the real deadline drives concession"},
		{Name: "earlyFloor", Default: defaultEarlyFloor, Description: "Lowest target utility before the late phase"},
		{Name: "pseudoSteps", Default: defaultPseudoSteps, Description: "Early-phase pseudo-deadline sits nominal/pseudoSteps ahead of now"},
		{Name: "openingWindow", Default: defaultOpeningWindow, Description: "Time during which only the best offer is made"},
	}
}

// ConcessionConfig holds the schedule parameters. E is required.
type ConcessionConfig struct {
	E    float64
	K    float64
	UMin float64
	UMax float64

	LatePhase       float64
	EarlyFloor      float64
	PseudoSteps     float64
	OpeningWindow   float64
	NominalDeadline float64
}

// ParseConcessionConfig reads schedule parameters. Missing min and max default to
// the worst and best utilities of the outcome space.
func ParseConcessionConfig(p Params, space OutcomeSpace) (ConcessionConfig, error) {
	e, ok := p.Lookup("e")
	if !ok {
		return ConcessionConfig{}, fmt.Errorf("%w: concession exponent \"e\" was not set", ErrConfiguration)
	}
	cfg := ConcessionConfig{
		E:               e,
		K:               p.Get("k", defaultOffset),
		LatePhase:       p.Get("latePhase", defaultLatePhase),
		EarlyFloor:      p.Get("earlyFloor", defaultEarlyFloor),
		PseudoSteps:     p.Get("pseudoSteps", defaultPseudoSteps),
		OpeningWindow:   p.Get("openingWindow", defaultOpeningWindow),
		NominalDeadline: negotiation.DefaultDeadline,
	}

	if v, ok := p.Lookup("min"); ok {
		cfg.UMin = v
	} else {
		worst, err := space.MinUtilityOffer()
		if err != nil {
			return ConcessionConfig{}, fmt.Errorf("%w: default min utility: %w", ErrConfiguration, err)
		}
		cfg.UMin = worst.Utility
	}
	if v, ok := p.Lookup("max"); ok {
		cfg.UMax = v
	} else {
		best, err := space.MaxUtilityOffer()
		if err != nil {
			return ConcessionConfig{}, fmt.Errorf("%w: default max utility: %w", ErrConfiguration, err)
		}
		cfg.UMax = best.Utility
	}
	return cfg, cfg.Validate()
}

// Validate checks parameter ranges.
func (c ConcessionConfig) Validate() error {
	switch {
	case math.IsNaN(c.E) || c.E < 0:
		return fmt.Errorf("%w: e=%v must be >= 0", ErrConfiguration, c.E)
	case c.K < 0 || c.K > 1:
		return fmt.Errorf("%w: k=%v outside [0,1]", ErrConfiguration, c.K)
	case c.UMin > c.UMax:
		return fmt.Errorf("%w: min=%v above max=%v", ErrConfiguration, c.UMin, c.UMax)
	case c.NominalDeadline <= 0:
		return fmt.Errorf("%w: nominal deadline %v must be positive", ErrConfiguration, c.NominalDeadline)
	case c.PseudoSteps <= 0:
		return fmt.Errorf("%w: pseudoSteps=%v must be positive", ErrConfiguration, c.PseudoSteps)
	}
	return nil
}

// ConcessionSchedule converts elapsed time into a target utility following
// f(t) = k + (1-k) * (min(t,D)/D)^(1/e).
//
// Before the late phase D is a pseudo-deadline that always sits a fixed step
// ahead of the current time, so early concession stays flat; after it D is the
// real deadline. The pseudo-deadline only ratchets forward and is advanced
// explicitly by Advance.
type ConcessionSchedule struct {
	cfg            ConcessionConfig
	pseudoDeadline float64
}

// NewConcessionSchedule validates cfg and creates a schedule with its
// pseudo-deadline at 0.
func NewConcessionSchedule(cfg ConcessionConfig) (*ConcessionSchedule, error) {
	if cfg.NominalDeadline == 0 {
		cfg.NominalDeadline = negotiation.DefaultDeadline
	}
	if cfg.PseudoSteps == 0 {
		cfg.PseudoSteps = defaultPseudoSteps
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ConcessionSchedule{cfg: cfg}, nil
}

// Config returns the schedule parameters.
func (s *ConcessionSchedule) Config() ConcessionConfig { return s.cfg }

// PseudoDeadline returns the current early-phase deadline estimate.
func (s *ConcessionSchedule) PseudoDeadline() float64 { return s.pseudoDeadline }

// SetPseudoDeadline restores a persisted pseudo-deadline.
func (s *ConcessionSchedule) SetPseudoDeadline(d float64) { s.pseudoDeadline = d }

// late reports whether t is past the late-phase threshold (strictly).
func (s *ConcessionSchedule) late(t float64) bool { return t > s.cfg.LatePhase }

// InOpening reports whether t falls in the opening window, where the best
// offer is made regardless of the curve.
func (s *ConcessionSchedule) InOpening(t float64) bool { return t < s.cfg.OpeningWindow }

// Advance moves the pseudo-deadline to max(current, t + nominal/pseudoSteps)
// while in the early phase. It does nothing in the late phase.
func (s *ConcessionSchedule) Advance(t float64) {
	if s.late(t) {
		return
	}
	next := t + s.cfg.NominalDeadline/s.cfg.PseudoSteps
	if next > s.pseudoDeadline {
		s.pseudoDeadline = next
	}
}

// Shape returns f(t) for the current state. It does not advance the schedule.
func (s *ConcessionSchedule) Shape(t float64) float64 {
	k := s.cfg.K
	if s.cfg.E == 0 {
		return k
	}
	d := s.cfg.NominalDeadline
	if !s.late(t) {
		d = s.pseudoDeadline
	}
	if d <= 0 {
		return k
	}
	return k + (1-k)*math.Pow(math.Min(t, d)/d, 1/s.cfg.E)
}

// TargetUtility advances the schedule to t and returns the target utility
// Umin + (1-f(t))(Umax-Umin), floored at EarlyFloor before the late phase.
// The floor never lifts the target above Umax, so when Umax is below EarlyFloor
// the target stays pinned at Umax until the late phase begins.
func (s *ConcessionSchedule) TargetUtility(t float64) float64 {
	s.Advance(t)
	u := s.cfg.UMin + (1-s.Shape(t))*(s.cfg.UMax-s.cfg.UMin)
	floor := math.Min(s.cfg.EarlyFloor, s.cfg.UMax)
	if t < s.cfg.LatePhase && u < floor {
		u = floor
	}
	return u
}
