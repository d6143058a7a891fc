package agent

import (
	"fmt"
	"math"

	"github.com/freeeve/polite-concession/pkg/negotiation"
)

const (
	defaultLearningCoefficient = 0.2
	defaultValueIncrement      = 1.0

	// weightSumTolerance bounds float drift when checking restored weights.
	weightSumTolerance = 1e-9
)

// FrequencyModelParameters lists the parameters NewFrequencyModel accepts.
func FrequencyModelParameters() []Parameter {
	return []Parameter{
		{Name: "learningCoefficient", Default: defaultLearningCoefficient,
			Description: "Weight shifted each round toward issues the opponent keeps fixed; trades learning speed for stability (alias: l)"},
		{Name: "valueIncrement", Default: defaultValueIncrement,
			Description: "Score added to every value the opponent offers; controls how fast value preferences converge"},
	}
}

// FrequencyModel infers opponent issue weights and value preferences purely from
// the offers the opponent makes. Issues whose value the opponent keeps unchanged
// between consecutive offers gain weight; values it offers often gain score.
//
// State is owned by one session and is only mutated by Update.
type FrequencyModel struct {
	domain         *negotiation.Domain
	learnCoef      float64
	valueIncrement float64

	weights   []float64
	scores    []map[string]float64
	prev      negotiation.Offer
	observed  int
	maxWeight float64
}

// NewFrequencyModel creates a model with equal issue weights and every value
// scored 1.
func NewFrequencyModel(d *negotiation.Domain, p Params) (*FrequencyModel, error) {
	l, ok := p.Lookup("learningCoefficient")
	if !ok {
		l = p.Get("l", defaultLearningCoefficient)
	}
	inc := p.Get("valueIncrement", defaultValueIncrement)

	n := d.IssueCount()
	if n == 0 {
		return nil, fmt.Errorf("%w: frequency model needs at least one issue", ErrConfiguration)
	}
	// Above 1-1/N the per-round weight bound would fall below 1/N and no weight
	// vector could satisfy it.
	limit := 1.0
	if n > 1 {
		limit = 1 - 1/float64(n)
	}
	if math.IsNaN(l) || l < 0 || l > limit {
		return nil, fmt.Errorf("%w: learningCoefficient %v outside [0, %v]", ErrConfiguration, l, limit)
	}
	if math.IsNaN(inc) || math.IsInf(inc, 0) || inc < 0 {
		return nil, fmt.Errorf("%w: valueIncrement %v must be a non-negative number", ErrConfiguration, inc)
	}

	m := &FrequencyModel{
		domain:         d,
		learnCoef:      l,
		valueIncrement: inc,
		weights:        make([]float64, n),
		scores:         make([]map[string]float64, n),
		maxWeight:      1,
	}
	for i, is := range d.Issues {
		m.weights[i] = 1 / float64(n)
		m.scores[i] = make(map[string]float64, len(is.Values))
		for _, v := range is.Values {
			m.scores[i][v] = 1
		}
	}
	return m, nil
}

// Name returns the model identifier, "frequency".
func (m *FrequencyModel) Name() string { return "frequency" }

// Update folds the opponent's latest offer into the model. The first offer is
// only remembered: a change needs a previous offer to compare against.
// Malformed offers are rejected before any state changes.
func (m *FrequencyModel) Update(o negotiation.Offer) error {
	if err := m.domain.CheckOffer(o); err != nil {
		return fmt.Errorf("%w: %w", ErrEstimation, err)
	}
	m.observed++
	prev := m.prev
	m.prev = o
	if m.observed < 2 {
		return nil
	}

	if len(m.weights) > 1 {
		m.reweigh(prev, o)
	}
	for i, is := range m.domain.Issues {
		v, _ := o.Value(is.Name)
		m.scores[i][v] += m.valueIncrement
	}
	return nil
}

// reweigh shifts weight toward issues whose value did not change.
func (m *FrequencyModel) reweigh(prev, cur negotiation.Offer) {
	n := len(m.weights)
	unchanged := make([]bool, n)
	count := 0
	for i, is := range m.domain.Issues {
		a, _ := prev.Value(is.Name)
		b, _ := cur.Value(is.Name)
		if a == b {
			unchanged[i] = true
			count++
		}
	}

	delta := m.learnCoef / float64(n)
	total := 1 + delta*float64(count)
	maxWeight := 1 - float64(n)*delta/total

	for i, w := range m.weights {
		if unchanged[i] && w < maxWeight {
			m.weights[i] = (w + delta) / total
		} else {
			m.weights[i] = w / total
		}
	}
	capWeights(m.weights, maxWeight)
	m.maxWeight = maxWeight
}

// capWeights rescales w to sum to 1, then clamps every entry to limit and spreads
// the clipped mass over the unclamped entries in proportion to their weight.
// Requires len(w)*limit >= 1.
func capWeights(w []float64, limit float64) {
	sum := 0.0
	for _, x := range w {
		sum += x
	}
	for i := range w {
		w[i] /= sum
	}

	capped := make([]bool, len(w))
	for {
		excess := 0.0
		for i, x := range w {
			if !capped[i] && x > limit {
				excess += x - limit
				w[i] = limit
				capped[i] = true
			}
		}
		if excess == 0 {
			return
		}

		free, open := 0.0, 0
		for i, x := range w {
			if !capped[i] {
				free += x
				open++
			}
		}
		if open == 0 {
			return
		}
		for i, x := range w {
			if capped[i] {
				continue
			}
			if free > 0 {
				w[i] += excess * x / free
			} else {
				w[i] += excess / float64(open)
			}
		}
	}
}

// EstimateUtility returns the inferred opponent utility of an offer in [0,1]:
// the weighted sum over issues of each value's share of that issue's score mass.
func (m *FrequencyModel) EstimateUtility(o negotiation.Offer) (float64, error) {
	if err := m.domain.CheckOffer(o); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEstimation, err)
	}
	u := 0.0
	for i, is := range m.domain.Issues {
		v, _ := o.Value(is.Name)
		sum := 0.0
		for _, s := range m.scores[i] {
			sum += s
		}
		u += m.weights[i] * m.scores[i][v] / sum
	}
	return u, nil
}

// Weights returns the issue weights in domain order.
func (m *FrequencyModel) Weights() []float64 {
	out := make([]float64, len(m.weights))
	copy(out, m.weights)
	return out
}

// IssueWeight returns the weight of the named issue.
func (m *FrequencyModel) IssueWeight(issue string) (float64, bool) {
	i, ok := m.domain.IssueIndex(issue)
	if !ok {
		return 0, false
	}
	return m.weights[i], true
}

// ValueScore returns the unnormalized score of an issue value.
func (m *FrequencyModel) ValueScore(issue, value string) (float64, bool) {
	i, ok := m.domain.IssueIndex(issue)
	if !ok {
		return 0, false
	}
	s, ok := m.scores[i][value]
	return s, ok
}

// MaxWeight returns the weight bound computed by the latest reweighing, or 1
// before any.
func (m *FrequencyModel) MaxWeight() float64 { return m.maxWeight }

// Observed returns how many opponent offers have been folded in.
func (m *FrequencyModel) Observed() int { return m.observed }

// ModelSnapshot is the persisted state of a FrequencyModel.
type ModelSnapshot struct {
	LearningCoefficient float64                       `json:"learning_coefficient"`
	ValueIncrement      float64                       `json:"value_increment"`
	Weights             map[string]float64            `json:"weights"`
	Scores              map[string]map[string]float64 `json:"scores"`
	Previous            *negotiation.Offer            `json:"previous,omitempty"`
	Observed            int                           `json:"observed"`
	MaxWeight           float64                       `json:"max_weight"`
}

// Snapshot captures the model state.
func (m *FrequencyModel) Snapshot() ModelSnapshot {
	s := ModelSnapshot{
		LearningCoefficient: m.learnCoef,
		ValueIncrement:      m.valueIncrement,
		Weights:             make(map[string]float64, len(m.weights)),
		Scores:              make(map[string]map[string]float64, len(m.weights)),
		Observed:            m.observed,
		MaxWeight:           m.maxWeight,
	}
	for i, is := range m.domain.Issues {
		s.Weights[is.Name] = m.weights[i]
		scores := make(map[string]float64, len(m.scores[i]))
		for v, x := range m.scores[i] {
			scores[v] = x
		}
		s.Scores[is.Name] = scores
	}
	if m.observed > 0 {
		prev := m.prev
		s.Previous = &prev
	}
	return s
}

// RestoreFrequencyModel rebuilds a model from a snapshot taken over the same domain.
func RestoreFrequencyModel(d *negotiation.Domain, s ModelSnapshot) (*FrequencyModel, error) {
	m, err := NewFrequencyModel(d, Params{
		"learningCoefficient": s.LearningCoefficient,
		"valueIncrement":      s.ValueIncrement,
	})
	if err != nil {
		return nil, err
	}
	sum := 0.0
	for i, is := range d.Issues {
		w, ok := s.Weights[is.Name]
		if !ok || w < 0 {
			return nil, fmt.Errorf("%w: snapshot weight for %q missing or negative", ErrConfiguration, is.Name)
		}
		m.weights[i] = w
		sum += w
		for _, v := range is.Values {
			score, ok := s.Scores[is.Name][v]
			if !ok || score < 1 {
				return nil, fmt.Errorf("%w: snapshot score for %q=%q missing or below 1", ErrConfiguration, is.Name, v)
			}
			m.scores[i][v] = score
		}
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return nil, fmt.Errorf("%w: snapshot weights sum to %v", ErrConfiguration, sum)
	}
	if s.Previous != nil {
		if err := d.CheckOffer(*s.Previous); err != nil {
			return nil, fmt.Errorf("%w: snapshot previous offer: %w", ErrConfiguration, err)
		}
		m.prev = *s.Previous
	}
	m.observed = s.Observed
	if s.MaxWeight > 0 {
		m.maxWeight = s.MaxWeight
	}
	return m, nil
}
