package negotiation

import (
	"fmt"
	"sort"
)

// Scenario is a domain with one utility profile per side.
type Scenario struct {
	Domain   *Domain
	Profiles [2]UtilityProfile
}

// Spaces builds the utility spaces of both sides.
func (sc Scenario) Spaces() (*UtilitySpace, *UtilitySpace, error) {
	a, err := NewUtilitySpace(sc.Domain, sc.Profiles[0])
	if err != nil {
		return nil, nil, fmt.Errorf("side a: %w", err)
	}
	b, err := NewUtilitySpace(sc.Domain, sc.Profiles[1])
	if err != nil {
		return nil, nil, fmt.Errorf("side b: %w", err)
	}
	return a, b, nil
}

var scenarios = map[string]func() Scenario{
	"laptop":  laptopScenario,
	"holiday": holidayScenario,
}

// ScenarioNames lists the built-in scenarios.
func ScenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for n := range scenarios {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadScenario returns a built-in scenario by name.
func LoadScenario(name string) (Scenario, error) {
	fn, ok := scenarios[name]
	if !ok {
		return Scenario{}, fmt.Errorf("unknown scenario %q (have %v)", name, ScenarioNames())
	}
	return fn(), nil
}

func mustDomain(name string, issues ...Issue) *Domain {
	d, err := NewDomain(name, issues...)
	if err != nil {
		panic(err)
	}
	return d
}

// Buyer and seller with opposed brand and screen preferences.
func laptopScenario() Scenario {
	d := mustDomain("laptop",
		Issue{Name: "brand", Values: []string{"dell", "mac", "hp"}},
		Issue{Name: "memory", Values: []string{"8gb", "16gb", "32gb"}},
		Issue{Name: "monitor", Values: []string{"19in", "23in", "26in"}},
	)
	return Scenario{
		Domain: d,
		Profiles: [2]UtilityProfile{
			{
				Weights: map[string]float64{"brand": 0.45, "memory": 0.35, "monitor": 0.20},
				Evaluations: map[string]map[string]float64{
					"brand":   {"dell": 3, "mac": 10, "hp": 1},
					"memory":  {"8gb": 2, "16gb": 6, "32gb": 10},
					"monitor": {"19in": 2, "23in": 10, "26in": 6},
				},
			},
			{
				Weights: map[string]float64{"brand": 0.20, "memory": 0.30, "monitor": 0.50},
				Evaluations: map[string]map[string]float64{
					"brand":   {"dell": 10, "mac": 2, "hp": 6},
					"memory":  {"8gb": 10, "16gb": 7, "32gb": 1},
					"monitor": {"19in": 10, "23in": 4, "26in": 1},
				},
			},
		},
	}
}

// Two travellers planning a shared trip.
func holidayScenario() Scenario {
	d := mustDomain("holiday",
		Issue{Name: "destination", Values: []string{"beach", "mountains", "city", "countryside"}},
		Issue{Name: "duration", Values: []string{"weekend", "week", "fortnight"}},
		Issue{Name: "lodging", Values: []string{"hotel", "cabin", "camping"}},
		Issue{Name: "transport", Values: []string{"car", "train", "plane"}},
	)
	return Scenario{
		Domain: d,
		Profiles: [2]UtilityProfile{
			{
				Weights: map[string]float64{"destination": 0.4, "duration": 0.2, "lodging": 0.3, "transport": 0.1},
				Evaluations: map[string]map[string]float64{
					"destination": {"beach": 10, "mountains": 4, "city": 7, "countryside": 2},
					"duration":    {"weekend": 3, "week": 10, "fortnight": 6},
					"lodging":     {"hotel": 10, "cabin": 5, "camping": 1},
					"transport":   {"car": 4, "train": 6, "plane": 10},
				},
				Reservation: 0.2,
			},
			{
				Weights: map[string]float64{"destination": 0.25, "duration": 0.15, "lodging": 0.2, "transport": 0.4},
				Evaluations: map[string]map[string]float64{
					"destination": {"beach": 3, "mountains": 10, "city": 5, "countryside": 8},
					"duration":    {"weekend": 6, "week": 8, "fortnight": 10},
					"lodging":     {"hotel": 4, "cabin": 10, "camping": 7},
					"transport":   {"car": 10, "train": 7, "plane": 1},
				},
				Reservation: 0.2,
			},
		},
	}
}
