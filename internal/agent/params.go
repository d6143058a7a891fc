package agent

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Parameter describes one tunable value of a component, for host configuration.
type Parameter struct {
	Name        string  `json:"name"`
	Default     float64 `json:"default"`
	Description string  `json:"description"`
	Required    bool    `json:"required,omitempty"`
}

// Params holds host-supplied parameter values by name.
type Params map[string]float64

// Lookup returns a parameter value and whether it was set.
func (p Params) Lookup(name string) (float64, bool) {
	v, ok := p[name]
	return v, ok
}

// Get returns a parameter value or the fallback.
func (p Params) Get(name string, fallback float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return fallback
}

// With returns a copy of p with the given value set.
func (p Params) With(name string, v float64) Params {
	cp := make(Params, len(p)+1)
	for k, x := range p {
		cp[k] = x
	}
	cp[name] = v
	return cp
}

// String renders the parameters as a sorted "k=v,k=v" list.
func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(p[k], 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// ParseParams parses "e=0.02,k=0.05" style parameter strings.
func ParseParams(s string) (Params, error) {
	p := make(Params)
	s = strings.TrimSpace(s)
	if s == "" {
		return p, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: malformed parameter %q", ErrConfiguration, part)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %q: %v", ErrConfiguration, key, err)
		}
		p[strings.TrimSpace(key)] = f
	}
	return p, nil
}
