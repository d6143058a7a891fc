package negotiation

import (
	"encoding/json"
	"sort"
	"strings"
)

// Offer is one complete assignment of values to issues. It is immutable: the
// constructor copies its input and no method exposes the underlying map.
type Offer struct {
	values map[string]string
}

// NewOffer creates an offer from an issue -> value mapping.
func NewOffer(values map[string]string) Offer {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Offer{values: cp}
}

// Value returns the value chosen for an issue.
func (o Offer) Value(issue string) (string, bool) {
	v, ok := o.values[issue]
	return v, ok
}

// Len returns the number of issues the offer assigns.
func (o Offer) Len() int { return len(o.values) }

// IsZero reports whether the offer assigns nothing.
func (o Offer) IsZero() bool { return len(o.values) == 0 }

// Issues returns the assigned issue names, sorted.
func (o Offer) Issues() []string {
	names := make([]string, 0, len(o.values))
	for k := range o.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Values returns a copy of the issue -> value mapping.
func (o Offer) Values() map[string]string {
	cp := make(map[string]string, len(o.values))
	for k, v := range o.values {
		cp[k] = v
	}
	return cp
}

// Equal reports structural equality: same value for every issue.
func (o Offer) Equal(other Offer) bool {
	if len(o.values) != len(other.values) {
		return false
	}
	for k, v := range o.values {
		if w, ok := other.values[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// Key returns a canonical string for the offer, usable as a map key.
func (o Offer) Key() string {
	var sb strings.Builder
	for i, name := range o.Issues() {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(o.values[name])
	}
	return sb.String()
}

func (o Offer) String() string { return "{" + o.Key() + "}" }

func (o Offer) MarshalJSON() ([]byte, error) {
	if o.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(o.values)
}

func (o *Offer) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*o = NewOffer(m)
	return nil
}

// OfferRecord pairs an offer with its utility from the evaluating party's own
// perspective.
type OfferRecord struct {
	Offer   Offer   `json:"offer"`
	Utility float64 `json:"utility"`
	Time    float64 `json:"time"`
}
