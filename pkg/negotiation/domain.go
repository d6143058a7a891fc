package negotiation

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidDomain = errors.New("invalid domain")
	ErrUnknownIssue  = errors.New("unknown issue")
	ErrMissingIssue  = errors.New("offer is missing an issue")
	ErrUnknownValue  = errors.New("value not in issue domain")
)

// Issue is a negotiable attribute with a fixed, ordered set of discrete values.
type Issue struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// HasValue reports whether v is one of the issue's values.
func (i Issue) HasValue(v string) bool {
	for _, x := range i.Values {
		if x == v {
			return true
		}
	}
	return false
}

// Domain is the set of issues both parties negotiate over. Issue order is stable
// for the lifetime of a negotiation.
type Domain struct {
	Name   string  `json:"name"`
	Issues []Issue `json:"issues"`

	index map[string]int
}

// NewDomain builds and validates a domain.
func NewDomain(name string, issues ...Issue) (*Domain, error) {
	d := &Domain{Name: name, Issues: issues}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// ParseDomain decodes a domain from JSON and validates it.
func ParseDomain(data []byte) (*Domain, error) {
	var d Domain
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDomain, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks for at least one issue, unique issue names and unique, non-empty
// value sets. It also builds the issue index.
func (d *Domain) Validate() error {
	if len(d.Issues) == 0 {
		return fmt.Errorf("%w: no issues", ErrInvalidDomain)
	}
	index := make(map[string]int, len(d.Issues))
	for i, is := range d.Issues {
		if is.Name == "" {
			return fmt.Errorf("%w: issue %d has no name", ErrInvalidDomain, i)
		}
		if _, dup := index[is.Name]; dup {
			return fmt.Errorf("%w: duplicate issue %q", ErrInvalidDomain, is.Name)
		}
		if len(is.Values) == 0 {
			return fmt.Errorf("%w: issue %q has no values", ErrInvalidDomain, is.Name)
		}
		seen := make(map[string]bool, len(is.Values))
		for _, v := range is.Values {
			if seen[v] {
				return fmt.Errorf("%w: issue %q repeats value %q", ErrInvalidDomain, is.Name, v)
			}
			seen[v] = true
		}
		index[is.Name] = i
	}
	d.index = index
	return nil
}

// IssueCount returns the number of issues.
func (d *Domain) IssueCount() int { return len(d.Issues) }

// IssueIndex returns the position of the named issue.
func (d *Domain) IssueIndex(name string) (int, bool) {
	if d.index == nil {
		for i, is := range d.Issues {
			if is.Name == name {
				return i, true
			}
		}
		return 0, false
	}
	i, ok := d.index[name]
	return i, ok
}

// Issue returns the named issue.
func (d *Domain) Issue(name string) (Issue, bool) {
	i, ok := d.IssueIndex(name)
	if !ok {
		return Issue{}, false
	}
	return d.Issues[i], true
}

// CheckOffer verifies the offer assigns a known value to every issue and names no
// issue outside the domain.
func (d *Domain) CheckOffer(o Offer) error {
	for _, is := range d.Issues {
		v, ok := o.Value(is.Name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrMissingIssue, is.Name)
		}
		if !is.HasValue(v) {
			return fmt.Errorf("%w: %q=%q", ErrUnknownValue, is.Name, v)
		}
	}
	if o.Len() != len(d.Issues) {
		for _, name := range o.Issues() {
			if _, ok := d.IssueIndex(name); !ok {
				return fmt.Errorf("%w: %q", ErrUnknownIssue, name)
			}
		}
	}
	return nil
}

// OutcomeCount returns the size of the Cartesian product of all issue values.
// Saturates at the largest int instead of overflowing.
func (d *Domain) OutcomeCount() int {
	const maxInt = int(^uint(0) >> 1)
	n := 1
	for _, is := range d.Issues {
		if n > maxInt/len(is.Values) {
			return maxInt
		}
		n *= len(is.Values)
	}
	return n
}
