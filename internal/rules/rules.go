// Package rules decides whether a fetched recommendation qualifies a stock
// for the published result set.
package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"stockrecs/internal/stock"
)

// MatchKind selects how a rule compares the recommendation label.
type MatchKind string

const (
	// MatchExact accepts labels equal to one of the rule's labels.
	MatchExact MatchKind = "exact"
	// MatchContains accepts labels containing one of the rule's labels.
	MatchContains MatchKind = "contains"
	// MatchAny accepts every label.
	MatchAny MatchKind = "any"
)

// Operator compares the analyst count against a rule's threshold.
type Operator string

const (
	OpNone Operator = ""
	OpGT   Operator = "gt"
	OpGTE  Operator = "gte"
	OpLT   Operator = "lt"
	OpLTE  Operator = "lte"
	OpEQ   Operator = "eq"
)

// Policy combines the results of several rules.
type Policy string

const (
	// PolicyAny accepts when any rule matches both label and count.
	PolicyAny Policy = "any"
	// PolicyFirst lets the first rule whose label matches decide.
	PolicyFirst Policy = "first"
)

// Rule is one row of the inclusion table.
type Rule struct {
	Labels    []string  `mapstructure:"labels" json:"labels"`
	Match     MatchKind `mapstructure:"match" json:"match"`
	Op        Operator  `mapstructure:"op" json:"op"`
	Threshold int       `mapstructure:"threshold" json:"threshold"`
}

// Set is an ordered rule table with its combination policy.
type Set struct {
	Rules  []Rule `mapstructure:"rules" json:"rules"`
	Policy Policy `mapstructure:"policy" json:"policy"`
}

// Default is the table used by the nightly run: a label containing one of
// the positive keywords, backed by at least seven analysts.
func Default() Set {
	return Set{
		Rules: []Rule{{
			Labels:    []string{"kupuj", "kup", "zdecydowanie kup"},
			Match:     MatchContains,
			Op:        OpGTE,
			Threshold: 7,
		}},
		Policy: PolicyAny,
	}
}

// Accept reports whether an observation with label and count qualifies.
func (s Set) Accept(label string, count int) bool {
	if label == stock.ErrorValue {
		return false
	}
	label = normalize(label)

	for _, r := range s.Rules {
		if !r.matchLabel(label) {
			continue
		}
		ok := r.matchCount(count)
		if ok || s.Policy == PolicyFirst {
			return ok
		}
	}
	return false
}

// AcceptObservation is Accept applied to an observation.
func (s Set) AcceptObservation(o stock.Observation) bool {
	return s.Accept(o.RecommendationLabel, o.AnalystCount)
}

func (r Rule) matchLabel(label string) bool {
	switch r.Match {
	case MatchAny:
		return true
	case MatchContains:
		for _, l := range r.Labels {
			if strings.Contains(label, normalize(l)) {
				return true
			}
		}
	default:
		for _, l := range r.Labels {
			if label == normalize(l) {
				return true
			}
		}
	}
	return false
}

func (r Rule) matchCount(count int) bool {
	switch r.Op {
	case OpGT:
		return count > r.Threshold
	case OpGTE:
		return count >= r.Threshold
	case OpLT:
		return count < r.Threshold
	case OpLTE:
		return count <= r.Threshold
	case OpEQ:
		return count == r.Threshold
	default:
		return true
	}
}

// Validate reports every problem in the table.
func (s Set) Validate() error {
	var errs []error

	switch s.Policy {
	case PolicyAny, PolicyFirst, "":
	default:
		errs = append(errs, fmt.Errorf("unknown policy %q", s.Policy))
	}
	if len(s.Rules) == 0 {
		errs = append(errs, errors.New("no inclusion rules configured"))
	}

	for i, r := range s.Rules {
		switch r.Match {
		case MatchExact, MatchContains, "":
			if len(r.Labels) == 0 {
				errs = append(errs, fmt.Errorf("rule %d: no labels", i))
			}
		case MatchAny:
		default:
			errs = append(errs, fmt.Errorf("rule %d: unknown match %q", i, r.Match))
		}

		switch r.Op {
		case OpNone, OpGT, OpGTE, OpLT, OpLTE, OpEQ:
		default:
			errs = append(errs, fmt.Errorf("rule %d: unknown operator %q", i, r.Op))
		}
		if r.Threshold < 0 {
			errs = append(errs, fmt.Errorf("rule %d: negative threshold", i))
		}
	}

	return errors.Join(errs...)
}

// Parse reads a rule in the compact form "label1,label2:match:op:threshold".
// Trailing parts may be omitted: "kup" is an exact match with no count
// constraint and "buy:exact:gt:10" is fully specified.
func Parse(s string) (Rule, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 4 {
		return Rule{}, fmt.Errorf("rule %q: too many parts", s)
	}

	r := Rule{Match: MatchExact}
	for _, l := range strings.Split(parts[0], ",") {
		if l = strings.TrimSpace(l); l != "" {
			r.Labels = append(r.Labels, l)
		}
	}
	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		r.Match = MatchKind(normalize(parts[1]))
	}
	if len(parts) > 2 {
		r.Op = Operator(normalize(parts[2]))
	}
	if len(parts) > 3 {
		n, err := strconv.Atoi(strings.TrimSpace(parts[3]))
		if err != nil {
			return Rule{}, fmt.Errorf("rule %q: invalid threshold: %w", s, err)
		}
		r.Threshold = n
	}

	if err := (Set{Rules: []Rule{r}}).Validate(); err != nil {
		return Rule{}, fmt.Errorf("rule %q: %w", s, err)
	}
	return r, nil
}

// ParseAll parses a ';'-separated list of compact rules.
func ParseAll(s string) ([]Rule, error) {
	var out []Rule
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		r, err := Parse(part)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
