// Package classify maps raw invocation outcomes into verdicts using
// scenario-specific rule sets.
//
// Rules are ordered data, evaluated top to bottom with first match wins.
// An outcome no rule matches classifies as unexpected_error - the
// default-deny policy. Mapping unknown statuses to success or conflict
// by default would mask genuine anomalies, such as a 500 that embeds a
// constraint-violation marker versus a generic 500.
//
// Built-in tail rules run after the scenario rules: timeouts and
// canceled calls classify as timeout, transport failures as
// transport_exception. Scenario rules may still match on error kind
// first when a transport quirk needs remapping.
package classify

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stampede-io/stampede/internal/outcome"
)

// JSONMatch matches a field extracted from a JSON response body.
type JSONMatch struct {
	// Path is a gjson path, e.g. "error.code" or "pagination.total".
	Path string `yaml:"path" json:"path"`

	// Equals is the expected value, compared against the string form
	// of the extracted field.
	Equals string `yaml:"equals" json:"equals"`
}

// Condition is the predicate side of a rule. All set fields must match
// (AND semantics). An empty condition is invalid - it would match every
// outcome and defeat the default-deny policy.
type Condition struct {
	// Status matches the outcome's numeric status key exactly.
	Status *int `yaml:"status,omitempty" json:"status,omitempty"`

	// StatusIn matches any of the listed status keys.
	StatusIn []int `yaml:"status_in,omitempty" json:"status_in,omitempty"`

	// Error matches the outcome's error kind: "timeout", "canceled",
	// "transport", or "none" for completed calls.
	Error string `yaml:"error,omitempty" json:"error,omitempty"`

	// BodyContains matches when the raw body contains the substring.
	BodyContains string `yaml:"body_contains,omitempty" json:"body_contains,omitempty"`

	// JSON matches a field extracted from the body as JSON.
	JSON *JSONMatch `yaml:"json,omitempty" json:"json,omitempty"`
}

// Rule pairs a condition with the verdict assigned on match.
type Rule struct {
	When    Condition       `yaml:"when" json:"when"`
	Verdict outcome.Verdict `yaml:"verdict" json:"verdict"`
}

// RuleSet is an ordered, validated list of rules.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet validates the rules and returns a RuleSet.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("at least one classification rule is required")
	}
	for i, r := range rules {
		if err := validateRule(r); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return &RuleSet{rules: rules}, nil
}

func validateRule(r Rule) error {
	if !r.Verdict.Valid() {
		return fmt.Errorf("unknown verdict %q", r.Verdict)
	}
	c := r.When
	if c.Status == nil && len(c.StatusIn) == 0 && c.Error == "" && c.BodyContains == "" && c.JSON == nil {
		return fmt.Errorf("empty condition would match every outcome")
	}
	switch c.Error {
	case "", "none", string(outcome.ErrTimeout), string(outcome.ErrCanceled), string(outcome.ErrTransport):
	default:
		return fmt.Errorf("unknown error kind %q", c.Error)
	}
	if c.JSON != nil && c.JSON.Path == "" {
		return fmt.Errorf("json match requires a path")
	}
	return nil
}

// Rules returns the rule list in evaluation order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Classify returns the verdict for one outcome. Pure function of the
// rule set and the outcome; classifying twice yields the same verdict.
func (rs *RuleSet) Classify(o outcome.Outcome) outcome.Verdict {
	for _, r := range rs.rules {
		if matches(r.When, o) {
			return r.Verdict
		}
	}

	// Built-in tail rules: failure kinds have fixed verdicts, everything
	// else is default-deny.
	switch o.ErrKind {
	case outcome.ErrTimeout, outcome.ErrCanceled:
		return outcome.VerdictTimeout
	case outcome.ErrTransport:
		return outcome.VerdictTransportException
	}
	return outcome.VerdictUnexpectedError
}

// ClassifyAll classifies every outcome and returns the verdicts in the
// same order alongside the aggregate counts. The counts always partition
// the outcome set: Total() == len(outcomes).
func (rs *RuleSet) ClassifyAll(outcomes []outcome.Outcome) ([]outcome.Verdict, outcome.Counts) {
	verdicts := make([]outcome.Verdict, len(outcomes))
	var counts outcome.Counts
	for i, o := range outcomes {
		v := rs.Classify(o)
		verdicts[i] = v
		// Classify only returns defined verdicts, so Add cannot fail.
		_ = counts.Add(v)
	}
	return verdicts, counts
}

func matches(c Condition, o outcome.Outcome) bool {
	if c.Error != "" {
		want := outcome.ErrKind(c.Error)
		if c.Error == "none" {
			want = outcome.ErrNone
		}
		if o.ErrKind != want {
			return false
		}
	} else if o.Failed() {
		// Rules never match failed calls unless they name an error kind
		// explicitly. A failed call carries Status 0, which is also the
		// gRPC OK code; matching it against a status rule would turn
		// connection failures into successes.
		return false
	}
	if c.Status != nil && o.Status != *c.Status {
		return false
	}
	if len(c.StatusIn) > 0 && !containsInt(c.StatusIn, o.Status) {
		return false
	}
	if c.BodyContains != "" && !strings.Contains(string(o.Body), c.BodyContains) {
		return false
	}
	if c.JSON != nil {
		res := gjson.GetBytes(o.Body, c.JSON.Path)
		if !res.Exists() || res.String() != c.JSON.Equals {
			return false
		}
	}
	return true
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
