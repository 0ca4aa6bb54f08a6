// Package invariant evaluates declarative predicates over the verdict
// multiset of a run, optionally cross-checked against a ground-truth
// count from the system of record.
//
// Invariants are data, not code paths: a scenario states bounds on the
// success and conflict counts ("at most one success") instead of inlining
// success-counting logic. The evaluator distinguishes failure classes
// that indicate different bugs: too many client-visible successes
// (multiplicity violation) versus disagreement between observed
// successes and persisted rows (observation/ground-truth mismatch).
package invariant

import (
	"fmt"

	"github.com/stampede-io/stampede/internal/outcome"
)

// Decision is the evaluator's judgment of a run.
type Decision string

const (
	// Pass means the invariant held and the run produced signal.
	Pass Decision = "pass"

	// Fail means the invariant was violated.
	Fail Decision = "fail"

	// Inconclusive means the run produced no signal: zero successes and
	// zero expected conflicts. Reporting Pass here would hide a total
	// outage as if it were safe behavior.
	Inconclusive Decision = "inconclusive"
)

// Reason identifies why a run failed or was inconclusive.
type Reason string

const (
	ReasonNone Reason = ""

	// ReasonNoSignal means nothing succeeded and nothing conflicted.
	ReasonNoSignal Reason = "no signal"

	// ReasonMultiplicity means more operations succeeded than the
	// invariant allows - a client-visible race.
	ReasonMultiplicity Reason = "multiplicity violation"

	// ReasonShortfall means fewer operations succeeded than required.
	ReasonShortfall Reason = "success shortfall"

	// ReasonConflictBounds means the conflict count fell outside its
	// declared bounds.
	ReasonConflictBounds Reason = "conflict count out of bounds"

	// ReasonGroundTruthMismatch means the persisted row count disagrees
	// with the observed success count - a silent duplicate write or a
	// lost write, distinct from a multiplicity violation.
	ReasonGroundTruthMismatch Reason = "observation/ground-truth mismatch"

	// ReasonProbeFailure means the post-burst ground-truth probe errored,
	// so the invariant could not be fully evaluated. The verdict counts
	// are still real and reported.
	ReasonProbeFailure Reason = "ground-truth probe failure"
)

// Bound constrains a counter. Nil fields are unconstrained.
type Bound struct {
	Min *int `yaml:"min,omitempty" json:"min,omitempty"`
	Max *int `yaml:"max,omitempty" json:"max,omitempty"`
}

// Invariant is the declarative predicate a scenario asserts over the
// aggregate verdict counts.
type Invariant struct {
	// Success bounds the success count, e.g. {min: 1, max: 1} for
	// exactly-once or {max: 1} for at-most-once.
	Success Bound `yaml:"success" json:"success"`

	// Conflict optionally bounds the expected_conflict count.
	Conflict Bound `yaml:"conflict,omitempty" json:"conflict,omitempty"`

	// GroundTruthMustMatch requires the probed row count to equal the
	// observed success count when a ground-truth probe is configured.
	GroundTruthMustMatch bool `yaml:"ground_truth_must_match,omitempty" json:"ground_truth_must_match,omitempty"`
}

// Validate checks the invariant for internal consistency.
func (inv Invariant) Validate() error {
	if err := validateBound("success", inv.Success); err != nil {
		return err
	}
	if err := validateBound("conflict", inv.Conflict); err != nil {
		return err
	}
	if inv.Success.Min == nil && inv.Success.Max == nil &&
		inv.Conflict.Min == nil && inv.Conflict.Max == nil &&
		!inv.GroundTruthMustMatch {
		return fmt.Errorf("invariant constrains nothing")
	}
	return nil
}

func validateBound(name string, b Bound) error {
	if b.Min != nil && *b.Min < 0 {
		return fmt.Errorf("%s.min must be non-negative", name)
	}
	if b.Max != nil && *b.Max < 0 {
		return fmt.Errorf("%s.max must be non-negative", name)
	}
	if b.Min != nil && b.Max != nil && *b.Min > *b.Max {
		return fmt.Errorf("%s.min exceeds %s.max", name, name)
	}
	return nil
}

// Judgment is the evaluator's output: a decision, the primary reason
// when not passing, and a plain-language detail for the report.
type Judgment struct {
	Decision Decision `json:"decision"`
	Reason   Reason   `json:"reason,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

// Evaluate applies the invariant to the verdict counts. groundTruth is
// the probed row count for the contended key, or nil when no probe is
// configured.
//
// Evaluation order: multiplicity first (it is the headline race), then
// ground-truth mismatch, then the no-signal check, then the remaining
// bounds. When both multiplicity and mismatch hold, multiplicity is the
// primary reason and the mismatch is appended to the detail.
func Evaluate(counts outcome.Counts, groundTruth *int, inv Invariant) Judgment {
	mismatch := inv.GroundTruthMustMatch && groundTruth != nil && *groundTruth != counts.Success

	if inv.Success.Max != nil && counts.Success > *inv.Success.Max {
		detail := fmt.Sprintf("%d successes observed; invariant allows at most %d",
			counts.Success, *inv.Success.Max)
		if mismatch {
			detail += fmt.Sprintf("; ground truth reports %d rows", *groundTruth)
		}
		return Judgment{Decision: Fail, Reason: ReasonMultiplicity, Detail: detail}
	}

	if mismatch {
		return Judgment{
			Decision: Fail,
			Reason:   ReasonGroundTruthMismatch,
			Detail: fmt.Sprintf("%d successes observed but ground truth reports %d rows",
				counts.Success, *groundTruth),
		}
	}

	if counts.Success == 0 && counts.ExpectedConflict == 0 {
		return Judgment{
			Decision: Inconclusive,
			Reason:   ReasonNoSignal,
			Detail: fmt.Sprintf("no successes and no expected conflicts among %d outcomes; "+
				"the target may be down or the rules may not match its responses",
				counts.Total()),
		}
	}

	if inv.Success.Min != nil && counts.Success < *inv.Success.Min {
		return Judgment{
			Decision: Fail,
			Reason:   ReasonShortfall,
			Detail: fmt.Sprintf("%d successes observed; invariant requires at least %d",
				counts.Success, *inv.Success.Min),
		}
	}

	if inv.Conflict.Min != nil && counts.ExpectedConflict < *inv.Conflict.Min {
		return Judgment{
			Decision: Fail,
			Reason:   ReasonConflictBounds,
			Detail: fmt.Sprintf("%d expected conflicts observed; invariant requires at least %d",
				counts.ExpectedConflict, *inv.Conflict.Min),
		}
	}
	if inv.Conflict.Max != nil && counts.ExpectedConflict > *inv.Conflict.Max {
		return Judgment{
			Decision: Fail,
			Reason:   ReasonConflictBounds,
			Detail: fmt.Sprintf("%d expected conflicts observed; invariant allows at most %d",
				counts.ExpectedConflict, *inv.Conflict.Max),
		}
	}

	return Judgment{Decision: Pass}
}
