// Package outcome defines the data model shared across the harness:
// the Outcome of a single invocation against the target system, and the
// Verdict derived from it by the classifier.
//
// Outcomes are immutable once returned by an invoker. Verdicts are never
// stored independently - they are always computed from an Outcome via a
// rule set, so re-classifying the same outcomes yields identical verdicts.
package outcome

import (
	"fmt"
	"time"
)

// ErrKind categorizes invocation failures at the transport boundary.
//
// A non-empty ErrKind means the call never produced a usable status from
// the target; the Status field is zero in that case.
type ErrKind string

const (
	// ErrNone means the call completed and Status is meaningful.
	ErrNone ErrKind = ""

	// ErrTimeout means the per-call deadline expired before a response.
	ErrTimeout ErrKind = "timeout"

	// ErrCanceled means the run deadline (or the caller) canceled the
	// call before it completed. Abandoned units that never started also
	// carry this kind.
	ErrCanceled ErrKind = "canceled"

	// ErrTransport means a transport-level failure: connection refused,
	// reset, TLS handshake failure, malformed response framing.
	ErrTransport ErrKind = "transport"
)

// Outcome is the result of one invocation.
//
// Seq reflects dispatch order, assigned before release and stable across
// the run. Completion order is unspecified and carries no meaning.
type Outcome struct {
	// Seq is the 1-based dispatch sequence number.
	Seq int `json:"seq"`

	// Status is the classifier key: an HTTP status code or a numeric
	// gRPC status code. Zero when ErrKind is non-empty.
	Status int `json:"status"`

	// StatusText is a human-readable form of Status where the transport
	// has one (gRPC code names). Empty for plain HTTP statuses.
	StatusText string `json:"status_text,omitempty"`

	// Body is the raw response payload, bounded by the invoker.
	Body []byte `json:"body,omitempty"`

	// ErrKind categorizes a failed call. ErrNone for completed calls.
	ErrKind ErrKind `json:"err_kind,omitempty"`

	// Err is the best-effort diagnostic for a failed call.
	Err string `json:"err,omitempty"`

	// Start is when the call actually began executing (after barrier
	// release). Zero for units abandoned before they started.
	Start time.Time `json:"start"`

	// Elapsed is the call duration from start to resolution.
	Elapsed time.Duration `json:"elapsed"`
}

// Failed reports whether the outcome represents a call that never
// produced a status from the target.
func (o Outcome) Failed() bool {
	return o.ErrKind != ErrNone
}

// Verdict is the harness's classification of a single Outcome, distinct
// from the raw transport status.
type Verdict string

const (
	// VerdictSuccess means the operation took effect.
	VerdictSuccess Verdict = "success"

	// VerdictExpectedConflict means the operation was correctly rejected
	// because another concurrent operation won the contended key.
	VerdictExpectedConflict Verdict = "expected_conflict"

	// VerdictUnexpectedError is the default-deny bucket: any outcome not
	// matched by a scenario rule. Silently mapping unknown statuses to
	// success or conflict would mask genuine anomalies.
	VerdictUnexpectedError Verdict = "unexpected_error"

	// VerdictTimeout means the call (or the whole run) hit a deadline.
	VerdictTimeout Verdict = "timeout"

	// VerdictTransportException means the call failed below the
	// application layer.
	VerdictTransportException Verdict = "transport_exception"
)

// Verdicts lists every valid verdict, in report order.
var Verdicts = []Verdict{
	VerdictSuccess,
	VerdictExpectedConflict,
	VerdictUnexpectedError,
	VerdictTimeout,
	VerdictTransportException,
}

// Valid reports whether v is one of the defined verdicts.
func (v Verdict) Valid() bool {
	for _, known := range Verdicts {
		if v == known {
			return true
		}
	}
	return false
}

// Counts is the verdict multiset for a run. It always partitions the
// outcome set: every outcome contributes to exactly one counter.
type Counts struct {
	Success            int `json:"success"`
	ExpectedConflict   int `json:"expected_conflict"`
	UnexpectedError    int `json:"unexpected_error"`
	Timeout            int `json:"timeout"`
	TransportException int `json:"transport_exception"`
}

// Add increments the counter for v.
func (c *Counts) Add(v Verdict) error {
	switch v {
	case VerdictSuccess:
		c.Success++
	case VerdictExpectedConflict:
		c.ExpectedConflict++
	case VerdictUnexpectedError:
		c.UnexpectedError++
	case VerdictTimeout:
		c.Timeout++
	case VerdictTransportException:
		c.TransportException++
	default:
		return fmt.Errorf("unknown verdict %q", v)
	}
	return nil
}

// Total returns the sum of all counters. For a run of N dispatched
// units this is always N.
func (c Counts) Total() int {
	return c.Success + c.ExpectedConflict + c.UnexpectedError + c.Timeout + c.TransportException
}

// Get returns the counter for v. Unknown verdicts return 0.
func (c Counts) Get(v Verdict) int {
	switch v {
	case VerdictSuccess:
		return c.Success
	case VerdictExpectedConflict:
		return c.ExpectedConflict
	case VerdictUnexpectedError:
		return c.UnexpectedError
	case VerdictTimeout:
		return c.Timeout
	case VerdictTransportException:
		return c.TransportException
	}
	return 0
}
