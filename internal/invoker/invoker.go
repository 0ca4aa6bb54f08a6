// Package invoker executes single units of work against the target
// system and converts every result - including every failure path -
// into an Outcome.
//
// Invokers never return an error and never panic past their boundary:
// connection refusals, timeouts and malformed responses all become
// outcomes carrying a failure kind and a best-effort diagnostic. The
// per-call timeout is enforced here, not by the caller, so a hung call
// cannot stall the aggregate report.
package invoker

import (
	"context"
	"errors"
	"time"

	"github.com/stampede-io/stampede/internal/outcome"
)

// Call is one pre-resolved unit of work. All template substitution
// happens before dispatch; invokers treat the fields as opaque.
type Call struct {
	// Seq is the dispatch sequence number, copied into the Outcome.
	Seq int

	// Method is the HTTP verb. Unused by the gRPC invoker.
	Method string

	// Target is the request URL for HTTP, or the full method name
	// ("/package.Service/Method") for gRPC.
	Target string

	// Headers are HTTP headers or gRPC metadata pairs. Credentials
	// arrive here as opaque values; invokers never mint them.
	Headers map[string]string

	// Body is the request payload.
	Body []byte

	// Timeout is the per-call deadline. Mandatory; the dispatcher
	// rejects plans without one.
	Timeout time.Duration
}

// Invoker executes one call and returns a structured outcome.
//
// Implementations must be safe for concurrent use: the dispatcher
// invokes from every worker in the pool.
type Invoker interface {
	Invoke(ctx context.Context, call Call) outcome.Outcome
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, call Call) outcome.Outcome

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, call Call) outcome.Outcome {
	return f(ctx, call)
}

// failureKind maps a transport error to an outcome error kind.
// Deadline errors from the per-call timeout become ErrTimeout;
// cancellation from the run deadline or the caller becomes ErrCanceled;
// everything else is a transport failure.
func failureKind(err error) outcome.ErrKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return outcome.ErrTimeout
	case errors.Is(err, context.Canceled):
		return outcome.ErrCanceled
	default:
		return outcome.ErrTransport
	}
}

// failureOutcome builds the outcome for a call that produced no status.
func failureOutcome(call Call, start time.Time, err error) outcome.Outcome {
	return outcome.Outcome{
		Seq:     call.Seq,
		ErrKind: failureKind(err),
		Err:     err.Error(),
		Start:   start,
		Elapsed: time.Since(start),
	}
}
