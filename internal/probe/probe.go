// Package probe queries the system of record for the authoritative
// post-condition state of a contended key.
//
// Probes run before the burst, to assert a clean starting state, and
// after it, to supply the ground-truth count the evaluator cross-checks
// against observed successes. Probes are idempotent and side-effect-free
// on the target's business state: they only ever count.
package probe

import "context"

// Prober returns the number of records the system of record holds for
// the contended key.
type Prober interface {
	Probe(ctx context.Context, key string) (int, error)
}
