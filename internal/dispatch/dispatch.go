// Package dispatch launches a burst of invocations with a bounded worker
// pool and a start barrier, and collects every outcome.
//
// The power of a race test depends on how simultaneously the units
// actually start: the wider the start skew, the weaker the contention.
// The dispatcher therefore pre-resolves all inputs before spawning,
// parks every worker on a barrier, and releases them together. It also
// measures what it achieved - release skew and the maximum number of
// calls actually in flight - instead of assuming concurrency equals N.
//
// The dispatcher is the only component that spawns concurrent work;
// classification and evaluation run single-threaded over the collected
// outcomes.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/stampede-io/stampede/internal/invoker"
	"github.com/stampede-io/stampede/internal/outcome"
)

// Plan is the fully resolved dispatch plan for one burst. Building the
// plan (template substitution, credential injection) happens before any
// concurrency starts.
type Plan struct {
	// Calls are the N pre-resolved units, Seq already assigned 1..N.
	Calls []invoker.Call

	// Concurrency bounds the worker pool. N may exceed it; excess units
	// queue and release in waves.
	Concurrency int

	// StaggerRPS optionally paces call starts. Zero means full burst.
	StaggerRPS float64

	// RunDeadline bounds the whole burst. Past it, pending units are
	// recorded as abandoned rather than omitted. Zero means no deadline.
	RunDeadline time.Duration
}

// Stats reports what the dispatcher actually achieved.
type Stats struct {
	// ReleaseSkew is the gap between barrier release and the latest
	// unit start in the first wave's pool.
	ReleaseSkew time.Duration `json:"release_skew"`

	// EffectiveConcurrency is the maximum number of calls that were in
	// flight at the same instant.
	EffectiveConcurrency int `json:"effective_concurrency"`

	// Workers is the pool size used.
	Workers int `json:"workers"`

	// Wall is the burst duration from release to last resolution.
	Wall time.Duration `json:"wall"`
}

// Dispatcher fans a plan out over an invoker.
type Dispatcher struct {
	inv    invoker.Invoker
	logger *slog.Logger
}

// New creates a dispatcher. A nil logger discards output.
func New(inv invoker.Invoker, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(discardHandler{})
	}
	return &Dispatcher{inv: inv, logger: logger}
}

// Run executes the plan and returns exactly len(plan.Calls) outcomes in
// dispatch order. It returns an error only for a malformed plan; every
// runtime failure is recorded as an outcome.
func (d *Dispatcher) Run(ctx context.Context, plan Plan) ([]outcome.Outcome, Stats, error) {
	n := len(plan.Calls)
	if n == 0 {
		return nil, Stats{}, fmt.Errorf("plan has no calls")
	}
	if plan.Concurrency < 1 {
		return nil, Stats{}, fmt.Errorf("concurrency must be at least 1")
	}
	for _, c := range plan.Calls {
		if c.Timeout <= 0 {
			return nil, Stats{}, fmt.Errorf("call %d has no timeout", c.Seq)
		}
	}

	if plan.RunDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, plan.RunDeadline)
		defer cancel()
	}

	workers := plan.Concurrency
	if workers > n {
		workers = n
	}

	var limiter *rate.Limiter
	if plan.StaggerRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(plan.StaggerRPS), 1)
	}

	jobs := make(chan invoker.Call, n)
	for _, c := range plan.Calls {
		jobs <- c
	}
	close(jobs)

	coll := newCollector(n)
	start := make(chan struct{})

	var ready, done sync.WaitGroup
	ready.Add(workers)
	done.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer done.Done()
			ready.Done()
			<-start
			for call := range jobs {
				coll.record(d.execute(ctx, call, limiter))
			}
		}()
	}

	// Warm the pool, then release every worker at once.
	ready.Wait()
	released := time.Now()
	close(start)
	d.logger.Debug("burst released", "units", n, "workers", workers)

	done.Wait()
	outcomes := coll.drain()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Seq < outcomes[j].Seq })
	stats := computeStats(outcomes, released, workers)
	d.logger.Debug("burst complete", "wall", stats.Wall, "effective_concurrency", stats.EffectiveConcurrency)

	return outcomes, stats, nil
}

// execute runs one unit, converting abandonment into an outcome so the
// partition invariant holds under the run deadline.
func (d *Dispatcher) execute(ctx context.Context, call invoker.Call, limiter *rate.Limiter) outcome.Outcome {
	if err := ctx.Err(); err != nil {
		return abandoned(call, ctx)
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return abandoned(call, ctx)
		}
	}
	return d.inv.Invoke(ctx, call)
}

// abandoned records a unit that never ran: run deadline hit while it
// was still queued, or the caller canceled the run.
func abandoned(call invoker.Call, ctx context.Context) outcome.Outcome {
	kind := outcome.ErrCanceled
	msg := "abandoned: run canceled before dispatch"
	if ctx.Err() == context.DeadlineExceeded {
		kind = outcome.ErrTimeout
		msg = "abandoned: run deadline expired before dispatch"
	}
	return outcome.Outcome{Seq: call.Seq, ErrKind: kind, Err: msg}
}

// computeStats derives release skew, wall time, and effective
// concurrency (maximum overlap of [start, start+elapsed] intervals over
// the units that actually started).
func computeStats(outcomes []outcome.Outcome, released time.Time, workers int) Stats {
	stats := Stats{Workers: workers}

	type event struct {
		at    time.Time
		delta int
	}
	var events []event
	var lastEnd time.Time
	var firstWaveSkew time.Duration

	started := 0
	for _, o := range outcomes {
		if o.Start.IsZero() {
			continue
		}
		started++
		end := o.Start.Add(o.Elapsed)
		events = append(events, event{o.Start, +1}, event{end, -1})
		if end.After(lastEnd) {
			lastEnd = end
		}
		if started <= workers {
			if skew := o.Start.Sub(released); skew > firstWaveSkew {
				firstWaveSkew = skew
			}
		}
	}
	if len(events) == 0 {
		return stats
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].at.Equal(events[j].at) {
			// Ends before starts at the same instant: touching
			// intervals do not overlap.
			return events[i].delta < events[j].delta
		}
		return events[i].at.Before(events[j].at)
	})

	running, peak := 0, 0
	for _, e := range events {
		running += e.delta
		if running > peak {
			peak = running
		}
	}

	stats.ReleaseSkew = firstWaveSkew
	stats.EffectiveConcurrency = peak
	stats.Wall = lastEnd.Sub(released)
	return stats
}

// discardHandler is a slog handler that drops everything.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
