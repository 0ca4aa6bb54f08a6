// Package testutil provides deterministic test doubles for the harness.
//
// The stub invoker produces scripted outcomes without any network, and
// measures the concurrency the dispatcher actually achieved, so barrier
// and worker-pool behavior can be asserted rather than assumed.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/stampede-io/stampede/internal/invoker"
	"github.com/stampede-io/stampede/internal/outcome"
)

// Script describes the outcome one stubbed call should produce.
type Script struct {
	// Status is the outcome's classifier key.
	Status int

	// Body is the raw payload.
	Body string

	// Delay is how long the call takes. The stub honors the context, so
	// a delay past the per-call timeout produces a timeout outcome the
	// way a slow server would.
	Delay time.Duration
}

// StubInvoker returns scripted outcomes. Safe for concurrent use.
//
// Responses are looked up by dispatch sequence number, falling back to
// Default. The zero value responds to everything with status 200.
type StubInvoker struct {
	// Default is returned for sequence numbers without an entry.
	Default Script

	// BySeq overrides the default per sequence number.
	BySeq map[int]Script

	mu       sync.Mutex
	inFlight int
	peak     int
	calls    int
}

// Invoke produces the scripted outcome for the call.
func (s *StubInvoker) Invoke(ctx context.Context, call invoker.Call) outcome.Outcome {
	s.mu.Lock()
	s.calls++
	s.inFlight++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	script, ok := s.BySeq[call.Seq]
	if !ok {
		script = s.Default
		if script.Status == 0 {
			script.Status = 200
		}
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	callCtx, cancel := context.WithTimeout(ctx, call.Timeout)
	defer cancel()

	start := time.Now()
	if script.Delay > 0 {
		select {
		case <-time.After(script.Delay):
		case <-callCtx.Done():
			kind := outcome.ErrTimeout
			if ctx.Err() == context.Canceled {
				kind = outcome.ErrCanceled
			}
			return outcome.Outcome{
				Seq:     call.Seq,
				ErrKind: kind,
				Err:     callCtx.Err().Error(),
				Start:   start,
				Elapsed: time.Since(start),
			}
		}
	}

	return outcome.Outcome{
		Seq:     call.Seq,
		Status:  script.Status,
		Body:    []byte(script.Body),
		Start:   start,
		Elapsed: time.Since(start),
	}
}

// Calls returns how many invocations the stub served.
func (s *StubInvoker) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// PeakConcurrency returns the maximum number of simultaneous
// invocations observed.
func (s *StubInvoker) PeakConcurrency() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// FirstWins simulates an endpoint with a correct at-most-once
// guarantee: the first call to arrive succeeds with winStatus, every
// other call conflicts with loseStatus.
type FirstWins struct {
	WinStatus  int
	LoseStatus int
	Delay      time.Duration

	mu  sync.Mutex
	won bool
}

// Invoke awards the win to the first caller.
func (f *FirstWins) Invoke(ctx context.Context, call invoker.Call) outcome.Outcome {
	f.mu.Lock()
	first := !f.won
	f.won = true
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
		}
	}

	start := time.Now()
	status := f.LoseStatus
	body := `{"error":{"code":"CONFLICT"}}`
	if first {
		status = f.WinStatus
		body = `{"id":"1"}`
	}
	return outcome.Outcome{
		Seq:     call.Seq,
		Status:  status,
		Body:    []byte(body),
		Start:   start,
		Elapsed: time.Millisecond,
	}
}
