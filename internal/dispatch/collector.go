package dispatch

import (
	"sync"

	"github.com/stampede-io/stampede/internal/outcome"
)

// collector is the only mutable shared resource inside the harness: a
// concurrent-append outcome buffer. A buffered channel feeds a single
// accumulation goroutine, so appends never race and no entry is lost or
// duplicated under N-way concurrency.
type collector struct {
	ch       chan outcome.Outcome
	done     chan struct{}
	mu       sync.Mutex
	outcomes []outcome.Outcome
}

func newCollector(capacity int) *collector {
	c := &collector{
		ch:       make(chan outcome.Outcome, capacity),
		done:     make(chan struct{}),
		outcomes: make([]outcome.Outcome, 0, capacity),
	}
	go c.collect()
	return c
}

func (c *collector) collect() {
	for o := range c.ch {
		c.mu.Lock()
		c.outcomes = append(c.outcomes, o)
		c.mu.Unlock()
	}
	close(c.done)
}

// record appends one outcome. Safe for concurrent use; the channel is
// sized for the full burst so this never blocks a worker.
func (c *collector) record(o outcome.Outcome) {
	c.ch <- o
}

// drain stops accepting outcomes and returns everything collected.
func (c *collector) drain() []outcome.Outcome {
	close(c.ch)
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]outcome.Outcome, len(c.outcomes))
	copy(out, c.outcomes)
	return out
}
