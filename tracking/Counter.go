// Package tracking implements run bookkeeping: step counters, metric
// logging, and periodic persistence of serializable objects.
package tracking

import "sync"

// Counter accumulates named counts across the actors and the learner
// of a run. It is safe for concurrent use.
type Counter struct {
	mu     sync.Mutex
	counts map[string]float64
}

// NewCounter returns a new empty Counter
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]float64)}
}

// Increment adds the deltas to their counts and returns a copy of all
// counts after the update
func (c *Counter) Increment(deltas map[string]float64) map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, delta := range deltas {
		c.counts[key] += delta
	}
	return c.snapshot()
}

// Counts returns a copy of the current counts
func (c *Counter) Counts() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Counter) snapshot() map[string]float64 {
	out := make(map[string]float64, len(c.counts))
	for key, value := range c.counts {
		out[key] = value
	}
	return out
}
