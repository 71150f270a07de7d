package engine

import "sync/atomic"

// Clock is a monotonic logical clock. Every event is stamped with the next
// value, so traces order deterministically without wall-clock time.
//
// Clock is safe for concurrent use; one engine may drive several
// independent transaction trees from different goroutines.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
