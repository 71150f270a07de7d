package testutil

import "sync"

// RevisionCounter hands out storage revisions for MemoryStorage.
//
// Revisions are global to one storage, start at 1 and never repeat, so a
// test can tell which persist call wrote a record. Reset restarts the
// sequence for table tests that reuse a storage.
type RevisionCounter struct {
	mu  sync.Mutex
	rev int64
}

// NewRevisionCounter creates a counter whose first revision is 1.
func NewRevisionCounter() *RevisionCounter {
	return &RevisionCounter{}
}

// Next returns a fresh revision.
func (c *RevisionCounter) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rev++
	return c.rev
}

// Current returns the last revision handed out.
func (c *RevisionCounter) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rev
}

// Reset makes the next revision 1 again.
func (c *RevisionCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rev = 0
}
