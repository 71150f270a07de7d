package engine

// Scope is a LIFO stack of ambient "current transaction" markers.
//
// Enter pushes a transaction; the returned entry's Leave pops it again.
// Do wraps Enter/Leave with a deferred Leave so the previous marker is
// restored on every exit path, including panics.
//
// A Scope belongs to one goroutine, like the transaction tree it tracks.
type Scope struct {
	stack []*scopeEntry
}

// ScopeEntry is the handle returned by Enter.
type ScopeEntry interface {
	// Leave restores the previous current transaction. Calling it twice is
	// a no-op; leaving an entry that is not the innermost one fails.
	Leave() error
	// Transaction returns the entered transaction.
	Transaction() *Transaction
}

type scopeEntry struct {
	scope *Scope
	tx    *Transaction
	left  bool
}

// NewScope creates an empty scope stack.
func NewScope() *Scope {
	return &Scope{}
}

// Current returns the innermost entered transaction, or nil.
func (s *Scope) Current() *Transaction {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1].tx
}

// Depth returns the number of active entries.
func (s *Scope) Depth() int { return len(s.stack) }

// Enter makes tx the current transaction.
func (s *Scope) Enter(tx *Transaction) ScopeEntry {
	e := &scopeEntry{scope: s, tx: tx}
	s.stack = append(s.stack, e)
	return e
}

// Do runs fn with tx as the current transaction. Entries fn entered but
// did not leave are unwound as well, and reported as an error.
func (s *Scope) Do(tx *Transaction, fn func(tx *Transaction) error) (err error) {
	entry := s.Enter(tx).(*scopeEntry)
	defer func() {
		if unwound := s.unwindTo(entry); unwound > 0 && err == nil {
			err = &Error{Code: ErrCodeInvalidOperation, Message: "scope entries left open inside Do"}
		}
	}()
	return fn(tx)
}

// unwindTo pops e and every entry above it. It returns how many entries
// above e were still open.
func (s *Scope) unwindTo(e *scopeEntry) int {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i] != e {
			continue
		}
		open := len(s.stack) - 1 - i
		for j := i; j < len(s.stack); j++ {
			s.stack[j].left = true
			s.stack[j] = nil
		}
		s.stack = s.stack[:i]
		return open
	}
	return 0
}

func (e *scopeEntry) Transaction() *Transaction { return e.tx }

func (e *scopeEntry) Leave() error {
	if e.left {
		return nil
	}
	s := e.scope
	if len(s.stack) == 0 || s.stack[len(s.stack)-1] != e {
		return &Error{Code: ErrCodeInvalidOperation, Message: "scope left out of order"}
	}
	s.stack[len(s.stack)-1] = nil
	s.stack = s.stack[:len(s.stack)-1]
	e.left = true
	return nil
}
