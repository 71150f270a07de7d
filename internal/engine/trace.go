package engine

import (
	"strings"
	"sync"
)

// TraceRecorder is a Listener that keeps every event it sees. Follow
// attaches it to a transaction and to every sub-transaction created below
// it, so one recorder captures a whole tree in emission order.
type TraceRecorder struct {
	mu         sync.Mutex
	events     []Event
	structural bool
}

// TraceOption configures a TraceRecorder.
type TraceOption func(*TraceRecorder)

// WithStructural keeps structural events (registrations, state updates).
// They are dropped by default.
func WithStructural() TraceOption {
	return func(r *TraceRecorder) { r.structural = true }
}

// NewTraceRecorder creates an empty recorder.
func NewTraceRecorder(opts ...TraceOption) *TraceRecorder {
	r := &TraceRecorder{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnEvent implements Listener.
func (r *TraceRecorder) OnEvent(ev Event) {
	if ev.Kind.IsStructural() && !r.structural {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Follow records tx and every sub-transaction created below it.
func (r *TraceRecorder) Follow(tx *Transaction) {
	tx.AddListener(r)
	tx.Handle(EventSubTransactionInitialize, func(ev Event) error {
		r.Follow(ev.Sub)
		return nil
	})
}

// Events returns a copy of the recorded events.
func (r *TraceRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events in order.
func (r *TraceRecorder) Kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// Count returns how many events of kind were recorded.
func (r *TraceRecorder) Count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Lines renders one line per event. Events of sub-transactions are
// indented by their depth.
func (r *TraceRecorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		depth := 0
		if ev.Tx != nil {
			depth = ev.Tx.Depth()
		}
		out[i] = strings.Repeat("  ", depth) + ev.String()
	}
	return out
}

// String joins Lines with newlines, ending in a newline.
func (r *TraceRecorder) String() string {
	lines := r.Lines()
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Reset drops all recorded events.
func (r *TraceRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
