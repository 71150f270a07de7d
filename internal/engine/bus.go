package engine

import (
	"errors"

	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/queryir"
)

// Listener observes every event, including structural ones. Listeners
// cannot veto; they are meant for introspection and tracing.
type Listener interface {
	OnEvent(ev Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev Event)

// OnEvent implements Listener.
func (f ListenerFunc) OnEvent(ev Event) { f(ev) }

// Extension observes lifecycle events. Returning an error from a pre event
// (Changing, Committing, CommitValidate, ...) vetoes the operation; errors
// from post events are collected and returned to the caller after the
// operation completed.
//
// An extension that should follow work into sub-transactions attaches
// itself to Event.Sub while handling EventSubTransactionInitialize.
type Extension interface {
	OnEvent(ev Event) error
}

// ExtensionFunc adapts a function to Extension.
type ExtensionFunc func(ev Event) error

// OnEvent implements Extension.
func (f ExtensionFunc) OnEvent(ev Event) error { return f(ev) }

// QueryFilter is implemented by extensions that take part in the query
// result filter chain. Each filter receives the previous filter's output.
type QueryFilter interface {
	FilterQueryResult(tx *Transaction, q queryir.Query, records []*Record) ([]*Record, error)
	FilterCustomQueryResult(tx *Transaction, q queryir.Query, rows []ir.IRObject) ([]ir.IRObject, error)
}

// Handler is a transaction-level or record-level event callback.
type Handler func(ev Event) error

// bus multiplexes one transaction's event stream to its observers.
//
// Pre events go to listeners, extensions, transaction handlers, then record
// handlers, and stop at the first error. Post events go in the reverse group
// order and run to completion. Within a group, registration order applies.
type bus struct {
	clock          *Clock
	listeners      []Listener
	extensions     []Extension
	handlers       map[EventKind][]Handler
	recordHandlers map[ir.EntityID][]recordHandler
}

func newBus(clock *Clock) *bus {
	return &bus{
		clock:          clock,
		handlers:       make(map[EventKind][]Handler),
		recordHandlers: make(map[ir.EntityID][]recordHandler),
	}
}

func (b *bus) addListener(l Listener)   { b.listeners = append(b.listeners, l) }
func (b *bus) addExtension(e Extension) { b.extensions = append(b.extensions, e) }

func (b *bus) handle(kind EventKind, fn Handler) {
	b.handlers[kind] = append(b.handlers[kind], fn)
}

func (b *bus) handleRecord(id ir.EntityID, kind EventKind, fn Handler) {
	b.recordHandlers[id] = append(b.recordHandlers[id], recordHandler{kind: kind, fn: fn})
}

// queryFilters returns the extensions that implement QueryFilter, in order.
func (b *bus) queryFilters() []QueryFilter {
	var out []QueryFilter
	for _, e := range b.extensions {
		if f, ok := e.(QueryFilter); ok {
			out = append(out, f)
		}
	}
	return out
}

// emit stamps ev and dispatches it.
func (b *bus) emit(ev Event) error {
	ev.Seq = b.clock.Next()
	groups := []func(Event) error{
		b.toListeners,
		b.toExtensions,
		b.toHandlers,
		b.toRecordHandlers,
	}
	if ev.Kind.IsPre() {
		for _, g := range groups {
			if err := g(ev); err != nil {
				return vetoed(ev.Kind, err)
			}
		}
		return nil
	}
	var errs []error
	for i := len(groups) - 1; i >= 0; i-- {
		if err := groups[i](ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Observer slices are copied before iteration: callbacks may register new
// observers (for example when attaching to a sub-transaction).

func (b *bus) toListeners(ev Event) error {
	if !forListeners(ev.Kind) {
		return nil
	}
	for _, l := range append([]Listener(nil), b.listeners...) {
		l.OnEvent(ev)
	}
	return nil
}

func (b *bus) toExtensions(ev Event) error {
	if !forExtensions(ev.Kind) {
		return nil
	}
	return dispatchEach(ev, append([]Extension(nil), b.extensions...), func(e Extension) error {
		return e.OnEvent(ev)
	})
}

func (b *bus) toHandlers(ev Event) error {
	if ev.Kind.IsStructural() {
		return nil
	}
	return dispatchEach(ev, append([]Handler(nil), b.handlers[ev.Kind]...), func(h Handler) error {
		return h(ev)
	})
}

func (b *bus) toRecordHandlers(ev Event) error {
	var errs []error
	for _, id := range recordTargets(ev) {
		for _, h := range append([]recordHandler(nil), b.recordHandlers[id]...) {
			if !h.matches(ev) {
				continue
			}
			if err := h.fn(ev); err != nil {
				if ev.Kind.IsPre() {
					return err
				}
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// dispatchEach calls fn for every observer. Pre events stop at the first
// error; post events call everyone and join the errors.
func dispatchEach[T any](ev Event, observers []T, fn func(T) error) error {
	var errs []error
	for _, o := range observers {
		if err := fn(o); err != nil {
			if ev.Kind.IsPre() {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
