package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/txgraph/internal/engine"
	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Trace    []string // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, line := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
		}
	}
	return buf.String()
}

// AssertionContext is what final_state assertions inspect.
type AssertionContext struct {
	Ctx   context.Context
	Store *store.Store
	// Tx is the innermost transaction still in scope after the last step.
	Tx *engine.Transaction
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return failures
}

// matchLine reports whether a trace line contains fragment, ignoring the
// depth indentation.
func matchLine(line, fragment string) bool {
	return strings.Contains(strings.TrimSpace(line), fragment)
}

// assertTraceContains checks that some trace line contains the fragment.
func assertTraceContains(trace []string, a Assertion) error {
	for _, line := range trace {
		if matchLine(line, a.Event) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("a line containing %q", a.Event),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the fragments match distinct lines in
// order. Lines in between are allowed.
func assertTraceOrder(trace []string, a Assertion) error {
	pos := 0
	for i, fragment := range a.Events {
		found := false
		for pos < len(trace) {
			line := trace[pos]
			pos++
			if matchLine(line, fragment) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("lines in order: %q", a.Events),
				Actual:   fmt.Sprintf("%q (index %d) not found after the previous match", fragment, i),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks how many lines carry the event kind.
func assertTraceCount(trace []string, a Assertion) error {
	if _, err := engine.ParseEventKind(a.Kind); err != nil {
		return err
	}
	count := 0
	for _, line := range trace {
		if kind, _, _ := strings.Cut(strings.TrimSpace(line), " "); kind == a.Kind {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks one record in the innermost transaction and,
// when Stored is set, in storage. Properties use subset semantics.
func assertFinalState(actx *AssertionContext, a Assertion) error {
	id, err := parseID(a.ID)
	if err != nil {
		return err
	}
	tx := actx.Tx
	if tx == nil {
		return fmt.Errorf("no transaction in scope")
	}

	if a.State != "" {
		want, err := ir.ParseState(a.State)
		if err != nil {
			return err
		}
		if got := tx.State(id); got != want {
			return stateError(a, want.String(), got.String())
		}
	}

	for _, name := range sortedKeys(a.Properties) {
		want, err := ir.FromAny(a.Properties[name])
		if err != nil {
			return fmt.Errorf("property %q: %w", name, err)
		}
		got, err := tx.Property(actx.Ctx, id, name)
		if err != nil {
			return stateError(a, fmt.Sprintf("%s.%s = %s", id, name, ir.Display(want)), err.Error())
		}
		if !ir.Equal(want, got) {
			return stateError(a,
				fmt.Sprintf("%s.%s = %s", id, name, ir.Display(want)),
				fmt.Sprintf("%s.%s = %s", id, name, ir.Display(got)))
		}
	}

	for _, rel := range sortedKeys(a.Related) {
		ep := ir.EndPointID{Entity: id, Relation: rel}
		ids, err := tx.RelatedIDs(actx.Ctx, ep)
		if err != nil {
			return stateError(a, fmt.Sprintf("%s = %q", ep, a.Related[rel]), err.Error())
		}
		got := make([]string, 0, len(ids))
		for _, rid := range ids {
			got = append(got, rid.String())
		}
		if !slices.Equal(got, a.Related[rel]) {
			return stateError(a, fmt.Sprintf("%s = %q", ep, a.Related[rel]), fmt.Sprintf("%s = %q", ep, got))
		}
	}

	if a.Stored != nil {
		_, err := actx.Store.ReadRecord(actx.Ctx, id)
		stored := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read %s: %w", id, err)
		}
		if stored != *a.Stored {
			return stateError(a, fmt.Sprintf("stored=%t", *a.Stored), fmt.Sprintf("stored=%t", stored))
		}
	}
	return nil
}

func stateError(a Assertion, expected, actual string) error {
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("%s: %s", a.ID, expected),
		Actual:   actual,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
