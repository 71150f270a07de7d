package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txgraph/internal/engine"
	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/testutil"
)

var (
	c1 = testutil.ID("Customer", "c1")
	o1 = testutil.ID("Order", "o1")
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	mem := testutil.NewMemoryStorage(
		testutil.Row(c1, "name", "Acme"),
		testutil.WithRef(testutil.Row(o1, "number", "A-1", "qty", 1), "customer", c1),
	)
	return engine.New(mem, testutil.OfficeModel(t),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithKeyGenerator(engine.NewSequenceGenerator("k")),
	)
}

func familyNames(fams []*dto.MetricFamily) []string {
	names := make([]string, 0, len(fams))
	for _, f := range fams {
		names = append(names, f.GetName())
	}
	return names
}

func TestCollector_CountsEngineActivity(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	e := newEngine(t)
	root := e.CreateRoot()
	c.Attach(root)

	_, err = root.Get(ctx, o1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, promtest.ToFloat64(c.loaded))

	require.NoError(t, root.SetProperty(ctx, o1, "number", ir.IRString("A-2")))
	require.NoError(t, c.Commit(ctx, root))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.committed.WithLabelValues("root")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.outcomes.WithLabelValues("ok")))

	// An order with neither number nor customer fails two checks.
	_, err = root.NewEntity(ctx, "Order")
	require.NoError(t, err)
	err = c.Commit(ctx, root)
	require.Error(t, err)
	assert.Equal(t, 1.0, promtest.ToFloat64(c.outcomes.WithLabelValues("validation")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.violations.WithLabelValues(string(engine.ErrCodePropertyRequiredNotSet))))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.violations.WithLabelValues(string(engine.ErrCodeMandatoryRelationNotSet))))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.committed.WithLabelValues("root")), "failed commit is not counted")

	require.NoError(t, root.Rollback(ctx))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.rolledBack.WithLabelValues("root")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.rounds.WithLabelValues("rollback")))

	sub, err := root.CreateSub()
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx, sub))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.committed.WithLabelValues("sub")), "collector follows subs")
	assert.Equal(t, 3.0, promtest.ToFloat64(c.rounds.WithLabelValues("commit")))

	fams, err := reg.Gather()
	require.NoError(t, err)
	assert.Subset(t, familyNames(fams), []string{
		"txgraph_records_loaded_total",
		"txgraph_commits_total",
		"txgraph_rollbacks_total",
		"txgraph_commit_rounds_total",
		"txgraph_commit_outcomes_total",
		"txgraph_validation_failures_total",
		"txgraph_commit_duration_seconds",
	})
	for _, f := range fams {
		if f.GetName() == "txgraph_commit_duration_seconds" {
			assert.Equal(t, uint64(3), f.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
}

func TestCollector_NeverVetoes(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	assert.NoError(t, c.OnEvent(engine.Event{Kind: engine.EventCommitting}))
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{&engine.ValidationFailedError{Violations: []*engine.Error{{Code: engine.ErrCodePropertyValueTooLong}}}, "validation"},
		{&engine.Error{Code: engine.ErrCodeConcurrency}, "concurrency"},
		{&engine.Error{Code: engine.ErrCodeVetoed}, "vetoed"},
		{errors.New("disk full"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.err))
		})
	}
}
