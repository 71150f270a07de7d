// Package metrics exports engine activity as Prometheus counters.
//
// A Collector is an engine extension: attach it to a root transaction and
// it follows every sub-transaction created below it. Commit outcomes and
// validation failures are only visible to the caller, so they are recorded
// by Collector.Commit, which wraps Transaction.Commit.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/txgraph/internal/engine"
)

const namespace = "txgraph"

// Collector counts loads, commits, rollbacks, commit rounds and validation
// failures.
type Collector struct {
	loaded      prometheus.Counter
	committed   *prometheus.CounterVec
	rolledBack  *prometheus.CounterVec
	rounds      *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	violations  *prometheus.CounterVec
	commitTimes prometheus.Histogram
}

// New creates a Collector and registers it with reg. A nil reg uses a
// fresh private registry.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		loaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      "Records loaded into a transaction from storage or a parent.",
		}),
		committed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Completed commits by transaction level.",
		}, []string{"level"}),
		rolledBack: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Completed rollbacks by transaction level.",
		}, []string{"level"}),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_rounds_total",
			Help:      "Committing and RollingBack notification rounds.",
		}, []string{"phase"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_outcomes_total",
			Help:      "Commit attempts by result.",
		}, []string{"result"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Commit validation violations by error code.",
		}, []string{"code"}),
		commitTimes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Wall time of Commit calls.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
	for _, col := range []prometheus.Collector{
		c.loaded, c.committed, c.rolledBack, c.rounds, c.outcomes, c.violations, c.commitTimes,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Attach installs the collector on tx and on every sub-transaction created
// below it.
func (c *Collector) Attach(tx *engine.Transaction) {
	tx.AddExtension(c)
	tx.Handle(engine.EventSubTransactionInitialize, func(ev engine.Event) error {
		c.Attach(ev.Sub)
		return nil
	})
}

// OnEvent implements engine.Extension. It never vetoes.
func (c *Collector) OnEvent(ev engine.Event) error {
	switch ev.Kind {
	case engine.EventObjectsLoaded:
		c.loaded.Add(float64(len(ev.IDs)))
	case engine.EventCommitting:
		c.rounds.WithLabelValues("commit").Inc()
	case engine.EventRollingBack:
		c.rounds.WithLabelValues("rollback").Inc()
	case engine.EventCommitted:
		c.committed.WithLabelValues(level(ev.Tx)).Inc()
	case engine.EventRolledBack:
		c.rolledBack.WithLabelValues(level(ev.Tx)).Inc()
	}
	return nil
}

// Commit commits tx and records the outcome and duration.
func (c *Collector) Commit(ctx context.Context, tx *engine.Transaction) error {
	start := time.Now()
	err := tx.Commit(ctx)
	c.commitTimes.Observe(time.Since(start).Seconds())
	c.outcomes.WithLabelValues(Outcome(err)).Inc()
	c.recordViolations(err)
	return err
}

func (c *Collector) recordViolations(err error) {
	var vf *engine.ValidationFailedError
	if errors.As(err, &vf) {
		for _, v := range vf.Violations {
			c.violations.WithLabelValues(string(v.Code)).Inc()
		}
		return
	}
	if engine.IsValidationError(err) {
		c.violations.WithLabelValues(string(engine.CodeOf(err))).Inc()
	}
}

// Outcome labels a Commit result: ok, validation, concurrency, vetoed or
// error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case engine.IsValidationError(err):
		return "validation"
	case engine.IsConcurrency(err):
		return "concurrency"
	case engine.CodeOf(err) == engine.ErrCodeVetoed:
		return "vetoed"
	}
	return "error"
}

func level(tx *engine.Transaction) string {
	if tx == nil || tx.IsRoot() {
		return "root"
	}
	return "sub"
}
