package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/roach88/txgraph/internal/harness"
	"github.com/roach88/txgraph/internal/metrics"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	NoMetrics bool
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Scenario string            `json:"scenario"`
	Pass     bool              `json:"pass"`
	Trace    []string          `json:"trace"`
	State    map[string]string `json:"state"`
	Errors   []string          `json:"errors,omitempty"`
	Metrics  []MetricSample    `json:"metrics,omitempty"`
}

// MetricSample is one counter or histogram series after the run.
type MetricSample struct {
	Name   string  `json:"name"`
	Labels string  `json:"labels,omitempty"`
	Value  float64 `json:"value"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a scenario against the SQLite database",
		Long: `Run a scenario file against the database given by --db (created if
missing). Seed records already stored are kept as they are, and committed
changes stay in the database. Prints the event trace, the final record
states and the engine metrics of the run.

Examples:
  txgraph run --db ./txgraph.db ./testdata/scenarios/one_to_one_swap.yaml
  txgraph run ./scenario.yaml --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoMetrics, "no-metrics", false, "do not print metrics")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := formatter.Logger()

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	reg := prometheus.NewRegistry()
	collector, err := metrics.New(reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create metrics", err)
	}

	logger.Info("running scenario", "name", scenario.Name, "db", opts.DBPath)
	result, err := harness.RunWithOptions(scenario, harness.Options{
		DBPath:          opts.DBPath,
		Logger:          logger,
		Metrics:         collector,
		MaxCommitRounds: opts.MaxCommitRounds,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	out := RunResult{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Trace:    result.Trace,
		State:    result.State,
		Errors:   result.Errors,
	}
	if !opts.NoMetrics {
		if out.Metrics, err = gatherSamples(reg); err != nil {
			return WrapExitError(ExitCommandError, "failed to gather metrics", err)
		}
	}

	if formatter.IsJSON() {
		if out.Pass {
			return formatter.Success(out)
		}
		if err := formatter.Failure(ErrCodeTestFailed, "scenario failed", out); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return outputRunText(formatter, out)
}

func outputRunText(formatter *OutputFormatter, out RunResult) error {
	w := formatter.Writer
	fmt.Fprintf(w, "Scenario: %s\n\nTrace:\n", out.Scenario)
	for _, line := range out.Trace {
		fmt.Fprintf(w, "  %s\n", line)
	}

	fmt.Fprintln(w, "\nRecords:")
	ids := make([]string, 0, len(out.State))
	for id := range out.State {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  %-24s %s\n", id, out.State[id])
	}

	if len(out.Metrics) > 0 {
		fmt.Fprintln(w, "\nMetrics:")
		for _, m := range out.Metrics {
			fmt.Fprintf(w, "  %s%s %g\n", m.Name, m.Labels, m.Value)
		}
	}

	if !out.Pass {
		fmt.Fprintf(w, "\n✗ %s\n", out.Scenario)
		for _, e := range out.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", out.Scenario))
	}
	fmt.Fprintf(w, "\n✓ %s\n", out.Scenario)
	return nil
}

// gatherSamples flattens the registry. Histograms report their sample count.
func gatherSamples(g prometheus.Gatherer) ([]MetricSample, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	var samples []MetricSample
	for _, f := range families {
		for _, m := range f.GetMetric() {
			s := MetricSample{Name: f.GetName(), Labels: formatLabels(m.GetLabel())}
			switch f.GetType() {
			case dto.MetricType_COUNTER:
				s.Value = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				s.Value = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				s.Name += "_count"
				s.Value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			samples = append(samples, s)
		}
	}
	return samples, nil
}

func formatLabels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = fmt.Sprintf("%s=%q", p.GetName(), p.GetValue())
	}
	return "{" + strings.Join(parts, ",") + "}"
}
