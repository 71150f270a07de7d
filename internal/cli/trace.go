package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/txgraph/internal/engine"
	"github.com/roach88/txgraph/internal/harness"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Structural bool     // include registration and state events
	Kinds      []string // optional - filter to these event kinds
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Scenario string         `json:"scenario"`
	Timeline []string       `json:"timeline"`
	Stats    map[string]int `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <scenario>",
		Short: "Print the event timeline of a scenario",
		Long: `Run a scenario in a private in-memory database and print every engine
event in emission order. Sub-transaction events are indented by depth.
Assertions are evaluated but do not affect the exit code.

The output includes:
- Timeline: one line per event
- Stats: number of events per kind

Examples:
  txgraph trace ./testdata/scenarios/sub_transaction.yaml
  txgraph trace ./scenario.yaml --kind Committing --kind Committed
  txgraph trace ./scenario.yaml --structural --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Structural, "structural", false, "include structural events")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "filter to event kind (repeatable)")

	return cmd
}

func runTrace(opts *TraceOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	for _, k := range opts.Kinds {
		if _, err := engine.ParseEventKind(k); err != nil {
			return WrapExitError(ExitCommandError, "invalid --kind", err)
		}
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	scenario.Structural = scenario.Structural || opts.Structural

	result, err := harness.RunWithOptions(scenario, harness.Options{
		Logger:          formatter.Logger(),
		MaxCommitRounds: opts.MaxCommitRounds,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	out := buildTimeline(scenario.Name, result.Trace, opts.Kinds)
	if formatter.IsJSON() {
		return formatter.Success(out)
	}

	w := formatter.Writer
	if len(out.Timeline) == 0 {
		fmt.Fprintf(w, "No events found for scenario: %s\n", out.Scenario)
		return nil
	}
	fmt.Fprintf(w, "Timeline for %s:\n", out.Scenario)
	for i, line := range out.Timeline {
		fmt.Fprintf(w, "%4d  %s\n", i+1, line)
	}
	fmt.Fprintln(w, "\nStats:")
	kinds := make([]string, 0, len(out.Stats))
	for k := range out.Stats {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-26s %d\n", k, out.Stats[k])
	}
	return nil
}

// buildTimeline keeps the lines whose kind is in kinds (all if empty) and
// counts them per kind.
func buildTimeline(name string, trace []string, kinds []string) TraceResult {
	out := TraceResult{Scenario: name, Timeline: []string{}, Stats: map[string]int{}}
	keep := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		keep[k] = true
	}
	for _, line := range trace {
		kind, _, _ := strings.Cut(strings.TrimSpace(line), " ")
		if len(keep) > 0 && !keep[kind] {
			continue
		}
		out.Timeline = append(out.Timeline, line)
		out.Stats[kind]++
	}
	return out
}
