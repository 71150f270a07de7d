package cli

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Class string // optional - only records of this class
}

// ShowResult is the JSON payload of the show command.
type ShowResult struct {
	SchemaVersion int               `json:"schema_version"`
	Stats         store.CommitStats `json:"stats"`
	Records       []ir.StoredRecord `json:"records"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print stored records and commit statistics",
		Long: `Print every record stored in the database given by --db, ordered by
class then key, followed by the totals of the commit log.

Examples:
  txgraph show --db ./txgraph.db
  txgraph show --db ./txgraph.db --class Person --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Class, "class", "", "only show records of this class")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Opening would create a missing database.
	if _, err := os.Stat(opts.DBPath); err != nil {
		return storeError(formatter, "database not found", err)
	}
	st, err := store.Open(opts.DBPath)
	if err != nil {
		return storeError(formatter, "failed to open database", err)
	}
	defer st.Close()

	version, err := st.SchemaVersion(ctx)
	if err != nil {
		return storeError(formatter, "failed to read schema version", err)
	}
	stats, err := st.Stats(ctx)
	if err != nil {
		return storeError(formatter, "failed to read commit stats", err)
	}
	all, err := st.Dump(ctx)
	if err != nil {
		return storeError(formatter, "failed to read records", err)
	}
	records := all[:0:0]
	for _, r := range all {
		if opts.Class == "" || r.ID.Class == opts.Class {
			records = append(records, r)
		}
	}

	out := ShowResult{SchemaVersion: version, Stats: stats, Records: records}
	if formatter.IsJSON() {
		return formatter.Success(out)
	}

	w := formatter.Writer
	for _, r := range records {
		props, err := ir.MarshalCanonical(r.Properties)
		if err != nil {
			return storeError(formatter, "failed to render record", err)
		}
		fmt.Fprintf(w, "%s @%d %s\n", r.ID, r.Revision, props)
		for _, name := range sortedNames(r.Refs) {
			fmt.Fprintf(w, "  .%s -> %s\n", name, r.Refs[name])
		}
		for _, name := range sortedNames(r.Lists) {
			fmt.Fprintf(w, "  .%s -> %v\n", name, r.Lists[name])
		}
	}
	fmt.Fprintf(w, "\n%d record(s); %d commit(s): %d insert(s), %d update(s), %d delete(s)\n",
		len(records), stats.Commits, stats.Inserts, stats.Updates, stats.Deletes)
	return nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// storeError reports a database failure (exit code 2).
func storeError(formatter *OutputFormatter, message string, err error) error {
	_ = formatter.Error(ErrCodeStore, fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(ExitCommandError, message, err)
}
