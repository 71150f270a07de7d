package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/txgraph/internal/engine"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose         bool
	Format          string // "json" | "text"
	ConfigFile      string
	DBPath          string
	MaxCommitRounds int
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the txgraph CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

// newRootCommand builds the command tree around opts, which holds the
// resolved global options once a command runs.
func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "txgraph",
		Short: "txgraph - nested transactions over a record graph",
		Long: `txgraph loads records described by a CUE schema into nested
transactions, keeps bidirectional relations consistent, and commits
validated changes to SQLite.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, opts); err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags; each can also come from txgraph.yaml or TXGRAPH_*.
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default ./txgraph.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, keyVerbose, "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, keyFormat, "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, keyDB, "txgraph.db", "path to SQLite database")
	cmd.PersistentFlags().IntVar(&opts.MaxCommitRounds, keyMaxCommitRounds, engine.DefaultMaxCommitRounds, "commit/rollback round limit")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
