package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/txgraph/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                     `json:"valid"`
	Classes  int                      `json:"classes"`
	Errors   []schema.ValidationError `json:"errors,omitempty"`
	Warnings []schema.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <schema>",
		Short: "Validate a CUE schema",
		Long: `Validate a CUE schema file or directory.

Reports every naming, type and relation-pairing error, and warns about
cycles of mandatory relations (records in such a cycle can only be created
together and never deleted on their own).

Exit codes:
  0 - Schema valid (warnings allowed)
  1 - Validation errors
  2 - Schema could not be loaded`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, err := LoadSchema(path)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, path)

	result := ValidationResult{
		Classes:  len(loaded.Model.Classes),
		Errors:   schema.Validate(loaded.Model),
		Warnings: schema.AnalyzeCycles(loaded.Model),
	}
	result.Valid = len(result.Errors) == 0

	if !result.Valid {
		msg := fmt.Sprintf("validation failed with %d error(s)", len(result.Errors))
		if formatter.IsJSON() {
			if err := formatter.Failure(result.Errors[0].Code, result.Errors[0].Message, result); err != nil {
				return err
			}
			return NewExitError(ExitFailure, msg)
		}
		w := formatter.Writer
		fmt.Fprintln(w, "✗ Validation failed")
		fmt.Fprintln(w)
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s %s: %s\n", e.Code, e.Field, e.Message)
		}
		printWarnings(formatter, result.Warnings)
		return NewExitError(ExitFailure, msg)
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Schema valid (%d classes)\n", result.Classes)
	printWarnings(formatter, result.Warnings)
	return nil
}

func printWarnings(formatter *OutputFormatter, warnings []schema.CycleWarning) {
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "  warning: %s (%s)\n", w.Message, strings.Join(w.Path, " -> "))
	}
}

// outputLoadError reports a schema that could not be loaded (exit code 2).
func outputLoadError(formatter *OutputFormatter, err error) error {
	code, message := ErrCodeGeneric, err.Error()
	var le *LoadError
	if errors.As(err, &le) {
		code = le.Code
		if le.Pos.IsValid() {
			message = fmt.Sprintf("line %d: %s", le.Pos.Line(), le.Message)
		} else {
			message = le.Message
		}
	}
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}
