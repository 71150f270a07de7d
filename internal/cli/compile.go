package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/txgraph/internal/ir"
	"github.com/roach88/txgraph/internal/schema"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	Classes    int `json:"classes"`
	Properties int `json:"properties"`
	Relations  int `json:"relations"`
	Virtual    int `json:"virtual"`
	Mandatory  int `json:"mandatory"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <schema>",
		Short: "Compile a CUE schema to its JSON model",
		Long: `Compile a CUE schema file or directory into the JSON class model the
engine runs on. The schema must validate; use "txgraph validate" for the
full error list.

Examples:
  txgraph compile ./testdata/schemas/office.cue
  txgraph compile ./schemas -o model.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, err := LoadSchema(path)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	if errs := schema.Validate(loaded.Model); len(errs) > 0 {
		_ = formatter.Error(errs[0].Code, errs[0].Error(), errs)
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d validation error(s)", len(errs)))
	}
	for _, c := range loaded.Model.Classes {
		formatter.VerboseLog("Compiled class: %s", c.Name)
	}

	if opts.Output != "" {
		if err := writeModelToFile(loaded.Model, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	if formatter.IsJSON() {
		return formatter.Success(loaded.Model)
	}
	return outputCompileText(formatter, loaded.Model, opts.Output)
}

// calculateStats computes summary statistics of a model.
func calculateStats(m *ir.SchemaModel) CompilationStats {
	stats := CompilationStats{Classes: len(m.Classes)}
	for _, c := range m.Classes {
		stats.Properties += len(c.Properties)
		stats.Relations += len(c.Relations)
		for _, r := range c.Relations {
			if r.Virtual {
				stats.Virtual++
			}
			if r.Mandatory {
				stats.Mandatory++
			}
		}
	}
	return stats
}

func outputCompileText(formatter *OutputFormatter, m *ir.SchemaModel, outputFile string) error {
	w := formatter.Writer
	stats := calculateStats(m)
	fmt.Fprintf(w, "✓ Compiled %d class(es), %d propert(ies), %d relation end-point(s)\n\n",
		stats.Classes, stats.Properties, stats.Relations)

	for _, c := range m.Classes {
		fmt.Fprintf(w, "%s\n", c.Name)
		for _, p := range c.Properties {
			flags := ""
			if p.Required {
				flags += " required"
			}
			if p.MaxLength > 0 {
				flags += fmt.Sprintf(" max=%d", p.MaxLength)
			}
			fmt.Fprintf(w, "  .%s %s%s\n", p.Name, p.Type, flags)
		}
		for _, r := range c.Relations {
			kind := "real"
			if r.Virtual {
				kind = "virtual"
			}
			opposite := ""
			if r.Opposite != "" {
				opposite = " <-> " + r.Class + "." + r.Opposite
			}
			mandatory := ""
			if r.Mandatory {
				mandatory = " mandatory"
			}
			fmt.Fprintf(w, "  .%s -> %s (%s %s%s)%s\n", r.Name, r.Class, kind, r.Cardinality, mandatory, opposite)
		}
	}

	if outputFile != "" {
		fmt.Fprintf(w, "\nWrote model to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// writeModelToFile writes the model as indented JSON.
func writeModelToFile(m *ir.SchemaModel, filename string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling model: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
