package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/roach88/txgraph/internal/ir"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// VersionInfo is the JSON payload of the version command.
type VersionInfo struct {
	Version       string `json:"version"`
	EngineVersion string `json:"engine_version"`
	FormatVersion string `json:"format_version"`
	GoVersion     string `json:"go_version"`
	Platform      string `json:"platform"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			info := VersionInfo{
				Version:       Version,
				EngineVersion: ir.EngineVersion,
				FormatVersion: ir.FormatVersion,
				GoVersion:     runtime.Version(),
				Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			}
			if formatter.IsJSON() {
				return formatter.Success(info)
			}
			fmt.Fprintf(formatter.Writer, "txgraph %s (engine %s, format %s, %s %s)\n", info.Version, info.EngineVersion, info.FormatVersion, info.GoVersion, info.Platform)
			return nil
		},
	}
}
