package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/txgraph/internal/engine"
)

// Config keys. Each is also a persistent flag name and, upper-cased with
// dashes as underscores, a TXGRAPH_ environment variable.
const (
	keyDB              = "db"
	keyVerbose         = "verbose"
	keyFormat          = "format"
	keyMaxCommitRounds = "max-commit-rounds"
)

// loadConfig resolves the global options from, in decreasing priority,
// command-line flags, TXGRAPH_* environment variables, the config file
// and defaults. The config file is --config, or txgraph.yaml in the
// working directory if present.
func loadConfig(cmd *cobra.Command, opts *RootOptions) error {
	v := viper.New()
	v.SetEnvPrefix("TXGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyDB, "txgraph.db")
	v.SetDefault(keyVerbose, false)
	v.SetDefault(keyFormat, "text")
	v.SetDefault(keyMaxCommitRounds, engine.DefaultMaxCommitRounds)

	flags := cmd.Root().PersistentFlags()
	for _, key := range []string{keyDB, keyVerbose, keyFormat, keyMaxCommitRounds} {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			return fmt.Errorf("bind flag %s: %w", key, err)
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("txgraph")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	opts.DBPath = v.GetString(keyDB)
	opts.Verbose = v.GetBool(keyVerbose)
	opts.Format = v.GetString(keyFormat)
	opts.MaxCommitRounds = v.GetInt(keyMaxCommitRounds)
	if opts.MaxCommitRounds <= 0 {
		return fmt.Errorf("%s must be positive, got %d", keyMaxCommitRounds, opts.MaxCommitRounds)
	}
	return nil
}
