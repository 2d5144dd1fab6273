// Package cmd provides the searchctl commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/amitco96/Information-Retrieval/pkg/config"
	"github.com/amitco96/Information-Retrieval/pkg/logger"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	backend    string
	indexPath  string
	logLevel   string
}

// NewRootCmd creates the root command for searchctl.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "searchctl",
		Short:         "Query and inspect a BM25 index",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logger.SetupWriter(cmd.ErrOrStderr(), opts.logLevel, "text")
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (defaults apply when empty)")
	cmd.PersistentFlags().StringVar(&opts.backend, "backend", "", "index backend: memory, segment, sqlite or postgres")
	cmd.PersistentFlags().StringVar(&opts.indexPath, "index", "", "index path, overriding the config")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	cmd.AddCommand(newQueryCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newTokenizeCmd())
	cmd.AddCommand(newConvertCmd(opts))

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig applies the index flags over the loaded configuration.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.backend != "" {
		cfg.Index.Backend = o.backend
	}
	if o.indexPath != "" {
		cfg.Index.Path = o.indexPath
		cfg.Index.ShardPaths = nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
