package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amitco96/Information-Retrieval/internal/indexstore"
	"github.com/amitco96/Information-Retrieval/internal/indexstore/loader"
)

func newStatsCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print document count, average length and vocabulary size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ix, err := loader.Open(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer ix.Close()

			stats := indexstore.StatsOf(ix.Store)
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, stats)
			}
			fmt.Fprintf(out, "backend:        %s\n", ix.Backend)
			fmt.Fprintf(out, "documents:      %d\n", stats.NumDocs)
			fmt.Fprintf(out, "avg doc length: %.2f\n", stats.AvgDocLength)
			fmt.Fprintf(out, "vocabulary:     %d\n", stats.VocabularySize)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the stats as JSON")
	return cmd
}
