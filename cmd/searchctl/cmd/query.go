package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amitco96/Information-Retrieval/internal/indexstore/loader"
	"github.com/amitco96/Information-Retrieval/internal/searcher/executor"
	"github.com/amitco96/Information-Retrieval/internal/searcher/ranker"
)

func newQueryCmd(opts *globalOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "query <text...>",
		Short: "Run one search against the configured index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if limit == 0 {
				limit = cfg.Search.DefaultLimit
			}
			if limit < 1 || limit > ranker.MaxLimit {
				return fmt.Errorf("--limit must be within [1, %d], got %d", ranker.MaxLimit, limit)
			}

			ctx := cmd.Context()
			ix, err := loader.Open(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer ix.Close()

			bm25 := ranker.NewBM25(ix.Store,
				ranker.WithK1(cfg.Search.K1),
				ranker.WithB(cfg.Search.B),
				ranker.WithLimit(limit),
				ranker.WithConcurrency(cfg.Search.Concurrency),
			)
			res, err := executor.New(bm25, executor.WithTracing(cfg.Tracing.Enabled)).
				Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, res)
			}
			if len(res.Results) == 0 {
				fmt.Fprintln(out, "no results")
				return nil
			}
			for i, r := range res.Results {
				fmt.Fprintf(out, "%3d. %-10s %8.4f  %s\n", i+1, r.DocID, r.Score, r.Title)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (default: search.defaultLimit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")

	return cmd
}
