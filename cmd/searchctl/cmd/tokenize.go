package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amitco96/Information-Retrieval/internal/searcher/tokenizer"
)

func newTokenizeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tokenize <text...>",
		Short: "Print the tokens a query is searched with",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens := tokenizer.Tokenize(strings.Join(args, " "))
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), tokens)
			}
			for _, tok := range tokens {
				fmt.Fprintln(cmd.OutOrStdout(), tok)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the tokens as a JSON array")
	return cmd
}
