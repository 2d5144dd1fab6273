package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amitco96/Information-Retrieval/internal/indexstore"
	"github.com/amitco96/Information-Retrieval/internal/indexstore/segment"
	"github.com/amitco96/Information-Retrieval/internal/indexstore/sqlstore"
	"github.com/amitco96/Information-Retrieval/pkg/config"
	"github.com/amitco96/Information-Retrieval/pkg/postgres"
)

func newConvertCmd(opts *globalOptions) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "convert <snapshot.json>",
		Short: "Write a JSON index snapshot as a segment file or SQL tables",
		Long: `Convert reads a JSON snapshot (the memory backend format) and writes it
in the layout of another backend:

  segment   a .spdx segment file at --output
  sqlite    a SQLite database at --output
  postgres  the database named in the postgres config section`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := indexstore.LoadSnapshot(args[0])
			if err != nil {
				return err
			}

			switch format {
			case config.BackendSegment:
				if output == "" {
					return fmt.Errorf("--output is required for format %q", format)
				}
				err = segment.Write(output, snap)
			case config.BackendSQLite:
				if output == "" {
					return fmt.Errorf("--output is required for format %q", format)
				}
				err = importSQLite(cmd.Context(), output, snap)
			case config.BackendPostgres:
				err = importPostgres(cmd.Context(), opts, snap)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d documents, %d terms as %s\n", len(snap.Documents), len(snap.Terms), format)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", config.BackendSegment, "target layout: segment, sqlite or postgres")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path for segment and sqlite")
	return cmd
}

func importSQLite(ctx context.Context, path string, snap *indexstore.Snapshot) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	defer db.Close()
	return sqlstore.Import(ctx, db, sqlstore.SQLite, snap)
}

func importPostgres(ctx context.Context, opts *globalOptions, snap *indexstore.Snapshot) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	client, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer client.Close()
	return sqlstore.Import(ctx, client.DB, sqlstore.Postgres, snap)
}
