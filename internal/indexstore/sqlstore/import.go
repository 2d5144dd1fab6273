package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/amitco96/Information-Retrieval/internal/indexstore"
)

// Import replaces the index tables in db with the contents of snap inside
// one transaction. It creates the tables when missing.
func Import(ctx context.Context, db *sql.DB, dialect Dialect, snap *indexstore.Snapshot) error {
	if err := snap.Normalize(); err != nil {
		return fmt.Errorf("importing snapshot: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning import: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"postings", "terms", "documents", "index_stats"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	p := dialect.placeholder
	meta := snap.Metadata()
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO index_stats (num_docs, avg_doc_length) VALUES (%s, %s)", p(1), p(2)),
		meta.TotalDocs, meta.AvgLength,
	); err != nil {
		return fmt.Errorf("inserting index stats: %w", err)
	}

	docStmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf("INSERT INTO documents (id, length, title) VALUES (%s, %s, %s)", p(1), p(2), p(3)))
	if err != nil {
		return fmt.Errorf("preparing document insert: %w", err)
	}
	defer docStmt.Close()
	for _, d := range snap.Documents {
		if _, err := docStmt.ExecContext(ctx, int64(d.ID), d.Length, d.Title); err != nil {
			return fmt.Errorf("inserting document %d: %w", d.ID, err)
		}
	}

	termStmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf("INSERT INTO terms (term, df) VALUES (%s, %s)", p(1), p(2)))
	if err != nil {
		return fmt.Errorf("preparing term insert: %w", err)
	}
	defer termStmt.Close()
	postStmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf("INSERT INTO postings (term, doc_id, tf) VALUES (%s, %s, %s)", p(1), p(2), p(3)))
	if err != nil {
		return fmt.Errorf("preparing posting insert: %w", err)
	}
	defer postStmt.Close()
	for _, t := range snap.Terms {
		df, _ := meta.DocFreq(t.Term)
		if _, err := termStmt.ExecContext(ctx, t.Term, df); err != nil {
			return fmt.Errorf("inserting term %q: %w", t.Term, err)
		}
		for _, posting := range t.Postings {
			if _, err := postStmt.ExecContext(ctx, t.Term, int64(posting.DocID), posting.Frequency); err != nil {
				return fmt.Errorf("inserting posting %q/%d: %w", t.Term, posting.DocID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}
	return nil
}
