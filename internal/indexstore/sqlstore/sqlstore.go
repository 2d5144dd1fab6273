// Package sqlstore serves an index kept in a relational database. The same
// four tables are read from SQLite (modernc.org/sqlite) and PostgreSQL
// (lib/pq):
//
//	index_stats(num_docs, avg_doc_length)
//	terms(term, df)
//	documents(id, length, title)
//	postings(term, doc_id, tf)
//
// Term statistics and document metadata are loaded at Open; postings are
// queried per term.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/amitco96/Information-Retrieval/internal/indexstore"
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS index_stats (
		num_docs BIGINT NOT NULL,
		avg_doc_length DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS terms (
		term TEXT PRIMARY KEY,
		df BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id BIGINT PRIMARY KEY,
		length INTEGER NOT NULL,
		title TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS postings (
		term TEXT NOT NULL,
		doc_id BIGINT NOT NULL,
		tf INTEGER NOT NULL,
		PRIMARY KEY (term, doc_id)
	)`,
}

// Store reads postings from the database on demand.
type Store struct {
	*indexstore.Metadata
	db            *sql.DB
	dialect       Dialect
	postingsQuery string
	ownsDB        bool
	logger        *slog.Logger
}

// Open loads metadata from db. The caller keeps ownership of db.
func Open(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{
		db:      db,
		dialect: dialect,
		postingsQuery: "SELECT doc_id, tf FROM postings WHERE term = " +
			dialect.placeholder(1) + " ORDER BY doc_id",
		logger: slog.Default().With("component", "sql-store", "dialect", dialect.String()),
	}
	meta, err := s.loadMetadata(ctx)
	if err != nil {
		return nil, err
	}
	s.Metadata = meta
	s.logger.Info("index metadata loaded",
		"num_docs", meta.TotalDocs,
		"avg_doc_length", meta.AvgLength,
		"terms", len(meta.DocFreqs),
	)
	return s, nil
}

// OpenSQLite opens the SQLite database at path and loads it. Close releases
// the database.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	s, err := Open(ctx, db, SQLite)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite %s: %w", path, err)
	}
	s.ownsDB = true
	return s, nil
}

func (s *Store) loadMetadata(ctx context.Context) (*indexstore.Metadata, error) {
	meta := indexstore.NewMetadata()

	rows, err := s.db.QueryContext(ctx, "SELECT id, length, title FROM documents")
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	var totalLength int64
	for rows.Next() {
		var id int64
		var length int
		var title string
		if err := rows.Scan(&id, &length, &title); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		meta.DocLengths[indexstore.DocID(id)] = length
		meta.Titles[indexstore.DocID(id)] = title
		totalLength += int64(length)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, "SELECT term, df FROM terms")
	if err != nil {
		return nil, fmt.Errorf("querying terms: %w", err)
	}
	for rows.Next() {
		var term string
		var df int64
		if err := rows.Scan(&term, &df); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning term row: %w", err)
		}
		meta.DocFreqs[term] = df
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading terms: %w", err)
	}

	err = s.db.QueryRowContext(ctx, "SELECT num_docs, avg_doc_length FROM index_stats LIMIT 1").
		Scan(&meta.TotalDocs, &meta.AvgLength)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		meta.TotalDocs = int64(len(meta.DocLengths))
		if meta.TotalDocs > 0 {
			meta.AvgLength = float64(totalLength) / float64(meta.TotalDocs)
		}
	case err != nil:
		return nil, fmt.Errorf("querying index stats: %w", err)
	}
	return meta, nil
}

func (s *Store) ReadPostingList(ctx context.Context, term string) (indexstore.PostingList, error) {
	rows, err := s.db.QueryContext(ctx, s.postingsQuery, term)
	if err != nil {
		return nil, fmt.Errorf("querying postings for %q: %w", term, err)
	}
	defer rows.Close()

	var postings indexstore.PostingList
	for rows.Next() {
		var id int64
		var tf int
		if err := rows.Scan(&id, &tf); err != nil {
			return nil, fmt.Errorf("scanning posting for %q: %w", term, err)
		}
		postings = append(postings, indexstore.Posting{DocID: indexstore.DocID(id), Frequency: tf})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading postings for %q: %w", term, err)
	}
	return postings, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database when the store opened it.
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
