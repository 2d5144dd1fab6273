package loader

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amitco96/Information-Retrieval/internal/indexstore"
	"github.com/amitco96/Information-Retrieval/internal/indexstore/segment"
	"github.com/amitco96/Information-Retrieval/internal/indexstore/sqlstore"
	"github.com/amitco96/Information-Retrieval/pkg/config"
	"github.com/amitco96/Information-Retrieval/pkg/health"
	"github.com/amitco96/Information-Retrieval/pkg/metrics"
)

func snapshot(ids ...indexstore.DocID) *indexstore.Snapshot {
	snap := &indexstore.Snapshot{}
	postings := indexstore.PostingList{}
	for _, id := range ids {
		snap.Documents = append(snap.Documents, indexstore.Document{ID: id, Title: "doc " + id.String(), Length: 10})
		postings = append(postings, indexstore.Posting{DocID: id, Frequency: 1})
	}
	snap.Terms = []indexstore.TermEntry{{Term: "cat", Postings: postings}}
	return snap
}

func configFor(backend, path string) *config.Config {
	cfg := config.Default()
	cfg.Index.Backend = backend
	cfg.Index.Path = path
	return cfg
}

func assertServesCat(t *testing.T, ix *Index, want int) {
	t.Helper()
	got, err := ix.Store.ReadPostingList(context.Background(), "cat")
	require.NoError(t, err)
	assert.Len(t, got, want)
	assert.Equal(t, int64(want), ix.Store.NumDocs())
}

func TestOpenMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	data, err := json.Marshal(snapshot(1, 2))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg := configFor(config.BackendMemory, path)
	cfg.Index.PostingCacheSize = 0
	ix, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer ix.Close()

	assertServesCat(t, ix, 2)
	assert.Nil(t, ix.Resilient)
	assert.Nil(t, ix.Cache)
}

func TestOpenSegment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.spdx")
	require.NoError(t, segment.Write(path, snapshot(1, 2, 3)))

	m := metrics.New(prometheus.NewRegistry())
	ix, err := Open(context.Background(), configFor(config.BackendSegment, path), m)
	require.NoError(t, err)
	defer ix.Close()

	assertServesCat(t, ix, 3)
	require.NotNil(t, ix.Resilient)
	require.NotNil(t, ix.Cache)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.IndexDocuments))
	assert.Equal(t, 1, indexstore.StatsOf(ix.Store).VocabularySize)

	report := ix.HealthCheck()(context.Background())
	assert.Equal(t, health.StatusUp, report.Status)
}

func TestOpenSegmentShards(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "shard-0.spdx")
	b := filepath.Join(dir, "shard-1.spdx")
	require.NoError(t, segment.Write(a, snapshot(1, 3)))
	require.NoError(t, segment.Write(b, snapshot(2)))

	cfg := configFor(config.BackendSegment, "")
	cfg.Index.ShardPaths = []string{a, b}
	ix, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer ix.Close()

	assertServesCat(t, ix, 3)
	df, ok := ix.Store.DocFreq("cat")
	require.True(t, ok)
	assert.Equal(t, int64(3), df)
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	require.NoError(t, sqlstore.Import(context.Background(), db, sqlstore.SQLite, snapshot(5, 6)))
	require.NoError(t, db.Close())

	ix, err := Open(context.Background(), configFor(config.BackendSQLite, path), nil)
	require.NoError(t, err)
	assertServesCat(t, ix, 2)
	assert.Equal(t, health.StatusUp, ix.HealthCheck()(context.Background()).Status)
	require.NoError(t, ix.Close())
}

func TestOpenFailures(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	tests := []struct {
		name string
		cfg  *config.Config
	}{
		{"unknown backend", configFor("bigtable", missing)},
		{"missing memory snapshot", configFor(config.BackendMemory, missing+".json")},
		{"missing segment", configFor(config.BackendSegment, missing+".spdx")},
		{"sqlite without schema", configFor(config.BackendSQLite, missing+".db")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(context.Background(), tt.cfg, nil)
			assert.Error(t, err)
		})
	}
}
