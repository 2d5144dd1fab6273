package indexstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/amitco96/Information-Retrieval/pkg/errors"
	"github.com/amitco96/Information-Retrieval/pkg/metrics"
	"github.com/amitco96/Information-Retrieval/pkg/resilience"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		Documents: []Document{
			{ID: 1, Title: "Cats", Length: 8},
			{ID: 2, Title: "Dogs and cats", Length: 12},
			{ID: 3, Title: "Dogs", Length: 10},
			{ID: 4, Title: "Birds", Length: 10},
		},
		Terms: []TermEntry{
			{Term: "dog", Postings: PostingList{{DocID: 3, Frequency: 2}, {DocID: 2, Frequency: 1}}},
			{Term: "cat", Postings: PostingList{{DocID: 1, Frequency: 3}, {DocID: 2, Frequency: 1}}},
		},
	}
}

func TestDocID(t *testing.T) {
	id := DocID(18446744073709551615)
	assert.Equal(t, "18446744073709551615", id.String())
	parsed, err := ParseDocID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseDocID("-1")
	assert.Error(t, err)
}

func TestMemoryStoreMetadata(t *testing.T) {
	s, err := NewMemoryStore(testSnapshot())
	require.NoError(t, err)

	assert.Equal(t, int64(4), s.NumDocs())
	assert.InDelta(t, 10.0, s.AvgDocLength(), 1e-12)
	assert.Equal(t, 2, s.VocabularySize())

	df, ok := s.DocFreq("cat")
	require.True(t, ok)
	assert.Equal(t, int64(2), df)
	_, ok = s.DocFreq("fish")
	assert.False(t, ok)

	l, ok := s.DocLength(2)
	require.True(t, ok)
	assert.Equal(t, 12, l)
	title, ok := s.Title(3)
	require.True(t, ok)
	assert.Equal(t, "Dogs", title)
	_, ok = s.Title(99)
	assert.False(t, ok)
}

func TestMemoryStoreOverrides(t *testing.T) {
	snap := testSnapshot()
	snap.NumDocs = 1000
	snap.AvgDocLength = 42.5
	snap.Terms[0].DocFreq = 7

	s, err := NewMemoryStore(snap)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), s.NumDocs())
	assert.Equal(t, 42.5, s.AvgDocLength())
	df, _ := s.DocFreq("dog")
	assert.Equal(t, int64(7), df)
}

func TestMemoryStoreReadPostingList(t *testing.T) {
	s, err := NewMemoryStore(testSnapshot())
	require.NoError(t, err)

	got, err := s.ReadPostingList(context.Background(), "dog")
	require.NoError(t, err)
	assert.Equal(t, PostingList{{DocID: 2, Frequency: 1}, {DocID: 3, Frequency: 2}}, got)

	got, err = s.ReadPostingList(context.Background(), "fish")
	require.NoError(t, err)
	assert.Empty(t, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.ReadPostingList(ctx, "dog")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotNormalizeRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Snapshot)
		want   string
	}{
		{"duplicate term", func(s *Snapshot) { s.Terms = append(s.Terms, TermEntry{Term: "cat"}) }, "duplicate term"},
		{"duplicate document", func(s *Snapshot) { s.Documents = append(s.Documents, Document{ID: 1}) }, "duplicate document"},
		{"zero frequency", func(s *Snapshot) { s.Terms[0].Postings[0].Frequency = 0 }, "non-positive frequency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := testSnapshot()
			tt.mutate(snap)
			err := snap.Normalize()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	data := `{
		"documents": [{"id": 7, "title": "Seven", "length": 4}],
		"terms": [{"term": "seven", "postings": [{"doc_id": 7, "tf": 2}]}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	s, err := OpenMemoryStore(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.NumDocs())
	got, err := s.ReadPostingList(context.Background(), "seven")
	require.NoError(t, err)
	assert.Equal(t, PostingList{{DocID: 7, Frequency: 2}}, got)

	_, err = ReadSnapshot(strings.NewReader("{"))
	assert.Error(t, err)
	_, err = LoadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

// countingStore counts posting reads and fails the first failures reads.
type countingStore struct {
	Store
	reads    atomic.Int64
	failures int64
	err      error
}

func (c *countingStore) ReadPostingList(ctx context.Context, term string) (PostingList, error) {
	n := c.reads.Add(1)
	if c.err != nil && n <= c.failures {
		return nil, c.err
	}
	return c.Store.ReadPostingList(ctx, term)
}

func newCounting(t *testing.T, failures int64, err error) *countingStore {
	t.Helper()
	mem, e := NewMemoryStore(testSnapshot())
	require.NoError(t, e)
	return &countingStore{Store: mem, failures: failures, err: err}
}

func TestCachedStore(t *testing.T) {
	inner := newCounting(t, 0, nil)
	m := metrics.New(prometheus.NewRegistry())
	c, err := NewCachedStore(inner, 8, m)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := c.ReadPostingList(context.Background(), "cat")
		require.NoError(t, err)
		assert.Len(t, got, 2)
	}
	assert.Equal(t, int64(1), inner.reads.Load())
	assert.Equal(t, CacheStats{Hits: 2, Misses: 1, Len: 1}, c.Stats())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PostingCacheTotal.WithLabelValues("hit")))

	c.Purge()
	_, err = c.ReadPostingList(context.Background(), "cat")
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.reads.Load())
}

func TestCachedStoreDoesNotCacheErrors(t *testing.T) {
	errBoom := errors.New("boom")
	inner := newCounting(t, 1, errBoom)
	c, err := NewCachedStore(inner, 8, nil)
	require.NoError(t, err)

	_, err = c.ReadPostingList(context.Background(), "dog")
	require.ErrorIs(t, err, errBoom)
	got, err := c.ReadPostingList(context.Background(), "dog")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

// gatedStore blocks posting reads until release is closed.
type gatedStore struct {
	Store
	started chan struct{}
	release chan struct{}
	reads   atomic.Int64
}

func (g *gatedStore) ReadPostingList(ctx context.Context, term string) (PostingList, error) {
	if g.reads.Add(1) == 1 {
		close(g.started)
	}
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Store.ReadPostingList(ctx, term)
}

func TestCachedStoreSharedReadOutlivesCancelledCaller(t *testing.T) {
	mem, err := NewMemoryStore(testSnapshot())
	require.NoError(t, err)
	inner := &gatedStore{Store: mem, started: make(chan struct{}), release: make(chan struct{})}
	c, err := NewCachedStore(inner, 8, nil)
	require.NoError(t, err)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.ReadPostingList(firstCtx, "cat")
		firstErr <- err
	}()
	<-inner.started

	second := make(chan PostingList, 1)
	secondErr := make(chan error, 1)
	go func() {
		got, err := c.ReadPostingList(context.Background(), "cat")
		second <- got
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(inner.release)
	require.NoError(t, <-secondErr)
	assert.Len(t, <-second, 2)
	assert.Equal(t, int64(1), inner.reads.Load())
}

func TestNewCachedStoreRejectsBadSize(t *testing.T) {
	_, err := NewCachedStore(newCounting(t, 0, nil), 0, nil)
	assert.Error(t, err)
}

func fastResilience() ResilientConfig {
	return ResilientConfig{
		ReadTimeout: time.Second,
		Retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
		},
		CircuitBreaker: resilience.CircuitBreakerConfig{
			FailureThreshold: 2,
			ResetTimeout:     time.Minute,
		},
	}
}

func TestResilientStoreRetriesTransientFailures(t *testing.T) {
	inner := newCounting(t, 2, errors.New("transient"))
	m := metrics.New(prometheus.NewRegistry())
	s := NewResilientStore("test", inner, fastResilience(), m)

	got, err := s.ReadPostingList(context.Background(), "cat")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(3), inner.reads.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PostingReadsTotal.WithLabelValues("ok")))
}

func TestResilientStoreOpensCircuit(t *testing.T) {
	errDisk := errors.New("disk gone")
	inner := newCounting(t, 1000, errDisk)
	m := metrics.New(prometheus.NewRegistry())
	s := NewResilientStore("test", inner, fastResilience(), m)

	for i := 0; i < 2; i++ {
		_, err := s.ReadPostingList(context.Background(), "cat")
		require.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
		require.ErrorIs(t, err, errDisk)
	}
	assert.Equal(t, resilience.StateOpen, s.Breaker().GetState())
	assert.Equal(t, float64(resilience.StateOpen), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("test")))

	reads := inner.reads.Load()
	_, err := s.ReadPostingList(context.Background(), "cat")
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
	assert.Equal(t, reads, inner.reads.Load())
}

func TestResilientStoreCancelledContext(t *testing.T) {
	inner := newCounting(t, 1000, errors.New("slow"))
	s := NewResilientStore("test", inner, fastResilience(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.ReadPostingList(ctx, "cat")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, apperrors.ErrIndexUnavailable)
}

func TestShardedStore(t *testing.T) {
	a, err := NewMemoryStore(&Snapshot{
		Documents: []Document{{ID: 1, Title: "one", Length: 4}, {ID: 3, Title: "three", Length: 8}},
		Terms:     []TermEntry{{Term: "cat", Postings: PostingList{{DocID: 3, Frequency: 1}, {DocID: 1, Frequency: 2}}}},
	})
	require.NoError(t, err)
	b, err := NewMemoryStore(&Snapshot{
		Documents: []Document{{ID: 2, Title: "two", Length: 12}},
		Terms: []TermEntry{
			{Term: "cat", Postings: PostingList{{DocID: 2, Frequency: 5}}},
			{Term: "dog", Postings: PostingList{{DocID: 2, Frequency: 1}}},
		},
	})
	require.NoError(t, err)

	s, err := NewShardedStore(a, b)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.NumDocs())
	assert.InDelta(t, 8.0, s.AvgDocLength(), 1e-12)

	df, ok := s.DocFreq("cat")
	require.True(t, ok)
	assert.Equal(t, int64(3), df)
	df, ok = s.DocFreq("dog")
	require.True(t, ok)
	assert.Equal(t, int64(1), df)

	title, ok := s.Title(2)
	require.True(t, ok)
	assert.Equal(t, "two", title)
	l, ok := s.DocLength(3)
	require.True(t, ok)
	assert.Equal(t, 8, l)

	got, err := s.ReadPostingList(context.Background(), "cat")
	require.NoError(t, err)
	assert.Equal(t, PostingList{{DocID: 1, Frequency: 2}, {DocID: 2, Frequency: 5}, {DocID: 3, Frequency: 1}}, got)
	assert.Equal(t, 2, s.VocabularySize())
}

func TestShardedStoreFailurePropagates(t *testing.T) {
	errBoom := errors.New("boom")
	s, err := NewShardedStore(newCounting(t, 0, nil), newCounting(t, 1, errBoom))
	require.NoError(t, err)

	_, err = s.ReadPostingList(context.Background(), "cat")
	assert.ErrorIs(t, err, errBoom)

	_, err = NewShardedStore()
	assert.Error(t, err)
}
