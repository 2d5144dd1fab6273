package ranker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amitco96/Information-Retrieval/internal/indexstore"
	apperrors "github.com/amitco96/Information-Retrieval/pkg/errors"
)

// catStore has N=4 and avgdl=10; "cat" has df=2 with postings (1,3), (2,1).
func catStore(t testing.TB) *indexstore.MemoryStore {
	t.Helper()
	s, err := indexstore.NewMemoryStore(&indexstore.Snapshot{
		Documents: []indexstore.Document{
			{ID: 1, Title: "One", Length: 8},
			{ID: 2, Title: "Two", Length: 12},
			{ID: 3, Title: "Three", Length: 10},
			{ID: 4, Title: "Four", Length: 10},
		},
		Terms: []indexstore.TermEntry{
			{Term: "cat", Postings: indexstore.PostingList{{DocID: 1, Frequency: 3}, {DocID: 2, Frequency: 1}}},
			{Term: "dog", Postings: indexstore.PostingList{{DocID: 3, Frequency: 1}}},
		},
	})
	require.NoError(t, err)
	return s
}

type countingStore struct {
	indexstore.Store
	reads atomic.Int64
	err   error
}

func (c *countingStore) ReadPostingList(ctx context.Context, term string) (indexstore.PostingList, error) {
	c.reads.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.Store.ReadPostingList(ctx, term)
}

type untitledStore struct {
	indexstore.Store
	missing indexstore.DocID
}

func (u untitledStore) Title(id indexstore.DocID) (string, bool) {
	if id == u.missing {
		return "", false
	}
	return u.Store.Title(id)
}

func TestWorkedExample(t *testing.T) {
	results, err := NewBM25(catStore(t)).CalculateScores(context.Background(), []string{"cat"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "1", results[0].DocID)
	assert.Equal(t, "One", results[0].Title)
	assert.InDelta(t, 7.5/4.275, results[0].Score, 1e-9)
	assert.Equal(t, "2", results[1].DocID)
	assert.InDelta(t, 2.5/2.725, results[1].Score, 1e-9)
}

func TestIDF(t *testing.T) {
	assert.InDelta(t, 1.0, IDF(4, 2), 1e-12)
	for _, n := range []int64{1, 10, 1000, 1 << 40} {
		idf := IDF(n, n)
		assert.Greater(t, idf, 0.0, "N=df=%d", n)
		assert.Less(t, idf, IDF(n, n/2+1)+1e-12)
	}
	assert.Less(t, IDF(1<<40, 1<<40), 1e-9)
}

func TestTermWeight(t *testing.T) {
	tests := []struct {
		name  string
		tf    int
		dl    int
		avgdl float64
		k1, b float64
		want  float64
	}{
		{"average length", 1, 10, 10, 1.5, 0.75, 1.0},
		{"short document", 3, 8, 10, 1.5, 0.75, 7.5 / 4.275},
		{"no length normalisation", 2, 100, 10, 1.2, 0, 2 * 2.2 / 3.2},
		{"zero avgdl uses ratio one", 1, 50, 0, 1.5, 0.75, 1.0},
		{"negative avgdl uses ratio one", 1, 50, -3, 1.5, 0.75, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TermWeight(tt.tf, tt.dl, tt.avgdl, tt.k1, tt.b), 1e-12)
		})
	}
}

func TestDuplicateTokensAccumulate(t *testing.T) {
	store := &countingStore{Store: catStore(t)}
	r := NewBM25(store)

	single, err := r.CalculateScores(context.Background(), []string{"cat"})
	require.NoError(t, err)
	store.reads.Store(0)
	double, err := r.CalculateScores(context.Background(), []string{"cat", "cat"})
	require.NoError(t, err)

	assert.Equal(t, int64(2), store.reads.Load())
	require.Len(t, double, len(single))
	for i := range single {
		assert.Equal(t, single[i].DocID, double[i].DocID)
		assert.InDelta(t, 2*single[i].Score, double[i].Score, 1e-12)
	}
}

func TestUnknownTokensAreSkippedWithoutReads(t *testing.T) {
	store := &countingStore{Store: catStore(t)}
	r := NewBM25(store)

	results, err := r.CalculateScores(context.Background(), []string{"unicorn", "zebra"})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Equal(t, int64(0), store.reads.Load())

	results, err = r.CalculateScores(context.Background(), []string{"unicorn", "dog"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "3", results[0].DocID)
	assert.Equal(t, int64(1), store.reads.Load())
}

func TestEmptyTokens(t *testing.T) {
	results, err := NewBM25(catStore(t)).CalculateScores(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

// wideStore has n documents of equal length; document i has tf = tfOf(i)
// for "common".
func wideStore(t testing.TB, n int, tfOf func(i int) int) *indexstore.MemoryStore {
	t.Helper()
	snap := &indexstore.Snapshot{NumDocs: int64(n) * 4}
	postings := make(indexstore.PostingList, 0, n)
	for i := 0; i < n; i++ {
		id := indexstore.DocID(i + 1)
		snap.Documents = append(snap.Documents, indexstore.Document{ID: id, Title: fmt.Sprintf("doc %d", i+1), Length: 20})
		postings = append(postings, indexstore.Posting{DocID: id, Frequency: tfOf(i)})
	}
	snap.Terms = []indexstore.TermEntry{{Term: "common", Postings: postings}}
	s, err := indexstore.NewMemoryStore(snap)
	require.NoError(t, err)
	return s
}

func TestResultsAreCappedAndOrdered(t *testing.T) {
	store := wideStore(t, 250, func(i int) int { return i%17 + 1 })
	results, err := NewBM25(store).CalculateScores(context.Background(), []string{"common"})
	require.NoError(t, err)
	require.Len(t, results, MaxLimit)

	for i := 1; i < len(results); i++ {
		prev, cur := results[i-1], results[i]
		require.GreaterOrEqual(t, prev.Score, cur.Score)
		if prev.Score == cur.Score {
			require.Less(t, mustParse(t, prev.DocID), mustParse(t, cur.DocID))
		}
	}
	assert.Equal(t, "17", results[0].DocID)
}

func TestTiesBrokenByDocID(t *testing.T) {
	store := wideStore(t, 150, func(int) int { return 1 })
	results, err := NewBM25(store).CalculateScores(context.Background(), []string{"common"})
	require.NoError(t, err)
	require.Len(t, results, 100)
	for i, r := range results {
		assert.Equal(t, fmt.Sprint(i+1), r.DocID)
	}
}

func TestWithLimit(t *testing.T) {
	store := wideStore(t, 150, func(i int) int { return i%5 + 1 })
	tests := []struct {
		limit int
		want  int
	}{
		{1, 1},
		{10, 10},
		{0, 100},
		{-5, 100},
		{1000, 100},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.limit), func(t *testing.T) {
			results, err := NewBM25(store, WithLimit(tt.limit)).CalculateScores(context.Background(), []string{"common"})
			require.NoError(t, err)
			assert.Len(t, results, tt.want)
		})
	}
}

func TestNonPositiveScoresDropped(t *testing.T) {
	// df > N makes idf negative; such documents never appear.
	s, err := indexstore.NewMemoryStore(&indexstore.Snapshot{
		NumDocs:   1,
		Documents: []indexstore.Document{{ID: 1, Title: "x", Length: 5}, {ID: 2, Title: "y", Length: 5}},
		Terms: []indexstore.TermEntry{
			{Term: "everywhere", DocFreq: 50, Postings: indexstore.PostingList{{DocID: 1, Frequency: 1}, {DocID: 2, Frequency: 1}}},
		},
	})
	require.NoError(t, err)
	results, err := NewBM25(s).CalculateScores(context.Background(), []string{"everywhere"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestParameters(t *testing.T) {
	store := catStore(t)
	results, err := NewBM25(store, WithK1(1.2), WithB(0)).CalculateScores(context.Background(), []string{"cat"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.InDelta(t, 3*2.2/4.2, results[0].Score, 1e-12)
	assert.InDelta(t, 1.0, results[1].Score, 1e-12)
}

func TestMissingLengthIsInconsistent(t *testing.T) {
	s, err := indexstore.NewMemoryStore(&indexstore.Snapshot{
		Documents: []indexstore.Document{{ID: 1, Title: "x", Length: 5}},
		Terms: []indexstore.TermEntry{
			{Term: "ghost", Postings: indexstore.PostingList{{DocID: 1, Frequency: 1}, {DocID: 99, Frequency: 1}}},
		},
	})
	require.NoError(t, err)
	_, err = NewBM25(s).CalculateScores(context.Background(), []string{"ghost"})
	require.ErrorIs(t, err, apperrors.ErrIndexInconsistent)
	assert.Contains(t, err.Error(), "99")
}

func TestMissingTitleIsInconsistent(t *testing.T) {
	store := untitledStore{Store: catStore(t), missing: 2}
	_, err := NewBM25(store).CalculateScores(context.Background(), []string{"cat"})
	require.ErrorIs(t, err, apperrors.ErrIndexInconsistent)

	// A document outside the top-K is never resolved.
	results, err := NewBM25(store, WithLimit(1)).CalculateScores(context.Background(), []string{"cat"})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestStoreErrorsPropagate(t *testing.T) {
	errDisk := errors.New("disk on fire")
	for _, n := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency_%d", n), func(t *testing.T) {
			store := &countingStore{Store: catStore(t), err: errDisk}
			_, err := NewBM25(store, WithConcurrency(n)).CalculateScores(context.Background(), []string{"cat", "dog"})
			require.ErrorIs(t, err, errDisk)
			assert.NotErrorIs(t, err, apperrors.ErrIndexInconsistent)
		})
	}
}

func TestConcurrentMatchesSequential(t *testing.T) {
	snap := &indexstore.Snapshot{}
	terms := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	for i := 0; i < 300; i++ {
		snap.Documents = append(snap.Documents, indexstore.Document{
			ID: indexstore.DocID(i), Title: fmt.Sprint(i), Length: 5 + i%23,
		})
	}
	for ti, term := range terms {
		var postings indexstore.PostingList
		for i := ti; i < 300; i += ti + 2 {
			postings = append(postings, indexstore.Posting{DocID: indexstore.DocID(i), Frequency: 1 + (i*7+ti)%5})
		}
		snap.Terms = append(snap.Terms, indexstore.TermEntry{Term: term, Postings: postings})
	}
	store, err := indexstore.NewMemoryStore(snap)
	require.NoError(t, err)

	tokens := []string{"gamma", "alpha", "missing", "epsilon", "alpha", "beta", "delta"}
	seq, err := NewBM25(store).CalculateScores(context.Background(), tokens)
	require.NoError(t, err)
	par, err := NewBM25(store, WithConcurrency(4)).CalculateScores(context.Background(), tokens)
	require.NoError(t, err)
	assert.Equal(t, seq, par)
	assert.Len(t, seq, 100)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBM25(catStore(t)).CalculateScores(ctx, []string{"cat"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIdempotent(t *testing.T) {
	r := NewBM25(catStore(t))
	a, err := r.CalculateScores(context.Background(), []string{"cat", "dog"})
	require.NoError(t, err)
	b, err := r.CalculateScores(context.Background(), []string{"cat", "dog"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func mustParse(t *testing.T, s string) indexstore.DocID {
	t.Helper()
	id, err := indexstore.ParseDocID(s)
	require.NoError(t, err)
	return id
}

func BenchmarkCalculateScores(b *testing.B) {
	store := wideStore(b, 10000, func(i int) int { return i%13 + 1 })
	for _, n := range []int{1, 4} {
		r := NewBM25(store, WithConcurrency(n))
		tokens := []string{"common", "common", "common"}
		b.Run(fmt.Sprintf("concurrency_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := r.CalculateScores(context.Background(), tokens); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
