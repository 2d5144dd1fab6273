// Package ranker scores documents against a token sequence with Okapi BM25
// and selects the best matches.
package ranker

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/amitco96/Information-Retrieval/internal/indexstore"
	apperrors "github.com/amitco96/Information-Retrieval/pkg/errors"
)

const (
	DefaultK1    = 1.5
	DefaultB     = 0.75
	DefaultLimit = 100
	// MaxLimit caps the results of a single query.
	MaxLimit = 100
)

// Result is one ranked document.
type Result struct {
	DocID string  `json:"doc_id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Ranker turns query tokens into an ordered result list.
type Ranker interface {
	CalculateScores(ctx context.Context, tokens []string) ([]Result, error)
}

// BM25 ranks documents held in an indexstore.Store.
type BM25 struct {
	store       indexstore.Store
	k1          float64
	b           float64
	limit       int
	concurrency int
	logger      *slog.Logger
}

type Option func(*BM25)

func WithK1(k1 float64) Option { return func(r *BM25) { r.k1 = k1 } }

func WithB(b float64) Option { return func(r *BM25) { r.b = b } }

// WithLimit sets how many results are returned. Values outside
// [1, MaxLimit] fall back to the default or the cap.
func WithLimit(limit int) Option {
	return func(r *BM25) {
		switch {
		case limit <= 0:
			r.limit = DefaultLimit
		case limit > MaxLimit:
			r.limit = MaxLimit
		default:
			r.limit = limit
		}
	}
}

// WithConcurrency reads up to n posting lists of one query in parallel.
// Scores are still accumulated in token order.
func WithConcurrency(n int) Option {
	return func(r *BM25) {
		if n < 1 {
			n = 1
		}
		r.concurrency = n
	}
}

func NewBM25(store indexstore.Store, opts ...Option) *BM25 {
	r := &BM25{
		store:       store,
		k1:          DefaultK1,
		b:           DefaultB,
		limit:       DefaultLimit,
		concurrency: 1,
		logger:      slog.Default().With("component", "bm25-ranker"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IDF is the inverse document frequency log2((N-df+0.5)/(df+0.5) + 1). It
// is positive whenever df <= N.
func IDF(n, df int64) float64 {
	return math.Log2((float64(n)-float64(df)+0.5)/(float64(df)+0.5) + 1)
}

// TermWeight is the saturated, length-normalised term frequency of BM25.
// A non-positive avgdl disables length normalisation.
func TermWeight(tf, dl int, avgdl, k1, b float64) float64 {
	ratio := 1.0
	if avgdl > 0 {
		ratio = float64(dl) / avgdl
	}
	f := float64(tf)
	return f * (k1 + 1) / (f + k1*(1-b+b*ratio))
}

// termRead is one token occurrence whose df is known.
type termRead struct {
	term     string
	idf      float64
	postings indexstore.PostingList
}

// CalculateScores accumulates BM25 over every token occurrence, duplicates
// included, and returns at most limit documents with a positive score,
// best first and ties by ascending DocID. Tokens missing from the
// vocabulary are skipped without touching the store.
func (r *BM25) CalculateScores(ctx context.Context, tokens []string) ([]Result, error) {
	n := r.store.NumDocs()
	reads := make([]termRead, 0, len(tokens))
	for _, term := range tokens {
		df, ok := r.store.DocFreq(term)
		if !ok {
			continue
		}
		reads = append(reads, termRead{term: term, idf: IDF(n, df)})
	}
	if len(reads) == 0 {
		return []Result{}, nil
	}

	if err := r.readPostings(ctx, reads); err != nil {
		return nil, err
	}

	avgdl := r.store.AvgDocLength()
	scores := make(map[indexstore.DocID]float64)
	for _, read := range reads {
		for _, p := range read.postings {
			dl, ok := r.store.DocLength(p.DocID)
			if !ok {
				return nil, fmt.Errorf("%w: term %q posts document %s, which has no length",
					apperrors.ErrIndexInconsistent, read.term, p.DocID)
			}
			scores[p.DocID] += read.idf * TermWeight(p.Frequency, dl, avgdl, r.k1, r.b)
		}
	}

	top := selectTop(scores, r.limit)
	results := make([]Result, 0, len(top))
	for _, d := range top {
		title, ok := r.store.Title(d.id)
		if !ok {
			return nil, fmt.Errorf("%w: document %s has no title", apperrors.ErrIndexInconsistent, d.id)
		}
		results = append(results, Result{DocID: d.id.String(), Title: title, Score: d.score})
	}
	r.logger.Debug("scored query",
		"tokens", len(tokens),
		"terms_read", len(reads),
		"candidates", len(scores),
		"results", len(results),
	)
	return results, nil
}

func (r *BM25) readPostings(ctx context.Context, reads []termRead) error {
	if r.concurrency <= 1 {
		for i := range reads {
			postings, err := r.store.ReadPostingList(ctx, reads[i].term)
			if err != nil {
				return fmt.Errorf("reading postings for %q: %w", reads[i].term, err)
			}
			reads[i].postings = postings
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range reads {
		g.Go(func() error {
			postings, err := r.store.ReadPostingList(gctx, reads[i].term)
			if err != nil {
				return fmt.Errorf("reading postings for %q: %w", reads[i].term, err)
			}
			reads[i].postings = postings
			return nil
		})
	}
	return g.Wait()
}
