package indexstore

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ShardedStore presents document-partitioned shards as one index. N and
// df are summed across shards and avgdl is the document-weighted mean, so
// scores match those of an unsharded index. A DocID must live in exactly
// one shard.
type ShardedStore struct {
	shards []Store
	n      int64
	avgdl  float64
}

// NewShardedStore combines shards. At least one shard is required.
func NewShardedStore(shards ...Store) (*ShardedStore, error) {
	if len(shards) == 0 {
		return nil, fmt.Errorf("sharded store needs at least one shard")
	}
	var n int64
	var tokens float64
	for _, s := range shards {
		n += s.NumDocs()
		tokens += s.AvgDocLength() * float64(s.NumDocs())
	}
	var avgdl float64
	if n > 0 {
		avgdl = tokens / float64(n)
	}
	return &ShardedStore{shards: shards, n: n, avgdl: avgdl}, nil
}

func (s *ShardedStore) NumDocs() int64 { return s.n }

func (s *ShardedStore) AvgDocLength() float64 { return s.avgdl }

func (s *ShardedStore) DocFreq(term string) (int64, bool) {
	var total int64
	found := false
	for _, shard := range s.shards {
		if df, ok := shard.DocFreq(term); ok {
			total += df
			found = true
		}
	}
	return total, found
}

func (s *ShardedStore) DocLength(id DocID) (int, bool) {
	for _, shard := range s.shards {
		if l, ok := shard.DocLength(id); ok {
			return l, true
		}
	}
	return 0, false
}

func (s *ShardedStore) Title(id DocID) (string, bool) {
	for _, shard := range s.shards {
		if t, ok := shard.Title(id); ok {
			return t, true
		}
	}
	return "", false
}

// ReadPostingList reads the term from every shard that knows it, in
// parallel, and merges the lists by DocID. Any shard failure fails the read.
func (s *ShardedStore) ReadPostingList(ctx context.Context, term string) (PostingList, error) {
	parts := make([]PostingList, len(s.shards))
	g, ctx := errgroup.WithContext(ctx)
	for i, shard := range s.shards {
		if _, ok := shard.DocFreq(term); !ok {
			continue
		}
		g.Go(func() error {
			postings, err := shard.ReadPostingList(ctx, term)
			if err != nil {
				return fmt.Errorf("shard %d: %w", i, err)
			}
			parts[i] = postings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, p := range parts {
		total += len(p)
	}
	merged := make(PostingList, 0, total)
	for _, p := range parts {
		merged = append(merged, p...)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].DocID < merged[j].DocID })
	return merged, nil
}

// VocabularySize is the largest shard vocabulary, a lower bound on the
// combined one.
func (s *ShardedStore) VocabularySize() int {
	var size int
	for _, shard := range s.shards {
		if v := StatsOf(shard).VocabularySize; v > size {
			size = v
		}
	}
	return size
}

// Shards returns the underlying stores.
func (s *ShardedStore) Shards() []Store {
	return s.shards
}
