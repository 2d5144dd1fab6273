package indexstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/amitco96/Information-Retrieval/pkg/metrics"
)

// sharedReadTimeout bounds a posting read shared between callers, which no
// longer follows any one caller's cancellation.
const sharedReadTimeout = 30 * time.Second

// CachedStore keeps recently read posting lists in an LRU. Concurrent
// misses for the same term share one read of the underlying store.
type CachedStore struct {
	Store
	cache   *lru.Cache[string, PostingList]
	group   singleflight.Group
	metrics *metrics.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

// CacheStats reports posting cache effectiveness.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Len    int   `json:"len"`
}

// NewCachedStore wraps inner with an LRU holding up to size posting lists.
// m may be nil.
func NewCachedStore(inner Store, size int, m *metrics.Metrics) (*CachedStore, error) {
	cache, err := lru.New[string, PostingList](size)
	if err != nil {
		return nil, fmt.Errorf("creating posting cache: %w", err)
	}
	return &CachedStore{Store: inner, cache: cache, metrics: m}, nil
}

func (c *CachedStore) ReadPostingList(ctx context.Context, term string) (PostingList, error) {
	if postings, ok := c.cache.Get(term); ok {
		c.record(true)
		return postings, nil
	}
	c.record(false)
	ch := c.group.DoChan(term, func() (any, error) {
		if postings, ok := c.cache.Get(term); ok {
			return postings, nil
		}
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedReadTimeout)
		defer cancel()
		postings, err := c.Store.ReadPostingList(shared, term)
		if err != nil {
			return nil, err
		}
		c.cache.Add(term, postings)
		return postings, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(PostingList), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Purge drops every cached posting list.
func (c *CachedStore) Purge() {
	c.cache.Purge()
}

func (c *CachedStore) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Len: c.cache.Len()}
}

// VocabularySize forwards to the wrapped store when it knows its vocabulary.
func (c *CachedStore) VocabularySize() int {
	return StatsOf(c.Store).VocabularySize
}

func (c *CachedStore) record(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	if c.metrics != nil {
		c.metrics.PostingCacheTotal.WithLabelValues(result).Inc()
	}
}
