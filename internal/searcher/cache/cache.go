// Package cache stores ranked results in Redis, keyed by the normalised
// token sequence, so repeated queries skip the index entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/amitco96/Information-Retrieval/internal/searcher/ranker"
	pkgredis "github.com/amitco96/Information-Retrieval/pkg/redis"
)

const keyPrefix = "search:"

// DefaultComputeTimeout bounds a shared computation once it no longer
// follows the cancellation of the caller that started it.
const DefaultComputeTimeout = 30 * time.Second

// Backend is the subset of the Redis client the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Entry is what the cache stores: the full ranked list for a token
// sequence. Callers truncate to their own limit.
type Entry struct {
	Tokens  []string        `json:"tokens"`
	Results []ranker.Result `json:"results"`
}

// Stats reports cache effectiveness since start.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hit_rate"`
}

type QueryCache struct {
	backend        Backend
	ttl            time.Duration
	computeTimeout time.Duration
	group          singleflight.Group
	logger         *slog.Logger
	hits           atomic.Int64
	misses         atomic.Int64
}

type Option func(*QueryCache)

// WithComputeTimeout overrides DefaultComputeTimeout. Non-positive values
// are ignored.
func WithComputeTimeout(d time.Duration) Option {
	return func(c *QueryCache) {
		if d > 0 {
			c.computeTimeout = d
		}
	}
}

func New(backend Backend, ttl time.Duration, opts ...Option) *QueryCache {
	c := &QueryCache{
		backend:        backend,
		ttl:            ttl,
		computeTimeout: DefaultComputeTimeout,
		logger:         slog.Default().With("component", "query-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get looks up tokens. Backend failures count as misses.
func (c *QueryCache) Get(ctx context.Context, tokens []string) (*Entry, bool) {
	key := BuildKey(tokens)
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "key", key)
	return &entry, true
}

func (c *QueryCache) Set(ctx context.Context, entry *Entry) {
	key := BuildKey(entry.Tokens)
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached entry for tokens or runs compute once per
// key, however many callers miss concurrently. The bool reports a hit.
//
// compute runs on a context detached from any single caller and bounded by
// the compute timeout. Each caller stops waiting when its own ctx is done;
// the computation carries on for the others.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	tokens []string,
	compute func(ctx context.Context) (*Entry, error),
) (*Entry, bool, error) {
	if entry, ok := c.Get(ctx, tokens); ok {
		return entry, true, nil
	}
	ch := c.group.DoChan(BuildKey(tokens), func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
		defer cancel()
		entry, err := compute(shared)
		if err != nil {
			return nil, err
		}
		c.Set(shared, entry)
		return entry, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*Entry), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Invalidate deletes every cached query.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() Stats {
	s := Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	s.Total = s.Hits + s.Misses
	if s.Total > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Total)
	}
	return s
}

// BuildKey hashes the token sequence. Order and duplicates matter because
// both change BM25 scores.
func BuildKey(tokens []string) string {
	hash := sha256.Sum256([]byte(strings.Join(tokens, "\x00")))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
