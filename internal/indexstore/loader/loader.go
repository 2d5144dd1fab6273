// Package loader opens the index store selected by configuration and
// layers the fault-tolerance and caching decorators over it.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/amitco96/Information-Retrieval/internal/indexstore"
	"github.com/amitco96/Information-Retrieval/internal/indexstore/segment"
	"github.com/amitco96/Information-Retrieval/internal/indexstore/sqlstore"
	"github.com/amitco96/Information-Retrieval/pkg/config"
	"github.com/amitco96/Information-Retrieval/pkg/health"
	"github.com/amitco96/Information-Retrieval/pkg/metrics"
	"github.com/amitco96/Information-Retrieval/pkg/postgres"
	"github.com/amitco96/Information-Retrieval/pkg/resilience"
)

// Index is a loaded store together with the resources it holds.
type Index struct {
	Store   indexstore.Store
	Backend string
	// Cache and Resilient are nil when the decorator is not in use.
	Cache     *indexstore.CachedStore
	Resilient *indexstore.ResilientStore

	closers []io.Closer
	pinger  func(ctx context.Context) error
}

// Open loads the index once at process start. m may be nil.
func Open(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Index, error) {
	logger := slog.Default().With("component", "index-loader", "backend", cfg.Index.Backend)
	start := time.Now()

	ix := &Index{Backend: cfg.Index.Backend}
	base, err := ix.openBackend(ctx, cfg)
	if err != nil {
		ix.Close()
		return nil, err
	}

	store := base
	if cfg.Index.Backend != config.BackendMemory {
		ix.Resilient = indexstore.NewResilientStore(cfg.Index.Backend, base, resilientConfig(cfg.Index), m)
		store = ix.Resilient
	}
	if cfg.Index.PostingCacheSize > 0 {
		cached, err := indexstore.NewCachedStore(store, cfg.Index.PostingCacheSize, m)
		if err != nil {
			ix.Close()
			return nil, err
		}
		ix.Cache = cached
		store = cached
	}
	ix.Store = store

	stats := indexstore.StatsOf(store)
	if m != nil {
		m.IndexDocuments.Set(float64(stats.NumDocs))
	}
	logger.Info("index loaded",
		"num_docs", stats.NumDocs,
		"avg_doc_length", stats.AvgDocLength,
		"vocabulary", stats.VocabularySize,
		"posting_cache", cfg.Index.PostingCacheSize,
		"elapsed", time.Since(start),
	)
	return ix, nil
}

func (ix *Index) openBackend(ctx context.Context, cfg *config.Config) (indexstore.Store, error) {
	switch cfg.Index.Backend {
	case config.BackendMemory:
		s, err := indexstore.OpenMemoryStore(cfg.Index.Path)
		if err != nil {
			return nil, fmt.Errorf("loading memory index: %w", err)
		}
		return s, nil

	case config.BackendSegment:
		paths := cfg.Index.ShardPaths
		if len(paths) == 0 {
			paths = []string{cfg.Index.Path}
		}
		shards := make([]indexstore.Store, 0, len(paths))
		for _, path := range paths {
			r, err := segment.Open(path)
			if err != nil {
				return nil, fmt.Errorf("loading segment index: %w", err)
			}
			ix.closers = append(ix.closers, r)
			shards = append(shards, r)
		}
		if len(shards) == 1 {
			return shards[0], nil
		}
		return indexstore.NewShardedStore(shards...)

	case config.BackendSQLite:
		s, err := sqlstore.OpenSQLite(ctx, cfg.Index.Path)
		if err != nil {
			return nil, fmt.Errorf("loading sqlite index: %w", err)
		}
		ix.closers = append(ix.closers, s)
		ix.pinger = s.Ping
		return s, nil

	case config.BackendPostgres:
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("loading postgres index: %w", err)
		}
		ix.closers = append(ix.closers, client)
		ix.pinger = client.Ping
		s, err := sqlstore.Open(ctx, client.DB, sqlstore.Postgres)
		if err != nil {
			return nil, fmt.Errorf("loading postgres index: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

func resilientConfig(cfg config.IndexConfig) indexstore.ResilientConfig {
	return indexstore.ResilientConfig{
		ReadTimeout: cfg.ReadTimeout,
		Retry: resilience.RetryConfig{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
		},
		CircuitBreaker: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			ResetTimeout:     cfg.CircuitBreaker.ResetTimeout,
		},
	}
}

// HealthCheck reports the index down while its circuit is open or its
// database does not answer.
func (ix *Index) HealthCheck() health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		if ix.Resilient != nil && ix.Resilient.Breaker().GetState() == resilience.StateOpen {
			return health.Down("circuit open")
		}
		if ix.pinger != nil {
			if err := ix.pinger(ctx); err != nil {
				return health.Down(err.Error())
			}
		}
		return health.Up(fmt.Sprintf("%s backend, %d documents", ix.Backend, ix.Store.NumDocs()))
	}
}

// Close releases files and connections in reverse order of opening.
func (ix *Index) Close() error {
	var errs []error
	for i := len(ix.closers) - 1; i >= 0; i-- {
		if err := ix.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	ix.closers = nil
	return errors.Join(errs...)
}
