package indexstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/amitco96/Information-Retrieval/pkg/errors"
	"github.com/amitco96/Information-Retrieval/pkg/metrics"
	"github.com/amitco96/Information-Retrieval/pkg/resilience"
)

// ResilientConfig tunes the fault tolerance around posting reads.
type ResilientConfig struct {
	ReadTimeout    time.Duration
	Retry          resilience.RetryConfig
	CircuitBreaker resilience.CircuitBreakerConfig
}

// ResilientStore bounds every posting read with a timeout, retries
// transient failures and trips a circuit breaker when the backend keeps
// failing. Failures surface as apperrors.ErrIndexUnavailable.
type ResilientStore struct {
	Store
	name    string
	cfg     ResilientConfig
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewResilientStore wraps inner. m may be nil.
func NewResilientStore(name string, inner Store, cfg ResilientConfig, m *metrics.Metrics) *ResilientStore {
	cbCfg := cfg.CircuitBreaker
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(resilience.StateClosed))
		next := cbCfg.OnStateChange
		cbCfg.OnStateChange = func(n string, from, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(n).Set(float64(to))
			if next != nil {
				next(n, from, to)
			}
		}
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = retryableRead
	}
	return &ResilientStore{
		Store:   inner,
		name:    name,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker(name, cbCfg),
		metrics: m,
		logger:  slog.Default().With("component", "resilient-store", "store", name),
	}
}

func (s *ResilientStore) ReadPostingList(ctx context.Context, term string) (PostingList, error) {
	var postings PostingList
	err := s.breaker.Execute(func() error {
		return resilience.Retry(ctx, "read postings "+term, s.cfg.Retry, func() error {
			return resilience.WithTimeout(ctx, s.cfg.ReadTimeout, "read postings", func(ctx context.Context) error {
				var err error
				postings, err = s.Store.ReadPostingList(ctx, term)
				return err
			})
		})
	})
	if err != nil {
		s.observe("error")
		if ctx.Err() != nil {
			return nil, fmt.Errorf("reading postings for %q: %w", term, ctx.Err())
		}
		s.logger.Warn("posting read failed", "term", term, "error", err)
		return nil, fmt.Errorf("%w: reading postings for %q: %w", apperrors.ErrIndexUnavailable, term, err)
	}
	s.observe("ok")
	return postings, nil
}

// Breaker exposes the circuit breaker for health checks.
func (s *ResilientStore) Breaker() *resilience.CircuitBreaker {
	return s.breaker
}

// VocabularySize forwards to the wrapped store when it knows its vocabulary.
func (s *ResilientStore) VocabularySize() int {
	return StatsOf(s.Store).VocabularySize
}

func (s *ResilientStore) observe(status string) {
	if s.metrics != nil {
		s.metrics.PostingReadsTotal.WithLabelValues(status).Inc()
	}
}

// retryableRead keeps caller cancellation and open circuits out of the
// retry loop. A per-attempt timeout is worth retrying.
func retryableRead(err error) bool {
	return !errors.Is(err, resilience.ErrCircuitOpen) && !errors.Is(err, context.Canceled)
}
