// Package handler exposes the query executor over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/amitco96/Information-Retrieval/internal/analytics"
	"github.com/amitco96/Information-Retrieval/internal/searcher/cache"
	"github.com/amitco96/Information-Retrieval/internal/searcher/executor"
	"github.com/amitco96/Information-Retrieval/internal/searcher/ranker"
	apperrors "github.com/amitco96/Information-Retrieval/pkg/errors"
	"github.com/amitco96/Information-Retrieval/pkg/logger"
	"github.com/amitco96/Information-Retrieval/pkg/metrics"
	"github.com/amitco96/Information-Retrieval/pkg/middleware"
)

// Searcher is satisfied by *executor.Executor.
type Searcher interface {
	Tokenize(query string) []string
	SearchTokens(ctx context.Context, query string, tokens []string) (*executor.SearchResult, error)
}

// Tracker is satisfied by *analytics.Collector.
type Tracker interface {
	Track(event analytics.SearchEvent)
}

// Response is the body of a successful search.
type Response struct {
	Query    string          `json:"query"`
	Tokens   []string        `json:"tokens"`
	Total    int             `json:"total"`
	Results  []ranker.Result `json:"results"`
	CacheHit bool            `json:"cache_hit"`
}

type Handler struct {
	searcher     Searcher
	cache        *cache.QueryCache
	trackers     []Tracker
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

type Option func(*Handler)

// WithCache serves repeated token sequences from queryCache.
func WithCache(queryCache *cache.QueryCache) Option {
	return func(h *Handler) { h.cache = queryCache }
}

// WithTracker reports every search to t. It may be given more than once.
func WithTracker(t Tracker) Option {
	return func(h *Handler) { h.trackers = append(h.trackers, t) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func New(s Searcher, defaultLimit, maxResults int, opts ...Option) *Handler {
	h := &Handler{
		searcher:     s,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	limit, err := h.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	tokens := h.searcher.Tokenize(query)
	if h.metrics != nil {
		h.metrics.QueryTokensCount.Observe(float64(len(tokens)))
	}

	var results []ranker.Result
	cacheHit := false
	if len(tokens) > 0 {
		results, cacheHit, err = h.search(ctx, query, tokens)
	}
	if results == nil {
		results = []ranker.Result{}
	}

	latency := time.Since(start)
	returned := results
	if len(returned) > limit {
		returned = returned[:limit]
	}
	h.observe(latency, len(returned), cacheHit, err)
	h.track(ctx, query, tokens, len(results), len(returned), latency, cacheHit, err)

	if err != nil {
		if errors.Is(err, apperrors.ErrIndexInconsistent) {
			log.Error("index inconsistency during search", "query", query, "error", err)
		} else {
			log.Warn("search failed", "query", query, "error", err)
		}
		h.writeError(w, err)
		return
	}

	log.Info("search completed",
		"query", query,
		"tokens", len(tokens),
		"total", len(results),
		"returned", len(returned),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, Response{
		Query:    query,
		Tokens:   tokens,
		Total:    len(results),
		Results:  returned,
		CacheHit: cacheHit,
	})
}

func (h *Handler) parseLimit(raw string) (int, error) {
	if raw == "" {
		return h.defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit %q is not a positive integer", raw)
	}
	if limit > h.maxResults {
		limit = h.maxResults
	}
	return limit, nil
}

func (h *Handler) search(ctx context.Context, query string, tokens []string) ([]ranker.Result, bool, error) {
	compute := func(ctx context.Context) (*cache.Entry, error) {
		res, err := h.searcher.SearchTokens(ctx, query, tokens)
		if err != nil {
			return nil, err
		}
		return &cache.Entry{Tokens: res.Tokens, Results: res.Results}, nil
	}

	var (
		entry *cache.Entry
		hit   bool
		err   error
	)
	if h.cache != nil {
		entry, hit, err = h.cache.GetOrCompute(ctx, tokens, compute)
	} else {
		entry, err = compute(ctx)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
		}
		return nil, false, err
	}
	return entry.Results, hit, nil
}

func (h *Handler) observe(latency time.Duration, returned int, cacheHit bool, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "ok"
	switch analytics.TypeFor(returned, err) {
	case analytics.EventError:
		outcome = "error"
	case analytics.EventZeroResult:
		outcome = "zero_result"
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()

	cacheStatus := "disabled"
	if h.cache != nil {
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
			h.metrics.CacheHitsTotal.Inc()
		} else {
			h.metrics.CacheMissesTotal.Inc()
		}
	}
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	if err == nil {
		h.metrics.SearchResultsCount.Observe(float64(returned))
	}
}

func (h *Handler) track(ctx context.Context, query string, tokens []string, total, returned int, latency time.Duration, cacheHit bool, err error) {
	if len(h.trackers) == 0 {
		return
	}
	event := analytics.SearchEvent{
		Type:      analytics.TypeFor(returned, err),
		Query:     query,
		Tokens:    tokens,
		Total:     total,
		Returned:  returned,
		LatencyMs: latency.Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	}
	for _, t := range h.trackers {
		t.Track(event)
	}
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, apperrors.New(apperrors.ErrInternal, http.StatusInternalServerError, "cache invalidation failed"))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": apperrors.PublicMessage(err)})
}
