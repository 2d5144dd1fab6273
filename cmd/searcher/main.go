// Command searcher serves BM25 search over HTTP.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/amitco96/Information-Retrieval/internal/analytics"
	"github.com/amitco96/Information-Retrieval/internal/indexstore/loader"
	"github.com/amitco96/Information-Retrieval/internal/searcher/cache"
	"github.com/amitco96/Information-Retrieval/internal/searcher/executor"
	"github.com/amitco96/Information-Retrieval/internal/searcher/handler"
	"github.com/amitco96/Information-Retrieval/internal/searcher/ranker"
	"github.com/amitco96/Information-Retrieval/pkg/config"
	"github.com/amitco96/Information-Retrieval/pkg/health"
	"github.com/amitco96/Information-Retrieval/pkg/kafka"
	"github.com/amitco96/Information-Retrieval/pkg/logger"
	"github.com/amitco96/Information-Retrieval/pkg/metrics"
	"github.com/amitco96/Information-Retrieval/pkg/middleware"
	"github.com/amitco96/Information-Retrieval/pkg/ratelimit"
	pkgredis "github.com/amitco96/Information-Retrieval/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "backend", cfg.Index.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	index, err := loader.Open(ctx, cfg, m)
	if err != nil {
		slog.Error("failed to open index", "error", err)
		os.Exit(1)
	}
	defer index.Close()
	slog.Info("index loaded",
		"backend", index.Backend,
		"documents", index.Store.NumDocs(),
		"avg_doc_length", index.Store.AvgDocLength(),
	)

	bm25 := ranker.NewBM25(index.Store,
		ranker.WithK1(cfg.Search.K1),
		ranker.WithB(cfg.Search.B),
		ranker.WithLimit(cfg.Search.MaxResults),
		ranker.WithConcurrency(cfg.Search.Concurrency),
	)
	exec := executor.New(bm25, executor.WithTracing(cfg.Tracing.Enabled))

	checker := health.NewChecker()
	checker.Register("index", index.HealthCheck())

	aggregator := analytics.NewAggregator()
	analyticsOpts := []analytics.HandlerOption{analytics.WithScope(analytics.ScopeInstance)}
	opts := []handler.Option{
		handler.WithMetrics(m),
		handler.WithTracker(aggregator),
	}

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			opts = append(opts, handler.WithCache(cache.New(redisClient, cfg.Redis.CacheTTL, cache.WithComputeTimeout(cfg.Search.Timeout))))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.Degraded("not configured")
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.Degraded(err.Error())
		}
		return health.Up("")
	})

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, analytics.CollectorConfig{})
		collector.Start(ctx)
		defer collector.Close()
		opts = append(opts, handler.WithTracker(collector))
		analyticsOpts = append(analyticsOpts, analytics.WithDropCounter(collector))
		slog.Info("analytics publishing enabled", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}

	h := handler.New(exec, cfg.Search.DefaultLimit, cfg.Search.MaxResults, opts...)
	analyticsH := analytics.NewHandler(aggregator, analyticsOpts...)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Search.Timeout)(chain)
	if cfg.Server.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.Server.RateLimit.RequestsPerMinute, time.Minute)
		go limiter.Run(ctx, 5*time.Minute)
		chain = middleware.RateLimit(limiter, time.Minute)(chain)
		slog.Info("rate limiting enabled", "requests_per_minute", cfg.Server.RateLimit.RequestsPerMinute)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(cfg.Server.CORSOrigins)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ListenAndServe returns as soon as Shutdown starts; in-flight requests
	// still use the index, cache and collector until shutdownDone closes.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-shutdownDone

	slog.Info("search service stopped")
}
