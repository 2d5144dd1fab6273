// Package executor runs a query end to end: tokenize, rank, and package
// the ordered result list.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amitco96/Information-Retrieval/internal/searcher/ranker"
	"github.com/amitco96/Information-Retrieval/internal/searcher/tokenizer"
	"github.com/amitco96/Information-Retrieval/pkg/logger"
	"github.com/amitco96/Information-Retrieval/pkg/tracing"
)

// SearchResult is the outcome of one query.
type SearchResult struct {
	Query   string          `json:"query"`
	Tokens  []string        `json:"tokens"`
	Results []ranker.Result `json:"results"`
}

// Executor binds a tokenizer to a ranking strategy. It holds no per-query
// state and is safe for concurrent use.
type Executor struct {
	ranker   ranker.Ranker
	tokenize func(string) []string
	tracing  bool
	logger   *slog.Logger
}

type Option func(*Executor)

// WithTokenizer replaces tokenizer.Tokenize.
func WithTokenizer(fn func(string) []string) Option {
	return func(e *Executor) { e.tokenize = fn }
}

// WithTracing logs the span tree of every query at debug level.
func WithTracing(enabled bool) Option {
	return func(e *Executor) { e.tracing = enabled }
}

func New(r ranker.Ranker, opts ...Option) *Executor {
	e := &Executor{
		ranker:   r,
		tokenize: tokenizer.Tokenize,
		logger:   slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tokenize normalises query exactly as Search does.
func (e *Executor) Tokenize(query string) []string {
	return e.tokenize(query)
}

// Search tokenizes query and ranks the tokens.
func (e *Executor) Search(ctx context.Context, query string) (*SearchResult, error) {
	ctx, span, root := e.startSpan(ctx)
	defer e.endSpan(span, root)

	_, tokSpan := tracing.StartChildSpan(ctx, "tokenize")
	tokens := e.tokenize(query)
	tokSpan.SetAttr("tokens", len(tokens))
	tokSpan.End()

	return e.rank(ctx, query, tokens)
}

// SearchTokens ranks tokens already produced by Tokenize, skipping the
// tokenizer. Callers that key caches on tokens use it to avoid tokenizing
// twice.
func (e *Executor) SearchTokens(ctx context.Context, query string, tokens []string) (*SearchResult, error) {
	ctx, span, root := e.startSpan(ctx)
	defer e.endSpan(span, root)
	return e.rank(ctx, query, tokens)
}

func (e *Executor) rank(ctx context.Context, query string, tokens []string) (*SearchResult, error) {
	result := &SearchResult{Query: query, Tokens: tokens, Results: []ranker.Result{}}
	if len(tokens) == 0 {
		return result, nil
	}

	rankCtx, rankSpan := tracing.StartChildSpan(ctx, "rank")
	results, err := e.ranker.CalculateScores(rankCtx, tokens)
	rankSpan.SetAttr("results", len(results))
	rankSpan.End()
	if err != nil {
		return nil, fmt.Errorf("ranking %q: %w", query, err)
	}
	result.Results = results

	logger.FromContext(ctx).Debug("query executed",
		"query", query,
		"tokens", tokens,
		"results", len(results),
	)
	return result, nil
}

// startSpan opens a root span unless the caller already traces this
// request.
func (e *Executor) startSpan(ctx context.Context) (context.Context, *tracing.Span, bool) {
	if tracing.SpanFromContext(ctx) != nil {
		ctx, span := tracing.StartChildSpan(ctx, "search")
		return ctx, span, false
	}
	ctx, span := tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
	return ctx, span, true
}

func (e *Executor) endSpan(span *tracing.Span, root bool) {
	span.End()
	if e.tracing && root {
		span.Log(e.logger)
	}
}
