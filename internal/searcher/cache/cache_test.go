package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amitco96/Information-Retrieval/internal/searcher/ranker"
)

type fakeBackend struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	failGet bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeBackend) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return "", errors.New("connection reset")
	}
	v, ok := f.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeBackend) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = string(value.([]byte))
	f.ttls[key] = ttl
	return nil
}

func (f *fakeBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k := range f.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

func entryFor(tokens ...string) *Entry {
	return &Entry{Tokens: tokens, Results: []ranker.Result{{DocID: "1", Title: "One", Score: 1.5}}}
}

func TestGetOrCompute(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, time.Minute)
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (*Entry, error) { calls++; return entryFor("cat"), nil }

	got, hit, err := c.GetOrCompute(ctx, []string{"cat"}, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, entryFor("cat"), got)

	got, hit, err = c.GetOrCompute(ctx, []string{"cat"}, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, entryFor("cat"), got)
	assert.Equal(t, 1, calls)

	assert.Equal(t, time.Minute, backend.ttls[BuildKey([]string{"cat"})])
	assert.Equal(t, Stats{Hits: 1, Misses: 1, Total: 2, HitRate: 0.5}, c.Stats())
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	c := New(newFakeBackend(), time.Minute)
	errBoom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), []string{"x"}, func(context.Context) (*Entry, error) { return nil, errBoom })
	require.ErrorIs(t, err, errBoom)

	_, ok := c.Get(context.Background(), []string{"x"})
	assert.False(t, ok)
}

func TestGetOrComputeSharesConcurrentMisses(t *testing.T) {
	c := New(newFakeBackend(), time.Minute)
	var calls atomic.Int64
	release := make(chan struct{})
	compute := func(context.Context) (*Entry, error) {
		calls.Add(1)
		<-release
		return entryFor("slow"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), []string{"slow"}, compute)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.GreaterOrEqual(t, calls.Load(), int64(1))
	_, ok := c.Get(context.Background(), []string{"slow"})
	assert.True(t, ok)
}

func TestGetOrComputeOutlivesCancelledCaller(t *testing.T) {
	c := New(newFakeBackend(), time.Minute)
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64
	compute := func(ctx context.Context) (*Entry, error) {
		calls.Add(1)
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return entryFor("shared"), nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrCompute(firstCtx, []string{"shared"}, compute)
		firstErr <- err
	}()
	<-started

	type result struct {
		entry *Entry
		err   error
	}
	second := make(chan result, 1)
	go func() {
		entry, _, err := c.GetOrCompute(context.Background(), []string{"shared"}, compute)
		second <- result{entry, err}
	}()
	// Let the second caller join the in-flight computation.
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, entryFor("shared"), res.entry)
	assert.Equal(t, int64(1), calls.Load())

	_, ok := c.Get(context.Background(), []string{"shared"})
	assert.True(t, ok)
}

func TestGetOrComputeBoundsDetachedComputation(t *testing.T) {
	c := New(newFakeBackend(), time.Minute, WithComputeTimeout(10*time.Millisecond))
	_, _, err := c.GetOrCompute(context.Background(), []string{"stuck"}, func(ctx context.Context) (*Entry, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackendFailureIsAMiss(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, time.Minute)
	c.Set(context.Background(), entryFor("cat"))
	backend.failGet = true

	_, ok := c.Get(context.Background(), []string{"cat"})
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestBuildKey(t *testing.T) {
	a := BuildKey([]string{"cat", "dog"})
	assert.Equal(t, a, BuildKey([]string{"cat", "dog"}))
	assert.NotEqual(t, a, BuildKey([]string{"dog", "cat"}))
	assert.NotEqual(t, a, BuildKey([]string{"cat", "dog", "dog"}))
	assert.NotEqual(t, BuildKey([]string{"ab", "c"}), BuildKey([]string{"a", "bc"}))
	assert.Contains(t, a, keyPrefix)
}

func TestInvalidate(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, time.Minute)
	c.Set(context.Background(), entryFor("a"))
	c.Set(context.Background(), entryFor("b"))
	backend.data["other:key"] = "keep"

	n, err := c.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Len(t, backend.data, 1)
}
