// Command loadtest replays queries against a running searcher and reports
// latency percentiles, cache hit rate and zero-result rate.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amitco96/Information-Retrieval/internal/searcher/handler"
)

var defaultQueries = []string{
	"information retrieval",
	"world war",
	"python programming",
	"machine learning",
	"running shoes",
	"the history of computing",
	"football world cup",
	"climate change",
	"solar system planets",
	"ancient rome",
}

type stats struct {
	total       atomic.Int64
	failed      atomic.Int64
	cacheHits   atomic.Int64
	zeroResults atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func (s *stats) record(d time.Duration, code int, resp *handler.Response) {
	s.total.Add(1)
	if code != http.StatusOK {
		s.failed.Add(1)
	} else if resp != nil {
		if resp.CacheHit {
			s.cacheHits.Add(1)
		}
		if len(resp.Results) == 0 {
			s.zeroResults.Add(1)
		}
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	limit := flag.Int("limit", 10, "results per query")
	queryFile := flag.String("queries", "", "file with one query per line (default: built-in set)")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		var err error
		if queries, err = readQueries(*queryFile); err != nil {
			fmt.Fprintf(os.Stderr, "loading queries: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("target=%s concurrency=%d duration=%s queries=%d\n", *baseURL, *concurrency, *duration, len(queries))

	s := &stats{codes: make(map[int]int64)}
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()
	run(ctx, s, *baseURL, *concurrency, *limit, queries)
	if !report(s, *duration) {
		os.Exit(1)
	}
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var queries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			queries = append(queries, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("%s contains no queries", path)
	}
	return queries, nil
}

func run(ctx context.Context, s *stats, baseURL string, workers, limit int, queries []string) {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        workers * 2,
			MaxIdleConnsPerHost: workers * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				q := queries[i%len(queries)]
				target := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", baseURL, url.QueryEscape(q), limit)
				start := time.Now()
				code, resp := fetch(ctx, client, target)
				if ctx.Err() != nil {
					return nil
				}
				s.record(time.Since(start), code, resp)
			}
			return nil
		})
	}
	g.Wait()
}

func fetch(ctx context.Context, client *http.Client, target string) (int, *handler.Response) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil
	}
	res, err := client.Do(req)
	if err != nil {
		return 0, nil
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return res.StatusCode, nil
	}
	var body handler.Response
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, nil
	}
	return res.StatusCode, &body
}

func report(s *stats, duration time.Duration) bool {
	total := s.total.Load()
	fmt.Printf("requests=%d failed=%d rps=%.1f\n", total, s.failed.Load(), float64(total)/duration.Seconds())
	if total == 0 {
		fmt.Println("no requests completed; is the searcher running?")
		return false
	}
	ok := total - s.failed.Load()
	if ok > 0 {
		fmt.Printf("cache_hit_rate=%.1f%% zero_result_rate=%.1f%%\n",
			100*float64(s.cacheHits.Load())/float64(ok),
			100*float64(s.zeroResults.Load())/float64(ok))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })
	for _, p := range []int{50, 90, 95, 99} {
		fmt.Printf("p%d=%s ", p, percentile(s.latencies, p))
	}
	fmt.Printf("max=%s\n", s.latencies[len(s.latencies)-1])

	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, s.codes[code])
	}
	return true
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := (p*len(sorted)+99)/100 - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
