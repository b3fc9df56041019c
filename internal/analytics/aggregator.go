package analytics

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/kafka"
)

// latencyWindow bounds the number of samples used for percentiles.
const latencyWindow = 10000

type Stats struct {
	TotalSearches     int64        `json:"total_searches"`
	SearchErrors      int64        `json:"search_errors"`
	PagesIndexed      int64        `json:"pages_indexed"`
	PagesDeleted      int64        `json:"pages_deleted"`
	PagesFailed       int64        `json:"pages_failed"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	TopTerms          []QueryCount `json:"top_terms"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds search and index events into running totals. All methods
// are safe for concurrent use.
type Aggregator struct {
	mu                sync.RWMutex
	stats             Stats
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	termCounts        map[string]int64
	startTime         time.Time
	now               func() time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		termCounts:        make(map[string]int64),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent returns a consumer handler feeding agg. Undecodable messages
// are skipped rather than retried.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(_ context.Context, _ []byte, value []byte) error {
		event, err := decode(value)
		if err != nil {
			agg.logger.Warn("dropping analytics event", "error", err)
			return kafka.ErrSkip
		}
		agg.Record(event)
		return nil
	}
}

// Record applies a decoded SearchEvent or IndexEvent.
func (a *Aggregator) Record(event any) {
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearch(e)
	case IndexEvent:
		a.recordIndex(e)
	}
}

func (a *Aggregator) recordSearch(e SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalSearches++
	if e.Type == EventSearchError {
		a.stats.SearchErrors++
		return
	}
	if e.CacheHit {
		a.stats.CacheHits++
	} else {
		a.stats.CacheMisses++
	}

	key := queryKey(e)
	a.queryCounts[key]++
	for _, t := range e.Terms {
		a.termCounts[t]++
	}
	if e.Results == 0 {
		a.stats.ZeroResultCount++
		a.zeroResultQueries[key]++
	}

	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, e.LatencyMs)
	} else {
		a.latencies[a.next] = e.LatencyMs
		a.next = (a.next + 1) % latencyWindow
	}
}

func (a *Aggregator) recordIndex(e IndexEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch e.Status {
	case "indexed":
		a.stats.PagesIndexed++
	case "deleted":
		a.stats.PagesDeleted++
	default:
		a.stats.PagesFailed++
	}
}

// Restore seeds the totals from a previously saved snapshot. Latency samples
// are not persisted and start empty.
func (a *Aggregator) Restore(s Stats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.TotalSearches += s.TotalSearches
	a.stats.SearchErrors += s.SearchErrors
	a.stats.PagesIndexed += s.PagesIndexed
	a.stats.PagesDeleted += s.PagesDeleted
	a.stats.PagesFailed += s.PagesFailed
	a.stats.CacheHits += s.CacheHits
	a.stats.CacheMisses += s.CacheMisses
	a.stats.ZeroResultCount += s.ZeroResultCount
	for _, q := range s.TopQueries {
		a.queryCounts[q.Query] += q.Count
	}
	for _, q := range s.ZeroResultQueries {
		a.zeroResultQueries[q.Query] += q.Count
	}
	for _, q := range s.TopTerms {
		a.termCounts[q.Query] += q.Count
	}
}

func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.stats
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	stats.TopTerms = topN(a.termCounts, 20)

	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

// queryKey groups queries that tokenize identically.
func queryKey(e SearchEvent) string {
	if len(e.Terms) == 0 {
		return strings.TrimSpace(e.Query)
	}
	return strings.Join(e.Terms, " ")
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(a, b QueryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Query, b.Query)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
