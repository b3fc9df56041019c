package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	result *engine.Result
	err    error
	calls  int
}

func (f *fakeSearcher) Search(_ context.Context, query string) (*engine.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	res.Query = query
	return &res, nil
}

type fakeCache struct {
	stored map[string]*engine.Result
	hits   int64
	misses int64
}

func (c *fakeCache) GetOrCompute(ctx context.Context, query string, computeFn func(context.Context) (*engine.Result, error)) (*engine.Result, bool, error) {
	if r, ok := c.stored[query]; ok {
		c.hits++
		return r, true, nil
	}
	c.misses++
	r, err := computeFn(ctx)
	if err != nil {
		return nil, false, err
	}
	c.stored[query] = r
	return r, false, nil
}

func (c *fakeCache) Stats() (int64, int64) { return c.hits, c.misses }

func (c *fakeCache) Invalidate(context.Context) (int64, error) {
	n := int64(len(c.stored))
	c.stored = map[string]*engine.Result{}
	return n, nil
}

type fakeTracker struct {
	mu     sync.Mutex
	events []analytics.SearchEvent
}

func (t *fakeTracker) TrackSearch(e analytics.SearchEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

func catResult() *engine.Result {
	return &engine.Result{
		Terms: []string{"cat"},
		Results: []ranker.Document{
			{Title: "Cats", Description: "all about cats", URL: "https://cats.example"},
		},
	}
}

func post(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	req = req.WithContext(logger.WithRequestID(req.Context(), "req-1"))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestQueryReturnsResults(t *testing.T) {
	tracker := &fakeTracker{}
	h := New(&fakeSearcher{result: catResult()}, WithTracker(tracker))

	rec := post(t, h.Query, `{"query":"cat"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "executionSeconds")

	var results []map[string]string
	require.NoError(t, json.Unmarshal(body["results"], &results))
	assert.Equal(t, []map[string]string{
		{"title": "Cats", "description": "all about cats", "url": "https://cats.example"},
	}, results)

	require.Len(t, tracker.events, 1)
	ev := tracker.events[0]
	assert.Equal(t, analytics.EventSearch, ev.Type)
	assert.Equal(t, "cat", ev.Query)
	assert.Equal(t, 1, ev.Results)
	assert.Equal(t, "req-1", ev.RequestID)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestQueryInvalidBody(t *testing.T) {
	s := &fakeSearcher{result: catResult()}
	h := New(s)

	for _, body := range []string{"", "not json", `{"query":`} {
		rec := post(t, h.Query, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Zero(t, s.calls)
}

func TestQueryEmptyResultsSerialiseAsArray(t *testing.T) {
	h := New(&fakeSearcher{result: &engine.Result{Results: []ranker.Document{}}})

	rec := post(t, h.Query, `{"query":"   "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"results":[]`)
}

func TestQueryEngineErrorIsGeneric(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"storage", apperrors.New(apperrors.ErrStorageUnavailable, http.StatusServiceUnavailable, "circuit open"), http.StatusServiceUnavailable},
		{"lookup", apperrors.ErrLookupFailed, http.StatusInternalServerError},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tracker := &fakeTracker{}
			h := New(&fakeSearcher{err: tc.err}, WithTracker(tracker))

			rec := post(t, h.Query, `{"query":"cat"}`)
			assert.Equal(t, tc.want, rec.Code)
			assert.JSONEq(t, `{"error":"search failed"}`, rec.Body.String())
			require.Len(t, tracker.events, 1)
			assert.Equal(t, analytics.EventSearchError, tracker.events[0].Type)
		})
	}
}

func TestQueryUsesCache(t *testing.T) {
	s := &fakeSearcher{result: catResult()}
	c := &fakeCache{stored: map[string]*engine.Result{}}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := New(s, WithCache(c), WithMetrics(m))

	post(t, h.Query, `{"query":"cat"}`)
	post(t, h.Query, `{"query":"cat"}`)

	assert.Equal(t, 1, s.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hit")))
}

func TestQueryWithoutTermsBypassesCache(t *testing.T) {
	s := &fakeSearcher{result: &engine.Result{Results: []ranker.Document{}}}
	c := &fakeCache{stored: map[string]*engine.Result{}}
	m := metrics.New(prometheus.NewRegistry())
	h := New(s, WithCache(c), WithMetrics(m))

	post(t, h.Query, `{"query":"?!"}`)

	assert.Empty(t, c.stored)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("empty_query")))
}

func TestQueryErrorMetric(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := New(&fakeSearcher{err: errors.New("boom")}, WithMetrics(m))

	post(t, h.Query, `{"query":"cat"}`)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("error")))
}

func TestCacheEndpoints(t *testing.T) {
	c := &fakeCache{stored: map[string]*engine.Result{"cat": catResult()}, hits: 3, misses: 1}
	h := New(&fakeSearcher{result: catResult()}, WithCache(c))

	rec := httptest.NewRecorder()
	h.CacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	assert.JSONEq(t, `{"hits":3,"misses":1,"total":4,"hit_rate":"75.0%"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"invalidated","keys_deleted":1}`, rec.Body.String())
}

func TestCacheEndpointsDisabled(t *testing.T) {
	h := New(&fakeSearcher{result: catResult()})

	rec := httptest.NewRecorder()
	h.CacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	assert.JSONEq(t, `{"status":"disabled"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
