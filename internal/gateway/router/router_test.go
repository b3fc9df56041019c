package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/gateway/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backend answers with its name and the request ID it received.
func backend(t *testing.T, name string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", r.Header.Get("X-Request-ID"))
		io.WriteString(w, name+" "+r.Method+" "+r.URL.Path+" "+r.Header.Get("X-Request-ID"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func gateway(t *testing.T, limit int) http.Handler {
	t.Helper()
	limiter := ratelimit.New(limit, time.Minute)
	t.Cleanup(limiter.Close)
	h, err := New(config.GatewayConfig{
		SearcherURL:  backend(t, "searcher").URL,
		IngestionURL: backend(t, "ingestion").URL,
		AnalyticsURL: backend(t, "analytics").URL,
		AllowOrigins: []string{"https://app.example"},
	}, limiter, nil)
	require.NoError(t, err)
	return h
}

func TestRoutesToOwningService(t *testing.T) {
	h := gateway(t, 100)
	cases := []struct {
		method, path, want string
	}{
		{http.MethodPost, "/api/query", "searcher POST /api/query"},
		{http.MethodGet, "/api/v1/cache/stats", "searcher GET /api/v1/cache/stats"},
		{http.MethodPost, "/api/v1/pages", "ingestion POST /api/v1/pages"},
		{http.MethodDelete, "/api/v1/pages", "ingestion DELETE /api/v1/pages"},
		{http.MethodGet, "/api/v1/analytics", "analytics GET /api/v1/analytics"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader("{}"))
		req.Header.Set("X-Request-ID", "rid-7")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, tc.path)
		assert.Equal(t, tc.want+" rid-7", rec.Body.String())
		assert.Equal(t, []string{"rid-7"}, rec.Header().Values("X-Request-ID"))
	}
}

func TestRecordsMetricsByPattern(t *testing.T) {
	limiter := ratelimit.New(10, time.Minute)
	defer limiter.Close()
	m := metrics.New(prometheus.NewRegistry())
	h, err := New(config.GatewayConfig{
		SearcherURL:  backend(t, "searcher").URL,
		IngestionURL: backend(t, "ingestion").URL,
		AnalyticsURL: backend(t, "analytics").URL,
	}, limiter, m)
	require.NoError(t, err)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/query", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "POST /api/query", "200")))
}

func TestUnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	gateway(t, 100).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/query", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := gateway(t, 100)

	req := httptest.NewRequest(http.MethodOptions, "/api/query", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodPost, "/api/query", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitPerClient(t *testing.T) {
	h := gateway(t, 2)
	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1111").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:2222").Code)
	limited := send("10.0.0.1:3333")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "30", limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1111").Code)

	health := httptest.NewRequest(http.MethodGet, "/health", nil)
	health.RemoteAddr = "10.0.0.1:4444"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, health)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBackendDown(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	limiter := ratelimit.New(10, time.Minute)
	defer limiter.Close()
	h, err := New(config.GatewayConfig{
		SearcherURL:  deadURL,
		IngestionURL: deadURL,
		AnalyticsURL: deadURL,
	}, limiter, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/query", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"searcher unavailable"}`, rec.Body.String())
}

func TestInvalidBackendURL(t *testing.T) {
	limiter := ratelimit.New(10, time.Minute)
	defer limiter.Close()
	_, err := New(config.GatewayConfig{SearcherURL: "not a url"}, limiter, nil)
	assert.ErrorContains(t, err, "searcher")
}

func TestSlowBackendTimesOut(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer slow.Close()
	defer close(release)

	limiter := ratelimit.New(10, time.Minute)
	defer limiter.Close()
	h, err := New(config.GatewayConfig{
		SearcherURL:  slow.URL,
		IngestionURL: slow.URL,
		AnalyticsURL: slow.URL,
		ProxyTimeout: 50 * time.Millisecond,
	}, limiter, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"analytics unavailable"}`, rec.Body.String())
}
