// Package router builds the public gateway: it proxies each API route to the
// service that owns it behind CORS and per-client rate limiting.
package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/gateway/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/middleware"
)

// New builds the gateway handler.
//
// Route table:
//
//	POST   /api/query                → searcher
//	GET    /api/v1/cache/stats       → searcher
//	POST   /api/v1/cache/invalidate  → searcher
//	POST   /api/v1/pages             → ingestion
//	DELETE /api/v1/pages             → ingestion
//	GET    /api/v1/analytics         → analytics
//	GET    /health                   → gateway
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → RateLimit → Metrics → mux
//
// Metrics is skipped when m is nil.
func New(cfg config.GatewayConfig, limiter *ratelimit.Limiter, m *metrics.Metrics) (http.Handler, error) {
	searcher, err := newProxy("searcher", cfg.SearcherURL, cfg.ProxyTimeout)
	if err != nil {
		return nil, err
	}
	ingestion, err := newProxy("ingestion", cfg.IngestionURL, cfg.ProxyTimeout)
	if err != nil {
		return nil, err
	}
	analytics, err := newProxy("analytics", cfg.AnalyticsURL, cfg.ProxyTimeout)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("POST /api/query", searcher)
	mux.Handle("GET /api/v1/cache/stats", searcher)
	mux.Handle("POST /api/v1/cache/invalidate", searcher)
	mux.Handle("POST /api/v1/pages", ingestion)
	mux.Handle("DELETE /api/v1/pages", ingestion)
	mux.Handle("GET /api/v1/analytics", analytics)

	var chain http.Handler = mux
	if m != nil {
		chain = pkgmw.Metrics(m)(chain)
	}
	chain = middleware.RateLimit(limiter)(chain)
	chain = middleware.CORS(middleware.NewCORSConfig(cfg.AllowOrigins))(chain)
	chain = pkgmw.RequestID(chain)
	return chain, nil
}

// newProxy forwards to target, passing the request ID along. Backend
// failures, including a backend slower than timeout to answer, become a 502
// JSON error.
func newProxy(name, target string, timeout time.Duration) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid %s url %q", name, target)
	}
	logger := slog.Default().With("component", "gateway-proxy", "backend", name)
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &httputil.ReverseProxy{
		Transport: transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
			if id := pkgmw.GetRequestID(pr.In.Context()); id != "" {
				pr.Out.Header.Set(pkgmw.RequestIDHeader, id)
			}
		},
		// The gateway already set the ID on the response.
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Del(pkgmw.RequestIDHeader)
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("backend request failed", "path", r.URL.Path, "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": name + " unavailable"})
		},
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
