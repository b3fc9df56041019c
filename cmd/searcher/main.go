// Command searcher serves POST /api/query: it tokenizes the query, looks the
// terms up in Postgres and returns the pages ranked by TF-IDF cosine
// similarity.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/searcher.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/searcher/index"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "configs/searcher.yaml", "path to config file")
	ensureSchema := flag.Bool("ensure-schema", false, "create the index tables if missing")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "sort_order", cfg.Search.SortOrder)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	db, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if *ensureSchema {
		if err := db.EnsureSchema(ctx); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
	}

	breaker := resilience.NewCircuitBreaker("keyword-lookup", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Search.BreakerThreshold,
		ResetTimeout:     cfg.Search.BreakerResetPeriod,
		OnStateChange: func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	m.CircuitBreakerState.WithLabelValues("keyword-lookup").Set(float64(resilience.StateClosed))
	store := index.NewStore(db, breaker)

	// N is read once; pages indexed later do not change IDF until restart.
	var corpusSize int64
	err = resilience.Retry(ctx, "corpus-size", resilience.RetryConfig{
		MaxAttempts:  cfg.Postgres.ConnectAttempts,
		InitialDelay: 500 * time.Millisecond,
	}, func() error {
		var err error
		corpusSize, err = store.CorpusSize(ctx)
		return err
	})
	if err != nil {
		slog.Error("failed to read corpus size", "error", err)
		os.Exit(1)
	}
	m.CorpusDocuments.Set(float64(corpusSize))
	slog.Info("corpus loaded", "documents", corpusSize)

	order := ranker.ParseOrder(cfg.Search.SortOrder)
	eng := engine.New(store, corpusSize, engine.WithOrder(order))
	slog.Info("search engine ready", "corpus_size", eng.CorpusSize(), "order", eng.Order())
	opts := []handler.Option{handler.WithMetrics(m)}

	var redisClient *pkgredis.Client
	if cfg.Search.CacheEnabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			opts = append(opts, handler.WithCache(cache.New(redisClient, cfg.Redis.CacheTTL, corpusSize, order,
				cache.WithComputeTimeout(cfg.Server.WriteTimeout))))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	collectorCtx, stopCollector := context.WithCancel(context.Background())
	collector := analytics.NewCollector(analyticsProducer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
	collector.Start(collectorCtx)
	opts = append(opts, handler.WithTracker(collector))

	h := handler.New(eng, opts...)

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(health.StatusDown, db.Ping))
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "cache disabled"}
		}
		return health.PingCheck(health.StatusDegraded, redisClient.Ping)(ctx)
	})
	checker.Register("keyword_lookup", func(ctx context.Context) health.ComponentHealth {
		if state := breaker.GetState(); state != resilience.StateClosed {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + state.String()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/query", h.Query)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdownMetrics := func(context.Context) error { return nil }
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, reg)
	}

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
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-shutdownDone

	// Flush queued analytics only after in-flight requests have finished.
	stopCollector()
	collector.Close()
	slog.Info("search service stopped")
}
