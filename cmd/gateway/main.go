// Command gateway is the single public entry point. It applies CORS and
// per-client rate limiting, then proxies each route to the searcher,
// ingestion or analytics service.
//
// Usage:
//
//	go run ./cmd/gateway [-config configs/gateway.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/gateway/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/gateway/router"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "configs/gateway.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting gateway service",
		"port", cfg.Server.Port,
		"searcher_url", cfg.Gateway.SearcherURL,
		"ingestion_url", cfg.Gateway.IngestionURL,
		"analytics_url", cfg.Gateway.AnalyticsURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	limiter := ratelimit.New(cfg.Gateway.RateLimit, cfg.Gateway.RateWindow)
	defer limiter.Close()

	chain, err := router.New(cfg.Gateway, limiter, m)
	if err != nil {
		slog.Error("failed to build gateway routes", "error", err)
		os.Exit(1)
	}

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

	go func() {
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

	slog.Info("gateway service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway service stopped")
}
