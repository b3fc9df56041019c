// Command indexer consumes page events from Kafka and writes them into the
// Postgres inverted index that the searcher reads.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/indexer.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/indexer.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service", "topic", cfg.Kafka.Topics.PageIngest)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	db, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	collectorCtx, stopCollector := context.WithCancel(context.Background())
	collector := analytics.NewCollector(analyticsProducer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
	collector.Start(collectorCtx)

	indexer := consumer.New(store.New(db), collector, m, resilience.RetryConfig{
		MaxAttempts:    5,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		JitterFraction: 0.2,
	})
	kafkaCfg := cfg.Kafka
	kafkaCfg.ConsumerGroup += "-indexer"
	pageConsumer := kafka.NewConsumer(kafkaCfg, cfg.Kafka.Topics.PageIngest, indexer.HandleMessage)

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(health.StatusDown, db.Ping))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server error", "error", err)
		}
	}()

	shutdownMetrics := func(context.Context) error { return nil }
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, reg)
	}

	slog.Info("indexer ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.PageIngest,
		"group", kafkaCfg.ConsumerGroup,
	)
	if err := pageConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("health server shutdown error", "error", err)
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown error", "error", err)
	}
	stopCollector()
	collector.Close()
	slog.Info("indexer service stopped")
}
