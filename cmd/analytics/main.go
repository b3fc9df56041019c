// Command analytics consumes search and index events from Kafka, aggregates
// them in memory and serves the totals at GET /api/v1/analytics. Snapshots
// are saved to Postgres periodically and restored on startup.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/analytics.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/analytics.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	aggregator := analytics.NewAggregator()
	snapshots := analytics.NewStore(db)
	latest, err := snapshots.LatestSnapshot(ctx)
	if err != nil {
		slog.Warn("could not load analytics snapshot, starting empty", "error", err)
	} else if latest != nil {
		aggregator.Restore(*latest)
		slog.Info("analytics snapshot restored", "total_searches", latest.TotalSearches)
	}
	saved := snapshots.StartPeriodicSave(ctx, aggregator, cfg.Analytics.SnapshotInterval)

	kafkaCfg := cfg.Kafka
	kafkaCfg.ConsumerGroup += "-analytics"
	eventConsumer := kafka.NewConsumer(kafkaCfg, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator))
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := eventConsumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	analyticsHandler := analytics.NewHandler(aggregator)

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(health.StatusDegraded, db.Ping))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	<-consumerDone
	<-saved
	slog.Info("analytics service stopped")
}
