// Package consumer turns page events from Kafka into index writes and
// reports each outcome to analytics and metrics.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/resilience"
)

const (
	statusIndexed = "indexed"
	statusDeleted = "deleted"
	statusFailed  = "failed"
)

type PageWriter interface {
	IndexPage(ctx context.Context, page store.Page) (store.Result, error)
	DeletePage(ctx context.Context, url string) (bool, error)
}

type Tracker interface {
	TrackIndex(event analytics.IndexEvent)
}

type Indexer struct {
	writer  PageWriter
	tracker Tracker
	metrics *metrics.Metrics
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// New builds an Indexer. tracker and m may be nil.
func New(writer PageWriter, tracker Tracker, m *metrics.Metrics, retry resilience.RetryConfig) *Indexer {
	return &Indexer{
		writer:  writer,
		tracker: tracker,
		metrics: m,
		retry:   retry,
		logger:  slog.Default().With("component", "index-consumer"),
	}
}

// HandleMessage is the kafka.MessageHandler for the page ingest topic.
// Undecodable events are skipped; write failures are retried with backoff
// and then returned so the message is left uncommitted.
func (ix *Indexer) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	event, err := kafka.DecodeJSON[ingestion.PageEvent](value)
	if err != nil || event.URL == "" {
		ix.logger.Error("dropping malformed page event", "key", string(key), "error", err)
		return kafka.ErrSkip
	}

	start := time.Now()
	if event.Deleted {
		return ix.remove(ctx, event, start)
	}

	var res store.Result
	err = resilience.Retry(ctx, "index-page", ix.retry, func() error {
		var err error
		res, err = ix.writer.IndexPage(ctx, store.Page{
			URL:         event.URL,
			Title:       event.Title,
			Description: event.Description,
			Body:        event.Body,
		})
		return err
	})
	if err != nil {
		ix.report(event.URL, statusFailed, store.Result{}, start)
		return fmt.Errorf("indexing page %s: %w", event.URL, err)
	}

	ix.report(event.URL, statusIndexed, res, start)
	ix.logger.Info("page indexed",
		"url", event.URL,
		"word_count", res.WordCount,
		"unique_terms", res.UniqueTerms,
		"replaced", res.Replaced,
		"lag_ms", time.Since(event.IngestedAt).Milliseconds(),
	)
	return nil
}

func (ix *Indexer) remove(ctx context.Context, event ingestion.PageEvent, start time.Time) error {
	var found bool
	err := resilience.Retry(ctx, "delete-page", ix.retry, func() error {
		var err error
		found, err = ix.writer.DeletePage(ctx, event.URL)
		return err
	})
	if err != nil {
		ix.report(event.URL, statusFailed, store.Result{}, start)
		return fmt.Errorf("deleting page %s: %w", event.URL, err)
	}
	ix.report(event.URL, statusDeleted, store.Result{}, start)
	ix.logger.Info("page removed", "url", event.URL, "found", found)
	return nil
}

func (ix *Indexer) report(url, status string, res store.Result, start time.Time) {
	if ix.metrics != nil {
		ix.metrics.PagesIndexedTotal.WithLabelValues(status).Inc()
	}
	if ix.tracker == nil {
		return
	}
	ix.tracker.TrackIndex(analytics.IndexEvent{
		Type:        analytics.EventIndexPage,
		URL:         url,
		WordCount:   res.WordCount,
		UniqueTerms: res.UniqueTerms,
		LatencyMs:   time.Since(start).Milliseconds(),
		Status:      status,
		Timestamp:   time.Now().UTC(),
	})
}
