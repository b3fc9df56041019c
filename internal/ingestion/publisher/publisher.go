// Package publisher queues validated pages for indexing by publishing them
// to Kafka.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/resilience"
)

const publishTimeout = 5 * time.Second

// EventPublisher is the subset of the Kafka producer the publisher needs.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Publisher struct {
	producer EventPublisher
	now      func() time.Time
	logger   *slog.Logger
}

func New(producer EventPublisher) *Publisher {
	return &Publisher{
		producer: producer,
		now:      time.Now,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Enqueue publishes req as a PageEvent keyed by its URL.
func (p *Publisher) Enqueue(ctx context.Context, req *ingestion.PageRequest) (*ingestion.PageResponse, error) {
	err := p.publish(ctx, ingestion.PageEvent{
		URL:         req.URL,
		Title:       req.Title,
		Description: req.Description,
		Body:        req.Body,
		IngestedAt:  p.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return &ingestion.PageResponse{URL: req.URL, Status: ingestion.StatusQueued}, nil
}

// Remove publishes a tombstone for url. It shares the page's partition key,
// so it is applied after any earlier version of the page.
func (p *Publisher) Remove(ctx context.Context, url string) (*ingestion.PageResponse, error) {
	err := p.publish(ctx, ingestion.PageEvent{
		URL:        url,
		Deleted:    true,
		IngestedAt: p.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return &ingestion.PageResponse{URL: url, Status: ingestion.StatusRemoving}, nil
}

func (p *Publisher) publish(ctx context.Context, event ingestion.PageEvent) error {
	err := resilience.WithTimeout(ctx, publishTimeout, "publish-page", func(ctx context.Context) error {
		return p.producer.Publish(ctx, kafka.Event{Key: event.URL, Value: event})
	})
	if err != nil {
		p.logger.Error("failed to publish page event", "url", event.URL, "deleted", event.Deleted, "error", err)
		return fmt.Errorf("%w: %w", apperrors.ErrPublishFailed, err)
	}
	return nil
}
