package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/kafka"
)

// Publisher is the subset of the Kafka producer the collector needs.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers analytics events and publishes them in batches, either
// when the buffer reaches batchSize or every flushInterval. Track never
// blocks the request path.
type Collector struct {
	publisher     Publisher
	batchSize     int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []kafka.Event
	done   chan struct{}
	logger *slog.Logger
}

func NewCollector(publisher Publisher, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Collector{
		publisher:     publisher,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		buffer:        make([]kafka.Event, 0, batchSize),
		done:          make(chan struct{}),
		logger:        slog.Default().With("component", "analytics-collector"),
	}
}

// Start runs the periodic flush loop until ctx is cancelled, then flushes
// whatever is left with a short deadline.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// TrackSearch queues a search event keyed by its request ID.
func (c *Collector) TrackSearch(event SearchEvent) {
	c.track(event.RequestID, event)
}

// TrackIndex queues an index event keyed by the page URL.
func (c *Collector) TrackIndex(event IndexEvent) {
	c.track(event.URL, event)
}

func (c *Collector) track(key string, value any) {
	c.mu.Lock()
	c.buffer = append(c.buffer, kafka.Event{Key: key, Value: value})
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if full {
		go c.flush(context.Background())
	}
}

// Close waits for the flush loop to exit. The context passed to Start must
// be cancelled first.
func (c *Collector) Close() {
	<-c.done
}

func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

func (c *Collector) flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	c.mu.Unlock()

	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("analytics flush failed", "events", len(batch), "error", err)

		// Requeue, keeping at most three batches so a dead broker cannot
		// grow the buffer without bound.
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		if limit := c.batchSize * 3; len(c.buffer) > limit {
			dropped := len(c.buffer) - limit
			c.buffer = c.buffer[:limit]
			c.logger.Warn("analytics buffer overflow, events dropped", "dropped", dropped)
		}
		c.mu.Unlock()
		return
	}
	c.logger.Debug("analytics batch flushed", "events", len(batch))
}
