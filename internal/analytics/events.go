package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventSearch      EventType = "search"
	EventSearchError EventType = "search_error"
	EventIndexPage   EventType = "index_page"
)

// SearchEvent is published by the searcher once per /api/query request.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	Results   int       `json:"results"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// IndexEvent is published by the indexer after a page has been written.
type IndexEvent struct {
	Type        EventType `json:"type"`
	URL         string    `json:"url"`
	WordCount   int       `json:"word_count"`
	UniqueTerms int       `json:"unique_terms"`
	LatencyMs   int64     `json:"latency_ms"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

type envelope struct {
	Type EventType `json:"type"`
}

// decode inspects the type field and unmarshals into the matching event.
func decode(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding event envelope: %w", err)
	}
	switch env.Type {
	case EventSearch, EventSearchError:
		var e SearchEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decoding search event: %w", err)
		}
		return e, nil
	case EventIndexPage:
		var e IndexEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decoding index event: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}
