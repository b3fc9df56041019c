// Package ingestion defines the request/response types and the Kafka event
// that carries a page from the ingestion API to the indexer.
package ingestion

import "time"

// PageRequest is the JSON body accepted by POST /api/v1/pages.
type PageRequest struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Body        string `json:"body"`
}

// PageResponse is returned once a page has been queued for indexing.
type PageResponse struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

// PageEvent is published to the page ingest topic, keyed by URL so that
// successive versions of a page are indexed in order. A Deleted event
// removes the page from the index and carries no content.
type PageEvent struct {
	URL         string    `json:"url"`
	Deleted     bool      `json:"deleted,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Body        string    `json:"body"`
	IngestedAt  time.Time `json:"ingested_at"`
}

const (
	StatusQueued   = "QUEUED"
	StatusRemoving = "REMOVING"
)
