// Command loadtest drives concurrent queries against POST /api/query and
// prints latency percentiles. With -seed it first queues synthetic pages
// through POST /api/v1/pages so the index has something to match.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:3000] [-concurrency 10] [-duration 30s] [-seed 200]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/ingestion"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var vocabulary = []string{
	"keyword", "search", "ranking", "cosine", "similarity", "frequency",
	"corpus", "index", "query", "page", "term", "weight", "vector",
	"document", "postgres", "kafka", "cache", "redis", "latency", "gateway",
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "gateway or searcher base URL")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	seed := flag.Int("seed", 0, "pages to ingest before the run")
	flag.Parse()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        *concurrency * 2,
			MaxIdleConnsPerHost: *concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	fmt.Println("=== Keyword Search Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Println()

	if *seed > 0 {
		if err := seedPages(context.Background(), client, *baseURL, *seed); err != nil {
			fmt.Fprintf(os.Stderr, "seeding failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Queued %d pages\n\n", *seed)
	}

	stats := NewStats()
	start := time.Now()
	run(client, *baseURL, *concurrency, *duration, stats)
	stats.Report(os.Stdout, time.Since(start))

	if stats.Total() == 0 {
		fmt.Println("\nWARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func run(client *http.Client, baseURL string, concurrency int, duration time.Duration, stats *Stats) {
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := range concurrency {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(w), uint64(time.Now().UnixNano())))
			for ctx.Err() == nil {
				query(ctx, client, baseURL, randomQuery(rng), stats)
			}
			return nil
		})
	}
	g.Wait()
}

type queryResponse struct {
	ExecutionSeconds float64           `json:"executionSeconds"`
	Results          []json.RawMessage `json:"results"`
}

func query(ctx context.Context, client *http.Client, baseURL, q string, stats *Stats) {
	body, _ := json.Marshal(map[string]string{"query": q})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/query", bytes.NewReader(body))
	if err != nil {
		stats.Record(0, 0, 0, 0)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		// The run deadline cuts off in-flight requests; those are not failures.
		if ctx.Err() == nil {
			stats.Record(latency, 0, 0, 0)
		}
		return
	}
	defer resp.Body.Close()

	var qr queryResponse
	if resp.StatusCode == http.StatusOK {
		json.NewDecoder(resp.Body).Decode(&qr)
	}
	io.Copy(io.Discard, resp.Body)
	stats.Record(latency, resp.StatusCode, len(qr.Results), qr.ExecutionSeconds)
}

func seedPages(ctx context.Context, client *http.Client, baseURL string, n int) error {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := range n {
		page := ingestion.PageRequest{
			URL:         fmt.Sprintf("https://loadtest.example/%d", i),
			Title:       fmt.Sprintf("Load test page %d", i),
			Description: randomQuery(rng),
			Body:        randomText(rng, 50+rng.IntN(200)),
		}
		body, _ := json.Marshal(page)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/pages", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("page %d: unexpected status %d", i, resp.StatusCode)
		}
	}
	return nil
}

func randomQuery(rng *rand.Rand) string {
	return randomText(rng, 1+rng.IntN(3))
}

func randomText(rng *rand.Rand, words int) string {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = vocabulary[rng.IntN(len(vocabulary))]
	}
	return strings.Join(parts, " ")
}
