package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"time"
)

// Stats accumulates per-request outcomes from all workers.
type Stats struct {
	mu          sync.Mutex
	total       int
	errors      int
	empty       int
	latencies   []time.Duration
	serverTimes []float64
	statusCodes map[int]int
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int),
	}
}

// Record stores one request. status is 0 when the request never got a
// response. serverSeconds is the executionSeconds the searcher reported.
func (s *Stats) Record(latency time.Duration, status int, results int, serverSeconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.statusCodes[status]++
	if status < 200 || status >= 300 {
		s.errors++
		return
	}
	if results == 0 {
		s.empty++
	}
	s.latencies = append(s.latencies, latency)
	s.serverTimes = append(s.serverTimes, serverSeconds)
}

func (s *Stats) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Report writes a human-readable summary to w.
func (s *Stats) Report(w io.Writer, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", s.total)
	fmt.Fprintf(w, "Successful:      %d\n", s.total-s.errors)
	fmt.Fprintf(w, "Errors:          %d\n", s.errors)
	fmt.Fprintf(w, "Zero results:    %d\n", s.empty)
	if s.total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(s.errors)/float64(s.total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(s.total)/elapsed.Seconds())
	}

	if len(s.latencies) > 0 {
		sorted := slices.Clone(s.latencies)
		slices.Sort(sorted)

		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", sorted[0])
		fmt.Fprintf(w, "Avg:    %s\n", mean(sorted))
		fmt.Fprintf(w, "P50:    %s\n", percentile(sorted, 50))
		fmt.Fprintf(w, "P95:    %s\n", percentile(sorted, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(sorted, 99))
		fmt.Fprintf(w, "Max:    %s\n", sorted[len(sorted)-1])

		var server float64
		for _, v := range s.serverTimes {
			server += v
		}
		fmt.Fprintf(w, "Server: %.6fs avg executionSeconds\n", server/float64(len(s.serverTimes)))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	codes := make([]int, 0, len(s.statusCodes))
	for code := range s.statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		label := fmt.Sprint(code)
		if code == 0 {
			label = "no response"
		}
		fmt.Fprintf(w, "  %s: %d\n", label, s.statusCodes[code])
	}
}

func mean(ds []time.Duration) time.Duration {
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds))
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
