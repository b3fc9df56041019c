package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/searcher/index"
)

// staticIndex returns the same postings for every lookup.
type staticIndex []index.Posting

func (s staticIndex) Lookup(context.Context, []string) ([]index.Posting, error) {
	return s, nil
}

func BenchmarkSearch(b *testing.B) {
	var postings staticIndex
	for i := range 1000 {
		url := fmt.Sprintf("https://example.com/%d", i)
		postings = append(postings,
			index.Posting{Term: "search", URL: url, Occurrences: i%7 + 1, WordCount: 200, DocumentFrequency: 1000},
			index.Posting{Term: "engine", URL: url, Occurrences: i%3 + 1, WordCount: 200, DocumentFrequency: 1000},
		)
	}
	e := New(postings, 4000)
	ctx := context.Background()

	b.ReportAllocs()
	for b.Loop() {
		if _, err := e.Search(ctx, "Search engine, search!"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSearchParallel(b *testing.B) {
	postings := staticIndex{
		{Term: "cat", URL: "https://a", Occurrences: 1, WordCount: 10, DocumentFrequency: 2},
		{Term: "cat", URL: "https://b", Occurrences: 2, WordCount: 5, DocumentFrequency: 2},
	}
	e := New(postings, 10)
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			e.Search(ctx, "cat")
		}
	})
}
