package tokenizer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Search engines map each keyword to the pages containing it. A query is
        split into terms, every term is looked up, and the matching pages are scored
        by how often they use the query terms relative to how rare those terms are
        across the whole corpus. Pages that share no term with the query never appear.`,
	"long": strings.Repeat(`Term frequency counts how often a keyword appears in a page,
        normalised by the page's word count. Inverse document frequency rewards rare
        terms. Cosine similarity compares the weighted query vector with the weighted
        page vector, so pages that use the query's rarer words rank apart from pages
        that only repeat its common ones. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for b.Loop() {
				Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			Tokenize(text)
		}
	})
}

func BenchmarkCount(b *testing.B) {
	for _, size := range []int{100, 1000, 10000} {
		text := strings.Repeat("alpha beta gamma delta alpha beta alpha ", size/7+1)
		tokens := Tokenize(text)[:size]
		b.Run(fmt.Sprintf("tokens_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				Count(tokens)
			}
		})
	}
}
