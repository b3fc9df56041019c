// Package tokenizer normalises text into terms. Queries and indexed pages go
// through the same function so their terms line up: lowercase, drop ASCII
// punctuation, split on whitespace. There is no stemming or stop-word list.
package tokenizer

import "strings"

const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Tokenize returns the terms of text in their original order, duplicates
// included. Empty or all-punctuation input yields an empty slice.
func Tokenize(text string) []string {
	stripped := strings.Map(func(r rune) rune {
		if r < 0x80 && strings.ContainsRune(asciiPunctuation, r) {
			return -1
		}
		return r
	}, strings.ToLower(text))
	return strings.Fields(stripped)
}

// TermCount is how often a term occurs in a token sequence and the index of
// its first occurrence.
type TermCount struct {
	Term          string
	Occurrences   int
	FirstPosition int
}

// Count aggregates tokens into per-term counts, ordered by first occurrence.
func Count(tokens []string) []TermCount {
	index := make(map[string]int, len(tokens))
	counts := make([]TermCount, 0, len(tokens))
	for pos, tok := range tokens {
		if i, ok := index[tok]; ok {
			counts[i].Occurrences++
			continue
		}
		index[tok] = len(counts)
		counts = append(counts, TermCount{Term: tok, Occurrences: 1, FirstPosition: pos})
	}
	return counts
}

// Distinct returns the unique tokens in order of first occurrence.
func Distinct(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
