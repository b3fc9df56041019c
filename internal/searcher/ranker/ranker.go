// Package ranker scores pages against a query with TF-IDF weighted cosine
// similarity.
//
// Both vectors are restricted to the query terms a page actually contains:
// the query magnitude is recomputed per page over the matched terms only, and
// page terms outside the query are ignored. Pages with no matched term never
// reach the ranker because the lookup returns no postings for them.
package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/searcher/index"
)

// Order is the direction results are sorted by similarity.
type Order int

const (
	// Ascending puts the least similar page first.
	Ascending Order = iota
	Descending
)

// ParseOrder maps "descending" to Descending and anything else to Ascending.
func ParseOrder(s string) Order {
	if s == "descending" {
		return Descending
	}
	return Ascending
}

func (o Order) String() string {
	if o == Descending {
		return "descending"
	}
	return "ascending"
}

// Document is the page summary returned to callers.
type Document struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// Scored pairs a document with its similarity to the query.
type Scored struct {
	Similarity float64
	Document   Document
}

// Group is one page and the postings that matched it, in lookup order.
type Group struct {
	Document Document
	Postings []index.Posting
}

// QueryFrequencies returns count(t)/len(terms) for every distinct term. It
// returns nil for an empty query.
func QueryFrequencies(terms []string) map[string]float64 {
	if len(terms) == 0 {
		return nil
	}
	counts := make(map[string]int, len(terms))
	for _, t := range terms {
		counts[t]++
	}
	total := float64(len(terms))
	tf := make(map[string]float64, len(counts))
	for t, c := range counts {
		tf[t] = float64(c) / total
	}
	return tf
}

// GroupByDocument groups postings by URL in order of first appearance. The
// title and description come from the first posting seen for each URL.
func GroupByDocument(postings []index.Posting) []Group {
	byURL := make(map[string]int)
	groups := make([]Group, 0)
	for _, p := range postings {
		i, ok := byURL[p.URL]
		if !ok {
			i = len(groups)
			byURL[p.URL] = i
			groups = append(groups, Group{
				Document: Document{
					Title:       p.Title,
					Description: p.Description,
					URL:         p.URL,
				},
			})
		}
		groups[i].Postings = append(groups[i].Postings, p)
	}
	return groups
}

// IDF is 1 + ln(corpusSize / documentFrequency).
func IDF(corpusSize, documentFrequency int64) float64 {
	return 1 + math.Log(float64(corpusSize)/float64(documentFrequency))
}

// Similarity computes the matched-term cosine similarity of one page. Postings
// for terms absent from queryTF are skipped. Inconsistent statistics (zero
// word count or document frequency) yield NaN or Inf rather than a panic.
func Similarity(postings []index.Posting, queryTF map[string]float64, corpusSize int64) float64 {
	var dot, docNormSq, queryNormSq float64
	for _, p := range postings {
		tfQ, ok := queryTF[p.Term]
		if !ok {
			continue
		}
		idf := IDF(corpusSize, p.DocumentFrequency)
		docWeight := float64(p.Occurrences) / float64(p.WordCount) * idf
		queryWeight := tfQ * idf

		dot += queryWeight * docWeight
		docNormSq += docWeight * docWeight
		queryNormSq += queryWeight * queryWeight
	}
	return dot / (math.Sqrt(queryNormSq) * math.Sqrt(docNormSq))
}

// Rank scores every page in postings against the query terms and sorts the
// result by order. An empty query ranks nothing.
func Rank(queryTerms []string, postings []index.Posting, corpusSize int64, order Order) []Scored {
	queryTF := QueryFrequencies(queryTerms)
	if queryTF == nil {
		return []Scored{}
	}
	groups := GroupByDocument(postings)
	scored := make([]Scored, 0, len(groups))
	for _, g := range groups {
		scored = append(scored, Scored{
			Similarity: Similarity(g.Postings, queryTF, corpusSize),
			Document:   g.Document,
		})
	}
	Sort(scored, order)
	return scored
}

// Sort orders scored by similarity. NaN counts as the lowest similarity and
// ties are broken by URL so the result never depends on lookup row order.
func Sort(scored []Scored, order Order) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if order == Descending {
			a, b = b, a
		}
		switch aNaN, bNaN := math.IsNaN(a.Similarity), math.IsNaN(b.Similarity); {
		case aNaN && !bNaN:
			return true
		case bNaN && !aNaN:
			return false
		case !aNaN && a.Similarity != b.Similarity:
			return a.Similarity < b.Similarity
		}
		return scored[i].Document.URL < scored[j].Document.URL
	})
}

// Documents drops the scores, keeping the order.
func Documents(scored []Scored) []Document {
	docs := make([]Document, len(scored))
	for i, s := range scored {
		docs[i] = s.Document
	}
	return docs
}
