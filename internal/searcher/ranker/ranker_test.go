package ranker

import (
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/searcher/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-12

func posting(term, url string, occurrences, wordCount int, df int64) index.Posting {
	return index.Posting{
		Term:              term,
		URL:               url,
		Occurrences:       occurrences,
		WordCount:         wordCount,
		DocumentFrequency: df,
		Title:             "title " + url,
		Description:       "description " + url,
	}
}

// referenceSimilarity spells out the matched-term cosine for a page.
func referenceSimilarity(queryTF map[string]float64, n float64, rows []index.Posting) float64 {
	var dot, d2, q2 float64
	for _, p := range rows {
		idf := 1 + math.Log(n/float64(p.DocumentFrequency))
		wd := float64(p.Occurrences) / float64(p.WordCount) * idf
		wq := queryTF[p.Term] * idf
		dot += wq * wd
		d2 += wd * wd
		q2 += wq * wq
	}
	return dot / (math.Sqrt(q2) * math.Sqrt(d2))
}

func TestQueryFrequenciesSumToOne(t *testing.T) {
	queries := [][]string{
		{"cat"},
		{"cat", "dog"},
		{"cat", "cat", "dog"},
		{"a", "b", "c", "a", "b", "a", "d"},
	}
	for _, q := range queries {
		tf := QueryFrequencies(q)
		var sum float64
		for _, v := range tf {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, tolerance, "%v", q)
	}
}

func TestQueryFrequencies(t *testing.T) {
	tf := QueryFrequencies([]string{"cat", "dog", "cat", "cat"})
	assert.Equal(t, map[string]float64{"cat": 0.75, "dog": 0.25}, tf)
	assert.Nil(t, QueryFrequencies(nil))
}

func TestIDF(t *testing.T) {
	assert.Equal(t, 1.0, IDF(2, 2))
	assert.InDelta(t, 1+math.Ln2, IDF(2, 1), tolerance)
}

func TestGroupByDocumentKeepsFirstSummary(t *testing.T) {
	first := posting("cat", "https://a", 1, 10, 2)
	second := posting("dog", "https://a", 1, 10, 1)
	second.Title = "stale title"
	other := posting("cat", "https://b", 2, 5, 2)

	groups := GroupByDocument([]index.Posting{first, other, second})

	require.Len(t, groups, 2)
	assert.Equal(t, "https://a", groups[0].Document.URL)
	assert.Equal(t, "title https://a", groups[0].Document.Title)
	assert.Len(t, groups[0].Postings, 2)
	assert.Equal(t, "https://b", groups[1].Document.URL)
	assert.Len(t, groups[1].Postings, 1)
}

func TestRankTwoDocumentScenario(t *testing.T) {
	const n = 2
	docA := []index.Posting{
		posting("cat", "https://a", 1, 10, 2),
		posting("dog", "https://a", 1, 10, 1),
	}
	docB := []index.Posting{
		posting("cat", "https://b", 2, 5, 2),
	}
	query := []string{"cat", "dog"}
	queryTF := QueryFrequencies(query)

	ranked := Rank(query, append(append([]index.Posting{}, docA...), docB...), n, Ascending)

	require.Len(t, ranked, 2)
	byURL := map[string]float64{}
	for _, s := range ranked {
		byURL[s.Document.URL] = s.Similarity
	}
	assert.InDelta(t, referenceSimilarity(queryTF, n, docA), byURL["https://a"], tolerance)
	assert.InDelta(t, referenceSimilarity(queryTF, n, docB), byURL["https://b"], tolerance)

	// A's page and query weights are proportional; B is scored over "cat" alone.
	assert.InDelta(t, 1.0, byURL["https://a"], 1e-9)
	assert.InDelta(t, 1.0, byURL["https://b"], 1e-9)
}

func TestSimilarityMatchedTermsOnly(t *testing.T) {
	const n = 10
	query := []string{"cat", "dog", "dog"}
	queryTF := QueryFrequencies(query)
	rows := []index.Posting{
		posting("cat", "https://c", 3, 20, 4),
		posting("dog", "https://c", 1, 20, 2),
	}

	got := Similarity(rows, queryTF, n)

	assert.InDelta(t, referenceSimilarity(queryTF, n, rows), got, tolerance)
	assert.Less(t, got, 1.0)
	assert.Greater(t, got, 0.0)
}

func TestSimilaritySkipsTermsOutsideQuery(t *testing.T) {
	queryTF := QueryFrequencies([]string{"cat"})
	rows := []index.Posting{
		posting("cat", "https://a", 1, 10, 1),
		posting("zebra", "https://a", 5, 10, 1),
	}
	assert.InDelta(t, 1.0, Similarity(rows, queryTF, 3), tolerance)
}

func TestSimilarityFiniteForWellFormedData(t *testing.T) {
	queryTF := QueryFrequencies([]string{"a", "b", "c"})
	rows := []index.Posting{
		posting("a", "https://x", 1, 3, 1),
		posting("b", "https://x", 1, 3, 5),
		posting("c", "https://x", 1, 3, 100),
	}
	s := Similarity(rows, queryTF, 100)
	assert.False(t, math.IsNaN(s))
	assert.False(t, math.IsInf(s, 0))
}

func TestSimilarityWithinUnitInterval(t *testing.T) {
	query := []string{"go", "search", "engine", "go", "index"}
	queryTF := QueryFrequencies(query)
	for occ := 1; occ <= 5; occ++ {
		for df := int64(1); df <= 50; df += 7 {
			rows := []index.Posting{
				posting("go", "https://p", occ, 40, df),
				posting("search", "https://p", 6-occ, 40, 51-df),
				posting("index", "https://p", 1, 40, 50),
			}
			s := Similarity(rows, queryTF, 50)
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0+1e-12)
		}
	}
}

func TestSimilarityDeterministic(t *testing.T) {
	queryTF := QueryFrequencies([]string{"a", "b", "c", "d"})
	rows := []index.Posting{
		posting("a", "https://x", 3, 17, 2),
		posting("b", "https://x", 1, 17, 9),
		posting("c", "https://x", 7, 17, 4),
		posting("d", "https://x", 2, 17, 1),
	}
	first := Similarity(rows, queryTF, 11)
	for range 100 {
		assert.Equal(t, math.Float64bits(first), math.Float64bits(Similarity(rows, queryTF, 11)))
	}
}

func TestSimilarityZeroWordCountIsNaN(t *testing.T) {
	queryTF := QueryFrequencies([]string{"a"})
	rows := []index.Posting{posting("a", "https://x", 0, 0, 1)}
	assert.True(t, math.IsNaN(Similarity(rows, queryTF, 3)))
}

func TestSortAscendingIsLiteral(t *testing.T) {
	scored := []Scored{
		{Similarity: 0.9, Document: Document{URL: "https://high"}},
		{Similarity: 0.3, Document: Document{URL: "https://low"}},
	}
	Sort(scored, Ascending)

	// Least similar first: this is the established ordering, not a relevance ranking.
	assert.Equal(t, []string{"https://low", "https://high"}, urls(scored))
}

func TestSortDescending(t *testing.T) {
	scored := []Scored{
		{Similarity: 0.3, Document: Document{URL: "https://low"}},
		{Similarity: 0.9, Document: Document{URL: "https://high"}},
	}
	Sort(scored, Descending)
	assert.Equal(t, []string{"https://high", "https://low"}, urls(scored))
}

func TestSortNaNRanksLowest(t *testing.T) {
	build := func() []Scored {
		return []Scored{
			{Similarity: 0.5, Document: Document{URL: "https://mid"}},
			{Similarity: math.NaN(), Document: Document{URL: "https://broken"}},
			{Similarity: 0.9, Document: Document{URL: "https://high"}},
		}
	}

	asc := build()
	Sort(asc, Ascending)
	assert.Equal(t, []string{"https://broken", "https://mid", "https://high"}, urls(asc))

	desc := build()
	Sort(desc, Descending)
	assert.Equal(t, []string{"https://high", "https://mid", "https://broken"}, urls(desc))
}

func TestSortTiesByURL(t *testing.T) {
	for _, order := range []Order{Ascending, Descending} {
		scored := []Scored{
			{Similarity: 1, Document: Document{URL: "https://b"}},
			{Similarity: 1, Document: Document{URL: "https://a"}},
		}
		Sort(scored, order)
		assert.Equal(t, []string{"https://a", "https://b"}, urls(scored), order.String())
	}
}

func TestRankEmptyQuery(t *testing.T) {
	ranked := Rank(nil, []index.Posting{posting("a", "https://x", 1, 1, 1)}, 1, Ascending)
	assert.Empty(t, ranked)
}

func TestRankOrdersBySimilarity(t *testing.T) {
	query := []string{"cat", "dog"}
	rows := []index.Posting{
		// Proportional to the query: similarity 1.
		posting("cat", "https://match", 1, 10, 5),
		posting("dog", "https://match", 1, 10, 5),
		// Skewed towards cat: similarity below 1.
		posting("cat", "https://skewed", 9, 10, 5),
		posting("dog", "https://skewed", 1, 10, 5),
	}

	ranked := Rank(query, rows, 10, Ascending)
	assert.Equal(t, []string{"https://skewed", "https://match"}, urls(ranked))

	ranked = Rank(query, rows, 10, Descending)
	assert.Equal(t, []string{"https://match", "https://skewed"}, urls(ranked))
}

func TestDocuments(t *testing.T) {
	docs := Documents([]Scored{{Similarity: 0.1, Document: Document{URL: "u", Title: "t", Description: "d"}}})
	assert.Equal(t, []Document{{URL: "u", Title: "t", Description: "d"}}, docs)
}

func TestParseOrder(t *testing.T) {
	assert.Equal(t, Descending, ParseOrder("descending"))
	assert.Equal(t, Ascending, ParseOrder("ascending"))
	assert.Equal(t, Ascending, ParseOrder(""))
}

func urls(scored []Scored) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.Document.URL
	}
	return out
}
