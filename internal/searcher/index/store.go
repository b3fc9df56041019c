// Package index is the searcher's read side of the inverted index. It turns
// a set of query terms into postings joined with the page and corpus
// statistics the ranker needs, in a single round trip.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/resilience"
	"github.com/lib/pq"
)

// Posting records that Term occurs in the page at URL, with the page's
// statistics and the term's corpus-wide document frequency denormalised
// onto every row.
type Posting struct {
	Term              string
	URL               string
	Occurrences       int
	Position          int
	WordCount         int
	Title             string
	Description       string
	DocumentFrequency int64
}

const lookupQuery = `
SELECT k.word, k.documents_containing_word, wk.occurrences, wk.position,
       w.url, w.word_count, w.title, w.description
FROM keywords k
INNER JOIN website_keywords wk ON k.id = wk.keyword_id
INNER JOIN websites w ON wk.website_id = w.id
WHERE k.word = ANY($1)`

const corpusSizeQuery = `SELECT COUNT(*) FROM websites`

// Store reads postings from Postgres.
type Store struct {
	db      *postgres.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func NewStore(db *postgres.Client, breaker *resilience.CircuitBreaker) *Store {
	return &Store{
		db:      db,
		breaker: breaker,
		logger:  slog.Default().With("component", "index-store"),
	}
}

// CorpusSize counts indexed pages. The searcher calls it once at startup.
func (s *Store) CorpusSize(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.DB.QueryRowContext(ctx, corpusSizeQuery).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting websites: %w", err)
	}
	return n, nil
}

// Lookup returns one posting per (term, page) pair for the given terms.
// Terms with no matching page contribute no rows. Duplicate terms are
// ignored and an empty term set returns nothing without querying.
func (s *Store) Lookup(ctx context.Context, terms []string) ([]Posting, error) {
	terms = tokenizer.Distinct(terms)
	if len(terms) == 0 {
		return nil, nil
	}

	var postings []Posting
	err := s.breaker.Execute(func() error {
		var err error
		postings, err = s.query(ctx, terms)
		return err
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, apperrors.Newf(apperrors.ErrStorageUnavailable, http.StatusServiceUnavailable, "%v", err)
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrLookupFailed, err)
	}
	s.logger.Debug("keywords looked up", "terms", len(terms), "postings", len(postings))
	return postings, nil
}

func (s *Store) query(ctx context.Context, terms []string) ([]Posting, error) {
	rows, err := s.db.DB.QueryContext(ctx, lookupQuery, pq.Array(terms))
	if err != nil {
		return nil, fmt.Errorf("querying keywords: %w", err)
	}
	defer rows.Close()

	var postings []Posting
	for rows.Next() {
		var p Posting
		if err := rows.Scan(
			&p.Term, &p.DocumentFrequency, &p.Occurrences, &p.Position,
			&p.URL, &p.WordCount, &p.Title, &p.Description,
		); err != nil {
			return nil, fmt.Errorf("scanning posting: %w", err)
		}
		postings = append(postings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating postings: %w", err)
	}
	return postings, nil
}
