// Package store is the indexer's write side of the inverted index. Each page
// is written in one transaction so readers never see a page with a partial
// set of postings or a document frequency that disagrees with them.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/postgres"
)

const (
	upsertWebsite = `
INSERT INTO websites (url, title, description, word_count)
VALUES ($1, $2, $3, $4)
ON CONFLICT (url) DO UPDATE
SET title = EXCLUDED.title, description = EXCLUDED.description, word_count = EXCLUDED.word_count
RETURNING id`

	// Locks come before the decrement so they are taken in word order.
	lockKeywords = `
SELECT k.id FROM keywords k
JOIN website_keywords wk ON wk.keyword_id = k.id
WHERE wk.website_id = $1
ORDER BY k.word
FOR UPDATE OF k`

	releaseKeywords = `
UPDATE keywords SET documents_containing_word = documents_containing_word - 1
WHERE id IN (SELECT keyword_id FROM website_keywords WHERE website_id = $1)`

	deletePostings = `DELETE FROM website_keywords WHERE website_id = $1`

	upsertKeyword = `
INSERT INTO keywords (word, documents_containing_word) VALUES ($1, 1)
ON CONFLICT (word) DO UPDATE
SET documents_containing_word = keywords.documents_containing_word + 1
RETURNING id`

	insertPosting = `
INSERT INTO website_keywords (website_id, keyword_id, occurrences, position)
VALUES ($1, $2, $3, $4)`

	deleteWebsite = `DELETE FROM websites WHERE id = $1`
)

// Page is a document ready to be indexed.
type Page struct {
	URL         string
	Title       string
	Description string
	Body        string
}

// Result summarises what IndexPage wrote.
type Result struct {
	WordCount   int
	UniqueTerms int
	Replaced    bool
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "index-writer"),
	}
}

// IndexPage tokenizes the page body and replaces any previous postings for
// its URL. Document frequencies are adjusted for both the old and new term
// sets inside the same transaction.
func (s *Store) IndexPage(ctx context.Context, page Page) (Result, error) {
	tokens := tokenizer.Tokenize(page.Body)
	counts := tokenizer.Count(tokens)
	// New keywords are locked in word order, after the old ones; see
	// releasePostings.
	slices.SortFunc(counts, func(a, b tokenizer.TermCount) int {
		return strings.Compare(a.Term, b.Term)
	})

	res := Result{WordCount: len(tokens), UniqueTerms: len(counts)}
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		var websiteID int64
		if err := tx.QueryRowContext(ctx, upsertWebsite,
			page.URL, page.Title, page.Description, len(tokens),
		).Scan(&websiteID); err != nil {
			return fmt.Errorf("upserting website: %w", err)
		}

		released, err := s.releasePostings(ctx, tx, websiteID)
		if err != nil {
			return err
		}
		res.Replaced = released > 0

		if len(counts) == 0 {
			return nil
		}
		keywordStmt, err := tx.PrepareContext(ctx, upsertKeyword)
		if err != nil {
			return fmt.Errorf("preparing keyword upsert: %w", err)
		}
		defer keywordStmt.Close()
		postingStmt, err := tx.PrepareContext(ctx, insertPosting)
		if err != nil {
			return fmt.Errorf("preparing posting insert: %w", err)
		}
		defer postingStmt.Close()

		for _, c := range counts {
			var keywordID int64
			if err := keywordStmt.QueryRowContext(ctx, c.Term).Scan(&keywordID); err != nil {
				return fmt.Errorf("upserting keyword %q: %w", c.Term, err)
			}
			if _, err := postingStmt.ExecContext(ctx, websiteID, keywordID, c.Occurrences, c.FirstPosition); err != nil {
				return fmt.Errorf("inserting posting for %q: %w", c.Term, err)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("indexing %s: %w", page.URL, err)
	}

	s.logger.Debug("page indexed",
		"url", page.URL,
		"word_count", res.WordCount,
		"unique_terms", res.UniqueTerms,
		"replaced", res.Replaced,
	)
	return res, nil
}

// DeletePage removes a page and its postings. It reports whether the page
// existed.
func (s *Store) DeletePage(ctx context.Context, url string) (bool, error) {
	var found bool
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		var websiteID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM websites WHERE url = $1 FOR UPDATE`, url).Scan(&websiteID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("finding website: %w", err)
		}
		if _, err := s.releasePostings(ctx, tx, websiteID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, deleteWebsite, websiteID); err != nil {
			return fmt.Errorf("deleting website: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("deleting %s: %w", url, err)
	}
	return found, nil
}

// releasePostings drops the page's postings and decrements the document
// frequency of every keyword they referenced. The old keywords are locked in
// word order first.
//
// Two writers still lock in two sorted passes (old terms, then new terms), so
// overlapping re-indexes can deadlock in rare interleavings. Postgres aborts
// one transaction and the consumer retries it.
func (s *Store) releasePostings(ctx context.Context, tx *sql.Tx, websiteID int64) (int64, error) {
	rows, err := tx.QueryContext(ctx, lockKeywords, websiteID)
	if err != nil {
		return 0, fmt.Errorf("locking keywords: %w", err)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("locking keywords: %w", err)
	}
	if _, err := tx.ExecContext(ctx, releaseKeywords, websiteID); err != nil {
		return 0, fmt.Errorf("releasing keyword counts: %w", err)
	}
	r, err := tx.ExecContext(ctx, deletePostings, websiteID)
	if err != nil {
		return 0, fmt.Errorf("deleting postings: %w", err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted postings: %w", err)
	}
	return n, nil
}
