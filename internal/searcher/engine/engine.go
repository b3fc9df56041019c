// Package engine runs a free-text query through tokenization, the keyword
// lookup and the ranker. An Engine is safe for concurrent use: its only state
// is the lookup collaborator and the corpus size fixed at construction.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/searcher/index"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/tracing"
)

// KeywordIndex returns the postings for a set of distinct terms.
type KeywordIndex interface {
	Lookup(ctx context.Context, terms []string) ([]index.Posting, error)
}

// Result is the outcome of one search. Scored keeps the similarities for
// logging and tests; it is not serialised.
type Result struct {
	Query   string            `json:"query"`
	Terms   []string          `json:"terms"`
	Results []ranker.Document `json:"results"`
	Scored  []ranker.Scored   `json:"-"`
}

type Engine struct {
	index      KeywordIndex
	corpusSize int64
	order      ranker.Order
	logger     *slog.Logger
}

type Option func(*Engine)

// WithOrder sets the result sort direction. The default is ranker.Ascending.
func WithOrder(order ranker.Order) Option {
	return func(e *Engine) { e.order = order }
}

// New builds an Engine. corpusSize is the N in the IDF formula; it is read
// once by the caller and never refreshed.
func New(idx KeywordIndex, corpusSize int64, opts ...Option) *Engine {
	e := &Engine{
		index:      idx,
		corpusSize: corpusSize,
		order:      ranker.Ascending,
		logger:     slog.Default().With("component", "search-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) CorpusSize() int64 { return e.corpusSize }

func (e *Engine) Order() ranker.Order { return e.order }

// Search ranks the pages matching query. A query without terms returns an
// empty result without touching the index. Any lookup error fails the whole
// search; there are no partial results.
func (e *Engine) Search(ctx context.Context, query string) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
	defer func() {
		span.End()
		span.Log(ctx, e.logger)
	}()

	terms := tokenize(ctx, query)
	result := &Result{
		Query:   query,
		Terms:   terms,
		Results: []ranker.Document{},
		Scored:  []ranker.Scored{},
	}
	if len(terms) == 0 {
		return result, nil
	}

	lookupCtx, lookupSpan := tracing.StartChildSpan(ctx, "lookup")
	distinct := tokenizer.Distinct(terms)
	postings, err := e.index.Lookup(lookupCtx, distinct)
	lookupSpan.SetAttr("postings", len(postings))
	lookupSpan.End()
	if err != nil {
		return nil, fmt.Errorf("looking up %d terms: %w", len(distinct), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, rankSpan := tracing.StartChildSpan(ctx, "rank")
	scored := ranker.Rank(terms, postings, e.corpusSize, e.order)
	rankSpan.SetAttr("documents", len(scored))
	rankSpan.End()

	result.Scored = scored
	result.Results = ranker.Documents(scored)
	return result, nil
}

// tokenize runs the tokenizer under a "tokenize" span.
func tokenize(ctx context.Context, query string) []string {
	_, span := tracing.StartChildSpan(ctx, "tokenize")
	defer span.End()
	terms := tokenizer.Tokenize(query)
	span.SetAttr("terms", len(terms))
	return terms
}
