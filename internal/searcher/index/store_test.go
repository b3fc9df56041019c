package index

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/indexer/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/postgres/postgrestest"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func breaker() *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker("test-lookup", resilience.CircuitBreakerConfig{FailureThreshold: 1})
}

func TestLookupJoinsPageAndCorpusStatistics(t *testing.T) {
	db := postgrestest.New(t)
	ctx := context.Background()
	writer := store.New(db)
	_, err := writer.IndexPage(ctx, store.Page{URL: "https://a", Title: "A", Description: "about a", Body: "dog cat"})
	require.NoError(t, err)
	_, err = writer.IndexPage(ctx, store.Page{URL: "https://b", Title: "B", Description: "about b", Body: "cat cat zebra"})
	require.NoError(t, err)

	s := NewStore(db, breaker())
	n, err := s.CorpusSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	postings, err := s.Lookup(ctx, []string{"cat", "dog", "cat", "unknown"})
	require.NoError(t, err)
	require.Len(t, postings, 3)

	byKey := map[string]Posting{}
	for _, p := range postings {
		byKey[p.Term+"@"+p.URL] = p
	}
	assert.Equal(t, Posting{
		Term: "cat", URL: "https://b", Occurrences: 2, Position: 0, WordCount: 3,
		Title: "B", Description: "about b", DocumentFrequency: 2,
	}, byKey["cat@https://b"])
	assert.Equal(t, int64(1), byKey["dog@https://a"].DocumentFrequency)
	assert.Equal(t, 1, byKey["cat@https://a"].Position)
}

func TestLookupEmptyTermsSkipsDatabase(t *testing.T) {
	s := NewStore(nil, breaker())
	postings, err := s.Lookup(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, postings)
}

func TestLookupFailsFastWhenCircuitOpen(t *testing.T) {
	cb := breaker()
	_ = cb.Execute(func() error { return errors.New("down") })
	require.Equal(t, resilience.StateOpen, cb.GetState())

	s := NewStore(nil, cb)
	_, err := s.Lookup(context.Background(), []string{"cat"})
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
}
