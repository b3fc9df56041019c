package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	pages    []store.Page
	deleted  []string
	failures int
}

func (f *fakeWriter) IndexPage(_ context.Context, page store.Page) (store.Result, error) {
	if f.failures > 0 {
		f.failures--
		return store.Result{}, errors.New("connection reset")
	}
	f.pages = append(f.pages, page)
	return store.Result{WordCount: 3, UniqueTerms: 2}, nil
}

func (f *fakeWriter) DeletePage(_ context.Context, url string) (bool, error) {
	f.deleted = append(f.deleted, url)
	return true, nil
}

type fakeTracker struct{ events []analytics.IndexEvent }

func (f *fakeTracker) TrackIndex(e analytics.IndexEvent) { f.events = append(f.events, e) }

var fastRetry = resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func encode(t *testing.T, e ingestion.PageEvent) []byte {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return b
}

func TestHandleMessageIndexesPage(t *testing.T) {
	w := &fakeWriter{}
	tr := &fakeTracker{}
	m := metrics.New(prometheus.NewRegistry())
	ix := New(w, tr, m, fastRetry)

	err := ix.HandleMessage(context.Background(), []byte("https://a"), encode(t, ingestion.PageEvent{
		URL: "https://a", Title: "A", Description: "d", Body: "cat cat dog", IngestedAt: time.Now(),
	}))
	require.NoError(t, err)

	assert.Equal(t, []store.Page{{URL: "https://a", Title: "A", Description: "d", Body: "cat cat dog"}}, w.pages)
	require.Len(t, tr.events, 1)
	assert.Equal(t, analytics.EventIndexPage, tr.events[0].Type)
	assert.Equal(t, statusIndexed, tr.events[0].Status)
	assert.Equal(t, 3, tr.events[0].WordCount)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PagesIndexedTotal.WithLabelValues(statusIndexed)))
}

func TestHandleMessageRetriesWrites(t *testing.T) {
	w := &fakeWriter{failures: 2}
	ix := New(w, nil, nil, fastRetry)

	err := ix.HandleMessage(context.Background(), nil, encode(t, ingestion.PageEvent{URL: "https://a", Body: "cat"}))
	require.NoError(t, err)
	assert.Len(t, w.pages, 1)
}

func TestHandleMessageGivesUpAfterRetries(t *testing.T) {
	w := &fakeWriter{failures: 10}
	tr := &fakeTracker{}
	ix := New(w, tr, nil, fastRetry)

	err := ix.HandleMessage(context.Background(), nil, encode(t, ingestion.PageEvent{URL: "https://a", Body: "cat"}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, kafka.ErrSkip)
	require.Len(t, tr.events, 1)
	assert.Equal(t, statusFailed, tr.events[0].Status)
}

func TestHandleMessageDeletesPage(t *testing.T) {
	w := &fakeWriter{}
	tr := &fakeTracker{}
	ix := New(w, tr, nil, fastRetry)

	err := ix.HandleMessage(context.Background(), nil, encode(t, ingestion.PageEvent{URL: "https://a", Deleted: true}))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a"}, w.deleted)
	assert.Empty(t, w.pages)
	assert.Equal(t, statusDeleted, tr.events[0].Status)
}

func TestHandleMessageSkipsMalformed(t *testing.T) {
	ix := New(&fakeWriter{}, nil, nil, fastRetry)
	assert.ErrorIs(t, ix.HandleMessage(context.Background(), nil, []byte("{")), kafka.ErrSkip)
	assert.ErrorIs(t, ix.HandleMessage(context.Background(), nil, []byte(`{"title":"no url"}`)), kafka.ErrSkip)
}
