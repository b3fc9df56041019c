package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (f *fakeProducer) Publish(_ context.Context, e kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func TestEnqueuePublishesKeyedByURL(t *testing.T) {
	prod := &fakeProducer{}
	p := New(prod)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	req := &ingestion.PageRequest{URL: "https://a", Title: "A", Description: "d", Body: "cat dog"}
	resp, err := p.Enqueue(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, &ingestion.PageResponse{URL: "https://a", Status: ingestion.StatusQueued}, resp)

	require.Len(t, prod.events, 1)
	assert.Equal(t, "https://a", prod.events[0].Key)
	assert.Equal(t, ingestion.PageEvent{
		URL: "https://a", Title: "A", Description: "d", Body: "cat dog", IngestedAt: fixed,
	}, prod.events[0].Value)
}

func TestEnqueueWrapsPublishFailure(t *testing.T) {
	p := New(&fakeProducer{err: errors.New("broker down")})

	resp, err := p.Enqueue(context.Background(), &ingestion.PageRequest{URL: "https://a"})
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, apperrors.ErrPublishFailed)
	assert.Equal(t, 503, apperrors.HTTPStatusCode(err))
}

func TestRemovePublishesTombstone(t *testing.T) {
	prod := &fakeProducer{}
	p := New(prod)

	resp, err := p.Remove(context.Background(), "https://a")
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusRemoving, resp.Status)

	require.Len(t, prod.events, 1)
	assert.Equal(t, "https://a", prod.events[0].Key)
	ev := prod.events[0].Value.(ingestion.PageEvent)
	assert.True(t, ev.Deleted)
	assert.Empty(t, ev.Body)
}
