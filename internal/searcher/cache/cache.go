// Package cache memoises search results in Redis. Keys are derived from the
// query's term multiset, so "Cat dog!" and "dog cat" share an entry, plus the
// corpus size and sort order the result was ranked with.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/searcher/engine"
	pkgredis "github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// Backend is the subset of the Redis client the cache uses.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	backend        Backend
	ttl            time.Duration
	computeTimeout time.Duration
	scope          string
	group          singleflight.Group
	logger         *slog.Logger
	hits           atomic.Int64
	misses         atomic.Int64
}

type Option func(*QueryCache)

// WithComputeTimeout bounds a shared computation, which no longer follows
// any single caller's deadline. Zero means unbounded.
func WithComputeTimeout(d time.Duration) Option {
	return func(c *QueryCache) { c.computeTimeout = d }
}

// New creates a cache. scope identifies the ranking parameters (corpus size,
// order) so results ranked differently never share a key.
func New(backend Backend, ttl time.Duration, corpusSize int64, order fmt.Stringer, opts ...Option) *QueryCache {
	c := &QueryCache{
		backend: backend,
		ttl:     ttl,
		scope:   fmt.Sprintf("n=%d|order=%s", corpusSize, order),
		logger:  slog.Default().With("component", "query-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *QueryCache) Get(ctx context.Context, query string) (*engine.Result, bool) {
	key := c.buildKey(query)
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result engine.Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	rebind(&result, query)
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", query, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, query string, result *engine.Result) {
	key := c.buildKey(query)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for query or computes, stores and
// returns it. Concurrent misses for the same key share one computation, run
// detached from the caller that started it so its cancellation cannot fail
// the others. Each caller still returns early on its own ctx. Errors are never
// cached.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	computeFn func(ctx context.Context) (*engine.Result, error),
) (*engine.Result, bool, error) {
	if result, ok := c.Get(ctx, query); ok {
		return result, true, nil
	}
	key := c.buildKey(query)
	ch := c.group.DoChan(key, func() (any, error) {
		shared := context.WithoutCancel(ctx)
		if c.computeTimeout > 0 {
			var cancel context.CancelFunc
			shared, cancel = context.WithTimeout(shared, c.computeTimeout)
			defer cancel()
		}
		result, err := computeFn(shared)
		if err != nil {
			return nil, err
		}
		c.Set(shared, query, result)
		return result, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, false, res.Err
	}
	result := *res.Val.(*engine.Result)
	rebind(&result, query)
	return &result, false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) buildKey(query string) string {
	raw := c.scope + "|" + normalizeQuery(query)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// rebind points a shared result at the caller's own query text.
func rebind(result *engine.Result, query string) {
	result.Query = query
	result.Terms = tokenizer.Tokenize(query)
}

// normalizeQuery sorts the query's terms. Term frequency depends only on the
// multiset of terms, so order is irrelevant but repetition is kept.
func normalizeQuery(query string) string {
	terms := tokenizer.Tokenize(query)
	slices.Sort(terms)
	return strings.Join(terms, " ")
}
