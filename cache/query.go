package cache

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// queryConfig holds per-query settings.
type queryConfig struct {
	enabled          bool
	staleTime        time.Duration
	keepPreviousData bool
}

// QueryOption configures a Query.
type QueryOption func(*queryConfig)

// WithStaleTime sets the freshness window for values this query writes.
func WithStaleTime(d time.Duration) QueryOption {
	return func(c *queryConfig) { c.staleTime = d }
}

// WithEnabled sets whether the query may fetch at all. A disabled query
// reports an idle status and never invokes its fetch function; used for
// dependent queries that wait on an identifier.
func WithEnabled(enabled bool) QueryOption {
	return func(c *queryConfig) { c.enabled = enabled }
}

// WithKeepPreviousData keeps the last successful value visible through
// Peek while a fetch for a new key (e.g. the next page) is in flight.
func WithKeepPreviousData() QueryOption {
	return func(c *queryConfig) { c.keepPreviousData = true }
}

// Result is an observation of a query's state.
type Result[T any] struct {
	Data           T
	Status         Status
	Err            error
	IsPreviousData bool
	UpdatedAt      time.Time
}

// Query is the read path for one logical resource view. It binds a key
// to a fetch function and serves reads through the cache: fresh entries
// are returned as-is, stale or missing ones trigger a de-duplicated
// fetch. The key may change over the query's lifetime (pagination);
// with keepPreviousData the last page's data stays visible until the
// new page resolves.
type Query[T any] struct {
	c   *Cache
	fn  func(ctx context.Context, key Key) (T, error)
	cfg queryConfig
	log *zap.Logger

	mu      sync.Mutex
	key     Key
	prev    T
	hasPrev bool
}

// NewQuery builds a query for key served by fn.
func NewQuery[T any](c *Cache, key Key, fn func(ctx context.Context, key Key) (T, error), opts ...QueryOption) *Query[T] {
	cfg := queryConfig{enabled: true, staleTime: c.conf.StaleTime}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Query[T]{
		c:   c,
		fn:  fn,
		cfg: cfg,
		log: c.log.Named("query"),
		key: key,
	}
}

// Key returns the query's current key.
func (q *Query[T]) Key() Key {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.key
}

// SetKey repoints the query, e.g. when navigating to another page.
// The previous value is retained for keepPreviousData reads.
func (q *Query[T]) SetKey(key Key) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.key = key
}

// SetEnabled toggles fetching. Enabling does not fetch by itself; the
// next Get or Refresh does.
func (q *Query[T]) SetEnabled(enabled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cfg.enabled = enabled
}

// Get returns the value for the current key, fetching if the cached
// entry is missing or stale. On a disabled query it returns
// ErrQueryDisabled without touching the fetch function.
func (q *Query[T]) Get(ctx context.Context) (T, error) {
	var zero T

	q.mu.Lock()
	if !q.cfg.enabled {
		q.mu.Unlock()
		return zero, ErrQueryDisabled
	}
	key := q.key
	staleTime := q.cfg.staleTime
	q.mu.Unlock()

	v, err := q.c.Fetch(ctx, key, staleTime, func(fctx context.Context) (any, error) {
		return q.fn(fctx, key)
	})
	if err != nil {
		return zero, err
	}

	val, ok := v.(T)
	if !ok {
		// A foreign Set wrote an incompatible value under our key.
		q.log.Warn("cache value has unexpected type", zap.String("key", key.String()))
		return zero, errors.WithMessage(ErrValueType, key.String())
	}

	q.mu.Lock()
	q.prev = val
	q.hasPrev = true
	q.mu.Unlock()
	return val, nil
}

// Refresh starts a background fetch for the current key regardless of
// freshness, first invalidating the entry. Errors surface on the entry,
// not here.
func (q *Query[T]) Refresh(ctx context.Context) {
	q.mu.Lock()
	if !q.cfg.enabled {
		q.mu.Unlock()
		return
	}
	key := q.key
	q.mu.Unlock()

	q.c.Invalidate(ctx, key)
	go func() {
		_, _ = q.Get(context.WithoutCancel(ctx))
	}()
}

// Peek reports the query's current state without fetching. While a new
// key's fetch is unresolved and keepPreviousData is on, it exposes the
// previous value with IsPreviousData set.
func (q *Query[T]) Peek() Result[T] {
	q.mu.Lock()
	key := q.key
	enabled := q.cfg.enabled
	keep := q.cfg.keepPreviousData
	prev := q.prev
	hasPrev := q.hasPrev
	q.mu.Unlock()

	if !enabled {
		return Result[T]{Status: StatusIdle}
	}

	e, ok := q.c.GetEntry(key)
	if ok {
		switch e.Status {
		case StatusSuccess:
			if val, isT := e.Value.(T); isT {
				return Result[T]{Data: val, Status: StatusSuccess, UpdatedAt: e.UpdatedAt}
			}
		case StatusError:
			res := Result[T]{Status: StatusError, Err: e.Err, UpdatedAt: e.UpdatedAt}
			if val, isT := e.Value.(T); isT {
				res.Data = val
			}
			return res
		}
	}

	if keep && hasPrev {
		return Result[T]{Data: prev, Status: StatusFetching, IsPreviousData: true}
	}
	if ok && e.Status == StatusFetching {
		return Result[T]{Status: StatusFetching}
	}
	return Result[T]{Status: StatusIdle}
}

// FetchValue is a one-shot typed read through the cache, for call sites
// that do not need a long-lived Query.
func FetchValue[T any](ctx context.Context, c *Cache, key Key, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Fetch(ctx, key, c.conf.StaleTime, func(fctx context.Context) (any, error) {
		return fn(fctx)
	})
	if err != nil {
		return zero, err
	}
	val, ok := v.(T)
	if !ok {
		return zero, errors.WithMessage(ErrValueType, key.String())
	}
	return val, nil
}
