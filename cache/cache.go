// Package cache implements the client-side query cache for the paperdesk
// SDK: keyed entries with staleness windows, hierarchical invalidation,
// request de-duplication, and the optimistic-patch/rollback protocol used
// by mutations against paginated list views.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Defaults for the cache configuration
const (
	defaultStaleTime = 30 * time.Second
	defaultGCTime    = 5 * time.Minute
)

var (
	// ErrFetchCanceled is returned to callers of a fetch that was
	// cancelled or superseded before its result could be written.
	ErrFetchCanceled = errors.New("cache: fetch canceled")

	// ErrMutationInFlight is returned when a mutation with the same
	// identity already holds an uncommitted optimistic patch.
	ErrMutationInFlight = errors.New("cache: mutation already in flight")

	// ErrQueryDisabled is returned by Get on a disabled query.
	ErrQueryDisabled = errors.New("cache: query disabled")

	// ErrValueType is returned when the entry under a query's key holds a
	// value of a different type, i.e. two readers share a key but disagree
	// on what it stores.
	ErrValueType = errors.New("cache: cached value has unexpected type")
)

// Config holds cache tuning knobs.
type Config struct {
	// StaleTime is the default freshness window for entries written by
	// queries that do not set their own.
	StaleTime time.Duration

	// GCTime is how long an entry survives after its last write before
	// the underlying store evicts it.
	GCTime time.Duration

	// MaxEntries bounds the store; 0 means unlimited.
	MaxEntries int
}

func (c Config) withDefaults() Config {
	if c.StaleTime <= 0 {
		c.StaleTime = defaultStaleTime
	}
	if c.GCTime <= 0 {
		c.GCTime = defaultGCTime
	}
	return c
}

// FetchFunc loads the value for a key from the transport layer.
type FetchFunc func(ctx context.Context) (any, error)

// inflightFetch tracks one running fetch so it can be cancelled and so a
// superseded response is never written back.
type inflightFetch struct {
	key    Key
	token  string
	cancel context.CancelFunc
}

// Cache is the process-wide query cache. It is constructed once at
// startup and injected into every service that reads or writes it; there
// is no package-level singleton.
type Cache struct {
	conf    Config
	log     *zap.Logger
	metrics *Metrics

	mu       sync.Mutex
	store    *expirable.LRU[string, *Entry]
	inflight map[string]*inflightFetch
	active   map[string]struct{}
	flight   singleflight.Group

	subMu   sync.Mutex
	subs    map[uint64]*Subscription
	nextSub uint64
}

// New creates a cache with the given configuration.
func New(conf Config, log *zap.Logger) *Cache {
	conf = conf.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		conf:     conf,
		log:      log.Named("cache"),
		metrics:  newMetrics(),
		store:    expirable.NewLRU[string, *Entry](conf.MaxEntries, nil, conf.GCTime),
		inflight: make(map[string]*inflightFetch),
		active:   make(map[string]struct{}),
		subs:     make(map[uint64]*Subscription),
	}
}

// Metrics returns the cache metrics.
func (c *Cache) Metrics() *Metrics {
	return c.metrics
}

// StaleTime returns the configured default freshness window.
func (c *Cache) StaleTime() time.Duration {
	return c.conf.StaleTime
}

// GetEntry returns a copy of the entry for key, if one exists.
func (c *Cache) GetEntry(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.store.Get(key.Canonical())
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Set writes a successful value for key, stamping it with the default
// staleness window.
func (c *Cache) Set(key Key, value any) {
	c.SetWithStaleTime(key, value, c.conf.StaleTime)
}

// SetWithStaleTime writes a successful value for key with an explicit
// freshness window.
func (c *Cache) SetWithStaleTime(key Key, value any, staleTime time.Duration) {
	now := time.Now()
	e := &Entry{
		Key:        key,
		Value:      value,
		Status:     StatusSuccess,
		UpdatedAt:  now,
		FreshUntil: now.Add(staleTime),
	}

	c.mu.Lock()
	c.store.Add(key.Canonical(), e)
	c.mu.Unlock()

	c.notify(Event{Key: key, Type: EventSet})
}

// Invalidate marks every entry under prefix as stale, forcing the next
// read to refetch. Entries are not removed, so keepPreviousData reads
// still see the old value while the refetch runs. Invalidating the same
// prefix twice is a no-op the second time around.
func (c *Cache) Invalidate(ctx context.Context, prefix Key) int {
	var events []Event

	c.mu.Lock()
	for _, ck := range c.store.Keys() {
		e, ok := c.store.Get(ck)
		if !ok || !e.Key.HasPrefix(prefix) {
			continue
		}
		e.FreshUntil = time.Time{}
		events = append(events, Event{Key: e.Key, Type: EventInvalidated})
	}
	c.mu.Unlock()

	if len(events) > 0 {
		c.metrics.recordInvalidation(ctx, int64(len(events)))
		c.log.Debug("invalidated", zap.String("prefix", prefix.String()), zap.Int("entries", len(events)))
	}
	for _, ev := range events {
		c.notify(ev)
	}
	return len(events)
}

// CancelInFlight cancels every running fetch whose key falls under
// prefix. Cancellation is advisory to the transport (the request may
// still complete) but authoritative to the cache: a cancelled fetch's
// response is never written back. Mutations call this before applying an
// optimistic patch so a slow GET cannot overwrite the patch.
func (c *Cache) CancelInFlight(ctx context.Context, prefix Key) int {
	var cancels []context.CancelFunc
	var events []Event

	c.mu.Lock()
	for ck, inf := range c.inflight {
		if !inf.key.HasPrefix(prefix) {
			continue
		}
		cancels = append(cancels, inf.cancel)
		delete(c.inflight, ck)
		c.flight.Forget(ck)

		// Drop first-load placeholders so the key reads as uncached again.
		if e, ok := c.store.Get(ck); ok && e.Status == StatusFetching && e.Value == nil {
			c.store.Remove(ck)
			events = append(events, Event{Key: e.Key, Type: EventRemoved})
		}
	}
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if len(cancels) > 0 {
		c.metrics.recordCancellation(ctx, int64(len(cancels)))
	}
	for _, ev := range events {
		c.notify(ev)
	}
	return len(cancels)
}

// Fetch returns the cached value for key if fresh, otherwise loads it
// through fn. Concurrent fetches for the same key share one call and one
// result. staleTime stamps the freshness window of the written entry.
func (c *Cache) Fetch(ctx context.Context, key Key, staleTime time.Duration, fn FetchFunc) (any, error) {
	ck := key.Canonical()
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.store.Get(ck); ok && e.Fresh(now) {
		v := e.Value
		c.mu.Unlock()
		c.metrics.recordHit(ctx)
		return v, nil
	}
	c.mu.Unlock()
	c.metrics.recordMiss(ctx)

	v, err, shared := c.flight.Do(ck, func() (any, error) {
		return c.runFetch(ctx, ck, key, staleTime, fn)
	})
	if shared {
		c.metrics.recordDedup(ctx)
	}
	return v, err
}

// runFetch performs the network load and settles the entry. The fetch
// context is detachable: CancelInFlight can abort it independently of
// the caller, and a cancelled or superseded result is discarded.
func (c *Cache) runFetch(ctx context.Context, ck string, key Key, staleTime time.Duration, fn FetchFunc) (any, error) {
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	token := xid.New().String()

	c.mu.Lock()
	if _, ok := c.store.Get(ck); !ok {
		// First load: placeholder so observers see a fetching status.
		c.store.Add(ck, &Entry{Key: key, Status: StatusFetching})
	}
	c.inflight[ck] = &inflightFetch{key: key, token: token, cancel: cancel}
	c.mu.Unlock()

	val, err := fn(fctx)
	now := time.Now()

	c.mu.Lock()
	inf, ok := c.inflight[ck]
	if !ok || inf.token != token || fctx.Err() != nil {
		// Cancelled or superseded while in flight: do not write.
		c.mu.Unlock()
		return nil, errors.WithMessage(ErrFetchCanceled, key.String())
	}
	delete(c.inflight, ck)

	if err != nil {
		prev, _ := c.store.Get(ck)
		e := &Entry{Key: key, Err: err, Status: StatusError, UpdatedAt: now}
		if prev != nil {
			// Keep the last value reachable via Peek; the error status
			// makes the failure observable regardless.
			e.Value = prev.Value
		}
		c.store.Add(ck, e)
		c.mu.Unlock()

		c.metrics.recordError(ctx)
		c.log.Debug("fetch failed", zap.String("key", key.String()), zap.Error(err))
		c.notify(Event{Key: key, Type: EventError})
		return nil, err
	}

	e := &Entry{
		Key:        key,
		Value:      val,
		Status:     StatusSuccess,
		UpdatedAt:  now,
		FreshUntil: now.Add(staleTime),
	}
	c.store.Add(ck, e)
	c.mu.Unlock()

	c.notify(Event{Key: key, Type: EventSet})
	return val, nil
}

// Clear cancels all in-flight fetches and drops every entry. Called on
// logout/session end.
func (c *Cache) Clear(ctx context.Context) {
	c.CancelInFlight(ctx, nil)

	c.mu.Lock()
	c.store.Purge()
	c.mu.Unlock()
}

// lockMutation reserves a mutation identity so only one optimistic patch
// per identity can be uncommitted at a time.
func (c *Cache) lockMutation(identity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.active[identity]; ok {
		return errors.WithMessage(ErrMutationInFlight, identity)
	}
	c.active[identity] = struct{}{}
	return nil
}

func (c *Cache) unlockMutation(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, identity)
}

// entriesUnderLocked returns live entries whose keys fall under prefix.
// Caller must hold c.mu.
func (c *Cache) entriesUnderLocked(prefix Key) []*Entry {
	var out []*Entry
	for _, ck := range c.store.Keys() {
		if e, ok := c.store.Get(ck); ok && e.Key.HasPrefix(prefix) {
			out = append(out, e)
		}
	}
	return out
}
