package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	return New(Config{StaleTime: time.Minute, GCTime: 5 * time.Minute}, zaptest.NewLogger(t))
}

func TestFetchCachesFreshValue(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := NewKey("papers", "detail", "p1")

	var calls atomic.Int64
	fn := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "paper-1", nil
	}

	v, err := c.Fetch(ctx, key, time.Minute, fn)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if v != "paper-1" {
		t.Errorf("expected paper-1, got %v", v)
	}

	// Second read within the staleness window must not refetch
	if _, err := c.Fetch(ctx, key, time.Minute, fn); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 transport call, got %d", n)
	}

	snapshot := c.Metrics().Snapshot()
	if snapshot["hits"] != 1 {
		t.Errorf("expected 1 hit, got %d", snapshot["hits"])
	}
	if snapshot["misses"] != 1 {
		t.Errorf("expected 1 miss, got %d", snapshot["misses"])
	}
}

func TestFetchRefetchesWhenStale(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := NewKey("papers", "detail", "p1")

	var calls atomic.Int64
	fn := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return fmt.Sprintf("v%d", calls.Load()), nil
	}

	// Zero stale time: every read refetches
	if _, err := c.Fetch(ctx, key, 0, fn); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	v, err := c.Fetch(ctx, key, 0, fn)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if v != "v2" {
		t.Errorf("expected refetched v2, got %v", v)
	}
}

func TestFetchErrorObservable(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := NewKey("papers", "detail", "missing")

	boom := errors.New("transport down")
	_, err := c.Fetch(ctx, key, time.Minute, func(ctx context.Context) (any, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}

	e, ok := c.GetEntry(key)
	if !ok {
		t.Fatal("expected an error entry")
	}
	if e.Status != StatusError {
		t.Errorf("expected error status, got %s", e.Status)
	}
	if !errors.Is(e.Err, boom) {
		t.Errorf("expected entry to carry the rejection reason, got %v", e.Err)
	}
}

// Two concurrent reads of the same uncached key trigger exactly one
// transport call.
func TestConcurrentIdenticalReadsDeduplicate(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := NewKey("groups", "list", listParams{Page: 1, Size: 10})

	gate := make(chan struct{})
	var calls atomic.Int64
	fn := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-gate
		return "groups-page-1", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Fetch(ctx, key, time.Minute, fn)
			if err != nil {
				t.Errorf("fetch %d failed: %v", i, err)
			}
			results[i] = v
		}(i)
	}

	// Let both readers join the in-flight fetch before releasing it
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 transport call, got %d", n)
	}
	if results[0] != "groups-page-1" || results[1] != "groups-page-1" {
		t.Errorf("both readers must see the shared result, got %v / %v", results[0], results[1])
	}
}

func TestInvalidateMarksPrefixStale(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	list := NewKey("groups", "list", listParams{Page: 2, Size: 10})
	detail := NewKey("groups", "detail", "g1")
	other := NewKey("projects", "list")

	c.Set(list, "list-data")
	c.Set(detail, "detail-data")
	c.Set(other, "project-data")

	n := c.Invalidate(ctx, NewKey("groups"))
	if n != 2 {
		t.Fatalf("expected 2 invalidated entries, got %d", n)
	}

	for _, k := range []Key{list, detail} {
		e, ok := c.GetEntry(k)
		if !ok {
			t.Fatalf("entry %s must survive invalidation", k)
		}
		if e.Fresh(time.Now()) {
			t.Errorf("entry %s should be stale", k)
		}
	}

	if e, _ := c.GetEntry(other); !e.Fresh(time.Now()) {
		t.Error("unrelated entry must stay fresh")
	}
}

// Invalidating twice produces the same observable state as once.
func TestInvalidateIdempotent(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := NewKey("groups", "detail", "g1")
	c.Set(key, "data")

	c.Invalidate(ctx, NewKey("groups"))
	first, _ := c.GetEntry(key)

	c.Invalidate(ctx, NewKey("groups"))
	second, _ := c.GetEntry(key)

	if first.Value != second.Value || first.Status != second.Status ||
		!first.FreshUntil.Equal(second.FreshUntil) {
		t.Errorf("double invalidation changed observable state: %+v vs %+v", first, second)
	}

	// Next read refetches exactly once
	var calls atomic.Int64
	if _, err := c.Fetch(ctx, key, time.Minute, func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "fresh", nil
	}); err != nil {
		t.Fatalf("refetch failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected one refetch, got %d", calls.Load())
	}
}

func TestCancelInFlightDiscardsResponse(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := NewKey("groups", "list", listParams{Page: 1, Size: 10})

	started := make(chan struct{})
	gate := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		_, err := c.Fetch(ctx, key, time.Minute, func(fctx context.Context) (any, error) {
			close(started)
			<-gate
			// The transport may still complete; the cache must ignore it
			return "stale-response", nil
		})
		done <- err
	}()

	<-started
	if n := c.CancelInFlight(ctx, NewKey("groups")); n != 1 {
		t.Fatalf("expected 1 cancelled fetch, got %d", n)
	}
	close(gate)

	if err := <-done; !errors.Is(err, ErrFetchCanceled) {
		t.Fatalf("expected ErrFetchCanceled, got %v", err)
	}
	if _, ok := c.GetEntry(key); ok {
		t.Error("cancelled first-load response must not be written")
	}
}

func TestSubscribeReceivesPrefixedEvents(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	sub := c.Subscribe(NewKey("alerts"))
	defer sub.Close()

	c.Set(NewKey("alerts", "detail", "a1"), "alert")
	c.Set(NewKey("papers", "detail", "p1"), "paper")
	c.Invalidate(ctx, NewKey("alerts"))

	want := []EventType{EventSet, EventInvalidated}
	for i, wt := range want {
		select {
		case ev := <-sub.C:
			if ev.Type != wt {
				t.Errorf("event %d: expected %s, got %s", i, wt, ev.Type)
			}
			if !ev.Key.HasPrefix(NewKey("alerts")) {
				t.Errorf("event %d: key %s outside subscribed prefix", i, ev.Key)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	select {
	case ev := <-sub.C:
		t.Errorf("unexpected extra event: %+v", ev)
	default:
	}
}

func TestClearDropsEverything(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Set(NewKey("groups", "detail", "g1"), "data")
	c.Clear(ctx)

	if _, ok := c.GetEntry(NewKey("groups", "detail", "g1")); ok {
		t.Error("expected empty cache after Clear")
	}
}
