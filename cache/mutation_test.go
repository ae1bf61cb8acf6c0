package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func groupsPage(ids ...string) ListPage[testGroup] {
	items := make([]testGroup, len(ids))
	for i, id := range ids {
		items[i] = testGroup{ID: id, Name: "group " + id}
	}
	return ListPage[testGroup]{Items: items, Total: len(ids), Page: 1, Pages: 1}
}

func deleteGroupMutation(c *Cache, run func(ctx context.Context, id string) (struct{}, error)) *Mutation[string, struct{}] {
	return NewMutation(c, MutationSpec[string, struct{}]{
		Name: "groups.delete",
		Run:  run,
		Invalidates: func(id string) []Key {
			return []Key{NewKey("groups")}
		},
		Optimistic: &Optimistic[string]{
			Targets: func(id string) []Key {
				return []Key{NewKey("groups", "list")}
			},
			Patch: func(id string, v any) (any, bool) {
				return RemoveFromLists(func(g testGroup) bool { return g.ID == id })(v)
			},
		},
		Identity: func(id string) string { return id },
	})
}

// Optimistic delete patches the cached page before the server answers
// and keeps the patch on success.
func TestOptimisticDeletePatchesList(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	listKey := NewKey("groups", "list", listParams{Page: 1, Size: 10})

	c.Set(listKey, groupsPage("a", "b", "c"))

	var duringMutation ListPage[testGroup]
	m := deleteGroupMutation(c, func(ctx context.Context, id string) (struct{}, error) {
		e, ok := c.GetEntry(listKey)
		require.True(t, ok)
		duringMutation = e.Value.(ListPage[testGroup])
		return struct{}{}, nil
	})

	_, err := m.Do(ctx, "b")
	require.NoError(t, err)

	// The patch was visible while the mutation was in flight
	require.Len(t, duringMutation.Items, 2)
	assert.Equal(t, 2, duringMutation.Total)
	assert.Equal(t, "a", duringMutation.Items[0].ID)
	assert.Equal(t, "c", duringMutation.Items[1].ID)

	// And retained after success, with the key marked stale for reconciliation
	e, ok := c.GetEntry(listKey)
	require.True(t, ok)
	assert.Equal(t, duringMutation, e.Value)
	assert.False(t, e.Fresh(time.Now()), "settled mutation must mark the list stale")
}

// Rollback restores the exact pre-patch value, not a reconstruction.
func TestRollbackExactness(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	listKey := NewKey("groups", "list", listParams{Page: 1, Size: 10})

	original := groupsPage("a", "b", "c")
	c.Set(listKey, original)
	before, ok := c.GetEntry(listKey)
	require.True(t, ok)

	boom := errors.New("409 conflict")
	m := deleteGroupMutation(c, func(ctx context.Context, id string) (struct{}, error) {
		// Patch applied: items [a c], total 2
		e, _ := c.GetEntry(listKey)
		page := e.Value.(ListPage[testGroup])
		require.Len(t, page.Items, 2)
		require.Equal(t, 2, page.Total)
		return struct{}{}, boom
	})

	_, err := m.Do(ctx, "b")
	require.ErrorIs(t, err, boom)

	after, ok := c.GetEntry(listKey)
	require.True(t, ok)
	assert.Equal(t, before.Value, after.Value, "rollback must restore the snapshot verbatim")
	assert.Equal(t, original, after.Value.(ListPage[testGroup]))
	assert.Equal(t, int64(1), c.Metrics().Rollbacks.Load())
}

// With nothing cached, the patch and rollback are no-ops but the
// mutation still reaches the transport layer.
func TestDeleteWithEmptyCacheIsNoOp(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	var reached bool
	boom := errors.New("network down")
	m := deleteGroupMutation(c, func(ctx context.Context, id string) (struct{}, error) {
		reached = true
		return struct{}{}, boom
	})

	_, err := m.Do(ctx, "b")
	require.ErrorIs(t, err, boom)
	assert.True(t, reached, "mutation must reach the transport even with an empty cache")
	assert.Zero(t, c.Metrics().Rollbacks.Load(), "empty rollback must not be recorded")
}

// Only one uncommitted optimistic patch per identity at a time.
func TestMutationIdentityGuard(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	c.Set(NewKey("groups", "list", listParams{Page: 1, Size: 10}), groupsPage("a", "b"))

	started := make(chan struct{})
	gate := make(chan struct{})
	var startedOnce sync.Once
	m := deleteGroupMutation(c, func(ctx context.Context, id string) (struct{}, error) {
		startedOnce.Do(func() { close(started) })
		<-gate
		return struct{}{}, nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := m.Do(ctx, "b")
		done <- err
	}()
	<-started

	_, err := m.Do(ctx, "b")
	require.ErrorIs(t, err, ErrMutationInFlight)

	close(gate)
	require.NoError(t, <-done)

	// Once settled, the identity is free again
	_, err = m.Do(ctx, "b")
	require.NoError(t, err)
}

// A slow in-flight GET for the patched list must not overwrite the
// optimistic patch after it lands.
func TestOptimisticPatchCancelsRacingFetch(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	listKey := NewKey("groups", "list", listParams{Page: 1, Size: 10})

	c.Set(listKey, groupsPage("a", "b", "c"))
	c.Invalidate(ctx, listKey) // force the next read to refetch

	fetchStarted := make(chan struct{})
	fetchGate := make(chan struct{})
	fetchDone := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, listKey, time.Minute, func(fctx context.Context) (any, error) {
			close(fetchStarted)
			<-fetchGate
			// Pre-mutation server state arriving late
			return groupsPage("a", "b", "c"), nil
		})
		fetchDone <- err
	}()
	<-fetchStarted

	m := deleteGroupMutation(c, func(ctx context.Context, id string) (struct{}, error) {
		return struct{}{}, nil
	})
	_, err := m.Do(ctx, "b")
	require.NoError(t, err)

	close(fetchGate)
	require.ErrorIs(t, <-fetchDone, ErrFetchCanceled)

	e, ok := c.GetEntry(listKey)
	require.True(t, ok)
	page := e.Value.(ListPage[testGroup])
	assert.Len(t, page.Items, 2, "late response must not overwrite the patch")
	assert.Equal(t, 2, page.Total)
}

// Pattern A: no optimistic patch, just settlement invalidation of the
// declared dependent resources.
func TestInvalidateAfterSuccessPattern(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	detailKey := NewKey("alerts", "detail", "alert-1")
	resultsKey := NewKey("alerts", "results", "alert-1")
	c.Set(detailKey, "alert-detail")
	c.Set(resultsKey, "alert-results")

	trigger := NewMutation(c, MutationSpec[string, string]{
		Name: "alerts.trigger",
		Run: func(ctx context.Context, id string) (string, error) {
			return "triggered", nil
		},
		Invalidates: func(id string) []Key {
			return []Key{
				NewKey("alerts", "detail", id),
				NewKey("alerts", "results", id),
			}
		},
	})

	res, err := trigger.Do(ctx, "alert-1")
	require.NoError(t, err)
	assert.Equal(t, "triggered", res)

	for _, k := range []Key{detailKey, resultsKey} {
		e, ok := c.GetEntry(k)
		require.True(t, ok)
		assert.False(t, e.Fresh(time.Now()), "key %s must be stale after trigger", k)
	}
}

func TestSagaStateMachine(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	listKey := NewKey("groups", "list", listParams{Page: 1, Size: 10})
	c.Set(listKey, groupsPage("a", "b"))

	patch := func(v any) (any, bool) {
		return RemoveFromLists(func(g testGroup) bool { return g.ID == "a" })(v)
	}

	// commit path
	s := newSaga(c, c.log)
	assert.Equal(t, MutationIdle, s.State())
	s.patch([]Key{NewKey("groups", "list")}, patch)
	assert.Equal(t, MutationPatched, s.State())
	s.commit()
	assert.Equal(t, MutationCommitted, s.State())

	// rollback path
	c.Set(listKey, groupsPage("a", "b"))
	s = newSaga(c, c.log)
	s.patch([]Key{NewKey("groups", "list")}, patch)
	require.Equal(t, MutationPatched, s.State())
	s.rollback(ctx)
	assert.Equal(t, MutationRolledBack, s.State())

	e, _ := c.GetEntry(listKey)
	assert.Equal(t, groupsPage("a", "b"), e.Value)
}
