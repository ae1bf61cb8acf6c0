package cache

import (
	"context"

	"github.com/rs/xid"
	"go.uber.org/zap"
)

// MutationState is the phase of an optimistic mutation saga.
type MutationState int32

const (
	MutationIdle MutationState = iota
	MutationPatched
	MutationCommitted
	MutationRolledBack
)

func (s MutationState) String() string {
	switch s {
	case MutationIdle:
		return "idle"
	case MutationPatched:
		return "patched"
	case MutationCommitted:
		return "committed"
	case MutationRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// PatchFunc rewrites one cached value optimistically. It must return a
// new value rather than mutating in place (snapshots alias the old
// value), and ok=false to leave an entry untouched.
type PatchFunc func(value any) (newValue any, ok bool)

// Optimistic declares the optimistic-patch behavior of a mutation:
// which cached key prefixes to patch before the server answers, and how.
type Optimistic[A any] struct {
	// Targets lists the key prefixes whose entries get patched.
	Targets func(args A) []Key

	// Patch rewrites a single cached value for the given arguments.
	Patch func(args A, value any) (newValue any, ok bool)
}

// MutationSpec declares a mutation: the transport call, the static list
// of keys to invalidate on settlement, and optionally an optimistic
// patch and an identity for the single-flight guard.
type MutationSpec[A, R any] struct {
	// Name identifies the mutation in logs.
	Name string

	// Run performs the write against the transport layer.
	Run func(ctx context.Context, args A) (R, error)

	// Invalidates lists key prefixes marked stale once the mutation
	// settles, success or failure. This is the exhaustive per-mutation
	// declaration of dependent resources; a missing entry means stale UI.
	Invalidates func(args A) []Key

	// Optimistic, when set, enables the patch-with-rollback pattern.
	Optimistic *Optimistic[A]

	// Identity, when set, derives a guard key from the arguments. Two
	// concurrent calls with the same identity cannot both hold an
	// uncommitted patch; the second fails with ErrMutationInFlight.
	Identity func(args A) string
}

// Mutation is a named, parameterized write operation that reconciles the
// cache on settlement. Without an Optimistic declaration it is plain
// invalidate-after-settle; with one it runs the three-phase saga
// patch -> commit-or-rollback -> reconcile.
type Mutation[A, R any] struct {
	c    *Cache
	spec MutationSpec[A, R]
	log  *zap.Logger
}

// NewMutation builds a mutation from its declaration.
func NewMutation[A, R any](c *Cache, spec MutationSpec[A, R]) *Mutation[A, R] {
	return &Mutation[A, R]{
		c:    c,
		spec: spec,
		log:  c.log.Named("mutation").With(zap.String("mutation", spec.Name)),
	}
}

// Do executes the mutation. The optimistic patch (if any) is applied
// before the transport call and rolled back verbatim on failure; the
// declared invalidations run on settlement either way, reconciling the
// cache with server truth via background refetch on next access.
// Transport errors are returned as-is and never retried here.
func (m *Mutation[A, R]) Do(ctx context.Context, args A) (R, error) {
	var zero R

	id := xid.New().String()
	if m.spec.Identity != nil {
		id = m.spec.Name + ":" + m.spec.Identity(args)
		if err := m.c.lockMutation(id); err != nil {
			return zero, err
		}
		defer m.c.unlockMutation(id)
	}

	saga := newSaga(m.c, m.log)
	if m.spec.Optimistic != nil {
		targets := m.spec.Optimistic.Targets(args)

		// Cancel racing fetches first: a slow GET settling after the
		// patch would overwrite it with pre-mutation data.
		for _, t := range targets {
			m.c.CancelInFlight(ctx, t)
		}
		saga.patch(targets, func(v any) (any, bool) {
			return m.spec.Optimistic.Patch(args, v)
		})
	}

	res, err := m.spec.Run(ctx, args)
	if err != nil {
		saga.rollback(ctx)
	} else {
		saga.commit()
	}

	if m.spec.Invalidates != nil {
		for _, k := range m.spec.Invalidates(args) {
			m.c.Invalidate(ctx, k)
		}
	}

	if err != nil {
		m.log.Debug("mutation failed", zap.String("id", id), zap.Error(err))
		return zero, err
	}
	return res, nil
}

// saga tracks the optimistic-patch state machine for one Do call and
// holds the snapshots needed to compensate.
type saga struct {
	c         *Cache
	log       *zap.Logger
	state     MutationState
	snapshots []entrySnapshot
}

func newSaga(c *Cache, log *zap.Logger) *saga {
	return &saga{c: c, log: log, state: MutationIdle}
}

// patch snapshots every entry under the target prefixes and applies fn
// to each, atomically with respect to other cache operations. Matching
// nothing is fine: the snapshot set is empty and rollback is a no-op.
func (s *saga) patch(targets []Key, fn PatchFunc) {
	var events []Event

	s.c.mu.Lock()
	for _, t := range targets {
		for _, e := range s.c.entriesUnderLocked(t) {
			if e.Status != StatusSuccess {
				continue
			}
			newVal, ok := fn(e.Value)
			if !ok {
				continue
			}
			s.snapshots = append(s.snapshots, snapshotEntry(e.Key.Canonical(), e))
			e.Value = newVal
			events = append(events, Event{Key: e.Key, Type: EventSet})
		}
	}
	s.c.mu.Unlock()

	s.state = MutationPatched
	for _, ev := range events {
		s.c.notify(ev)
	}
}

// commit retains the patch; server truth is reconciled by the
// settlement invalidations.
func (s *saga) commit() {
	s.state = MutationCommitted
	s.snapshots = nil
}

// rollback restores every snapshot verbatim.
func (s *saga) rollback(ctx context.Context) {
	var events []Event

	s.c.mu.Lock()
	for _, snap := range s.snapshots {
		if !snap.existed {
			continue
		}
		e, ok := s.c.store.Get(snap.ck)
		if !ok {
			// Entry was evicted mid-flight; recreate it from the snapshot.
			e = &Entry{Key: snap.key}
			s.c.store.Add(snap.ck, e)
		}
		e.Value = snap.value
		e.Err = snap.err
		e.Status = snap.status
		e.UpdatedAt = snap.updatedAt
		e.FreshUntil = snap.freshUntil
		events = append(events, Event{Key: snap.key, Type: EventSet})
	}
	s.c.mu.Unlock()

	if len(s.snapshots) > 0 {
		s.c.metrics.recordRollback(ctx)
		s.log.Debug("rolled back optimistic patch", zap.Int("entries", len(s.snapshots)))
	}
	s.state = MutationRolledBack
	s.snapshots = nil
	for _, ev := range events {
		s.c.notify(ev)
	}
}

// State returns the saga's current phase.
func (s *saga) State() MutationState {
	return s.state
}
