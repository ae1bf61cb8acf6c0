package cache

import (
	"time"
)

// Status is the fetch status of a cache entry.
type Status int

const (
	StatusIdle Status = iota
	StatusFetching
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFetching:
		return "fetching"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Entry is the last-known state for a cache key: the value (if any), the
// fetch status, and the freshness deadline. Values are treated as
// immutable; every write replaces the value rather than mutating it in
// place, which is what makes mutation snapshots exact.
type Entry struct {
	Key        Key
	Value      any
	Err        error
	Status     Status
	UpdatedAt  time.Time
	FreshUntil time.Time
}

// Fresh reports whether the entry holds a successful value that is still
// inside its staleness window.
func (e *Entry) Fresh(now time.Time) bool {
	return e != nil && e.Status == StatusSuccess && now.Before(e.FreshUntil)
}

// entrySnapshot captures the full entry state for rollback. Restoring a
// snapshot puts back the exact pre-patch value, not a reconstruction.
type entrySnapshot struct {
	key        Key
	ck         string
	existed    bool
	value      any
	err        error
	status     Status
	updatedAt  time.Time
	freshUntil time.Time
}

func snapshotEntry(ck string, e *Entry) entrySnapshot {
	if e == nil {
		return entrySnapshot{ck: ck}
	}
	return entrySnapshot{
		key:        e.Key,
		ck:         ck,
		existed:    true,
		value:      e.Value,
		err:        e.Err,
		status:     e.Status,
		updatedAt:  e.UpdatedAt,
		freshUntil: e.FreshUntil,
	}
}
