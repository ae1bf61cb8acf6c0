package cache

// EventType classifies a cache entry change.
type EventType int

const (
	EventSet EventType = iota
	EventInvalidated
	EventError
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventSet:
		return "set"
	case EventInvalidated:
		return "invalidated"
	case EventError:
		return "error"
	case EventRemoved:
		return "removed"
	}
	return "unknown"
}

// Event describes a change to a cache entry.
type Event struct {
	Key  Key
	Type EventType
}

// Subscription delivers entry-change events for keys under a prefix.
// Delivery is best-effort: a subscriber that falls behind its buffer
// misses events rather than blocking cache writes.
type Subscription struct {
	C <-chan Event

	ch     chan Event
	prefix Key
	id     uint64
	cache  *Cache
}

const subscriptionBuffer = 16

// Subscribe registers for change events on every key under prefix.
// A nil prefix subscribes to the whole cache.
func (c *Cache) Subscribe(prefix Key) *Subscription {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.nextSub++
	s := &Subscription{
		ch:     make(chan Event, subscriptionBuffer),
		prefix: prefix,
		id:     c.nextSub,
		cache:  c,
	}
	s.C = s.ch
	c.subs[s.id] = s
	return s
}

// Close unregisters the subscription. The event channel is not closed;
// callers select on it and drop the subscription when done.
func (s *Subscription) Close() {
	s.cache.subMu.Lock()
	defer s.cache.subMu.Unlock()
	delete(s.cache.subs, s.id)
}

func (c *Cache) notify(ev Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, s := range c.subs {
		if !ev.Key.HasPrefix(s.prefix) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
		}
	}
}
