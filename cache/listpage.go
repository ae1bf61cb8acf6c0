package cache

// ListPage is one cached page of a paginated list: an immutable snapshot
// taken at fetch time. It only changes through explicit invalidation or
// an optimistic patch.
type ListPage[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
}

// RemoveWhere returns a copy of the page with the first item matching
// pred removed and Total decremented by exactly one (never below zero).
// The second return is false when nothing matched; the original page is
// returned unchanged so callers can skip the patch. The items slice is
// always freshly allocated, keeping pre-patch snapshots intact.
func (p ListPage[T]) RemoveWhere(pred func(T) bool) (ListPage[T], bool) {
	idx := -1
	for i, it := range p.Items {
		if pred(it) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return p, false
	}

	items := make([]T, 0, len(p.Items)-1)
	items = append(items, p.Items[:idx]...)
	items = append(items, p.Items[idx+1:]...)

	next := p
	next.Items = items
	if next.Total > 0 {
		next.Total--
	}
	return next, true
}

// ReplaceWhere returns a copy of the page with the first item matching
// pred replaced by item. Total and pagination metadata are unchanged.
func (p ListPage[T]) ReplaceWhere(pred func(T) bool, item T) (ListPage[T], bool) {
	idx := -1
	for i, it := range p.Items {
		if pred(it) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return p, false
	}

	items := make([]T, len(p.Items))
	copy(items, p.Items)
	items[idx] = item

	next := p
	next.Items = items
	return next, true
}

// RemoveFromLists adapts RemoveWhere into a mutation patch function over
// cached ListPage[T] values; non-list entries and pages without a match
// are left untouched.
func RemoveFromLists[T any](pred func(T) bool) PatchFunc {
	return func(v any) (any, bool) {
		page, ok := v.(ListPage[T])
		if !ok {
			return nil, false
		}
		next, removed := page.RemoveWhere(pred)
		if !removed {
			return nil, false
		}
		return next, true
	}
}

// ReplaceInLists adapts ReplaceWhere into a mutation patch function.
func ReplaceInLists[T any](pred func(T) bool, item T) PatchFunc {
	return func(v any) (any, bool) {
		page, ok := v.(ListPage[T])
		if !ok {
			return nil, false
		}
		next, replaced := page.ReplaceWhere(pred, item)
		if !replaced {
			return nil, false
		}
		return next, true
	}
}
