package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListPageRemoveWhere(t *testing.T) {
	page := ListPage[string]{Items: []string{"a", "b", "c"}, Total: 25, Page: 1, Pages: 3}

	next, removed := page.RemoveWhere(func(s string) bool { return s == "b" })
	assert.True(t, removed)
	assert.Equal(t, []string{"a", "c"}, next.Items)
	assert.Equal(t, 24, next.Total)

	// Page/Pages are server-derived; the settlement refetch reconciles
	// them, the patch must not guess.
	assert.Equal(t, 1, next.Page)
	assert.Equal(t, 3, next.Pages)

	// The original snapshot is untouched
	assert.Equal(t, []string{"a", "b", "c"}, page.Items)
	assert.Equal(t, 25, page.Total)
}

func TestListPageRemoveWhereNoMatch(t *testing.T) {
	page := ListPage[string]{Items: []string{"a"}, Total: 1, Page: 1, Pages: 1}

	same, removed := page.RemoveWhere(func(s string) bool { return s == "z" })
	assert.False(t, removed)
	assert.Equal(t, page, same)
}

func TestListPageTotalNeverNegative(t *testing.T) {
	page := ListPage[string]{Items: []string{"a"}, Total: 0, Page: 1, Pages: 1}

	next, removed := page.RemoveWhere(func(s string) bool { return s == "a" })
	assert.True(t, removed)
	assert.Equal(t, 0, next.Total)
}

func TestListPageRemovesOnlyFirstMatch(t *testing.T) {
	page := ListPage[string]{Items: []string{"x", "x", "y"}, Total: 3, Page: 1, Pages: 1}

	next, removed := page.RemoveWhere(func(s string) bool { return s == "x" })
	assert.True(t, removed)
	assert.Equal(t, []string{"x", "y"}, next.Items)
	assert.Equal(t, 2, next.Total)
}

func TestListPageReplaceWhere(t *testing.T) {
	page := ListPage[string]{Items: []string{"a", "b"}, Total: 2, Page: 1, Pages: 1}

	next, replaced := page.ReplaceWhere(func(s string) bool { return s == "b" }, "B")
	assert.True(t, replaced)
	assert.Equal(t, []string{"a", "B"}, next.Items)
	assert.Equal(t, 2, next.Total)
	assert.Equal(t, []string{"a", "b"}, page.Items)
}

func TestRemoveFromListsSkipsForeignValues(t *testing.T) {
	patch := RemoveFromLists(func(s string) bool { return s == "a" })

	_, ok := patch("not a list page")
	assert.False(t, ok)

	_, ok = patch(ListPage[int]{Items: []int{1}, Total: 1})
	assert.False(t, ok, "a page of a different item type must be left untouched")
}
