// Package api exposes the platform's entities (papers, groups, projects,
// alerts, submissions, scores) as typed services. Each service wires its
// reads through the query cache and declares, per mutation, exactly which
// cache keys the mutation invalidates — including cross-entity
// dependencies like a submission conversion refreshing the papers list.
package api

import (
	"strconv"

	"github.com/paperdesk/paperdesk-go/cache"
)

// ListParams are the shared pagination/filter parameters for list reads.
type ListParams struct {
	Page   int    `json:"page"`
	Size   int    `json:"size"`
	Search string `json:"search,omitempty"`
}

func (p ListParams) query() map[string]string {
	q := map[string]string{
		"page": strconv.Itoa(p.Page),
		"size": strconv.Itoa(p.Size),
	}
	if p.Search != "" {
		q["search"] = p.Search
	}
	return q
}

// entityKeys builds the cache keys of one entity. Every read and every
// invalidation goes through this registry; no call site builds ad-hoc
// keys, so the key shape is consistent across the whole SDK.
type entityKeys struct {
	root string
}

// Root covers everything cached for the entity.
func (k entityKeys) Root() cache.Key { return cache.NewKey(k.root) }

// ListRoot covers every cached list page regardless of parameters.
func (k entityKeys) ListRoot() cache.Key { return cache.NewKey(k.root, "list") }

// List identifies one cached list page.
func (k entityKeys) List(p ListParams) cache.Key { return cache.NewKey(k.root, "list", p) }

// Detail identifies one cached entity.
func (k entityKeys) Detail(id string) cache.Key { return cache.NewKey(k.root, "detail", id) }

// alertKeys adds the per-alert results sub-resource.
type alertKeys struct {
	entityKeys
}

// ResultsRoot covers every cached results page of one alert.
func (k alertKeys) ResultsRoot(id string) cache.Key {
	return cache.NewKey(k.root, "results", id)
}

// Results identifies one cached results page of one alert.
func (k alertKeys) Results(id string, p ListParams) cache.Key {
	return cache.NewKey(k.root, "results", id, p)
}

// scoreKeys builds keys for per-paper score reads.
type scoreKeys struct {
	entityKeys
}

// Latest identifies the cached latest score of one paper.
func (k scoreKeys) Latest(paperID string) cache.Key {
	return cache.NewKey(k.root, "latest", paperID)
}

// Keys is the canonical cache-key registry, one entry per entity.
var Keys = struct {
	Papers      entityKeys
	Groups      entityKeys
	Projects    entityKeys
	Alerts      alertKeys
	Submissions entityKeys
	Scores      scoreKeys
}{
	Papers:      entityKeys{root: "papers"},
	Groups:      entityKeys{root: "groups"},
	Projects:    entityKeys{root: "projects"},
	Alerts:      alertKeys{entityKeys{root: "alerts"}},
	Submissions: entityKeys{root: "submissions"},
	Scores:      scoreKeys{entityKeys{root: "scores"}},
}
