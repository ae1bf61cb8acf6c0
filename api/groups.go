package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/paperdesk/paperdesk-go/cache"
	"github.com/paperdesk/paperdesk-go/rest"
)

// Group is a user-curated collection of papers.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PaperCount  int       `json:"paper_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateGroupInput is the payload for creating a group.
type CreateGroupInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateGroupInput is the payload for updating a group.
type UpdateGroupInput struct {
	ID          string `json:"-"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Groups provides reads and writes for paper groups. Deletes are
// optimistic: the group disappears from cached list pages immediately
// and reappears if the server rejects the delete.
type Groups struct {
	api   *rest.Client
	cache *cache.Cache
	log   *zap.Logger

	create *cache.Mutation[CreateGroupInput, Group]
	update *cache.Mutation[UpdateGroupInput, Group]
	remove *cache.Mutation[string, struct{}]
}

// NewGroups wires the groups service.
func NewGroups(cc *cache.Cache, rc *rest.Client, log *zap.Logger) *Groups {
	g := &Groups{api: rc, cache: cc, log: log.Named("groups")}

	g.create = cache.NewMutation(cc, cache.MutationSpec[CreateGroupInput, Group]{
		Name: "groups.create",
		Run: func(ctx context.Context, in CreateGroupInput) (Group, error) {
			return rest.PostJSON[Group](ctx, rc, "/groups", in)
		},
		Invalidates: func(CreateGroupInput) []cache.Key {
			return []cache.Key{Keys.Groups.ListRoot()}
		},
	})

	g.update = cache.NewMutation(cc, cache.MutationSpec[UpdateGroupInput, Group]{
		Name: "groups.update",
		Run: func(ctx context.Context, in UpdateGroupInput) (Group, error) {
			return rest.PutJSON[Group](ctx, rc, "/groups/"+in.ID, in)
		},
		Invalidates: func(in UpdateGroupInput) []cache.Key {
			return []cache.Key{
				Keys.Groups.ListRoot(),
				Keys.Groups.Detail(in.ID),
			}
		},
	})

	g.remove = cache.NewMutation(cc, cache.MutationSpec[string, struct{}]{
		Name: "groups.delete",
		Run: func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, rc.Delete(ctx, "/groups/"+id)
		},
		Invalidates: func(id string) []cache.Key {
			return []cache.Key{Keys.Groups.Root()}
		},
		Optimistic: &cache.Optimistic[string]{
			Targets: func(string) []cache.Key {
				return []cache.Key{Keys.Groups.ListRoot()}
			},
			Patch: func(id string, v any) (any, bool) {
				return cache.RemoveFromLists(func(g Group) bool { return g.ID == id })(v)
			},
		},
		Identity: func(id string) string { return id },
	})

	return g
}

// List returns one page of groups, served from cache when fresh.
func (g *Groups) List(ctx context.Context, p ListParams) (cache.ListPage[Group], error) {
	return cache.FetchValue(ctx, g.cache, Keys.Groups.List(p), func(ctx context.Context) (cache.ListPage[Group], error) {
		return rest.GetJSON[cache.ListPage[Group]](ctx, g.api, "/groups", p.query())
	})
}

// ListView returns a paginated view over groups that keeps the previous
// page's data visible while the next page loads.
func (g *Groups) ListView(p ListParams) *cache.Query[cache.ListPage[Group]] {
	return cache.NewQuery(g.cache, Keys.Groups.List(p),
		func(ctx context.Context, key cache.Key) (cache.ListPage[Group], error) {
			lp := listParamsOf(key, p)
			return rest.GetJSON[cache.ListPage[Group]](ctx, g.api, "/groups", lp.query())
		},
		cache.WithKeepPreviousData(),
	)
}

// Get returns one group by id.
func (g *Groups) Get(ctx context.Context, id string) (Group, error) {
	return cache.FetchValue(ctx, g.cache, Keys.Groups.Detail(id), func(ctx context.Context) (Group, error) {
		return rest.GetJSON[Group](ctx, g.api, "/groups/"+id, nil)
	})
}

// Create adds a group and marks the list pages stale.
func (g *Groups) Create(ctx context.Context, in CreateGroupInput) (Group, error) {
	return g.create.Do(ctx, in)
}

// Update edits a group and marks its detail and the list pages stale.
func (g *Groups) Update(ctx context.Context, in UpdateGroupInput) (Group, error) {
	return g.update.Do(ctx, in)
}

// Delete removes a group optimistically.
func (g *Groups) Delete(ctx context.Context, id string) error {
	g.log.Debug("deleting group", zap.String("id", id))
	_, err := g.remove.Do(ctx, id)
	return err
}

// listParamsOf pulls the ListParams part back out of a list key, falling
// back to the view's initial parameters.
func listParamsOf(key cache.Key, fallback ListParams) ListParams {
	for _, part := range key {
		if p, ok := part.(ListParams); ok {
			return p
		}
	}
	return fallback
}
