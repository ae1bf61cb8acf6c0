package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/paperdesk/paperdesk-go/cache"
	"github.com/paperdesk/paperdesk-go/rest"
)

// Paper is a research paper tracked by the platform.
type Paper struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Authors   []string  `json:"authors"`
	Abstract  string    `json:"abstract,omitempty"`
	Year      int       `json:"year,omitempty"`
	DOI       string    `json:"doi,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreatePaperInput is the payload for adding a paper.
type CreatePaperInput struct {
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Abstract string   `json:"abstract,omitempty"`
	Year     int      `json:"year,omitempty"`
	DOI      string   `json:"doi,omitempty"`
}

// UpdatePaperInput is the payload for editing a paper.
type UpdatePaperInput struct {
	ID       string   `json:"-"`
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Abstract string   `json:"abstract,omitempty"`
	Year     int      `json:"year,omitempty"`
	DOI      string   `json:"doi,omitempty"`
}

// Papers provides reads and writes for papers.
type Papers struct {
	api   *rest.Client
	cache *cache.Cache
	log   *zap.Logger

	create *cache.Mutation[CreatePaperInput, Paper]
	update *cache.Mutation[UpdatePaperInput, Paper]
	remove *cache.Mutation[string, struct{}]
}

// NewPapers wires the papers service.
func NewPapers(cc *cache.Cache, rc *rest.Client, log *zap.Logger) *Papers {
	p := &Papers{api: rc, cache: cc, log: log.Named("papers")}

	p.create = cache.NewMutation(cc, cache.MutationSpec[CreatePaperInput, Paper]{
		Name: "papers.create",
		Run: func(ctx context.Context, in CreatePaperInput) (Paper, error) {
			return rest.PostJSON[Paper](ctx, rc, "/papers", in)
		},
		Invalidates: func(CreatePaperInput) []cache.Key {
			return []cache.Key{Keys.Papers.ListRoot()}
		},
	})

	p.update = cache.NewMutation(cc, cache.MutationSpec[UpdatePaperInput, Paper]{
		Name: "papers.update",
		Run: func(ctx context.Context, in UpdatePaperInput) (Paper, error) {
			return rest.PutJSON[Paper](ctx, rc, "/papers/"+in.ID, in)
		},
		Invalidates: func(in UpdatePaperInput) []cache.Key {
			return []cache.Key{
				Keys.Papers.ListRoot(),
				Keys.Papers.Detail(in.ID),
			}
		},
	})

	p.remove = cache.NewMutation(cc, cache.MutationSpec[string, struct{}]{
		Name: "papers.delete",
		Run: func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, rc.Delete(ctx, "/papers/"+id)
		},
		Invalidates: func(id string) []cache.Key {
			return []cache.Key{
				Keys.Papers.Root(),
				// A deleted paper's score read would 404 anyway; drop it
				Keys.Scores.Latest(id),
			}
		},
		Optimistic: &cache.Optimistic[string]{
			Targets: func(string) []cache.Key {
				return []cache.Key{Keys.Papers.ListRoot()}
			},
			Patch: func(id string, v any) (any, bool) {
				return cache.RemoveFromLists(func(p Paper) bool { return p.ID == id })(v)
			},
		},
		Identity: func(id string) string { return id },
	})

	return p
}

// List returns one page of papers, optionally filtered by a search
// string carried in the params.
func (p *Papers) List(ctx context.Context, lp ListParams) (cache.ListPage[Paper], error) {
	return cache.FetchValue(ctx, p.cache, Keys.Papers.List(lp), func(ctx context.Context) (cache.ListPage[Paper], error) {
		return rest.GetJSON[cache.ListPage[Paper]](ctx, p.api, "/papers", lp.query())
	})
}

// ListView returns a paginated view over papers with keep-previous-data
// semantics.
func (p *Papers) ListView(lp ListParams) *cache.Query[cache.ListPage[Paper]] {
	return cache.NewQuery(p.cache, Keys.Papers.List(lp),
		func(ctx context.Context, key cache.Key) (cache.ListPage[Paper], error) {
			params := listParamsOf(key, lp)
			return rest.GetJSON[cache.ListPage[Paper]](ctx, p.api, "/papers", params.query())
		},
		cache.WithKeepPreviousData(),
	)
}

// Get returns one paper by id.
func (p *Papers) Get(ctx context.Context, id string) (Paper, error) {
	return cache.FetchValue(ctx, p.cache, Keys.Papers.Detail(id), func(ctx context.Context) (Paper, error) {
		return rest.GetJSON[Paper](ctx, p.api, "/papers/"+id, nil)
	})
}

// Create adds a paper.
func (p *Papers) Create(ctx context.Context, in CreatePaperInput) (Paper, error) {
	return p.create.Do(ctx, in)
}

// Update edits a paper.
func (p *Papers) Update(ctx context.Context, in UpdatePaperInput) (Paper, error) {
	return p.update.Do(ctx, in)
}

// Delete removes a paper optimistically.
func (p *Papers) Delete(ctx context.Context, id string) error {
	p.log.Debug("deleting paper", zap.String("id", id))
	_, err := p.remove.Do(ctx, id)
	return err
}
