package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/paperdesk/paperdesk-go/cache"
	"github.com/paperdesk/paperdesk-go/rest"
)

// Project is a research project papers get filed under.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	GroupID     string    `json:"group_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateProjectInput is the payload for creating a project.
type CreateProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
}

// UpdateProjectInput is the payload for updating a project.
type UpdateProjectInput struct {
	ID          string `json:"-"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Projects provides reads and writes for projects.
type Projects struct {
	api   *rest.Client
	cache *cache.Cache
	log   *zap.Logger

	create *cache.Mutation[CreateProjectInput, Project]
	update *cache.Mutation[UpdateProjectInput, Project]
	remove *cache.Mutation[string, struct{}]
}

// NewProjects wires the projects service.
func NewProjects(cc *cache.Cache, rc *rest.Client, log *zap.Logger) *Projects {
	p := &Projects{api: rc, cache: cc, log: log.Named("projects")}

	p.create = cache.NewMutation(cc, cache.MutationSpec[CreateProjectInput, Project]{
		Name: "projects.create",
		Run: func(ctx context.Context, in CreateProjectInput) (Project, error) {
			return rest.PostJSON[Project](ctx, rc, "/projects", in)
		},
		Invalidates: func(CreateProjectInput) []cache.Key {
			return []cache.Key{Keys.Projects.ListRoot()}
		},
	})

	p.update = cache.NewMutation(cc, cache.MutationSpec[UpdateProjectInput, Project]{
		Name: "projects.update",
		Run: func(ctx context.Context, in UpdateProjectInput) (Project, error) {
			return rest.PutJSON[Project](ctx, rc, "/projects/"+in.ID, in)
		},
		Invalidates: func(in UpdateProjectInput) []cache.Key {
			return []cache.Key{
				Keys.Projects.ListRoot(),
				Keys.Projects.Detail(in.ID),
			}
		},
	})

	p.remove = cache.NewMutation(cc, cache.MutationSpec[string, struct{}]{
		Name: "projects.delete",
		Run: func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, rc.Delete(ctx, "/projects/"+id)
		},
		Invalidates: func(id string) []cache.Key {
			return []cache.Key{Keys.Projects.Root()}
		},
		Optimistic: &cache.Optimistic[string]{
			Targets: func(string) []cache.Key {
				return []cache.Key{Keys.Projects.ListRoot()}
			},
			Patch: func(id string, v any) (any, bool) {
				return cache.RemoveFromLists(func(p Project) bool { return p.ID == id })(v)
			},
		},
		Identity: func(id string) string { return id },
	})

	return p
}

// List returns one page of projects.
func (p *Projects) List(ctx context.Context, lp ListParams) (cache.ListPage[Project], error) {
	return cache.FetchValue(ctx, p.cache, Keys.Projects.List(lp), func(ctx context.Context) (cache.ListPage[Project], error) {
		return rest.GetJSON[cache.ListPage[Project]](ctx, p.api, "/projects", lp.query())
	})
}

// Get returns one project by id.
func (p *Projects) Get(ctx context.Context, id string) (Project, error) {
	return cache.FetchValue(ctx, p.cache, Keys.Projects.Detail(id), func(ctx context.Context) (Project, error) {
		return rest.GetJSON[Project](ctx, p.api, "/projects/"+id, nil)
	})
}

// Create adds a project.
func (p *Projects) Create(ctx context.Context, in CreateProjectInput) (Project, error) {
	return p.create.Do(ctx, in)
}

// Update edits a project.
func (p *Projects) Update(ctx context.Context, in UpdateProjectInput) (Project, error) {
	return p.update.Do(ctx, in)
}

// Delete removes a project optimistically.
func (p *Projects) Delete(ctx context.Context, id string) error {
	p.log.Debug("deleting project", zap.String("id", id))
	_, err := p.remove.Do(ctx, id)
	return err
}
