package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/paperdesk/paperdesk-go/cache"
	"github.com/paperdesk/paperdesk-go/rest"
)

// Alert is a stored search that runs periodically and collects matching
// papers as results.
type Alert struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Query     string    `json:"query"`
	Frequency string    `json:"frequency"`
	LastRunAt time.Time `json:"last_run_at,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AlertResult is one paper matched by an alert run.
type AlertResult struct {
	PaperID   string    `json:"paper_id"`
	Title     string    `json:"title"`
	Score     float64   `json:"score"`
	MatchedAt time.Time `json:"matched_at"`
}

// CreateAlertInput is the payload for creating an alert.
type CreateAlertInput struct {
	Name      string `json:"name"`
	Query     string `json:"query"`
	Frequency string `json:"frequency"`
}

// UpdateAlertInput is the payload for updating an alert.
type UpdateAlertInput struct {
	ID        string `json:"-"`
	Name      string `json:"name"`
	Query     string `json:"query"`
	Frequency string `json:"frequency"`
}

// Alerts provides reads and writes for alerts and their results.
type Alerts struct {
	api   *rest.Client
	cache *cache.Cache
	log   *zap.Logger

	create  *cache.Mutation[CreateAlertInput, Alert]
	update  *cache.Mutation[UpdateAlertInput, Alert]
	remove  *cache.Mutation[string, struct{}]
	trigger *cache.Mutation[string, Alert]
}

// NewAlerts wires the alerts service.
func NewAlerts(cc *cache.Cache, rc *rest.Client, log *zap.Logger) *Alerts {
	a := &Alerts{api: rc, cache: cc, log: log.Named("alerts")}

	a.create = cache.NewMutation(cc, cache.MutationSpec[CreateAlertInput, Alert]{
		Name: "alerts.create",
		Run: func(ctx context.Context, in CreateAlertInput) (Alert, error) {
			return rest.PostJSON[Alert](ctx, rc, "/alerts", in)
		},
		Invalidates: func(CreateAlertInput) []cache.Key {
			return []cache.Key{Keys.Alerts.ListRoot()}
		},
	})

	a.update = cache.NewMutation(cc, cache.MutationSpec[UpdateAlertInput, Alert]{
		Name: "alerts.update",
		Run: func(ctx context.Context, in UpdateAlertInput) (Alert, error) {
			return rest.PutJSON[Alert](ctx, rc, "/alerts/"+in.ID, in)
		},
		Invalidates: func(in UpdateAlertInput) []cache.Key {
			return []cache.Key{
				Keys.Alerts.ListRoot(),
				Keys.Alerts.Detail(in.ID),
				// Editing the query changes what the next run matches
				Keys.Alerts.ResultsRoot(in.ID),
			}
		},
	})

	a.remove = cache.NewMutation(cc, cache.MutationSpec[string, struct{}]{
		Name: "alerts.delete",
		Run: func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, rc.Delete(ctx, "/alerts/"+id)
		},
		Invalidates: func(id string) []cache.Key {
			return []cache.Key{Keys.Alerts.Root()}
		},
		Optimistic: &cache.Optimistic[string]{
			Targets: func(string) []cache.Key {
				return []cache.Key{Keys.Alerts.ListRoot()}
			},
			Patch: func(id string, v any) (any, bool) {
				return cache.RemoveFromLists(func(a Alert) bool { return a.ID == id })(v)
			},
		},
		Identity: func(id string) string { return id },
	})

	// Triggering reruns the stored search server-side: both the alert's
	// detail (last_run_at) and its results become stale.
	a.trigger = cache.NewMutation(cc, cache.MutationSpec[string, Alert]{
		Name: "alerts.trigger",
		Run: func(ctx context.Context, id string) (Alert, error) {
			return rest.PostJSON[Alert](ctx, rc, "/alerts/"+id+"/trigger", nil)
		},
		Invalidates: func(id string) []cache.Key {
			return []cache.Key{
				Keys.Alerts.Detail(id),
				Keys.Alerts.ResultsRoot(id),
			}
		},
	})

	return a
}

// List returns one page of alerts.
func (a *Alerts) List(ctx context.Context, lp ListParams) (cache.ListPage[Alert], error) {
	return cache.FetchValue(ctx, a.cache, Keys.Alerts.List(lp), func(ctx context.Context) (cache.ListPage[Alert], error) {
		return rest.GetJSON[cache.ListPage[Alert]](ctx, a.api, "/alerts", lp.query())
	})
}

// Get returns one alert by id.
func (a *Alerts) Get(ctx context.Context, id string) (Alert, error) {
	return cache.FetchValue(ctx, a.cache, Keys.Alerts.Detail(id), func(ctx context.Context) (Alert, error) {
		return rest.GetJSON[Alert](ctx, a.api, "/alerts/"+id, nil)
	})
}

// Results returns one page of an alert's matched papers.
func (a *Alerts) Results(ctx context.Context, id string, lp ListParams) (cache.ListPage[AlertResult], error) {
	return cache.FetchValue(ctx, a.cache, Keys.Alerts.Results(id, lp), func(ctx context.Context) (cache.ListPage[AlertResult], error) {
		return rest.GetJSON[cache.ListPage[AlertResult]](ctx, a.api, "/alerts/"+id+"/results", lp.query())
	})
}

// ResultsView returns a dependent query over an alert's results. With an
// empty id the view is disabled and never fetches; call SetAlert once the
// id is known.
func (a *Alerts) ResultsView(id string, lp ListParams) *ResultsQuery {
	q := cache.NewQuery(a.cache, Keys.Alerts.Results(id, lp),
		func(ctx context.Context, key cache.Key) (cache.ListPage[AlertResult], error) {
			alertID := resultsAlertID(key)
			params := listParamsOf(key, lp)
			return rest.GetJSON[cache.ListPage[AlertResult]](ctx, a.api, "/alerts/"+alertID+"/results", params.query())
		},
		cache.WithKeepPreviousData(),
		cache.WithEnabled(id != ""),
	)
	return &ResultsQuery{Query: q, params: lp}
}

// ResultsQuery is a results view whose alert id may arrive later.
type ResultsQuery struct {
	*cache.Query[cache.ListPage[AlertResult]]
	params ListParams
}

// SetAlert points the view at an alert and enables fetching.
func (q *ResultsQuery) SetAlert(id string) {
	q.SetKey(Keys.Alerts.Results(id, q.params))
	q.SetEnabled(id != "")
}

// SetPage navigates the view to another results page.
func (q *ResultsQuery) SetPage(id string, page int) {
	q.params.Page = page
	q.SetKey(Keys.Alerts.Results(id, q.params))
}

// resultsAlertID extracts the alert id from a results key
// ("alerts", "results", id, params...).
func resultsAlertID(key cache.Key) string {
	if len(key) >= 3 {
		if id, ok := key[2].(string); ok {
			return id
		}
	}
	return ""
}

// Create adds an alert.
func (a *Alerts) Create(ctx context.Context, in CreateAlertInput) (Alert, error) {
	return a.create.Do(ctx, in)
}

// Update edits an alert.
func (a *Alerts) Update(ctx context.Context, in UpdateAlertInput) (Alert, error) {
	return a.update.Do(ctx, in)
}

// Delete removes an alert optimistically.
func (a *Alerts) Delete(ctx context.Context, id string) error {
	_, err := a.remove.Do(ctx, id)
	return err
}

// Trigger reruns an alert now and marks its detail and results stale.
func (a *Alerts) Trigger(ctx context.Context, id string) (Alert, error) {
	a.log.Debug("triggering alert", zap.String("id", id))
	return a.trigger.Do(ctx, id)
}
