package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/paperdesk/paperdesk-go/cache"
	"github.com/paperdesk/paperdesk-go/rest"
)

// Submission is a user-submitted manuscript awaiting review. Accepted
// submissions are converted into papers.
type Submission struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Submissions provides reads and the conversion write for submissions.
type Submissions struct {
	api   *rest.Client
	cache *cache.Cache
	log   *zap.Logger

	convert *cache.Mutation[string, Paper]
}

// NewSubmissions wires the submissions service.
func NewSubmissions(cc *cache.Cache, rc *rest.Client, log *zap.Logger) *Submissions {
	s := &Submissions{api: rc, cache: cc, log: log.Named("submissions")}

	// Conversion creates a paper, so the papers list goes stale too —
	// not just the submission that was converted.
	s.convert = cache.NewMutation(cc, cache.MutationSpec[string, Paper]{
		Name: "submissions.convert",
		Run: func(ctx context.Context, id string) (Paper, error) {
			return rest.PostJSON[Paper](ctx, rc, "/submissions/"+id+"/convert", nil)
		},
		Invalidates: func(id string) []cache.Key {
			return []cache.Key{
				Keys.Submissions.ListRoot(),
				Keys.Submissions.Detail(id),
				Keys.Papers.ListRoot(),
			}
		},
		Identity: func(id string) string { return id },
	})

	return s
}

// List returns one page of submissions.
func (s *Submissions) List(ctx context.Context, lp ListParams) (cache.ListPage[Submission], error) {
	return cache.FetchValue(ctx, s.cache, Keys.Submissions.List(lp), func(ctx context.Context) (cache.ListPage[Submission], error) {
		return rest.GetJSON[cache.ListPage[Submission]](ctx, s.api, "/submissions", lp.query())
	})
}

// Get returns one submission by id.
func (s *Submissions) Get(ctx context.Context, id string) (Submission, error) {
	return cache.FetchValue(ctx, s.cache, Keys.Submissions.Detail(id), func(ctx context.Context) (Submission, error) {
		return rest.GetJSON[Submission](ctx, s.api, "/submissions/"+id, nil)
	})
}

// Convert turns an accepted submission into a paper.
func (s *Submissions) Convert(ctx context.Context, id string) (Paper, error) {
	s.log.Debug("converting submission", zap.String("id", id))
	return s.convert.Do(ctx, id)
}
