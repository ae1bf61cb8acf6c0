package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/paperdesk/paperdesk-go/cache"
	"github.com/paperdesk/paperdesk-go/rest"
)

// Score is a relevance/impact score computed for a paper. Not every
// paper has one yet.
type Score struct {
	PaperID    string    `json:"paper_id"`
	Value      float64   `json:"value"`
	ComputedAt time.Time `json:"computed_at"`
}

// Scores provides score reads.
type Scores struct {
	api   *rest.Client
	cache *cache.Cache
	log   *zap.Logger
}

// NewScores wires the scores service.
func NewScores(cc *cache.Cache, rc *rest.Client, log *zap.Logger) *Scores {
	return &Scores{api: rc, cache: cc, log: log.Named("scores")}
}

// Latest returns the most recent score for a paper, or nil when none has
// been computed yet: the backend's 404 is a legitimate absence here, not
// an error, and the absence itself is cached.
func (s *Scores) Latest(ctx context.Context, paperID string) (*Score, error) {
	return cache.FetchValue(ctx, s.cache, Keys.Scores.Latest(paperID), func(ctx context.Context) (*Score, error) {
		return rest.GetJSONOrNil[Score](ctx, s.api, "/papers/"+paperID+"/score", nil)
	})
}
