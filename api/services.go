package api

import (
	"go.uber.org/zap"

	"github.com/paperdesk/paperdesk-go/cache"
	"github.com/paperdesk/paperdesk-go/rest"
)

// Services bundles every entity service over one shared cache and
// transport client.
type Services struct {
	Papers      *Papers
	Groups      *Groups
	Projects    *Projects
	Alerts      *Alerts
	Submissions *Submissions
	Scores      *Scores
}

// NewServices wires all entity services.
func NewServices(cc *cache.Cache, rc *rest.Client, log *zap.Logger) *Services {
	if log == nil {
		log = zap.NewNop()
	}
	return &Services{
		Papers:      NewPapers(cc, rc, log),
		Groups:      NewGroups(cc, rc, log),
		Projects:    NewProjects(cc, rc, log),
		Alerts:      NewAlerts(cc, rc, log),
		Submissions: NewSubmissions(cc, rc, log),
		Scores:      NewScores(cc, rc, log),
	}
}
