// Package paperdesk is the Go client SDK for the paperdesk research
// paper platform. It assembles the transport layer, the query cache,
// and the per-entity services. The cache is created once per Client and
// passed down explicitly; nothing in the SDK is process-global.
package paperdesk

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/paperdesk/paperdesk-go/api"
	"github.com/paperdesk/paperdesk-go/cache"
	"github.com/paperdesk/paperdesk-go/internal/util"
	"github.com/paperdesk/paperdesk-go/rest"
)

// Client is the assembled SDK: one cache, one transport client, and the
// entity services sharing them.
type Client struct {
	Papers      *api.Papers
	Groups      *api.Groups
	Projects    *api.Projects
	Alerts      *api.Alerts
	Submissions *api.Submissions
	Scores      *api.Scores

	conf     *Config
	log      *zap.Logger
	logLevel zap.AtomicLevel
	cache    *cache.Cache
	rest     *rest.Client
	watcher  *watcher
}

// New assembles a client from a validated config.
func New(conf *Config) (*Client, error) {
	if conf == nil {
		return nil, errors.New("paperdesk: nil config")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	level := zap.NewAtomicLevelAt(util.ParseLevel(conf.Log.Level))
	log := util.NewLogger(conf.Log.JSON, level)

	cc := cache.New(cache.Config{
		StaleTime:  conf.Cache.StaleTime,
		GCTime:     conf.Cache.GCTime,
		MaxEntries: conf.Cache.MaxEntries,
	}, log)

	rc := rest.New(rest.Config{
		BaseURL:       conf.API.BaseURL,
		AuthToken:     conf.API.AuthToken,
		Timeout:       conf.API.Timeout,
		RetryCount:    conf.API.RetryCount,
		RetryWaitTime: conf.API.RetryWaitTime,
	}, log)

	svc := api.NewServices(cc, rc, log)

	return &Client{
		Papers:      svc.Papers,
		Groups:      svc.Groups,
		Projects:    svc.Projects,
		Alerts:      svc.Alerts,
		Submissions: svc.Submissions,
		Scores:      svc.Scores,
		conf:        conf,
		log:         log,
		logLevel:    level,
		cache:       cc,
		rest:        rc,
	}, nil
}

// NewFromConfigFile reads path, assembles a client, and watches the file
// for changes, hot-reloading the mutable settings (log level, auth
// token) on edit.
func NewFromConfigFile(path string) (*Client, error) {
	conf, err := ReadConfig(path)
	if err != nil {
		return nil, err
	}

	c, err := New(conf)
	if err != nil {
		return nil, err
	}

	w, err := newWatcher(path, c.log, c.applyConfig)
	if err != nil {
		c.log.Warn("config watcher disabled", zap.Error(err))
		return c, nil
	}
	c.watcher = w
	return c, nil
}

// applyConfig applies the settings that can change at runtime.
func (c *Client) applyConfig(conf *Config) {
	c.logLevel.SetLevel(util.ParseLevel(conf.Log.Level))
	if conf.API.AuthToken != c.conf.API.AuthToken {
		c.rest.SetAuthToken(conf.API.AuthToken)
	}
	c.conf = conf
	c.log.Info("configuration reloaded", zap.String("log_level", conf.Log.Level))
}

// Cache returns the client's query cache, e.g. for metrics.
func (c *Client) Cache() *cache.Cache {
	return c.cache
}

// Transport returns the underlying REST client.
func (c *Client) Transport() *rest.Client {
	return c.rest
}

// ClearSession drops all cached data, for logout/user-switch flows.
func (c *Client) ClearSession(ctx context.Context) {
	c.cache.Clear(ctx)
}

// Close stops the config watcher and drops the cache.
func (c *Client) Close() error {
	if c.watcher != nil {
		if err := c.watcher.Close(); err != nil {
			return err
		}
	}
	c.cache.Clear(context.Background())
	return nil
}
