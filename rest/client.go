// Package rest is the transport layer of the paperdesk SDK: a thin,
// typed wrapper over the platform's REST API. It knows nothing about
// caching policy; the cache package builds on top of it.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// Config holds transport settings.
type Config struct {
	// BaseURL is the API root, e.g. https://api.paperdesk.dev/v1
	BaseURL string

	// AuthToken, when set, is sent as a bearer token.
	AuthToken string

	// Timeout bounds each request; zero means the 30s default.
	Timeout time.Duration

	// RetryCount enables retries of idempotent requests on transient
	// failures. Zero (the default, and the test configuration) disables
	// retries entirely.
	RetryCount int

	// RetryWaitTime is the base delay between retries.
	RetryWaitTime time.Duration
}

// Client performs request/response exchange with the backend.
type Client struct {
	rc     *resty.Client
	conf   Config
	log    *zap.Logger
	bodies *bodyCache
}

// New creates a transport client.
func New(conf Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if conf.Timeout <= 0 {
		conf.Timeout = defaultTimeout
	}

	rc := resty.New().
		SetBaseURL(conf.BaseURL).
		SetTimeout(conf.Timeout).
		SetHeader("Accept", "application/json")
	if conf.AuthToken != "" {
		rc.SetAuthToken(conf.AuthToken)
	}

	return &Client{
		rc:     rc,
		conf:   conf,
		log:    log.Named("rest"),
		bodies: newBodyCache(defaultBodyCacheSize, defaultBodyCacheTTL),
	}
}

// SetAuthToken replaces the bearer token, e.g. after a session refresh.
func (c *Client) SetAuthToken(token string) {
	c.rc.SetAuthToken(token)
}

// Request performs one exchange and returns the response body. Non-2xx
// responses come back as *APIError with the server's payload attached.
func (c *Client) Request(ctx context.Context, method, path string, body any, params map[string]string) ([]byte, error) {
	var out []byte

	attempt := func() error {
		b, err := c.do(ctx, method, path, body, params, false)
		if err != nil {
			return err
		}
		out = b
		return nil
	}

	if c.conf.RetryCount <= 0 || !idempotent(method) {
		return out, attempt()
	}

	err := retry.Do(attempt,
		retry.Attempts(uint(c.conf.RetryCount+1)),
		retry.Delay(c.conf.RetryWaitTime),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.Context(ctx),
	)
	return out, err
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// isTransient reports whether a failed exchange is worth retrying:
// network-level failures and upstream 5xx gateway statuses.
func isTransient(err error) bool {
	switch StatusOf(err) {
	case 0:
		return true
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// do performs a single exchange. revalidated marks the one permitted
// reattempt after a 304 whose stored body is gone.
func (c *Client) do(ctx context.Context, method, path string, body any, params map[string]string, revalidated bool) ([]byte, error) {
	start := time.Now()

	req := c.rc.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if len(params) > 0 {
		req.SetQueryParams(params)
	}

	var cacheKey string
	if method == http.MethodGet {
		cacheKey = bodyCacheKey(path, params)
		if etag, ok := c.bodies.etagFor(cacheKey); ok {
			req.SetHeader("If-None-Match", etag)
		}
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.log.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}

	c.log.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode() == http.StatusNotModified {
		if cacheKey != "" {
			if cached, ok := c.bodies.get(cacheKey); ok {
				return cached, nil
			}
			if !revalidated {
				// Stored body aged out between request and response;
				// refetch once without the validator.
				c.bodies.remove(cacheKey)
				return c.do(ctx, method, path, body, params, true)
			}
		}
		// 304 to a request we cannot satisfy from the body cache. A
		// misbehaving server or proxy answering 304 unconditionally would
		// otherwise keep us revalidating forever.
		return nil, newAPIError(resp.StatusCode(), resp.Body())
	}

	if resp.IsError() {
		return nil, newAPIError(resp.StatusCode(), resp.Body())
	}

	if cacheKey != "" {
		if etag := resp.Header().Get("ETag"); etag != "" {
			c.bodies.put(cacheKey, etag, resp.Body())
		}
	}
	return resp.Body(), nil
}

// GetJSON fetches path and decodes the response into T.
func GetJSON[T any](ctx context.Context, c *Client, path string, params map[string]string) (T, error) {
	var out T
	body, err := c.Request(ctx, http.MethodGet, path, nil, params)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, errors.Wrapf(err, "decoding %s", path)
	}
	return out, nil
}

// GetJSONOrNil fetches path, treating HTTP 404 as a legitimate absence:
// it returns (nil, nil) instead of an error. Used for reads like "latest
// score for a paper" where the resource may simply not exist yet.
func GetJSONOrNil[T any](ctx context.Context, c *Client, path string, params map[string]string) (*T, error) {
	out, err := GetJSON[T](ctx, c, path, params)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// PostJSON sends body to path and decodes the response into T.
func PostJSON[T any](ctx context.Context, c *Client, path string, reqBody any) (T, error) {
	var out T
	body, err := c.Request(ctx, http.MethodPost, path, reqBody, nil)
	if err != nil {
		return out, err
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return out, errors.Wrapf(err, "decoding %s", path)
		}
	}
	return out, nil
}

// PutJSON sends body to path and decodes the response into T.
func PutJSON[T any](ctx context.Context, c *Client, path string, reqBody any) (T, error) {
	var out T
	body, err := c.Request(ctx, http.MethodPut, path, reqBody, nil)
	if err != nil {
		return out, err
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return out, errors.Wrapf(err, "decoding %s", path)
		}
	}
	return out, nil
}

// Delete issues a DELETE to path.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.Request(ctx, http.MethodDelete, path, nil, nil)
	return err
}
