package paperdesk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperdesk/paperdesk-go/api"
)

func TestNew(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"items": []any{}, "total": 0, "page": 1, "pages": 0,
		})
	}))
	defer srv.Close()

	c, err := New(&Config{API: APIConfig{BaseURL: srv.URL}})
	require.NoError(t, err)
	defer c.Close() //nolint:errcheck

	require.NotNil(t, c.Papers)
	require.NotNil(t, c.Groups)
	require.NotNil(t, c.Projects)
	require.NotNil(t, c.Alerts)
	require.NotNil(t, c.Submissions)
	require.NotNil(t, c.Scores)
	require.NotNil(t, c.Cache())
	require.NotNil(t, c.Transport())

	// The services share the client's cache and transport.
	page, err := c.Groups.List(context.Background(), api.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.NotEmpty(t, c.Cache().Metrics().Snapshot())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(&Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")

	_, err = New(nil)
	require.Error(t, err)
}

func TestClearSession(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{
			"items": []any{}, "total": 0, "page": 1, "pages": 0,
		})
	}))
	defer srv.Close()

	c, err := New(&Config{API: APIConfig{BaseURL: srv.URL}})
	require.NoError(t, err)
	defer c.Close() //nolint:errcheck

	ctx := context.Background()
	_, err = c.Projects.List(ctx, api.ListParams{})
	require.NoError(t, err)
	_, err = c.Projects.List(ctx, api.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second read should hit the cache")

	c.ClearSession(ctx)

	_, err = c.Projects.List(ctx, api.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "clearing the session drops cached data")
}
