package paperdesk

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatcherReload(t *testing.T) {
	path := writeConfigFile(t, `
api:
  base_url: https://api.paperdesk.dev
log:
  level: info
`)

	applied := make(chan *Config, 1)
	w, err := newWatcher(path, zap.NewNop(), func(conf *Config) {
		select {
		case applied <- conf:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close() //nolint:errcheck

	err = os.WriteFile(path, []byte(`
api:
  base_url: https://api.paperdesk.dev
log:
  level: warn
`), 0o600)
	require.NoError(t, err)

	select {
	case conf := <-applied:
		require.Equal(t, "warn", conf.Log.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not applied")
	}
}

func TestWatcherKeepsRunningOnBadConfig(t *testing.T) {
	path := writeConfigFile(t, `
api:
  base_url: https://api.paperdesk.dev
`)

	applied := make(chan *Config, 4)
	w, err := newWatcher(path, zap.NewNop(), func(conf *Config) {
		applied <- conf
	})
	require.NoError(t, err)
	defer w.Close() //nolint:errcheck

	// An invalid config must not be applied and must not kill the watcher.
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o600))
	time.Sleep(200 * time.Millisecond)
	require.Empty(t, applied)

	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://api.paperdesk.dev
log:
  level: debug
`), 0o600))

	select {
	case conf := <-applied:
		require.Equal(t, "debug", conf.Log.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher stopped after a bad config write")
	}
}
