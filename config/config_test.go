package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Quota.GuestDaily)
	assert.Equal(t, 50, cfg.Quota.UserDaily)
	assert.Equal(t, 6, cfg.History.MaxItems)
	assert.Equal(t, int64(50000), cfg.Pipeline.MinVideoBytes)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.NavigationTimeout)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adsaver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
browser:
  max_sessions: 2
pipeline:
  navigation_timeout: 45s
  poster_markers:
    - s600x600
quota:
  guest_daily: 3
redis:
  host: redis.internal
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Browser.MaxSessions)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.NavigationTimeout)
	assert.Equal(t, []string{"s600x600"}, cfg.Pipeline.PosterMarkers)
	assert.Equal(t, 3, cfg.Quota.GuestDaily)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr())

	// Untouched sections keep their defaults.
	assert.Equal(t, 50, cfg.Quota.UserDaily)
	assert.Equal(t, []string{".mp4"}, cfg.Pipeline.VideoMarkers)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adsaver.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o644))

	t.Setenv("ADSAVER_PORT", "9090")
	t.Setenv("ADSAVER_API_KEYS", "a, b,,c")
	t.Setenv("ADSAVER_CACHE_TTL", "0s")
	t.Setenv("ADSAVER_HEADLESS", "not-a-bool")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Auth.APIKeys)
	assert.Equal(t, time.Duration(0), cfg.Cache.TTL)
	assert.True(t, cfg.Browser.Headless, "unparsable values keep the current setting")
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("validation", func(t *testing.T) {
		t.Setenv("ADSAVER_QUOTA_GUEST", "0")
		_, err := Load("")
		assert.ErrorContains(t, err, "GuestDaily")
	})

	t.Run("bad mode", func(t *testing.T) {
		t.Setenv("ADSAVER_MODE", "production")
		_, err := Load("")
		assert.ErrorContains(t, err, "Mode")
	})
}
