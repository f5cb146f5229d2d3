package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, filepath.Join("cache", "messages"), cfg.Media.MessagesPath())
	assert.Equal(t, filepath.Join("cache", "photos"), cfg.Media.PhotosPath())
	assert.Equal(t, filepath.Join("cache", "default-avatar.png"), cfg.Media.Placeholder())
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = ":9000"
rate_limit = 20

[session]
base_url = "http://gateway:3001"
token = "t0k3n"

[media]
cache_dir = "/var/cache/wagate"
photo_dir = "/srv/photos"
max_age = "720h"

[transcoder]
max_concurrent = 4
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, DefaultCORSOrigin, cfg.Server.CORSOrigin)
	assert.InDelta(t, 20.0, cfg.Server.RateLimit, 0.001)
	assert.Equal(t, "t0k3n", cfg.Session.Token)
	assert.Equal(t, DefaultPollInterval, cfg.Session.PollInterval)
	assert.Equal(t, filepath.Join("/var/cache/wagate", "messages"), cfg.Media.MessagesPath())
	assert.Equal(t, "/srv/photos", cfg.Media.PhotosPath())
	assert.Equal(t, "720h", cfg.Media.MaxAge)
	assert.Equal(t, DefaultPhotoTimeout, cfg.Media.PhotoTimeout)
	assert.Equal(t, 4, cfg.Transcoder.MaxConcurrent)
	assert.Equal(t, DefaultFFmpegPath, cfg.Transcoder.FFmpegPath)
}

func TestLoadRejectsInvalidTOML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\naddr="), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
