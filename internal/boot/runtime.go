// Package boot provides runtime configuration for the API server.
package boot

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/memohai/wagate/internal/config"
)

// envOverrides are the environment variables that take precedence over the
// config file.
type envOverrides struct {
	HTTPAddr       string `env:"HTTP_ADDR"`
	SessionBaseURL string `env:"SESSION_BASE_URL"`
	SessionToken   string `env:"SESSION_TOKEN"`
	MediaCacheDir  string `env:"MEDIA_CACHE_DIR"`
	FFmpegPath     string `env:"FFMPEG_PATH"`
}

// RuntimeConfig holds parsed runtime settings. Durations are parsed once here
// so an invalid value fails startup.
type RuntimeConfig struct {
	ServerAddr     string
	SessionBaseURL string
	SessionToken   string
	PollInterval   time.Duration
	ReadyTimeout   time.Duration

	MessageDir      string
	PhotoDir        string
	PlaceholderPath string
	PhotoTimeout    time.Duration
	FetchTimeout    time.Duration
	MaxAge          time.Duration

	FFmpegPath       string
	TranscodeTimeout time.Duration
}

// ProvideRuntimeConfig builds RuntimeConfig from the given config and applies env overrides.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if overrides.MediaCacheDir != "" {
		cfg.Media.CacheDir = overrides.MediaCacheDir
	}

	ret := &RuntimeConfig{
		ServerAddr:      cfg.Server.Addr,
		SessionBaseURL:  cfg.Session.BaseURL,
		SessionToken:    cfg.Session.Token,
		MessageDir:      cfg.Media.MessagesPath(),
		PhotoDir:        cfg.Media.PhotosPath(),
		PlaceholderPath: cfg.Media.Placeholder(),
		FFmpegPath:      cfg.Transcoder.FFmpegPath,
	}
	if overrides.HTTPAddr != "" {
		ret.ServerAddr = overrides.HTTPAddr
	}
	if overrides.SessionBaseURL != "" {
		ret.SessionBaseURL = overrides.SessionBaseURL
	}
	if overrides.SessionToken != "" {
		ret.SessionToken = overrides.SessionToken
	}
	if overrides.FFmpegPath != "" {
		ret.FFmpegPath = overrides.FFmpegPath
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"session.poll_interval", cfg.Session.PollInterval, &ret.PollInterval},
		{"session.ready_timeout", cfg.Session.ReadyTimeout, &ret.ReadyTimeout},
		{"media.photo_timeout", cfg.Media.PhotoTimeout, &ret.PhotoTimeout},
		{"media.fetch_timeout", cfg.Media.FetchTimeout, &ret.FetchTimeout},
		{"media.max_age", cfg.Media.MaxAge, &ret.MaxAge},
		{"transcoder.timeout", cfg.Transcoder.Timeout, &ret.TranscodeTimeout},
	}
	for _, d := range durations {
		v, err := parseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = v
	}
	return ret, nil
}

func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", value)
	}
	return d, nil
}
