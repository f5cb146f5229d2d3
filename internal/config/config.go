// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultCORSOrigin     = "*"
	DefaultBodyLimit      = "64M"
	DefaultSessionBaseURL = "http://127.0.0.1:3001"
	DefaultPollInterval   = "5s"
	DefaultReadyTimeout   = "0s"
	DefaultCacheDir       = "cache"
	DefaultPhotoTimeout   = "10s"
	DefaultFetchTimeout   = "0s"
	DefaultMaxAge         = "0s"
	DefaultPruneSchedule  = "@every 1h"
	DefaultRecordCache    = 1024
	DefaultFFmpegPath     = "ffmpeg"
	DefaultMaxTranscodes  = 2
	DefaultTranscodeLimit = "60s"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	Session    SessionConfig    `toml:"session"`
	Media      MediaConfig      `toml:"media"`
	Transcoder TranscoderConfig `toml:"transcoder"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server settings. RateLimit is requests per
// second per client; 0 disables limiting.
type ServerConfig struct {
	Addr       string  `toml:"addr"`
	CORSOrigin string  `toml:"cors_origin"`
	BodyLimit  string  `toml:"body_limit"`
	RateLimit  float64 `toml:"rate_limit"`
}

// SessionConfig points at the messaging session gateway.
type SessionConfig struct {
	BaseURL      string `toml:"base_url"`
	Token        string `toml:"token"`
	PollInterval string `toml:"poll_interval"`
	ReadyTimeout string `toml:"ready_timeout"`
}

// MediaConfig holds the media cache layout and retrieval limits. Empty
// MessageDir and PhotoDir default to subdirectories of CacheDir.
type MediaConfig struct {
	CacheDir        string `toml:"cache_dir"`
	MessageDir      string `toml:"message_dir"`
	PhotoDir        string `toml:"photo_dir"`
	PlaceholderPath string `toml:"placeholder_path"`
	PhotoTimeout    string `toml:"photo_timeout"`
	FetchTimeout    string `toml:"fetch_timeout"`
	RecordCacheSize int    `toml:"record_cache_size"`
	MaxAge          string `toml:"max_age"`
	PruneSchedule   string `toml:"prune_schedule"`
}

// MessagesPath returns the message attachment directory.
func (c MediaConfig) MessagesPath() string {
	if c.MessageDir != "" {
		return c.MessageDir
	}
	return filepath.Join(c.CacheDir, "messages")
}

// PhotosPath returns the profile picture directory.
func (c MediaConfig) PhotosPath() string {
	if c.PhotoDir != "" {
		return c.PhotoDir
	}
	return filepath.Join(c.CacheDir, "photos")
}

// Placeholder returns the default avatar path.
func (c MediaConfig) Placeholder() string {
	if c.PlaceholderPath != "" {
		return c.PlaceholderPath
	}
	return filepath.Join(c.CacheDir, "default-avatar.png")
}

// TranscoderConfig configures the ffmpeg voice note converter.
type TranscoderConfig struct {
	FFmpegPath    string `toml:"ffmpeg_path"`
	MaxConcurrent int    `toml:"max_concurrent"`
	Timeout       string `toml:"timeout"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:       DefaultHTTPAddr,
			CORSOrigin: DefaultCORSOrigin,
			BodyLimit:  DefaultBodyLimit,
		},
		Session: SessionConfig{
			BaseURL:      DefaultSessionBaseURL,
			PollInterval: DefaultPollInterval,
			ReadyTimeout: DefaultReadyTimeout,
		},
		Media: MediaConfig{
			CacheDir:        DefaultCacheDir,
			PhotoTimeout:    DefaultPhotoTimeout,
			FetchTimeout:    DefaultFetchTimeout,
			RecordCacheSize: DefaultRecordCache,
			MaxAge:          DefaultMaxAge,
			PruneSchedule:   DefaultPruneSchedule,
		},
		Transcoder: TranscoderConfig{
			FFmpegPath:    DefaultFFmpegPath,
			MaxConcurrent: DefaultMaxTranscodes,
			Timeout:       DefaultTranscodeLimit,
		},
	}
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
