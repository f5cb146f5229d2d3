// Package transcode converts browser-recorded voice notes into Ogg/Opus.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/memohai/wagate/internal/metrics"
)

// ErrTranscode reports a failed conversion. Output of a failed run is never
// returned.
var ErrTranscode = errors.New("transcode failed")

// Transcoder converts a voice note container into Ogg/Opus bytes.
type Transcoder interface {
	ConvertVoiceNote(ctx context.Context, src []byte) ([]byte, error)
}

const (
	DefaultFFmpegPath    = "ffmpeg"
	DefaultMaxConcurrent = 2
	DefaultTimeout       = 60 * time.Second

	OggMimeType = "audio/ogg; codecs=opus"

	stderrTail = 512
)

// Options configures FFmpeg.
type Options struct {
	Path          string
	MaxConcurrent int
	Timeout       time.Duration
}

// FFmpeg runs the ffmpeg binary with stdin and stdout as pipes. At most
// MaxConcurrent conversions run at once; further callers wait for a slot or
// their context.
type FFmpeg struct {
	path    string
	timeout time.Duration
	slots   *semaphore.Weighted
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewFFmpeg creates an ffmpeg backed transcoder.
func NewFFmpeg(log *slog.Logger, opts Options, collector *metrics.Collector) *FFmpeg {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(opts.Path) == "" {
		opts.Path = DefaultFFmpegPath
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &FFmpeg{
		path:    opts.Path,
		timeout: opts.Timeout,
		slots:   semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		metrics: collector,
		logger:  log.With(slog.String("service", "transcode")),
	}
}

// ConvertVoiceNote converts src (typically audio/webm) into Ogg/Opus.
func (f *FFmpeg) ConvertVoiceNote(ctx context.Context, src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrTranscode)
	}
	if err := f.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer f.slots.Release(1)

	start := time.Now()
	out, err := f.run(ctx, src)
	f.metrics.Transcode(time.Since(start), err)
	if err != nil {
		f.logger.Warn("voice note conversion failed", slog.Int("input_bytes", len(src)), slog.Any("error", err))
		return nil, err
	}
	f.logger.Debug("voice note converted",
		slog.Int("input_bytes", len(src)),
		slog.Int("output_bytes", len(out)),
		slog.Duration("took", time.Since(start)),
	)
	return out, nil
}

func (f *FFmpeg) run(ctx context.Context, src []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.path,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-vn", "-c:a", "libopus", "-b:a", "32k",
		"-f", "ogg", "pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(src)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrTranscode, ctxErr)
		}
		if msg := tail(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", ErrTranscode, msg)
		}
		return nil, fmt.Errorf("%w: %w", ErrTranscode, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrTranscode)
	}
	return stdout.Bytes(), nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = s[len(s)-stderrTail:]
	}
	return s
}

// NeedsVoiceConversion reports whether an outbound file is a browser voice
// recording that the remote network will not accept as is.
func NeedsVoiceConversion(mimeType, filename string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if strings.HasPrefix(mimeType, "audio/webm") {
		return true
	}
	return strings.EqualFold(filepath.Ext(filename), ".webm")
}

// OggFilename swaps the extension of name for .ogg.
func OggFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "voice.ogg"
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".ogg"
}
