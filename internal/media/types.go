package media

import (
	"context"
	"strings"

	"github.com/memohai/wagate/internal/storage"
)

// Descriptor tells the caller where to stream a media artifact from.
type Descriptor struct {
	FilePath    string `json:"file_path"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename"`
}

func descriptorFrom(rec storage.Record) Descriptor {
	return Descriptor{
		FilePath:    rec.DataPath,
		ContentType: rec.ContentType,
		Filename:    rec.Filename,
	}
}

// RemoteMessage is the part of a remote message the cache needs.
type RemoteMessage struct {
	ID       string
	HasMedia bool
}

// Payload is a downloaded media payload. It only lives on the miss path.
type Payload struct {
	Data     []byte
	MimeType string
	Filename string
}

// Fetcher is the remote client boundary used on cache misses.
type Fetcher interface {
	// MessageByID returns the message, or ok=false when it does not exist.
	MessageByID(ctx context.Context, messageID string) (RemoteMessage, bool, error)
	// DownloadMedia returns the message payload, or nil when none is available.
	DownloadMedia(ctx context.Context, messageID string) (*Payload, error)
	// ProfilePictureURL returns "" when the chat has no picture.
	ProfilePictureURL(ctx context.Context, chatID string) (string, error)
	// Download fetches an arbitrary URL.
	Download(ctx context.Context, url string) ([]byte, string, error)
}

var keyReplacer = strings.NewReplacer("@", "_", ".", "_", "-", "_")

// Sanitize turns a remote identifier into a file-name-safe cache key by
// replacing '@', '.' and '-' with '_'. Distinct identifiers that differ only in
// those characters map to the same key.
func Sanitize(rawID string) string {
	return keyReplacer.Replace(rawID)
}
