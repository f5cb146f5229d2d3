// Package storage persists media artifacts as metadata/data file pairs, one
// directory per namespace.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Namespace separates independent key spaces.
type Namespace string

const (
	// NamespaceMessages holds message attachments keyed by message id.
	NamespaceMessages Namespace = "messages"
	// NamespacePhotos holds profile pictures keyed by sanitized chat id.
	NamespacePhotos Namespace = "photos"
)

// Namespaces lists every namespace the store manages.
var Namespaces = []Namespace{NamespaceMessages, NamespacePhotos}

var (
	// ErrInvalidKey is returned for keys that cannot be used as a file name.
	ErrInvalidKey = errors.New("invalid cache key")
	// ErrUnknownNamespace is returned for namespaces the store was not configured with.
	ErrUnknownNamespace = errors.New("unknown namespace")
)

// Record describes one persisted media resource.
type Record struct {
	Key         string    `json:"key"`
	Namespace   Namespace `json:"namespace"`
	DataPath    string    `json:"data_path"`
	MetaPath    string    `json:"meta_path,omitempty"`
	ContentType string    `json:"content_type"`
	Filename    string    `json:"filename,omitempty"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stats summarises one namespace.
type Stats struct {
	Namespace Namespace `json:"namespace"`
	Records   int       `json:"records"`
	Bytes     int64     `json:"bytes"`
	Orphans   int       `json:"orphans"`
}

// PruneResult reports what a prune pass removed.
type PruneResult struct {
	Records int `json:"records"`
	Orphans int `json:"orphans"`
}

// Store is the media persistence contract.
type Store interface {
	// Find returns the record for key. A partially written or damaged resource
	// is reported as absent.
	Find(ctx context.Context, ns Namespace, key string) (Record, bool, error)
	// Save writes data and metadata; readers never observe one without the other.
	Save(ctx context.Context, ns Namespace, key string, data []byte, contentType, filename string) (Record, error)
	// Delete removes both artifacts. Missing artifacts are not an error.
	Delete(ctx context.Context, ns Namespace, key string) error
	// Stats counts records in a namespace.
	Stats(ctx context.Context, ns Namespace) (Stats, error)
	// Prune removes records and leftovers last written before cutoff.
	Prune(ctx context.Context, ns Namespace, cutoff time.Time) (PruneResult, error)
}

// ValidateKey checks that key can be used verbatim as a file name stem.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if strings.HasPrefix(key, ".") {
		return ErrInvalidKey
	}
	if strings.ContainsAny(key, "/\\\x00") {
		return ErrInvalidKey
	}
	if len(key) > 200 {
		return ErrInvalidKey
	}
	return nil
}
