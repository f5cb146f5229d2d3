package media

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Placeholder descriptor values.
const (
	PlaceholderContentType = "image/png"
	PlaceholderFilename    = "default-avatar.png"
)

//go:embed assets/default-avatar.png
var defaultAvatar []byte

// EnsurePlaceholder makes sure a placeholder image exists at path, writing the
// built-in avatar when the file is missing. It returns the absolute path.
func EnsurePlaceholder(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve placeholder path: %w", err)
	}
	info, err := os.Stat(abs)
	if err == nil {
		if !info.Mode().IsRegular() {
			return "", fmt.Errorf("placeholder %s is not a regular file", abs)
		}
		return abs, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat placeholder: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create placeholder dir: %w", err)
	}
	tmp := abs + ".tmp"
	if err := os.WriteFile(tmp, defaultAvatar, 0o644); err != nil {
		return "", fmt.Errorf("write placeholder: %w", err)
	}
	if err := os.Rename(tmp, abs); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit placeholder: %w", err)
	}
	return abs, nil
}
