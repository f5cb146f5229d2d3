package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	metaSuffix = ".meta.json"
	dataSuffix = ".data"
	tempPrefix = ".tmp-"

	metaVersion = 1
)

type metadata struct {
	Version     int       `json:"version"`
	ContentType string    `json:"content_type"`
	Filename    string    `json:"filename,omitempty"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// FSStore keeps each namespace in its own directory. A resource is the pair
// <key>.meta.json and <key>.data; the metadata rename is the commit point.
type FSStore struct {
	dirs   map[Namespace]string
	logger *slog.Logger
	now    func() time.Time
}

// NewFSStore creates a store over the given namespace directories.
// Directories are not touched until Init.
func NewFSStore(log *slog.Logger, dirs map[Namespace]string) *FSStore {
	if log == nil {
		log = slog.Default()
	}
	copied := make(map[Namespace]string, len(dirs))
	for ns, dir := range dirs {
		copied[ns] = filepath.Clean(dir)
	}
	return &FSStore{
		dirs:   copied,
		logger: log.With(slog.String("service", "storage")),
		now:    time.Now,
	}
}

// Init creates every namespace directory. It is idempotent.
func (s *FSStore) Init() error {
	for ns, dir := range s.dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s cache dir: %w", ns, err)
		}
		s.logger.Info("cache directory ready", slog.String("namespace", string(ns)), slog.String("dir", dir))
	}
	return nil
}

// Dir returns the directory backing ns.
func (s *FSStore) Dir(ns Namespace) (string, error) {
	dir, ok := s.dirs[ns]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownNamespace, ns)
	}
	return dir, nil
}

func (s *FSStore) paths(ns Namespace, key string) (string, string, error) {
	if err := ValidateKey(key); err != nil {
		return "", "", err
	}
	dir, err := s.Dir(ns)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(dir, key+metaSuffix), filepath.Join(dir, key+dataSuffix), nil
}

// Find reads metadata first and then checks the data artifact.
func (s *FSStore) Find(ctx context.Context, ns Namespace, key string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	metaPath, dataPath, err := s.paths(ns, key)
	if err != nil {
		return Record{}, false, err
	}
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("read metadata: %w", err)
	}
	var meta metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		s.logger.Warn("ignoring unreadable metadata", slog.String("namespace", string(ns)), slog.String("key", key), slog.Any("error", err))
		return Record{}, false, nil
	}
	if meta.Version != metaVersion {
		s.logger.Warn("ignoring metadata with unknown version", slog.String("namespace", string(ns)), slog.String("key", key), slog.Int("version", meta.Version))
		return Record{}, false, nil
	}
	info, err := os.Stat(dataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("stat data: %w", err)
	}
	if !info.Mode().IsRegular() || info.Size() != meta.Size {
		// Data replaced without its metadata, or truncated.
		return Record{}, false, nil
	}
	return Record{
		Key:         key,
		Namespace:   ns,
		DataPath:    dataPath,
		MetaPath:    metaPath,
		ContentType: meta.ContentType,
		Filename:    meta.Filename,
		Size:        meta.Size,
		CreatedAt:   meta.CreatedAt,
	}, true, nil
}

// Save writes both artifacts under temporary names, then renames data and
// finally metadata into place. Overwrites replace the previous pair.
func (s *FSStore) Save(ctx context.Context, ns Namespace, key string, data []byte, contentType, filename string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	metaPath, dataPath, err := s.paths(ns, key)
	if err != nil {
		return Record{}, err
	}
	dir := filepath.Dir(metaPath)
	meta := metadata{
		Version:     metaVersion,
		ContentType: contentType,
		Filename:    filename,
		Size:        int64(len(data)),
		CreatedAt:   s.now().UTC(),
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return Record{}, fmt.Errorf("encode metadata: %w", err)
	}

	tmpData, err := writeTemp(dir, data)
	if err != nil {
		return Record{}, fmt.Errorf("write data: %w", err)
	}
	tmpMeta, err := writeTemp(dir, encoded)
	if err != nil {
		_ = os.Remove(tmpData)
		return Record{}, fmt.Errorf("write metadata: %w", err)
	}
	if err := os.Rename(tmpData, dataPath); err != nil {
		_ = os.Remove(tmpData)
		_ = os.Remove(tmpMeta)
		return Record{}, fmt.Errorf("commit data: %w", err)
	}
	if err := os.Rename(tmpMeta, metaPath); err != nil {
		_ = os.Remove(tmpMeta)
		// Without fresh metadata the new data is unreachable; drop the stale
		// metadata too so Find reports absent instead of a mismatched pair.
		_ = os.Remove(metaPath)
		return Record{}, fmt.Errorf("commit metadata: %w", err)
	}

	s.logger.Debug("media saved",
		slog.String("namespace", string(ns)),
		slog.String("key", key),
		slog.String("content_type", contentType),
		slog.Int64("size", meta.Size),
	)
	return Record{
		Key:         key,
		Namespace:   ns,
		DataPath:    dataPath,
		MetaPath:    metaPath,
		ContentType: contentType,
		Filename:    filename,
		Size:        meta.Size,
		CreatedAt:   meta.CreatedAt,
	}, nil
}

// Delete removes metadata first so a concurrent Find fails closed.
func (s *FSStore) Delete(ctx context.Context, ns Namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	metaPath, dataPath, err := s.paths(ns, key)
	if err != nil {
		return err
	}
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove metadata: %w", err)
	}
	if err := os.Remove(dataPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove data: %w", err)
	}
	return nil
}

// Stats walks the namespace directory.
func (s *FSStore) Stats(ctx context.Context, ns Namespace) (Stats, error) {
	dir, err := s.Dir(ns)
	if err != nil {
		return Stats{}, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Stats{}, fmt.Errorf("read cache dir: %w", err)
	}
	stats := Stats{Namespace: ns}
	metas := map[string]struct{}{}
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, metaSuffix) {
			metas[strings.TrimSuffix(name, metaSuffix)] = struct{}{}
		}
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return Stats{}, err
		}
		name := entry.Name()
		if !strings.HasSuffix(name, dataSuffix) {
			continue
		}
		key := strings.TrimSuffix(name, dataSuffix)
		if _, ok := metas[key]; !ok {
			stats.Orphans++
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stats.Records++
		stats.Bytes += info.Size()
	}
	return stats, nil
}

// Prune deletes records created before cutoff, data files without metadata and
// abandoned temp files older than cutoff.
func (s *FSStore) Prune(ctx context.Context, ns Namespace, cutoff time.Time) (PruneResult, error) {
	dir, err := s.Dir(ns)
	if err != nil {
		return PruneResult{}, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return PruneResult{}, fmt.Errorf("read cache dir: %w", err)
	}
	var result PruneResult
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		name := entry.Name()
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		switch {
		case strings.HasPrefix(name, tempPrefix):
			if os.Remove(filepath.Join(dir, name)) == nil {
				result.Orphans++
			}
		case strings.HasSuffix(name, metaSuffix):
			key := strings.TrimSuffix(name, metaSuffix)
			if err := s.Delete(ctx, ns, key); err != nil {
				s.logger.Warn("prune delete failed", slog.String("namespace", string(ns)), slog.String("key", key), slog.Any("error", err))
				continue
			}
			result.Records++
		case strings.HasSuffix(name, dataSuffix):
			key := strings.TrimSuffix(name, dataSuffix)
			if _, err := os.Stat(filepath.Join(dir, key+metaSuffix)); errors.Is(err, fs.ErrNotExist) {
				if os.Remove(filepath.Join(dir, name)) == nil {
					result.Orphans++
				}
			}
		}
	}
	return result, nil
}

func writeTemp(dir string, content []byte) (string, error) {
	name := filepath.Join(dir, tempPrefix+uuid.NewString())
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

var _ Store = (*FSStore)(nil)
