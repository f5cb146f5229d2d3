package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultRecordCacheSize bounds the in-memory record cache.
const DefaultRecordCacheSize = 1024

type recordKey struct {
	ns  Namespace
	key string
}

// CachedStore keeps recently used records in memory in front of another
// Store. A cached record is only served while both of its artifacts are still
// the files it was read from, so files removed or rewritten behind the cache
// fall through to the underlying store.
type CachedStore struct {
	next  Store
	cache *lru.Cache[recordKey, cachedRecord]
}

type cachedRecord struct {
	rec  Record
	data fileStamp
	meta fileStamp
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

func (f fileStamp) same(o fileStamp) bool {
	return f.size == o.size && f.modTime.Equal(o.modTime)
}

// stamp returns the size and mtime of path; ok is false when it is missing.
func stamp(path string) (fileStamp, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fileStamp{}, false, nil
		}
		return fileStamp{}, false, err
	}
	if !info.Mode().IsRegular() {
		return fileStamp{}, false, nil
	}
	return fileStamp{size: info.Size(), modTime: info.ModTime()}, true, nil
}

// NewCachedStore wraps next with an LRU of the given size.
func NewCachedStore(next Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = DefaultRecordCacheSize
	}
	cache, err := lru.New[recordKey, cachedRecord](size)
	if err != nil {
		return nil, fmt.Errorf("create record cache: %w", err)
	}
	return &CachedStore{next: next, cache: cache}, nil
}

// Find serves from memory when both artifacts are unchanged.
func (s *CachedStore) Find(ctx context.Context, ns Namespace, key string) (Record, bool, error) {
	k := recordKey{ns: ns, key: key}
	if entry, ok := s.cache.Get(k); ok {
		fresh, err := entry.fresh()
		if err != nil {
			return Record{}, false, err
		}
		if fresh {
			return entry.rec, true, nil
		}
		s.cache.Remove(k)
	}
	rec, ok, err := s.next.Find(ctx, ns, key)
	if err != nil || !ok {
		return rec, ok, err
	}
	s.remember(k, rec)
	return rec, true, nil
}

func (e cachedRecord) fresh() (bool, error) {
	data, ok, err := stamp(e.rec.DataPath)
	if err != nil {
		return false, fmt.Errorf("stat data: %w", err)
	}
	if !ok || !data.same(e.data) || data.size != e.rec.Size {
		return false, nil
	}
	meta, ok, err := stamp(e.rec.MetaPath)
	if err != nil {
		return false, fmt.Errorf("stat metadata: %w", err)
	}
	return ok && meta.same(e.meta), nil
}

// remember caches rec when both artifact paths are known and present.
func (s *CachedStore) remember(k recordKey, rec Record) {
	if rec.DataPath == "" || rec.MetaPath == "" {
		return
	}
	data, ok, err := stamp(rec.DataPath)
	if err != nil || !ok || data.size != rec.Size {
		return
	}
	meta, ok, err := stamp(rec.MetaPath)
	if err != nil || !ok {
		return
	}
	s.cache.Add(k, cachedRecord{rec: rec, data: data, meta: meta})
}

// Save writes through and refreshes the cached record.
func (s *CachedStore) Save(ctx context.Context, ns Namespace, key string, data []byte, contentType, filename string) (Record, error) {
	k := recordKey{ns: ns, key: key}
	s.cache.Remove(k)
	rec, err := s.next.Save(ctx, ns, key, data, contentType, filename)
	if err != nil {
		return Record{}, err
	}
	s.remember(k, rec)
	return rec, nil
}

// Delete evicts the cached record before deleting.
func (s *CachedStore) Delete(ctx context.Context, ns Namespace, key string) error {
	s.cache.Remove(recordKey{ns: ns, key: key})
	return s.next.Delete(ctx, ns, key)
}

// Stats is delegated.
func (s *CachedStore) Stats(ctx context.Context, ns Namespace) (Stats, error) {
	return s.next.Stats(ctx, ns)
}

// Prune purges the whole in-memory cache after delegating.
func (s *CachedStore) Prune(ctx context.Context, ns Namespace, cutoff time.Time) (PruneResult, error) {
	res, err := s.next.Prune(ctx, ns, cutoff)
	s.cache.Purge()
	return res, err
}

var _ Store = (*CachedStore)(nil)
