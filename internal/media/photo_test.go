package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/wagate/internal/storage"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func newPhotoService(t *testing.T, fetcher Fetcher, timeout time.Duration) (*PhotoService, *spyStore, string) {
	t.Helper()
	store, root := newSpyStore(t)
	placeholder, err := EnsurePlaceholder(filepath.Join(root, "default-avatar.png"))
	require.NoError(t, err)
	return NewPhotoService(nil, store, fetcher, nil, placeholder, timeout), store, root
}

func photoDirEntries(t *testing.T, root string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(root, "photos"))
	require.NoError(t, err)
	return entries
}

func TestPhotoServiceCachesDownloadedPicture(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{
		photoURL: map[string]string{"5511999999999@c.us": "https://pps.example/p.jpg"},
		photos:   map[string][]byte{"https://pps.example/p.jpg": pngBytes},
	}
	svc, store, root := newPhotoService(t, fetcher, 0)

	got, err := svc.Execute(context.Background(), "5511999999999@c.us")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", got.ContentType, "declared type wins over sniffing")
	assert.Equal(t, "5511999999999_c_us.jpg", got.Filename)
	assert.Equal(t, filepath.Join(root, "photos", "5511999999999_c_us.data"), got.FilePath)
	assert.Equal(t, int32(1), store.saves.Load())

	again, err := svc.Execute(context.Background(), "5511999999999@c.us")
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, int32(1), fetcher.urlCalls.Load())
}

func TestPhotoServiceReadsWhatItWrote(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{}
	svc, store, _ := newPhotoService(t, fetcher, 0)

	chatID := "1203630-1@g.us"
	_, err := store.Save(context.Background(), storage.NamespacePhotos, Sanitize(chatID), pngBytes, "image/png", "group.png")
	require.NoError(t, err)

	got, err := svc.Execute(context.Background(), chatID)
	require.NoError(t, err)
	assert.Equal(t, "group.png", got.Filename)
	assert.Zero(t, fetcher.urlCalls.Load())
}

func TestPhotoServicePlaceholderWhenNoPicture(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{}
	svc, store, root := newPhotoService(t, fetcher, 0)

	got, err := svc.Execute(context.Background(), "5511@c.us")
	require.NoError(t, err)
	assert.Equal(t, svc.Placeholder(), got)
	assert.Equal(t, PlaceholderContentType, got.ContentType)
	assert.Equal(t, PlaceholderFilename, got.Filename)
	assert.Zero(t, store.saves.Load())
	assert.Empty(t, photoDirEntries(t, root))

	// Not negatively cached: the next request asks again.
	_, err = svc.Execute(context.Background(), "5511@c.us")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.urlCalls.Load())
}

func TestPhotoServicePlaceholderOnFailures(t *testing.T) {
	t.Parallel()
	url := "https://pps.example/p.jpg"

	tests := []struct {
		name    string
		fetcher *fakeFetcher
	}{
		{"url lookup error", &fakeFetcher{lookupErr: errors.New("not authorized")}},
		{"download error", &fakeFetcher{
			photoURL:    map[string]string{"c@c.us": url},
			downloadErr: errors.New("connection reset"),
		}},
		{"http status", &fakeFetcher{
			photoURL: map[string]string{"c@c.us": url},
		}},
		{"empty body", &fakeFetcher{
			photoURL: map[string]string{"c@c.us": url},
			photos:   map[string][]byte{url: {}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, root := newPhotoService(t, tt.fetcher, 0)
			got, err := svc.Execute(context.Background(), "c@c.us")
			require.NoError(t, err)
			assert.Equal(t, svc.Placeholder(), got)
			assert.Zero(t, store.saves.Load())
			assert.Empty(t, photoDirEntries(t, root))
		})
	}
}

func TestPhotoServicePlaceholderOnTimeout(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{block: make(chan struct{})}
	svc, store, root := newPhotoService(t, fetcher, 30*time.Millisecond)

	start := time.Now()
	got, err := svc.Execute(context.Background(), "slow@c.us")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, svc.Placeholder(), got)
	assert.Zero(t, store.saves.Load())
	assert.Empty(t, photoDirEntries(t, root))
}

func TestPhotoServiceRejectsEmptyChatID(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{}
	svc, store, _ := newPhotoService(t, fetcher, 0)

	_, err := svc.Execute(context.Background(), " ")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, store.finds.Load())
	assert.Zero(t, fetcher.urlCalls.Load())
}

type failingSaveStore struct {
	storage.Store
}

func (failingSaveStore) Save(context.Context, storage.Namespace, string, []byte, string, string) (storage.Record, error) {
	return storage.Record{}, errors.New("disk full")
}

func TestPhotoServiceSaveFailureIsStorageError(t *testing.T) {
	t.Parallel()
	url := "https://pps.example/p.png"
	fetcher := &fakeFetcher{
		photoURL: map[string]string{"c@c.us": url},
		photos:   map[string][]byte{url: pngBytes},
	}
	store, root := newSpyStore(t)
	svc := NewPhotoService(nil, failingSaveStore{store}, fetcher, nil, filepath.Join(root, "p.png"), 0)

	_, err := svc.Execute(context.Background(), "c@c.us")
	assert.ErrorIs(t, err, ErrStorage)
	assert.NotContains(t, err.Error(), root)
}

func TestPhotoServiceRecheckFailureIsStorageError(t *testing.T) {
	t.Parallel()
	url := "https://pps.example/p.png"
	fetcher := &fakeFetcher{
		photoURL: map[string]string{"c@c.us": url},
		photos:   map[string][]byte{url: pngBytes},
	}
	inner, root := newSpyStore(t)
	store := &recheckFailStore{Store: inner}
	svc := NewPhotoService(nil, store, fetcher, nil, filepath.Join(root, "p.png"), 0)

	_, err := svc.Execute(context.Background(), "c@c.us")
	assert.ErrorIs(t, err, ErrStorage)
	assert.EqualValues(t, 2, store.finds.Load())
	assert.Zero(t, fetcher.urlCalls.Load())
	assert.Zero(t, inner.saves.Load())
}

func TestEnsurePlaceholder(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "avatar.png")

	abs, err := EnsurePlaceholder(path)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))
	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, defaultAvatar, data)

	custom := []byte("custom")
	require.NoError(t, os.WriteFile(abs, custom, 0o644))
	_, err = EnsurePlaceholder(path)
	require.NoError(t, err)
	data, err = os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, custom, data, "existing placeholder is kept")

	_, err = EnsurePlaceholder(dir)
	assert.Error(t, err)
}
