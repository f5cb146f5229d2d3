package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/wagate/internal/storage"
)

type fakeFetcher struct {
	messages map[string]RemoteMessage
	payloads map[string]*Payload
	photoURL map[string]string
	photos   map[string][]byte

	lookupErr   error
	downloadErr error
	block       chan struct{}

	lookups   atomic.Int32
	downloads atomic.Int32
	urlCalls  atomic.Int32
}

func (f *fakeFetcher) wait(ctx context.Context) error {
	if f.block == nil {
		return nil
	}
	select {
	case <-f.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeFetcher) MessageByID(ctx context.Context, id string) (RemoteMessage, bool, error) {
	f.lookups.Add(1)
	if err := f.wait(ctx); err != nil {
		return RemoteMessage{}, false, err
	}
	if f.lookupErr != nil {
		return RemoteMessage{}, false, f.lookupErr
	}
	msg, ok := f.messages[id]
	return msg, ok, nil
}

func (f *fakeFetcher) DownloadMedia(_ context.Context, id string) (*Payload, error) {
	f.downloads.Add(1)
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.payloads[id], nil
}

func (f *fakeFetcher) ProfilePictureURL(ctx context.Context, chatID string) (string, error) {
	f.urlCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	return f.photoURL[chatID], nil
}

func (f *fakeFetcher) Download(_ context.Context, url string) ([]byte, string, error) {
	f.downloads.Add(1)
	if f.downloadErr != nil {
		return nil, "", f.downloadErr
	}
	data, ok := f.photos[url]
	if !ok {
		return nil, "", errors.New("status 404")
	}
	return data, "image/jpeg", nil
}

type spyStore struct {
	storage.Store
	finds atomic.Int32
	saves atomic.Int32
}

func (s *spyStore) Find(ctx context.Context, ns storage.Namespace, key string) (storage.Record, bool, error) {
	s.finds.Add(1)
	return s.Store.Find(ctx, ns, key)
}

func (s *spyStore) Save(ctx context.Context, ns storage.Namespace, key string, data []byte, contentType, filename string) (storage.Record, error) {
	s.saves.Add(1)
	return s.Store.Save(ctx, ns, key, data, contentType, filename)
}

func newSpyStore(t *testing.T) (*spyStore, string) {
	t.Helper()
	root := t.TempDir()
	fs := storage.NewFSStore(nil, map[storage.Namespace]string{
		storage.NamespaceMessages: filepath.Join(root, "messages"),
		storage.NamespacePhotos:   filepath.Join(root, "photos"),
	})
	require.NoError(t, fs.Init())
	return &spyStore{Store: fs}, root
}

func TestFileServiceEmptyIDIsValidationError(t *testing.T) {
	t.Parallel()
	store, _ := newSpyStore(t)
	fetcher := &fakeFetcher{}
	svc := NewFileService(nil, store, fetcher, nil, 0)

	for _, id := range []string{"", "   "} {
		_, err := svc.Execute(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	_, err := svc.Execute(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Zero(t, store.finds.Load())
	assert.Zero(t, fetcher.lookups.Load())
}

func TestFileServiceMissThenHit(t *testing.T) {
	t.Parallel()
	store, _ := newSpyStore(t)
	fetcher := &fakeFetcher{
		messages: map[string]RemoteMessage{"msg2": {ID: "msg2", HasMedia: true}},
		payloads: map[string]*Payload{"msg2": {Data: []byte("%PDF-1.4"), MimeType: "application/pdf", Filename: "doc.pdf"}},
	}
	svc := NewFileService(nil, store, fetcher, nil, 0)

	first, err := svc.Execute(context.Background(), "msg2")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", first.ContentType)
	assert.Equal(t, "doc.pdf", first.Filename)
	assert.Equal(t, int32(1), fetcher.lookups.Load())
	assert.Equal(t, int32(1), fetcher.downloads.Load())

	data, err := os.ReadFile(first.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	second, err := svc.Execute(context.Background(), "msg2")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), fetcher.lookups.Load(), "cache hit makes no remote call")
	assert.Equal(t, int32(1), fetcher.downloads.Load())
}

func TestFileServiceCachedRecordReturnedVerbatim(t *testing.T) {
	t.Parallel()
	store, _ := newSpyStore(t)
	rec, err := store.Save(context.Background(), storage.NamespaceMessages, "msg1", []byte("jpeg"), "image/jpeg", "photo.jpg")
	require.NoError(t, err)
	fetcher := &fakeFetcher{}
	svc := NewFileService(nil, store, fetcher, nil, 0)

	got, err := svc.Execute(context.Background(), "msg1")
	require.NoError(t, err)
	assert.Equal(t, Descriptor{FilePath: rec.DataPath, ContentType: "image/jpeg", Filename: "photo.jpg"}, got)
	assert.Zero(t, fetcher.lookups.Load())
}

func TestFileServiceMessageWithoutMediaIsNotFound(t *testing.T) {
	t.Parallel()
	store, _ := newSpyStore(t)
	fetcher := &fakeFetcher{
		messages: map[string]RemoteMessage{"msg2": {ID: "msg2", HasMedia: false}},
	}
	svc := NewFileService(nil, store, fetcher, nil, 0)

	_, err := svc.Execute(context.Background(), "msg2")
	assert.ErrorIs(t, err, ErrMediaNotFound)
	assert.Zero(t, store.saves.Load())

	_, err = svc.Execute(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrMediaNotFound)
	assert.Zero(t, store.saves.Load())
}

func TestFileServiceUpstreamFailures(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")

	tests := []struct {
		name    string
		fetcher *fakeFetcher
	}{
		{"lookup error", &fakeFetcher{lookupErr: boom}},
		{"download error", &fakeFetcher{
			messages:    map[string]RemoteMessage{"m": {HasMedia: true}},
			downloadErr: boom,
		}},
		{"nil payload", &fakeFetcher{
			messages: map[string]RemoteMessage{"m": {HasMedia: true}},
		}},
		{"empty bytes", &fakeFetcher{
			messages: map[string]RemoteMessage{"m": {HasMedia: true}},
			payloads: map[string]*Payload{"m": {MimeType: "image/png"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newSpyStore(t)
			svc := NewFileService(nil, store, tt.fetcher, nil, 0)
			_, err := svc.Execute(context.Background(), "m")
			assert.ErrorIs(t, err, ErrUpstream)
			assert.Zero(t, store.saves.Load())
		})
	}
}

func TestFileServiceInfersTypeAndFilename(t *testing.T) {
	t.Parallel()
	store, _ := newSpyStore(t)
	fetcher := &fakeFetcher{
		messages: map[string]RemoteMessage{"voice": {HasMedia: true}, "scan": {HasMedia: true}},
		payloads: map[string]*Payload{
			"voice": {Data: []byte("OggS-data"), MimeType: "audio/ogg; codecs=opus"},
			"scan":  {Data: []byte("bytes"), MimeType: "application/octet-stream", Filename: "scan.pdf"},
		},
	}
	svc := NewFileService(nil, store, fetcher, nil, 0)

	voice, err := svc.Execute(context.Background(), "voice")
	require.NoError(t, err)
	assert.Equal(t, "audio/ogg; codecs=opus", voice.ContentType)
	assert.Equal(t, "media_voice.ogg", voice.Filename)

	scan, err := svc.Execute(context.Background(), "scan")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", scan.ContentType)
	assert.Equal(t, "scan.pdf", scan.Filename)
}

func TestFileServiceParameterizedMimeGetsExtension(t *testing.T) {
	t.Parallel()
	store, _ := newSpyStore(t)
	fetcher := &fakeFetcher{
		messages: map[string]RemoteMessage{"pic": {HasMedia: true}},
		payloads: map[string]*Payload{"pic": {Data: []byte("png-bytes"), MimeType: "image/png; charset=binary"}},
	}
	svc := NewFileService(nil, store, fetcher, nil, 0)

	pic, err := svc.Execute(context.Background(), "pic")
	require.NoError(t, err)
	assert.Equal(t, "media_pic.png", pic.Filename)
}

// recheckFailStore reports a miss on the first Find and fails every later one.
type recheckFailStore struct {
	storage.Store
	finds atomic.Int32
}

func (s *recheckFailStore) Find(context.Context, storage.Namespace, string) (storage.Record, bool, error) {
	if s.finds.Add(1) == 1 {
		return storage.Record{}, false, nil
	}
	return storage.Record{}, false, errors.New("metadata unreadable")
}

func TestFileServiceRecheckFailureIsStorageError(t *testing.T) {
	t.Parallel()
	inner, root := newSpyStore(t)
	store := &recheckFailStore{Store: inner}
	fetcher := &fakeFetcher{
		messages: map[string]RemoteMessage{"m": {HasMedia: true}},
		payloads: map[string]*Payload{"m": {Data: []byte("data"), MimeType: "image/png"}},
	}
	svc := NewFileService(nil, store, fetcher, nil, 0)

	_, err := svc.Execute(context.Background(), "m")
	assert.ErrorIs(t, err, ErrStorage)
	assert.NotContains(t, err.Error(), root)
	assert.EqualValues(t, 2, store.finds.Load())
	assert.Zero(t, fetcher.lookups.Load())
	assert.Zero(t, fetcher.downloads.Load())
	assert.Zero(t, inner.saves.Load())
}

func TestFileServiceCollapsesConcurrentMisses(t *testing.T) {
	t.Parallel()
	store, _ := newSpyStore(t)
	fetcher := &fakeFetcher{
		messages: map[string]RemoteMessage{"m": {HasMedia: true}},
		payloads: map[string]*Payload{"m": {Data: []byte("data"), MimeType: "image/png"}},
		block:    make(chan struct{}),
	}
	svc := NewFileService(nil, store, fetcher, nil, 0)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Descriptor, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Execute(context.Background(), "m")
		}(i)
	}
	require.Eventually(t, func() bool { return fetcher.lookups.Load() >= 1 }, time.Second, 5*time.Millisecond)
	// Give the other callers time to attach to the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(fetcher.block)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, int32(1), fetcher.lookups.Load())
	assert.Equal(t, int32(1), store.saves.Load())
}

func TestFileServiceCallerCancellationDoesNotAbortSharedFetch(t *testing.T) {
	t.Parallel()
	store, _ := newSpyStore(t)
	fetcher := &fakeFetcher{
		messages: map[string]RemoteMessage{"m": {HasMedia: true}},
		payloads: map[string]*Payload{"m": {Data: []byte("data"), MimeType: "image/png"}},
		block:    make(chan struct{}),
	}
	svc := NewFileService(nil, store, fetcher, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Execute(ctx, "m")
		done <- err
	}()
	require.Eventually(t, func() bool { return fetcher.lookups.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(fetcher.block)
	require.Eventually(t, func() bool { return store.saves.Load() == 1 }, time.Second, 5*time.Millisecond)
	_, err := svc.Execute(context.Background(), "m")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetcher.lookups.Load())
}

func TestFileServiceFetchTimeout(t *testing.T) {
	t.Parallel()
	store, _ := newSpyStore(t)
	fetcher := &fakeFetcher{block: make(chan struct{})}
	svc := NewFileService(nil, store, fetcher, nil, 30*time.Millisecond)

	_, err := svc.Execute(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "5511999999999_c_us", Sanitize("5511999999999@c.us"))
	assert.Equal(t, "1203630_1_g_us", Sanitize("1203630-1@g.us"))
	assert.Equal(t, "plain", Sanitize("plain"))
	assert.Equal(t, "", Sanitize(""))
	assert.Equal(t, Sanitize("a.b"), Sanitize("a-b"), "collisions are a known limitation")
}
