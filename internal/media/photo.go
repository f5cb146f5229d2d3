package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/memohai/wagate/internal/mediatype"
	"github.com/memohai/wagate/internal/metrics"
	"github.com/memohai/wagate/internal/storage"
)

// DefaultPhotoTimeout bounds the profile picture lookup plus download.
const DefaultPhotoTimeout = 10 * time.Second

// PhotoService resolves chat profile pictures. Retrieval is best effort: when
// no picture can be fetched the placeholder is returned and nothing is cached,
// so a picture added later is picked up on the next request.
type PhotoService struct {
	store       storage.Store
	fetcher     Fetcher
	metrics     *metrics.Collector
	logger      *slog.Logger
	timeout     time.Duration
	placeholder Descriptor
	flights     singleflight.Group
}

// NewPhotoService creates a profile picture service serving placeholderPath as
// the default image.
func NewPhotoService(log *slog.Logger, store storage.Store, fetcher Fetcher, collector *metrics.Collector, placeholderPath string, timeout time.Duration) *PhotoService {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultPhotoTimeout
	}
	return &PhotoService{
		store:   store,
		fetcher: fetcher,
		metrics: collector,
		logger:  log.With(slog.String("service", "media_photo")),
		timeout: timeout,
		placeholder: Descriptor{
			FilePath:    placeholderPath,
			ContentType: PlaceholderContentType,
			Filename:    PlaceholderFilename,
		},
	}
}

// Placeholder returns the default descriptor.
func (s *PhotoService) Placeholder() Descriptor {
	return s.placeholder
}

// Execute returns the cached profile picture of chatID, the freshly fetched one,
// or the placeholder.
func (s *PhotoService) Execute(ctx context.Context, chatID string) (Descriptor, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return Descriptor{}, fmt.Errorf("%w: chat id is required", ErrInvalidRequest)
	}
	key := Sanitize(chatID)
	if err := storage.ValidateKey(key); err != nil {
		return Descriptor{}, fmt.Errorf("%w: chat id cannot be used as a cache key", ErrInvalidRequest)
	}
	ns := storage.NamespacePhotos

	rec, ok, err := s.store.Find(ctx, ns, key)
	if err != nil {
		s.logger.Error("photo lookup failed", slog.String("key", key), slog.Any("error", err))
		return Descriptor{}, fmt.Errorf("%w: find: %w", ErrStorage, err)
	}
	if ok {
		s.metrics.Lookup(string(ns), metrics.ResultHit)
		return descriptorFrom(rec), nil
	}
	s.metrics.Lookup(string(ns), metrics.ResultMiss)

	flightCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(key, func() (any, error) {
		return s.fetchAndSave(flightCtx, chatID, key)
	})
	select {
	case <-ctx.Done():
		return Descriptor{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Descriptor{}, res.Err
		}
		return res.Val.(Descriptor), nil
	}
}

func (s *PhotoService) fetchAndSave(ctx context.Context, chatID, key string) (Descriptor, error) {
	ns := storage.NamespacePhotos
	rec, ok, err := s.store.Find(ctx, ns, key)
	if err != nil {
		s.logger.Error("photo lookup failed", slog.String("key", key), slog.Any("error", err))
		return Descriptor{}, fmt.Errorf("%w: find: %w", ErrStorage, err)
	}
	if ok {
		return descriptorFrom(rec), nil
	}

	data, contentType, err := s.download(ctx, chatID)
	if err != nil {
		s.logger.Debug("serving placeholder photo", slog.String("chat_id", chatID), slog.Any("reason", err))
		if !errors.Is(err, errNoPhoto) {
			s.metrics.FetchError(string(ns))
		}
		s.metrics.Placeholder()
		return s.placeholder, nil
	}

	rec, err = s.store.Save(ctx, ns, key, data, contentType, key+mediatype.MimeTypeToExtension(contentType))
	if err != nil {
		s.logger.Error("photo save failed", slog.String("key", key), slog.Any("error", err))
		return Descriptor{}, fmt.Errorf("%w: save: %w", ErrStorage, err)
	}
	s.logger.Info("profile photo cached", slog.String("chat_id", chatID), slog.Int64("size", rec.Size))
	return descriptorFrom(rec), nil
}

var errNoPhoto = errors.New("chat has no profile picture")

// download runs the URL lookup and the byte download under one deadline.
func (s *PhotoService) download(ctx context.Context, chatID string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	url, err := s.fetcher.ProfilePictureURL(ctx, chatID)
	if err != nil {
		return nil, "", fmt.Errorf("lookup url: %w", err)
	}
	if strings.TrimSpace(url) == "" {
		return nil, "", errNoPhoto
	}
	data, declared, err := s.fetcher.Download(ctx, url)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty photo body")
	}
	contentType := mediatype.Infer(declared, "", data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("unexpected photo content type %q", contentType)
	}
	return data, contentType, nil
}
