// Package media serves message attachments and profile pictures from the local
// cache, fetching and persisting them from the remote session on a miss.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/memohai/wagate/internal/mediatype"
	"github.com/memohai/wagate/internal/metrics"
	"github.com/memohai/wagate/internal/storage"
)

// FileService resolves message attachments. It holds no persistent state of
// its own; concurrent misses for the same message share one fetch.
type FileService struct {
	store        storage.Store
	fetcher      Fetcher
	metrics      *metrics.Collector
	logger       *slog.Logger
	fetchTimeout time.Duration
	flights      singleflight.Group
}

// NewFileService creates a message media service. fetchTimeout <= 0 leaves the
// miss path bounded only by the caller's transport.
func NewFileService(log *slog.Logger, store storage.Store, fetcher Fetcher, collector *metrics.Collector, fetchTimeout time.Duration) *FileService {
	if log == nil {
		log = slog.Default()
	}
	return &FileService{
		store:        store,
		fetcher:      fetcher,
		metrics:      collector,
		logger:       log.With(slog.String("service", "media_file")),
		fetchTimeout: fetchTimeout,
	}
}

// Execute returns the cached attachment of messageID, downloading it first
// when it is not cached yet.
func (s *FileService) Execute(ctx context.Context, messageID string) (Descriptor, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return Descriptor{}, fmt.Errorf("%w: message id is required", ErrInvalidRequest)
	}
	if err := storage.ValidateKey(messageID); err != nil {
		return Descriptor{}, fmt.Errorf("%w: message id cannot be used as a cache key", ErrInvalidRequest)
	}
	ns := storage.NamespaceMessages

	rec, ok, err := s.store.Find(ctx, ns, messageID)
	if err != nil {
		return Descriptor{}, s.storageError("find", messageID, err)
	}
	if ok {
		s.metrics.Lookup(string(ns), metrics.ResultHit)
		return descriptorFrom(rec), nil
	}
	s.metrics.Lookup(string(ns), metrics.ResultMiss)

	// The shared fetch must outlive the caller that started it.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(messageID, func() (any, error) {
		return s.fetchAndSave(flightCtx, messageID)
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

func (s *FileService) fetchAndSave(ctx context.Context, messageID string) (Descriptor, error) {
	ns := storage.NamespaceMessages
	// A flight that finished just before this one started may have saved it.
	rec, ok, err := s.store.Find(ctx, ns, messageID)
	if err != nil {
		return Descriptor{}, s.storageError("find", messageID, err)
	}
	if ok {
		return descriptorFrom(rec), nil
	}

	saveCtx := ctx
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	msg, found, err := s.fetcher.MessageByID(ctx, messageID)
	if err != nil {
		s.metrics.FetchError(string(ns))
		return Descriptor{}, fmt.Errorf("%w: lookup message: %w", ErrUpstream, err)
	}
	if !found || !msg.HasMedia {
		return Descriptor{}, fmt.Errorf("%w: message %s has no media", ErrMediaNotFound, messageID)
	}

	payload, err := s.fetcher.DownloadMedia(ctx, messageID)
	if err != nil {
		s.metrics.FetchError(string(ns))
		return Descriptor{}, fmt.Errorf("%w: download media: %w", ErrUpstream, err)
	}
	if payload == nil || len(payload.Data) == 0 {
		s.metrics.FetchError(string(ns))
		return Descriptor{}, fmt.Errorf("%w: empty media payload", ErrUpstream)
	}

	contentType := mediatype.Infer(payload.MimeType, payload.Filename, payload.Data)
	filename := strings.TrimSpace(payload.Filename)
	if filename == "" {
		filename = "media_" + messageID + mediatype.MimeTypeToExtension(contentType)
	}
	rec, err = s.store.Save(saveCtx, ns, messageID, payload.Data, contentType, filename)
	if err != nil {
		return Descriptor{}, s.storageError("save", messageID, err)
	}
	s.logger.Info("message media cached",
		slog.String("message_id", messageID),
		slog.String("content_type", contentType),
		slog.Int64("size", rec.Size),
	)
	return descriptorFrom(rec), nil
}

func (s *FileService) storageError(op, key string, err error) error {
	s.logger.Error("media store "+op+" failed", slog.String("key", key), slog.Any("error", err))
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
