// Package message provides the chat and message use cases of the API.
package message

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/memohai/wagate/internal/mediatype"
	"github.com/memohai/wagate/internal/session"
	"github.com/memohai/wagate/internal/transcode"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100

	// mediaSearchWindow is how many recent chat messages are searched for a
	// message whose media is requested inline.
	mediaSearchWindow = 100
)

// Service implements the chat and message use cases on top of the session
// gateway.
type Service struct {
	gateway     Gateway
	readiness   Readiness
	transcoder  transcode.Transcoder
	photoPrefix string
	logger      *slog.Logger
}

// NewService creates a message service. photoPrefix is the public path under
// which chat photos are served, e.g. /api/whatsapp/media/chat.
func NewService(log *slog.Logger, gateway Gateway, readiness Readiness, transcoder transcode.Transcoder, photoPrefix string) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		gateway:     gateway,
		readiness:   readiness,
		transcoder:  transcoder,
		photoPrefix: strings.TrimRight(photoPrefix, "/"),
		logger:      log.With(slog.String("service", "message")),
	}
}

func (s *Service) ensureReady() error {
	if s.readiness != nil && !s.readiness.Ready() {
		return session.ErrNotReady
	}
	return nil
}

// ListChats returns the chats whose name contains search, ignoring case.
// The status broadcast pseudo chat is never listed.
func (s *Service) ListChats(ctx context.Context, search string) ([]Chat, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	chats, err := s.gateway.ListChats(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]Chat, 0, len(chats))
	for _, c := range chats {
		if c.ID == session.StatusBroadcast {
			continue
		}
		name := c.Name
		if name == "" {
			name, _, _ = strings.Cut(c.ID, "@")
		}
		if needle != "" && !strings.Contains(strings.ToLower(name), needle) {
			continue
		}
		out = append(out, Chat{
			ID:          c.ID,
			Name:        name,
			IsGroup:     c.IsGroup,
			UnreadCount: c.UnreadCount,
			Photo:       ChatPhoto{ID: c.ID, URL: s.photoURL(c.ID)},
			LastMessage: lastMessageFrom(c.LastMessage),
		})
	}
	return out, nil
}

func (s *Service) photoURL(chatID string) string {
	if s.photoPrefix == "" {
		return ""
	}
	return s.photoPrefix + "/" + url.PathEscape(chatID) + "/photo"
}

// ListMessages returns the most recent messages of a chat. limit defaults to
// DefaultListLimit and is capped at MaxListLimit.
func (s *Service) ListMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, fmt.Errorf("%w: chatId is required", ErrInvalidArgument)
	}
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	msgs, err := s.gateway.ListMessages(ctx, chatID, limit)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, fmt.Errorf("%w: chat %s", ErrNotFound, chatID)
		}
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return FromSessionMessages(msgs), nil
}

// SendText sends a text message.
func (s *Service) SendText(ctx context.Context, to, body string) (Message, error) {
	to = strings.TrimSpace(to)
	if to == "" || strings.TrimSpace(body) == "" {
		return Message{}, fmt.Errorf("%w: to and message are required", ErrInvalidArgument)
	}
	if err := s.ensureReady(); err != nil {
		return Message{}, err
	}
	sent, err := s.gateway.SendText(ctx, to, body)
	if err != nil {
		return Message{}, fmt.Errorf("send text: %w", err)
	}
	return FromSession(sent), nil
}

// SendMedia sends a media message. Browser voice recordings are converted to
// Ogg/Opus first and sent as voice notes; if conversion fails nothing is sent.
func (s *Service) SendMedia(ctx context.Context, in SendMediaInput) (Message, error) {
	in.To = strings.TrimSpace(in.To)
	in.Filename = strings.TrimSpace(in.Filename)
	if in.To == "" || len(in.Data) == 0 || in.Filename == "" {
		return Message{}, fmt.Errorf("%w: to, file and filename are required", ErrInvalidArgument)
	}
	if err := s.ensureReady(); err != nil {
		return Message{}, err
	}

	req := session.SendMediaRequest{
		To:       in.To,
		Data:     in.Data,
		MimeType: mediatype.Infer(in.MimeType, in.Filename, in.Data),
		Filename: in.Filename,
		Caption:  in.Caption,
	}
	if transcode.NeedsVoiceConversion(req.MimeType, req.Filename) {
		if s.transcoder == nil {
			return Message{}, fmt.Errorf("%w: no transcoder configured", transcode.ErrTranscode)
		}
		converted, err := s.transcoder.ConvertVoiceNote(ctx, in.Data)
		if err != nil {
			return Message{}, err
		}
		req.Data = converted
		req.MimeType = transcode.OggMimeType
		req.Filename = transcode.OggFilename(in.Filename)
		req.Voice = true
	}

	sent, err := s.gateway.SendMedia(ctx, req)
	if err != nil {
		return Message{}, fmt.Errorf("send media: %w", err)
	}
	s.logger.Info("media message sent",
		slog.String("to", req.To),
		slog.String("mimetype", req.MimeType),
		slog.Int("size", len(req.Data)),
		slog.Bool("voice", req.Voice),
	)
	return FromSession(sent), nil
}

// GetMediaMetadata downloads the media of a recent chat message and returns
// it inline. Missing or generic MIME types are repaired from the filename.
func (s *Service) GetMediaMetadata(ctx context.Context, messageID, chatID string) (MediaContent, error) {
	messageID = strings.TrimSpace(messageID)
	chatID = strings.TrimSpace(chatID)
	if messageID == "" || chatID == "" {
		return MediaContent{}, fmt.Errorf("%w: messageId and chatId are required", ErrInvalidArgument)
	}
	if err := s.ensureReady(); err != nil {
		return MediaContent{}, err
	}
	msgs, err := s.gateway.ListMessages(ctx, chatID, mediaSearchWindow)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return MediaContent{}, fmt.Errorf("%w: chat %s", ErrNotFound, chatID)
		}
		return MediaContent{}, fmt.Errorf("list messages: %w", err)
	}
	var found *session.Message
	for i := range msgs {
		if msgs[i].ID == messageID {
			found = &msgs[i]
			break
		}
	}
	if found == nil || !found.HasMedia {
		return MediaContent{}, fmt.Errorf("%w: message or media %s", ErrNotFound, messageID)
	}

	payload, err := s.gateway.GetMedia(ctx, messageID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return MediaContent{}, fmt.Errorf("%w: media %s", ErrNotFound, messageID)
		}
		return MediaContent{}, fmt.Errorf("download media: %w", err)
	}
	if len(payload.Data) == 0 {
		return MediaContent{}, fmt.Errorf("download media: empty payload for %s", messageID)
	}

	filename := strings.TrimSpace(payload.Filename)
	if filename == "" {
		filename = "media_" + messageID
	}
	mimeType := payload.MimeType
	if mediatype.IsGeneric(mimeType) {
		mimeType = mediatype.ExtensionToMimeType(filepath.Ext(filename))
	}
	s.logger.Debug("media downloaded inline",
		slog.String("message_id", messageID),
		slog.String("mimetype", mimeType),
		slog.String("filename", filename),
	)
	return MediaContent{
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(payload.Data),
		Filename: filename,
	}, nil
}
