package message

import (
	"context"
	"errors"

	"github.com/memohai/wagate/internal/session"
)

var (
	// ErrInvalidArgument reports missing or malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound reports a message or media that does not exist.
	ErrNotFound = errors.New("message not found")
)

// Media describes the attachment of a message.
type Media struct {
	MimeType string `json:"mimetype"`
	Filename string `json:"filename"`
}

// Message is the API representation of a chat message.
type Message struct {
	ID        string `json:"id"`
	ChatID    string `json:"chatId,omitempty"`
	From      string `json:"from"`
	FromMe    bool   `json:"fromMe"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
	HasMedia  bool   `json:"hasMedia"`
	Media     *Media `json:"media"`
}

// LastMessage summarises the newest message of a chat.
type LastMessage struct {
	ID        string `json:"id"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	FromMe    bool   `json:"fromMe"`
}

// ChatPhoto points at the cached profile picture endpoint of a chat.
type ChatPhoto struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Chat is the API representation of a conversation.
type Chat struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	IsGroup     bool         `json:"isGroup"`
	UnreadCount int          `json:"unreadCount"`
	Photo       ChatPhoto    `json:"photo"`
	LastMessage *LastMessage `json:"lastMessage"`
}

// MediaContent is an inline, base64 encoded media download.
type MediaContent struct {
	MimeType string `json:"mimetype"`
	Data     string `json:"data"`
	Filename string `json:"filename"`
}

// SendMediaInput is an outbound media message.
type SendMediaInput struct {
	To       string
	Data     []byte
	Filename string
	Caption  string
	MimeType string
}

// Gateway is the part of the session client the message service uses.
type Gateway interface {
	ListChats(ctx context.Context, search string) ([]session.Chat, error)
	ListMessages(ctx context.Context, chatID string, limit int) ([]session.Message, error)
	SendText(ctx context.Context, to, body string) (session.Message, error)
	SendMedia(ctx context.Context, req session.SendMediaRequest) (session.Message, error)
	GetMedia(ctx context.Context, messageID string) (session.MediaPayload, error)
}

// Readiness reports whether the session can serve requests.
type Readiness interface {
	Ready() bool
}
