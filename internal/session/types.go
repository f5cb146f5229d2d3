// Package session talks to the messaging session gateway: the process that
// owns the logged-in account and exposes it over HTTP and WebSocket.
package session

import (
	"errors"
	"time"
)

var (
	// ErrNotReady is returned while the session is not connected.
	ErrNotReady = errors.New("session not ready")
	// ErrNotFound is returned when the gateway has no such resource.
	ErrNotFound = errors.New("not found")
)

// StatusBroadcast is the pseudo chat that carries status updates.
const StatusBroadcast = "status@broadcast"

// Status is the gateway connection state.
type Status struct {
	Ready bool   `json:"ready"`
	State string `json:"state"`
}

// Message is a message as reported by the gateway.
type Message struct {
	ID        string `json:"id"`
	ChatID    string `json:"chat_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Body      string `json:"body"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	FromMe    bool   `json:"from_me"`
	HasMedia  bool   `json:"has_media"`
	Filename  string `json:"filename,omitempty"`
}

// Time returns the message timestamp.
func (m Message) Time() time.Time {
	if m.Timestamp <= 0 {
		return time.Time{}
	}
	return time.Unix(m.Timestamp, 0).UTC()
}

// Chat is a conversation as reported by the gateway.
type Chat struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	IsGroup     bool     `json:"is_group"`
	UnreadCount int      `json:"unread_count"`
	Timestamp   int64    `json:"timestamp"`
	LastMessage *Message `json:"last_message,omitempty"`
}

// MediaPayload is a decoded media download.
type MediaPayload struct {
	Data     []byte
	MimeType string
	Filename string
}

// SendMediaRequest is an outbound media message.
type SendMediaRequest struct {
	To       string
	Data     []byte
	MimeType string
	Filename string
	Caption  string
	// Voice sends audio as a voice note instead of a file.
	Voice bool
}

// Event is one item of the gateway event stream.
type Event struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
	State   string   `json:"state,omitempty"`
}

// Event types.
const (
	EventMessage = "message"
	EventState   = "state"
)

type mediaEnvelope struct {
	Data     string `json:"data"`
	MimeType string `json:"mimetype"`
	Filename string `json:"filename,omitempty"`
}

type photoEnvelope struct {
	URL string `json:"url"`
}

type sendTextBody struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendMediaBody struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	MimeType string `json:"mimetype"`
	Filename string `json:"filename"`
	Caption  string `json:"caption,omitempty"`
	Voice    bool   `json:"voice,omitempty"`
}
