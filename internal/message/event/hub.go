// Package event provides the in-memory hub that fans chat events out to
// connected clients.
package event

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	// DefaultBufferSize is the default per-subscriber channel buffer.
	DefaultBufferSize = 64

	// AllChats subscribes to events of every chat.
	AllChats = "*"
)

// Type identifies the event category.
type Type string

const (
	// TypeMessageCreated is emitted for every message seen on the session.
	TypeMessageCreated Type = "message_created"
	// TypeSessionState is emitted when the session connection state changes.
	TypeSessionState Type = "session_state"
)

// Event is the payload delivered to subscribers.
type Event struct {
	Type   Type            `json:"type"`
	ChatID string          `json:"chat_id,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Publisher publishes events to subscribers.
type Publisher interface {
	Publish(event Event)
}

// Subscriber subscribes to chat-scoped events.
type Subscriber interface {
	Subscribe(chatID string, buffer int) (string, <-chan Event, func())
}

// Hub is an in-process pub/sub dispatcher keyed by chat id.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]map[string]chan Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		streams: map[string]map[string]chan Event{},
	}
}

// Publish delivers event to the subscribers of its chat and to AllChats
// subscribers. Events without a chat id only reach AllChats subscribers.
// Slow subscribers miss events rather than block the publisher.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	chatID := strings.TrimSpace(event.ChatID)
	h.mu.RLock()
	defer h.mu.RUnlock()
	if chatID != "" && chatID != AllChats {
		deliver(h.streams[chatID], event)
	}
	deliver(h.streams[AllChats], event)
}

func deliver(streams map[string]chan Event, event Event) {
	for _, ch := range streams {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers one subscriber for chatID, or for every chat when chatID
// is empty or AllChats. It returns a stream id, the event channel and a cancel
// function that closes the channel.
func (h *Hub) Subscribe(chatID string, buffer int) (string, <-chan Event, func()) {
	if h == nil {
		ch := make(chan Event)
		close(ch)
		return "", ch, func() {}
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		chatID = AllChats
	}
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	streamID := uuid.NewString()
	ch := make(chan Event, buffer)

	h.mu.Lock()
	streams, ok := h.streams[chatID]
	if !ok {
		streams = map[string]chan Event{}
		h.streams[chatID] = streams
	}
	streams[streamID] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			streams := h.streams[chatID]
			if streams == nil {
				return
			}
			if current, ok := streams[streamID]; ok {
				delete(streams, streamID)
				close(current)
			}
			if len(streams) == 0 {
				delete(h.streams, chatID)
			}
		})
	}

	return streamID, ch, cancel
}

// Subscribers returns the number of open streams.
func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, streams := range h.streams {
		n += len(streams)
	}
	return n
}
