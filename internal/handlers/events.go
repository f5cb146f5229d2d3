package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/memohai/wagate/internal/message/event"
)

const (
	eventsPingInterval = 30 * time.Second
	eventsWriteTimeout = 10 * time.Second
)

// EventsHandler pushes hub events to websocket clients.
type EventsHandler struct {
	hub      event.Subscriber
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewEventsHandler creates an events handler backed by the hub.
func NewEventsHandler(log *slog.Logger, hub *event.Hub) *EventsHandler {
	return newEventsHandler(log, hub)
}

func newEventsHandler(log *slog.Logger, hub event.Subscriber) *EventsHandler {
	return &EventsHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origins are enforced by the CORS middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: log.With(slog.String("handler", "events")),
	}
}

// Register mounts GET /events.
func (h *EventsHandler) Register(e *echo.Echo) {
	e.GET(APIPrefix+"/events", h.Stream)
}

// Stream upgrades the request and relays events until either side goes away.
// ?chatId= narrows the stream to a single chat.
func (h *EventsHandler) Stream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return nil
	}
	defer func() { _ = conn.Close() }()

	chatID := c.QueryParam("chatId")
	streamID, events, cancel := h.hub.Subscribe(chatID, event.DefaultBufferSize)
	defer cancel()

	log := h.logger.With(slog.String("stream_id", streamID), slog.String("chat_id", chatID))
	log.Debug("events client connected")

	// Client frames are ignored; reading only surfaces close and control frames.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn("events read failed", slog.Any("error", err))
				}
				return
			}
		}
	}()

	ping := time.NewTicker(eventsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			log.Debug("events client disconnected")
			return nil
		case <-c.Request().Context().Done():
			return nil
		case <-ping.C:
			deadline := time.Now().Add(eventsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return nil
			}
		case evt, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"),
					time.Now().Add(eventsWriteTimeout))
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				log.Warn("events write failed", slog.Any("error", err))
				return nil
			}
		}
	}
}
