package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	messagepkg "github.com/memohai/wagate/internal/message"
)

// MessageService is the chat and message use case surface.
type MessageService interface {
	ListChats(ctx context.Context, search string) ([]messagepkg.Chat, error)
	ListMessages(ctx context.Context, chatID string, limit int) ([]messagepkg.Message, error)
	SendText(ctx context.Context, to, body string) (messagepkg.Message, error)
	SendMedia(ctx context.Context, in messagepkg.SendMediaInput) (messagepkg.Message, error)
	GetMediaMetadata(ctx context.Context, messageID, chatID string) (messagepkg.MediaContent, error)
}

// MessageHandler serves chats, message history and sending.
type MessageHandler struct {
	service MessageService
	logger  *slog.Logger
}

// SendTextRequest is the body of POST /send-text.
type SendTextRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// SendResponse acknowledges a sent message.
type SendResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Data    messagepkg.Message `json:"data"`
}

// NewMessageHandler creates a MessageHandler.
func NewMessageHandler(log *slog.Logger, service *messagepkg.Service) *MessageHandler {
	return newMessageHandler(log, service)
}

func newMessageHandler(log *slog.Logger, service MessageService) *MessageHandler {
	return &MessageHandler{
		service: service,
		logger:  log.With(slog.String("handler", "message")),
	}
}

// Register registers the chat and message routes.
func (h *MessageHandler) Register(e *echo.Echo) {
	g := e.Group(APIPrefix)
	g.GET("/chats", h.ListChats)
	g.GET("/messages", h.ListMessages)
	g.GET("/media/:message_id", h.GetMedia)
	g.POST("/send-text", h.SendText)
	g.POST("/send-media", h.SendMedia)
}

// ListChats returns the chats, optionally filtered by ?searchTerm=.
func (h *MessageHandler) ListChats(c echo.Context) error {
	chats, err := h.service.ListChats(c.Request().Context(), c.QueryParam("searchTerm"))
	if err != nil {
		return httpError(h.logger, err)
	}
	return c.JSON(http.StatusOK, chats)
}

// ListMessages returns the recent messages of ?chatId=, at most ?limit=.
func (h *MessageHandler) ListMessages(c echo.Context) error {
	limit := 0
	if s := strings.TrimSpace(c.QueryParam("limit")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	messages, err := h.service.ListMessages(c.Request().Context(), c.QueryParam("chatId"), limit)
	if err != nil {
		return httpError(h.logger, err)
	}
	return c.JSON(http.StatusOK, messages)
}

// GetMedia returns a message attachment inline as base64.
func (h *MessageHandler) GetMedia(c echo.Context) error {
	content, err := h.service.GetMediaMetadata(c.Request().Context(), c.Param("message_id"), c.QueryParam("chatId"))
	if err != nil {
		return httpError(h.logger, err)
	}
	return c.JSON(http.StatusOK, content)
}

// SendText sends a text message.
func (h *MessageHandler) SendText(c echo.Context) error {
	var req SendTextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sent, err := h.service.SendText(c.Request().Context(), req.To, req.Message)
	if err != nil {
		return httpError(h.logger, err)
	}
	return c.JSON(http.StatusOK, SendResponse{Success: true, Message: "text message sent", Data: sent})
}

// SendMedia sends the multipart "file" to "to" with an optional "caption".
func (h *MessageHandler) SendMedia(c echo.Context) error {
	to := c.FormValue("to")
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "to and file are required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	defer func() {
		if err := f.Close(); err != nil {
			h.logger.Warn("close upload failed", slog.Any("error", err))
		}
	}()
	data, err := io.ReadAll(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	sent, err := h.service.SendMedia(c.Request().Context(), messagepkg.SendMediaInput{
		To:       to,
		Data:     data,
		Filename: fh.Filename,
		Caption:  c.FormValue("caption"),
		MimeType: fh.Header.Get(echo.HeaderContentType),
	})
	if err != nil {
		return httpError(h.logger, err)
	}
	return c.JSON(http.StatusOK, SendResponse{Success: true, Message: "media message sent", Data: sent})
}
