package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/wagate/internal/media"
	messagepkg "github.com/memohai/wagate/internal/message"
	"github.com/memohai/wagate/internal/session"
	"github.com/memohai/wagate/internal/transcode"
)

// ErrorResponse is the standard API error body (message only).
type ErrorResponse struct {
	Message string `json:"message"`
}

// httpError maps service error kinds to HTTP errors. Storage and unexpected
// failures get a generic message so local paths never reach the client.
func httpError(log *slog.Logger, err error) error {
	switch {
	case errors.Is(err, media.ErrInvalidRequest), errors.Is(err, messagepkg.ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, media.ErrMediaNotFound), errors.Is(err, messagepkg.ErrNotFound), errors.Is(err, session.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrNotReady):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "whatsapp session is not ready")
	case errors.Is(err, transcode.ErrTranscode):
		log.Warn("voice note conversion failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "voice note conversion failed")
	case errors.Is(err, media.ErrUpstream):
		log.Warn("upstream fetch failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, "failed to fetch media from whatsapp")
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		return echo.NewHTTPError(499, "request canceled")
	default:
		log.Error("request failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
