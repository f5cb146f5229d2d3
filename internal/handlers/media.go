package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/wagate/internal/media"
)

// APIPrefix is the mount point of the WhatsApp API.
const APIPrefix = "/api/whatsapp"

// PhotoCacheControl lets browsers keep profile pictures, placeholder
// included, for a day.
const PhotoCacheControl = "public, max-age=86400"

// Resolver resolves an identifier to a locally cached media file.
type Resolver interface {
	Execute(ctx context.Context, id string) (media.Descriptor, error)
}

// MediaHandler streams cached message attachments and profile pictures.
type MediaHandler struct {
	files  Resolver
	photos Resolver
	logger *slog.Logger
}

// NewMediaHandler creates a media handler.
func NewMediaHandler(log *slog.Logger, files *media.FileService, photos *media.PhotoService) *MediaHandler {
	return newMediaHandler(log, files, photos)
}

func newMediaHandler(log *slog.Logger, files, photos Resolver) *MediaHandler {
	return &MediaHandler{
		files:  files,
		photos: photos,
		logger: log.With(slog.String("handler", "media")),
	}
}

// Register mounts the file and photo routes, including the legacy aliases.
func (h *MediaHandler) Register(e *echo.Echo) {
	g := e.Group(APIPrefix)
	g.GET("/media/file/:message_id", h.ServeFile)
	g.GET("/file/:message_id", h.ServeFile)
	g.GET("/media/chat/:chat_id/photo", h.ServePhoto)
	g.GET("/chat/:chat_id/photo", h.ServePhoto)
}

// ServeFile streams a message attachment as a download.
func (h *MediaHandler) ServeFile(c echo.Context) error {
	desc, err := h.files.Execute(c.Request().Context(), c.Param("message_id"))
	if err != nil {
		return httpError(h.logger, err)
	}
	c.Response().Header().Set(echo.HeaderContentType, desc.ContentType)
	return c.Attachment(desc.FilePath, desc.Filename)
}

// ServePhoto streams a chat profile picture, or the placeholder.
func (h *MediaHandler) ServePhoto(c echo.Context) error {
	desc, err := h.photos.Execute(c.Request().Context(), c.Param("chat_id"))
	if err != nil {
		return httpError(h.logger, err)
	}
	header := c.Response().Header()
	header.Set(echo.HeaderContentType, desc.ContentType)
	header.Set(echo.HeaderCacheControl, PhotoCacheControl)
	if desc.Filename != "" {
		header.Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", desc.Filename))
	}
	if err := c.File(desc.FilePath); err != nil {
		h.logger.Warn("serve photo failed", slog.String("chat_id", c.Param("chat_id")), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusNotFound, "photo not found")
	}
	return nil
}
