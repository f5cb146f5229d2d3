package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/wagate/internal/session"
)

// StatusSource reports the last known session state.
type StatusSource interface {
	Status() session.Status
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status  string `json:"status"`
	State   string `json:"state,omitempty"`
	Message string `json:"message"`
}

// StatusHandler reports whether the WhatsApp session is usable.
type StatusHandler struct {
	source StatusSource
	logger *slog.Logger
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(log *slog.Logger, conn *session.Connection) *StatusHandler {
	return newStatusHandler(log, conn)
}

func newStatusHandler(log *slog.Logger, source StatusSource) *StatusHandler {
	return &StatusHandler{source: source, logger: log.With(slog.String("handler", "status"))}
}

// Register mounts GET /status.
func (h *StatusHandler) Register(e *echo.Echo) {
	e.GET(APIPrefix+"/status", h.Status)
}

// Status always answers 200; readiness is reported in the body.
func (h *StatusHandler) Status(c echo.Context) error {
	st := h.source.Status()
	if st.Ready {
		return c.JSON(http.StatusOK, StatusResponse{
			Status:  "ready",
			State:   st.State,
			Message: "WhatsApp client is ready and connected.",
		})
	}
	return c.JSON(http.StatusOK, StatusResponse{
		Status:  "not_ready",
		State:   st.State,
		Message: "WhatsApp client is not ready or disconnected.",
	})
}
