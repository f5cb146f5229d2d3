package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/wagate/internal/logger"
)

type routeHandler struct{}

func (routeHandler) Register(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
	e.GET("/hello", func(c echo.Context) error { return c.String(http.StatusOK, "hi") })
	e.POST("/upload", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.GET("/panic", func(echo.Context) error { panic("boom") })
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestServerRegistersHandlersAndRecovers(t *testing.T) {
	t.Parallel()

	s := NewServer(logger.Discard(), Options{}, routeHandler{}, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/hello", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hi", rec.Body.String())

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServerCORS(t *testing.T) {
	t.Parallel()

	s := NewServer(logger.Discard(), Options{CORSOrigin: "https://a.example, https://b.example"}, routeHandler{})

	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	req.Header.Set(echo.HeaderOrigin, "https://b.example")
	rec := serve(s, req)
	assert.Equal(t, "https://b.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	req = httptest.NewRequest(http.MethodGet, "/hello", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example")
	rec = serve(s, req)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestServerBodyLimit(t *testing.T) {
	t.Parallel()

	s := NewServer(logger.Discard(), Options{BodyLimit: "1K"}, routeHandler{})

	rec := serve(s, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(strings.Repeat("x", 512))))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(strings.Repeat("x", 4096))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServerRateLimit(t *testing.T) {
	t.Parallel()

	s := NewServer(logger.Discard(), Options{RateLimit: 1}, routeHandler{})

	first := serve(s, httptest.NewRequest(http.MethodGet, "/hello", nil))
	require.Equal(t, http.StatusOK, first.Code)
	second := serve(s, httptest.NewRequest(http.MethodGet, "/hello", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	for range 3 {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusOK, rec.Code, "liveness is never limited")
	}
}

func TestSplitOrigins(t *testing.T) {
	t.Parallel()

	assert.Nil(t, splitOrigins(""))
	assert.Equal(t, []string{"*"}, splitOrigins("*"))
	assert.Equal(t, []string{"a", "b"}, splitOrigins(" a ,, b "))
}
