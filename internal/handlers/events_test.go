package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/wagate/internal/logger"
	"github.com/memohai/wagate/internal/message/event"
)

func dialEvents(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/whatsapp/events" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestEventsStreamFiltersByChat(t *testing.T) {
	t.Parallel()

	hub := event.NewHub()
	e := echo.New()
	newEventsHandler(logger.Discard(), hub).Register(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	all := dialEvents(t, srv, "")
	alice := dialEvents(t, srv, "?chatId=alice@c.us")
	require.Eventually(t, func() bool { return hub.Subscribers() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(event.Event{Type: event.TypeMessageCreated, ChatID: "bob@c.us", Data: []byte(`{"id":"b1"}`)})
	hub.Publish(event.Event{Type: event.TypeMessageCreated, ChatID: "alice@c.us", Data: []byte(`{"id":"a1"}`)})

	var got event.Event
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, alice.ReadJSON(&got))
	assert.Equal(t, "alice@c.us", got.ChatID)
	assert.JSONEq(t, `{"id":"a1"}`, string(got.Data))

	require.NoError(t, all.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, all.ReadJSON(&got))
	assert.Equal(t, "bob@c.us", got.ChatID)
	require.NoError(t, all.ReadJSON(&got))
	assert.Equal(t, "alice@c.us", got.ChatID)
}

func TestEventsUnsubscribeOnClose(t *testing.T) {
	t.Parallel()

	hub := event.NewHub()
	e := echo.New()
	newEventsHandler(logger.Discard(), hub).Register(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	conn := dialEvents(t, srv, "")
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventsRejectsPlainHTTP(t *testing.T) {
	t.Parallel()

	e := echo.New()
	newEventsHandler(logger.Discard(), event.NewHub()).Register(e)
	rec := get(e, "/api/whatsapp/events")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "wagate_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	e := echo.New()
	NewMetricsHandler(reg).Register(e)
	rec := get(e, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wagate_test_total 1")
}
