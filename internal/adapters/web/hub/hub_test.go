package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 10*time.Millisecond)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var raw struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	return Message{Type: raw.Type, Payload: raw.Payload}
}

func TestHub_StreamsEventsAndDecisions(t *testing.T) {
	h := New(slog.Default())
	conn := connect(t, h)

	require.NoError(t, h.PublishEvent(context.Background(), domain.ThreatEvent{ID: "ev-1", DeviceID: "phone-01", Severity: domain.SeverityCritical}))
	require.NoError(t, h.PublishDecision(context.Background(), domain.PolicyDecision{ID: "dec-1", State: domain.StateDefenseActive}))

	msg := read(t, conn)
	assert.Equal(t, "event", msg.Type)
	var ev domain.ThreatEvent
	require.NoError(t, json.Unmarshal(msg.Payload.(json.RawMessage), &ev))
	assert.Equal(t, "ev-1", ev.ID)

	msg = read(t, conn)
	assert.Equal(t, "decision", msg.Type)
}

func TestHub_NotifyDispatch(t *testing.T) {
	h := New(slog.Default())
	req := domain.DispatchRequest{ID: "disp-1", DeviceID: "phone-01", Action: domain.ActionNotify}

	out := h.Dispatch(context.Background(), req)
	assert.Equal(t, domain.DispatchFailed, out.Status)
	assert.Equal(t, "no operator connected", out.Reason)

	conn := connect(t, h)
	out = h.Dispatch(context.Background(), req)
	assert.Equal(t, domain.DispatchCompleted, out.Status)
	assert.Equal(t, "notify", read(t, conn).Type)
}

func TestHub_RemovesDisconnectedClients(t *testing.T) {
	h := New(slog.Default())
	conn := connect(t, h)
	conn.Close()
	assert.Eventually(t, func() bool { return h.Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	h := New(slog.Default(), "http://dashboard.local")
	srv := httptest.NewServer(h)
	defer srv.Close()

	header := map[string][]string{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	assert.Equal(t, 403, resp.StatusCode)
	assert.Zero(t, h.Clients())
}
