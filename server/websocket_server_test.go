package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/leadchat/agent"
	"github.com/room4-2/leadchat/config"
	"github.com/room4-2/leadchat/messages"
	"github.com/room4-2/leadchat/metrics"
	"github.com/room4-2/leadchat/session"
	"github.com/room4-2/leadchat/storage"
	"github.com/room4-2/leadchat/widget"
)

type echoAgent struct{}

func (echoAgent) Send(_ context.Context, turn agent.Turn) (*messages.AgentResponse, error) {
	return &messages.AgentResponse{
		Reply:     "You said: " + turn.Text,
		LeadStage: messages.LeadHot,
		Emotion:   "excited",
		Memory:    json.RawMessage(`{"lead_stage":"hot"}`),
		Audio:     "SUQz",
	}, nil
}

type wireMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T, maxSessions int) (*httptest.Server, *session.Manager, *metrics.Metrics) {
	t.Helper()
	cfg := config.Default()
	cfg.MaxSessions = maxSessions
	m := metrics.New("leadchat")

	sessions := storage.NewSessionStore(storage.NewMemoryStorage())
	manager := session.NewManager(cfg, nil, m, func() widget.Options {
		return widget.Options{Sessions: sessions, Client: echoAgent{}}
	})
	srv := httptest.NewServer(NewServerWebsocket(cfg, manager, m).Router())
	t.Cleanup(func() {
		manager.Shutdown()
		srv.Close()
	})
	return srv, manager, m
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wireMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func payload[T any](t *testing.T, msg wireMessage) T {
	t.Helper()
	var p T
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	return p
}

func TestWebSocket_ConversationFlow(t *testing.T) {
	srv, _, _ := newTestServer(t, 5)
	conn := dial(t, srv)

	connected := read(t, conn)
	assert.Equal(t, messages.TypeStatus, connected.Type)
	assert.Equal(t, "connected", payload[messages.StatusPayload](t, connected).Status)

	welcome := read(t, conn)
	require.Equal(t, messages.TypeMessage, welcome.Type)
	assert.Equal(t, widget.WelcomeText, payload[messages.ChatMessagePayload](t, welcome).Content)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":    "text",
		"payload": map[string]string{"text": "hi"},
	}))

	user := payload[messages.ChatMessagePayload](t, read(t, conn))
	assert.Equal(t, "user", user.Author)
	assert.Equal(t, "hi", user.Content)

	placeholder := payload[messages.ChatMessagePayload](t, read(t, conn))
	assert.True(t, placeholder.Placeholder)
	assert.Equal(t, widget.PlaceholderText, placeholder.Content)

	removed := read(t, conn)
	require.Equal(t, messages.TypeRemove, removed.Type)
	assert.Equal(t, placeholder.ID, payload[messages.RemovePayload](t, removed).ID)

	answer := payload[messages.ChatMessagePayload](t, read(t, conn))
	assert.Equal(t, "agent", answer.Author)
	assert.Equal(t, "You said: hi", answer.Content)

	stage := read(t, conn)
	require.Equal(t, messages.TypeStage, stage.Type)
	assert.Equal(t, messages.StagePayload{Stage: "hot", Label: "Lead: hot", Class: "stage-hot"}, payload[messages.StagePayload](t, stage))

	emotion := read(t, conn)
	require.Equal(t, messages.TypeEmotion, emotion.Type)
	assert.Equal(t, "Emotion: excited", payload[messages.EmotionPayload](t, emotion).Label)

	debug := read(t, conn)
	require.Equal(t, messages.TypeDebug, debug.Type)
	assert.Equal(t, "{\n  \"lead_stage\": \"hot\"\n}", payload[messages.DebugPayload](t, debug).Text)

	clip := read(t, conn)
	require.Equal(t, messages.TypeAudio, clip.Type)
	assert.Equal(t, messages.AudioResponsePayload{Data: "SUQz", MimeType: "audio/mp3"}, payload[messages.AudioResponsePayload](t, clip))
}

func TestWebSocket_ControlMessages(t *testing.T) {
	srv, _, _ := newTestServer(t, 5)
	conn := dial(t, srv)
	read(t, conn) // connected
	read(t, conn) // welcome

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"control","payload":{"action":"ping"}}`)))
	pong := read(t, conn)
	assert.Equal(t, "pong", payload[messages.StatusPayload](t, pong).Status)

	// No capture device configured: the page gets an alert, not a log entry.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"control","payload":{"action":"toggle_recording"}}`)))
	alert := read(t, conn)
	require.Equal(t, messages.TypeAlert, alert.Type)
	assert.Equal(t, widget.MicUnavailableMsg, payload[messages.AlertPayload](t, alert).Message)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	bad := read(t, conn)
	require.Equal(t, messages.TypeError, bad.Type)
	assert.Equal(t, messages.ErrCodeInvalidMessage, payload[messages.ErrorPayload](t, bad).Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"audio","payload":{}}`)))
	unknown := read(t, conn)
	assert.Contains(t, payload[messages.ErrorPayload](t, unknown).Message, "Unknown message type")
}

func TestWebSocket_MaxSessions(t *testing.T) {
	srv, manager, _ := newTestServer(t, 1)

	first := dial(t, srv)
	read(t, first)
	assert.Equal(t, 1, manager.GetActiveSessionCount())

	second := dial(t, srv)
	msg := read(t, second)
	require.Equal(t, messages.TypeError, msg.Type)
	assert.Equal(t, messages.ErrCodeSessionFailed, payload[messages.ErrorPayload](t, msg).Code)
}

func TestWebSocket_PageRemovedOnDisconnect(t *testing.T) {
	srv, manager, _ := newTestServer(t, 5)
	conn := dial(t, srv)
	read(t, conn)
	require.Equal(t, 1, manager.GetActiveSessionCount())

	conn.Close()
	assert.Eventually(t, func() bool { return manager.GetActiveSessionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t, 5)
	conn := dial(t, srv)
	read(t, conn)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","pages":1}`, string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "leadchat_active_pages 1")
}

func TestIndexPage(t *testing.T) {
	srv, _, _ := newTestServer(t, 5)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "new WebSocket")
}
