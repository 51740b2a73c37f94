package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/prompt-shield/internal/config"
	"github.com/raaihank/prompt-shield/internal/privacy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.WebSocketConfig {
	cfg := config.GetDefaults().WebSocket
	cfg.Username = "dash"
	cfg.Password = "board"
	return cfg
}

func startHub(t *testing.T, cfg config.WebSocketConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, user, pass string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return websocket.DefaultDialer.Dial(url, header)
}

func waitForClients(t *testing.T, hub *Hub, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.Stats().ActiveConnections == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleWebSocketRequiresAuth(t *testing.T) {
	_, srv := startHub(t, testConfig())

	_, resp, err := dial(t, srv, "dash", "wrong")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPublishDetection(t *testing.T) {
	hub, srv := startHub(t, testConfig())

	conn, _, err := dial(t, srv, "dash", "board")
	require.NoError(t, err)
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.PublishDetection(DetectionEvent{
		RequestID:     "req-42",
		Path:          "/openai/v1/chat/completions",
		Findings:      []privacy.Finding{{Category: privacy.CategoryEmail, Count: 1}},
		TotalFindings: 1,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Type      EventType      `json:"type"`
		RequestID string         `json:"request_id"`
		Data      DetectionEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, EventTypeDetection, got.Type)
	assert.Equal(t, "req-42", got.RequestID)
	assert.Equal(t, []privacy.Finding{{Category: privacy.CategoryEmail, Count: 1}}, got.Data.Findings)
	assert.NotContains(t, string(raw), "@")

	stats := hub.Stats()
	assert.Equal(t, int64(1), stats.TotalConnections)
	assert.Equal(t, int64(1), stats.TotalBroadcasts)
}

func TestDetectionsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Events.BroadcastDetections = false
	hub, srv := startHub(t, cfg)

	conn, _, err := dial(t, srv, "dash", "board")
	require.NoError(t, err)
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.PublishDetection(DetectionEvent{RequestID: "req-1"})
	assert.Zero(t, hub.Stats().TotalBroadcasts)
}

func TestPingAndDisconnect(t *testing.T) {
	hub, srv := startHub(t, testConfig())

	conn, _, err := dial(t, srv, "dash", "board")
	require.NoError(t, err)
	waitForClients(t, hub, 1)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "ping"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var pong Event
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, EventTypePong, pong.Type)

	require.NoError(t, conn.Close())
	waitForClients(t, hub, 0)
}

func TestMaxConnections(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	hub, srv := startHub(t, cfg)

	first, _, err := dial(t, srv, "dash", "board")
	require.NoError(t, err)
	defer first.Close()
	waitForClients(t, hub, 1)

	second, _, err := dial(t, srv, "dash", "board")
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = second.ReadMessage()
	require.Error(t, err, "rejected client is closed")
	assert.Equal(t, int64(1), hub.Stats().ActiveConnections)
}

func TestRequireAuth(t *testing.T) {
	hub := NewHub(testConfig(), nil)
	protected := hub.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req.SetBasicAuth("dash", "board")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
