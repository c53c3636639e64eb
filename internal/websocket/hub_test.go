package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"eyeparse/internal/pipeline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubStreamsProgressEvents(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	srv := httptest.NewServer(NewHandler(hub, nil))
	defer srv.Close()
	defer hub.Stop()

	conn := dial(t, srv)
	defer conn.Close()

	hello := readMessage(t, conn)
	assert.Equal(t, TypeConnection, hello.Type)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.PublishEvent(pipeline.Event{Type: pipeline.EventFileDone, Folder: "/data", Path: "/data/s1.asc", Trials: 4})

	msg := readMessage(t, conn)
	assert.Equal(t, TypeProgress, msg.Type)
	data, ok := msg.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "file_done", data["type"])
	assert.Equal(t, "/data/s1.asc", data["path"])
	assert.Equal(t, 4.0, data["trials"])

	assert.Eventually(t, func() bool { return hub.Stats().MessagesSent == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), hub.Stats().TotalConnections)
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	srv := httptest.NewServer(NewHandler(hub, nil))
	defer srv.Close()
	defer hub.Stop()

	conn := dial(t, srv)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubStopClosesConnections(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	srv := httptest.NewServer(NewHandler(hub, nil))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Stop()
	hub.Stop()
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// broadcasting after stop returns instead of blocking
	hub.Broadcast(TypeProgress, "late")
}

func TestRejectsPlainHTTP(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	rec := httptest.NewRecorder()
	NewHandler(hub, nil).ServeHTTP(rec, httptest.NewRequest("GET", "/ws", nil))
	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, 0, hub.ClientCount())
}
