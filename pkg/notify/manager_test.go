package notify

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RegisterUnregister(t *testing.T) {
	t.Parallel()

	manager := NewManager(slog.Default())

	require.True(t, manager.Register(&Session{ID: "s1", UserID: "user-1"}))
	require.True(t, manager.Register(&Session{ID: "s2", UserID: "user-1"}))
	require.True(t, manager.Register(&Session{ID: "s3", UserID: "user-2"}))
	assert.Equal(t, 3, manager.SessionCount())

	manager.Unregister("s2")
	assert.Equal(t, 2, manager.SessionCount())

	// Unregistering an unknown session is a no-op.
	manager.Unregister("never-registered")
	assert.Equal(t, 2, manager.SessionCount())
}

func TestManager_ShutdownRefusesRegistration(t *testing.T) {
	t.Parallel()

	manager := NewManager(slog.Default())
	manager.Shutdown()

	assert.False(t, manager.Register(&Session{ID: "s1", UserID: "user-1"}))
	assert.Equal(t, 0, manager.SessionCount())
}

// dialSession connects a real websocket client through the server handler
// and returns the client side.
func dialSession(t *testing.T, server *Server, baseURL, userID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws?user_id=" + userID

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	defer resp.Body.Close()

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func waitForSessions(t *testing.T, manager *Manager, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for manager.SessionCount() != want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	require.Equal(t, want, manager.SessionCount())
}

func TestServer_BroadcastReachesOwnerSessionsOnly(t *testing.T) {
	t.Parallel()

	manager := NewManager(slog.Default())
	server := NewServer(slog.Default(), manager, 0)

	httpServer := httptest.NewServer(http.HandlerFunc(server.handleWS))
	defer httpServer.Close()

	owner := dialSession(t, server, httpServer.URL, "user-1")
	other := dialSession(t, server, httpServer.URL, "user-2")

	waitForSessions(t, manager, 2)

	manager.Broadcast("user-1", "message.received", map[string]string{"body": "hello"})

	var frame Frame

	require.NoError(t, owner.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, owner.ReadJSON(&frame))
	assert.Equal(t, "message.received", frame.Event)
	assert.Equal(t, 1, frame.Seq)

	// The other user's session sees nothing.
	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))

	var stray Frame

	err := other.ReadJSON(&stray)
	assert.Error(t, err)
}

func TestServer_RequiresUserID(t *testing.T) {
	t.Parallel()

	manager := NewManager(slog.Default())
	server := NewServer(slog.Default(), manager, 0)

	httpServer := httptest.NewServer(http.HandlerFunc(server.handleWS))
	defer httpServer.Close()

	resp, err := http.Get(httpServer.URL + "/ws")
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_DisconnectUnregisters(t *testing.T) {
	t.Parallel()

	manager := NewManager(slog.Default())
	server := NewServer(slog.Default(), manager, 0)

	httpServer := httptest.NewServer(http.HandlerFunc(server.handleWS))
	defer httpServer.Close()

	conn := dialSession(t, server, httpServer.URL, "user-1")
	waitForSessions(t, manager, 1)

	require.NoError(t, conn.Close())
	waitForSessions(t, manager, 0)
}
