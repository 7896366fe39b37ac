package signal_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	router "peercall/internal/adapters/http"
	"peercall/internal/app"
	"peercall/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Mode:         "test",
		StaticPath:   t.TempDir(),
		ReadLimit:    32768,
		SendBuffer:   32,
		WriteTimeout: 5 * time.Second,
		PingPeriod:   54 * time.Second,
		FrameLimit:   1000,
		FrameWindow:  10 * time.Second,
		Secret:       "test-secret",
	}
}

func startRelay(t *testing.T) (string, *app.Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := app.NewRegistry()
	r := router.SetupRouter(ctx, testConfig(t), app.NewRouter(reg))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal", reg
}

func dialPeer(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(v))
}

func recv(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func expectSilence(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err, "expected no message")
}

func register(t *testing.T, ws *websocket.Conn, id string) {
	t.Helper()
	send(t, ws, map[string]any{"type": "register", "userId": id})
	reply := recv(t, ws)
	require.Equal(t, "registered", reply["type"])
}

func Test_Relay_EndToEnd(t *testing.T) {
	t.Run("call accept offer round trip", func(t *testing.T) {
		url, _ := startRelay(t)
		alice := dialPeer(t, url)
		bob := dialPeer(t, url)
		register(t, alice, "alice")
		register(t, bob, "bob")

		send(t, alice, map[string]any{"type": "call", "to": "BOB"})
		msg := recv(t, bob)
		assert.Equal(t, "incoming-call", msg["type"])
		assert.Equal(t, "alice", msg["from"])

		send(t, bob, map[string]any{"type": "call-accept", "to": "alice"})
		msg = recv(t, alice)
		assert.Equal(t, "call-accept", msg["type"])
		assert.Equal(t, "bob", msg["from"])

		send(t, alice, map[string]any{"type": "offer", "to": "bob", "sdp": "v=0...", "from": "mallory"})
		msg = recv(t, bob)
		assert.Equal(t, "offer", msg["type"])
		assert.Equal(t, "alice", msg["from"], "relay must substitute the bound identity")
		assert.Equal(t, "v=0...", msg["sdp"])
		assert.NotContains(t, msg, "to")

		send(t, bob, map[string]any{"type": "answer", "to": "alice", "sdp": "v=0..."})
		msg = recv(t, alice)
		assert.Equal(t, "answer", msg["type"])
		assert.Equal(t, "bob", msg["from"])
	})

	t.Run("registered echoes the normalized id", func(t *testing.T) {
		url, _ := startRelay(t)
		ws := dialPeer(t, url)
		send(t, ws, map[string]any{"type": "register", "userId": "  Alice "})
		reply := recv(t, ws)
		assert.Equal(t, "registered", reply["type"])
		assert.Equal(t, "alice", reply["userId"])
	})

	t.Run("offline callee", func(t *testing.T) {
		url, _ := startRelay(t)
		alice := dialPeer(t, url)
		bob := dialPeer(t, url)
		register(t, alice, "alice")
		register(t, bob, "bob")

		send(t, alice, map[string]any{"type": "call", "to": "carol"})
		msg := recv(t, alice)
		assert.Equal(t, "call-failed", msg["type"])
		assert.Equal(t, "carol", msg["to"])
		assert.Equal(t, "callee offline", msg["reason"])
		expectSilence(t, bob)
	})

	t.Run("protocol errors keep the connection open", func(t *testing.T) {
		url, _ := startRelay(t)
		ws := dialPeer(t, url)

		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{broken`)))
		assert.Equal(t, "bad json", recv(t, ws)["reason"])

		send(t, ws, map[string]any{"type": "call", "to": "x"})
		assert.Equal(t, "not registered", recv(t, ws)["reason"])

		register(t, ws, "alice")
		send(t, ws, map[string]any{"type": "teleport"})
		assert.Equal(t, "unknown type", recv(t, ws)["reason"])
	})

	t.Run("eviction closes the previous owner", func(t *testing.T) {
		url, _ := startRelay(t)
		c1 := dialPeer(t, url)
		register(t, c1, "dave")

		c2 := dialPeer(t, url)
		register(t, c2, "dave")

		// The relay force-closes c1; its next read fails.
		require.NoError(t, c1.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := c1.ReadMessage()
		assert.Error(t, err)

		// Subsequent calls reach the new owner.
		alice := dialPeer(t, url)
		register(t, alice, "alice")
		send(t, alice, map[string]any{"type": "call", "to": "dave"})
		msg := recv(t, c2)
		assert.Equal(t, "incoming-call", msg["type"])
		assert.Equal(t, "alice", msg["from"])
	})

	t.Run("disconnect releases the identifier", func(t *testing.T) {
		url, reg := startRelay(t)
		eve := dialPeer(t, url)
		register(t, eve, "eve")
		require.Equal(t, 1, reg.Count())

		require.NoError(t, eve.Close())
		require.Eventually(t, func() bool {
			_, ok := reg.Resolve("eve")
			return !ok
		}, 2*time.Second, 10*time.Millisecond)

		alice := dialPeer(t, url)
		register(t, alice, "alice")
		send(t, alice, map[string]any{"type": "call", "to": "eve"})
		assert.Equal(t, "call-failed", recv(t, alice)["type"])
	})
}
