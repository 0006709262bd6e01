package realtime

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/instabridge/internal/config"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(config.RealtimeConfig{Enabled: true, SendBuffer: 16}, nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, connType, userID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	require.NoError(t, ws.WriteJSON(map[string]string{"type": connType, "user_id": userID}))
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame map[string]any
	require.NoError(t, ws.ReadJSON(&frame))
	return frame
}

func TestHandshakeEstablishesConnection(t *testing.T) {
	hub, srv := newTestHub(t)
	ws := dial(t, srv, "telegram_user", "u1")

	frame := readFrame(t, ws)
	assert.Equal(t, "connection_established", frame["type"])
	assert.NotEmpty(t, frame["connection_id"])

	require.Eventually(t, func() bool {
		return hub.Stats().ActiveConnections == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.Stats().ConnectionsByType["telegram_user"])
}

func TestPingPong(t *testing.T) {
	_, srv := newTestHub(t)
	ws := dial(t, srv, "telegram_user", "u1")
	readFrame(t, ws) // connection_established

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "ping"}))
	frame := readFrame(t, ws)
	assert.Equal(t, "pong", frame["type"])
}

func TestSubscribeUnsubscribe(t *testing.T) {
	hub, srv := newTestHub(t)
	ws := dial(t, srv, "telegram_user", "u1")
	readFrame(t, ws)

	require.NoError(t, ws.WriteJSON(map[string]any{
		"type": "subscribe", "events": []string{"sync_update"},
	}))
	frame := readFrame(t, ws)
	assert.Equal(t, "subscribed", frame["type"])

	require.Eventually(t, func() bool {
		return hub.Stats().Subscriptions["sync_update"] == 1
	}, time.Second, 10*time.Millisecond)

	// Subscribed connections receive published events.
	sent := hub.PublishEvent("sync_update", map[string]any{"status": "completed"})
	assert.Equal(t, 1, sent)
	frame = readFrame(t, ws)
	assert.Equal(t, "event", frame["type"])
	assert.Equal(t, "sync_update", frame["event"])

	require.NoError(t, ws.WriteJSON(map[string]any{
		"type": "unsubscribe", "events": []string{"sync_update"},
	}))
	frame = readFrame(t, ws)
	assert.Equal(t, "unsubscribed", frame["type"])

	require.Eventually(t, func() bool {
		return hub.Stats().Subscriptions["sync_update"] == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSendToUserTargetsOnlyThatUser(t *testing.T) {
	hub, srv := newTestHub(t)
	ws1 := dial(t, srv, "telegram_user", "u1")
	ws2 := dial(t, srv, "telegram_user", "u2")
	readFrame(t, ws1)
	readFrame(t, ws2)

	require.Eventually(t, func() bool {
		return hub.Stats().ActiveConnections == 2
	}, time.Second, 10*time.Millisecond)

	n := NewNotification(NotifyMessageReceived, "New Message", "hello", "u1", nil)
	sent := hub.SendToUser("u1", n)
	assert.Equal(t, 1, sent)

	frame := readFrame(t, ws1)
	assert.Equal(t, "notification", frame["type"])
	payload := frame["notification"].(map[string]any)
	assert.Equal(t, string(NotifyMessageReceived), payload["type"])
	assert.Equal(t, "u1", payload["user_id"])

	// The other user sees nothing.
	require.NoError(t, ws2.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var unexpected map[string]any
	assert.Error(t, ws2.ReadJSON(&unexpected))
}

func TestBroadcastByConnectionType(t *testing.T) {
	hub, srv := newTestHub(t)
	wsUser := dial(t, srv, "telegram_user", "u1")
	wsAdmin := dial(t, srv, "admin_panel", "admin")
	readFrame(t, wsUser)
	readFrame(t, wsAdmin)

	require.Eventually(t, func() bool {
		return hub.Stats().ActiveConnections == 2
	}, time.Second, 10*time.Millisecond)

	n := NewNotification(NotifySystemUpdate, "Maintenance", "restarting soon", "broadcast", nil)
	sent := hub.Broadcast(n, ConnTelegramUser)
	assert.Equal(t, 1, sent)

	frame := readFrame(t, wsUser)
	assert.Equal(t, "notification", frame["type"])

	// Broadcasting with no type reaches everyone.
	sent = hub.Broadcast(n, "")
	assert.Equal(t, 2, sent)
}

func TestDisconnectCleansUp(t *testing.T) {
	hub, srv := newTestHub(t)
	ws := dial(t, srv, "telegram_user", "u1")
	readFrame(t, ws)

	require.Eventually(t, func() bool {
		return hub.Stats().ActiveConnections == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool {
		return hub.Stats().ActiveConnections == 0
	}, time.Second, 10*time.Millisecond)
}

func TestBroadcastDuringDisconnect(t *testing.T) {
	hub, srv := newTestHub(t)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		n := NewNotification(NotifySystemUpdate, "Tick", "still here", "broadcast", nil)
		for {
			select {
			case <-stop:
				return
			default:
				hub.Broadcast(n, "")
				time.Sleep(time.Millisecond)
			}
		}
	}()

	// Churn connections while the broadcaster runs; a disconnect must
	// never take down the broadcasting goroutine.
	for range 50 {
		ws := dial(t, srv, "telegram_user", "u1")
		readFrame(t, ws)
		require.NoError(t, ws.Close())
	}

	close(stop)
	<-done

	require.Eventually(t, func() bool {
		return hub.Stats().ActiveConnections == 0
	}, time.Second, 10*time.Millisecond)
}
