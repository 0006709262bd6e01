// Package realtime implements the WebSocket hub that pushes bridge
// notifications to connected clients.
package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/edgard/instabridge/internal/config"
)

// ConnectionType groups clients by role for targeted broadcasts.
type ConnectionType string

const (
	ConnTelegramUser     ConnectionType = "telegram_user"
	ConnInstagramWebhook ConnectionType = "instagram_webhook"
	ConnAdminPanel       ConnectionType = "admin_panel"
	ConnMonitoring       ConnectionType = "monitoring"
)

// NotificationType classifies a pushed notification.
type NotificationType string

const (
	NotifyMessageReceived NotificationType = "message_received"
	NotifyMessageSent     NotificationType = "message_sent"
	NotifySyncUpdate      NotificationType = "sync_update"
	NotifyErrorAlert      NotificationType = "error_alert"
	NotifySystemUpdate    NotificationType = "system_update"
)

// Notification is the payload pushed to clients inside a
// {"type":"notification"} frame.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	UserID    string           `json:"user_id"`
	Data      map[string]any   `json:"data,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Priority  string           `json:"priority"`
	Read      bool             `json:"read"`
}

// NewNotification builds a notification with defaults filled in.
func NewNotification(notifType NotificationType, title, message, userID string, data map[string]any) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Type:      notifType,
		Title:     title,
		Message:   message,
		UserID:    userID,
		Data:      data,
		CreatedAt: time.Now().UTC(),
		Priority:  "normal",
	}
}

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// conn is one registered client.
type conn struct {
	id       string
	userID   string
	connType ConnectionType
	ws       *websocket.Conn

	// sendMu serializes enqueues with the channel close in unregister;
	// fan-out goroutines may still hold a *conn after it left the maps.
	sendMu sync.Mutex
	closed bool
	send   chan []byte
}

// enqueue queues a frame, dropping it when the buffer is full or the
// connection is already closed.
func (c *conn) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *conn) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub tracks WebSocket connections grouped by type and fans
// notifications out to them.
type Hub struct {
	cfg      config.RealtimeConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	conns  map[string]*conn
	groups map[ConnectionType]map[string]*conn
	subs   map[string]map[string]*conn

	sent atomic.Int64
}

// NewHub creates an empty hub.
func NewHub(cfg config.RealtimeConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:    cfg,
		logger: logger.With("component", "realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns:  map[string]*conn{},
		groups: map[ConnectionType]map[string]*conn{},
		subs:   map[string]map[string]*conn{},
	}
}

// handshake is the first frame a client must send after connecting.
type handshake struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// inbound is any later frame from a client.
type inbound struct {
	Type   string   `json:"type"`
	Events []string `json:"events,omitempty"`
}

// ServeHTTP upgrades the request, performs the handshake, and runs the
// connection until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var hs handshake
	if err := ws.ReadJSON(&hs); err != nil {
		h.logger.Warn("WebSocket handshake failed", "error", err)
		_ = ws.Close()
		return
	}
	_ = ws.SetReadDeadline(time.Time{})

	connType := ConnectionType(hs.Type)
	if connType == "" {
		connType = ConnTelegramUser
	}
	userID := hs.UserID
	if userID == "" {
		userID = "unknown"
	}

	c := &conn{
		id:       uuid.NewString(),
		userID:   userID,
		connType: connType,
		ws:       ws,
		send:     make(chan []byte, h.cfg.SendBuffer),
	}
	h.register(c)

	h.enqueueJSON(c, map[string]any{
		"type":          "connection_established",
		"connection_id": c.id,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
	h.logger.Info("WebSocket connection established",
		"connection_id", c.id, "connection_type", connType, "user_id", userID)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
	if h.groups[c.connType] == nil {
		h.groups[c.connType] = map[string]*conn{}
	}
	h.groups[c.connType][c.id] = c
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	if _, ok := h.conns[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.id)
	delete(h.groups[c.connType], c.id)
	for _, subscribers := range h.subs {
		delete(subscribers, c.id)
	}
	h.mu.Unlock()
	c.closeSend()

	h.logger.Info("WebSocket connection closed", "connection_id", c.id)
}

func (h *Hub) readPump(c *conn) {
	defer func() {
		h.unregister(c)
		_ = c.ws.Close()
	}()

	for {
		var msg inbound
		if err := c.ws.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "ping":
			h.enqueueJSON(c, map[string]any{"type": "pong"})
		case "subscribe":
			h.subscribe(c, msg.Events)
			h.enqueueJSON(c, map[string]any{"type": "subscribed", "events": msg.Events})
		case "unsubscribe":
			h.unsubscribe(c, msg.Events)
			h.enqueueJSON(c, map[string]any{"type": "unsubscribed", "events": msg.Events})
		default:
			h.logger.Debug("Ignoring unknown client message",
				"connection_id", c.id, "type", msg.Type)
		}
	}
}

func (h *Hub) writePump(c *conn) {
	for data := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("WebSocket write failed", "connection_id", c.id, "error", err)
			return
		}
	}
}

func (h *Hub) subscribe(c *conn, events []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, event := range events {
		if h.subs[event] == nil {
			h.subs[event] = map[string]*conn{}
		}
		h.subs[event][c.id] = c
	}
}

func (h *Hub) unsubscribe(c *conn, events []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, event := range events {
		delete(h.subs[event], c.id)
	}
}

// enqueueJSON queues a frame for the connection. A full send buffer
// drops the frame rather than blocking the hub.
func (h *Hub) enqueueJSON(c *conn, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to encode frame", "error", err)
		return false
	}
	if !c.enqueue(data) {
		h.logger.Debug("Dropping frame", "connection_id", c.id)
		return false
	}
	return true
}

func notificationFrame(n Notification) map[string]any {
	return map[string]any{"type": "notification", "notification": n}
}

// SendToUser pushes a notification to every telegram_user connection for
// the given user. Returns the number of connections reached.
func (h *Hub) SendToUser(userID string, n Notification) int {
	h.mu.RLock()
	var targets []*conn
	for _, c := range h.conns {
		if c.userID == userID && c.connType == ConnTelegramUser {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if h.enqueueJSON(c, notificationFrame(n)) {
			sent++
		}
	}
	h.sent.Add(int64(sent))
	return sent
}

// Broadcast pushes a notification to every connection of the given type,
// or to all connections when connType is empty. Returns the number of
// connections reached.
func (h *Hub) Broadcast(n Notification, connType ConnectionType) int {
	h.mu.RLock()
	var targets []*conn
	if connType != "" {
		for _, c := range h.groups[connType] {
			targets = append(targets, c)
		}
	} else {
		for _, c := range h.conns {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if h.enqueueJSON(c, notificationFrame(n)) {
			sent++
		}
	}
	h.sent.Add(int64(sent))
	return sent
}

// PublishEvent pushes a payload to every connection subscribed to the
// named event.
func (h *Hub) PublishEvent(event string, payload map[string]any) int {
	h.mu.RLock()
	var targets []*conn
	for _, c := range h.subs[event] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	frame := map[string]any{"type": "event", "event": event, "payload": payload}
	sent := 0
	for _, c := range targets {
		if h.enqueueJSON(c, frame) {
			sent++
		}
	}
	return sent
}

// HubStats summarizes the hub for status endpoints.
type HubStats struct {
	ActiveConnections int            `json:"active_connections"`
	ConnectionsByType map[string]int `json:"connections_by_type"`
	NotificationsSent int64          `json:"notifications_sent"`
	Subscriptions     map[string]int `json:"subscriptions,omitempty"`
}

// Stats reports the current hub state.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := HubStats{
		ActiveConnections: len(h.conns),
		ConnectionsByType: map[string]int{},
		NotificationsSent: h.sent.Load(),
	}
	for connType, group := range h.groups {
		if len(group) > 0 {
			stats.ConnectionsByType[string(connType)] = len(group)
		}
	}
	if len(h.subs) > 0 {
		stats.Subscriptions = map[string]int{}
		for event, subscribers := range h.subs {
			if len(subscribers) > 0 {
				stats.Subscriptions[event] = len(subscribers)
			}
		}
	}
	return stats
}

// CloseAll disconnects every client, used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	}
}
