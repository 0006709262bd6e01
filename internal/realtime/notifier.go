package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/edgard/instabridge/internal/queue"
)

// Notifier consumes queue events and turns them into hub notifications.
type Notifier struct {
	hub    *Hub
	logger *slog.Logger
}

// NewNotifier creates a notifier over the hub.
func NewNotifier(hub *Hub, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{hub: hub, logger: logger.With("component", "notifier")}
}

// RegisterConsumers binds the notifier's handlers to the worker pool.
func (n *Notifier) RegisterConsumers(pool *queue.WorkerPool) {
	pool.Register(queue.TypeInstagramDM, n.handleInstagramDM)
	pool.Register(queue.TypeNotification, n.handleNotification)
}

// handleInstagramDM broadcasts a "new message" notification to every
// connected Telegram user.
func (n *Notifier) handleInstagramDM(_ context.Context, msg *queue.Message) error {
	var payload struct {
		MessageID string `json:"message_id"`
		ThreadID  string `json:"thread_id"`
		SenderID  string `json:"sender_id"`
		Content   string `json:"content"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode instagram_dm payload: %w", err)
	}

	notification := NewNotification(
		NotifyMessageReceived,
		"New Instagram Message",
		fmt.Sprintf("New message from %s", payload.SenderID),
		"broadcast",
		map[string]any{
			"message_id": payload.MessageID,
			"thread_id":  payload.ThreadID,
			"sender_id":  payload.SenderID,
		},
	)

	sent := n.hub.Broadcast(notification, ConnTelegramUser)
	n.logger.Debug("Instagram DM notification delivered",
		"message_id", payload.MessageID, "connections", sent)
	return nil
}

// handleNotification delivers a generic notification event: targeted to
// one user, or broadcast when user_id is "broadcast".
func (n *Notifier) handleNotification(_ context.Context, msg *queue.Message) error {
	var payload struct {
		Type    string         `json:"type"`
		Title   string         `json:"title"`
		Message string         `json:"message"`
		UserID  string         `json:"user_id"`
		Data    map[string]any `json:"data"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode notification payload: %w", err)
	}

	notification := NewNotification(
		NotificationType(payload.Type),
		payload.Title,
		payload.Message,
		payload.UserID,
		payload.Data,
	)

	if payload.UserID == "broadcast" || payload.UserID == "" {
		n.hub.Broadcast(notification, ConnTelegramUser)
	} else {
		n.hub.SendToUser(payload.UserID, notification)
	}
	return nil
}
