// Package queue implements the Redis-backed message queue that carries
// events between the sync pipeline, the Telegram front-end, and the
// realtime hub.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType routes a queued message to its type-specific queue.
type MessageType string

const (
	TypeInstagramDM     MessageType = "instagram_dm"
	TypeTelegramMessage MessageType = "telegram_message"
	TypeNotification    MessageType = "notification"
	TypeSyncUpdate      MessageType = "sync_update"
	TypeMediaUpdate     MessageType = "media_update"
)

// AllTypes lists every routable message type.
var AllTypes = []MessageType{
	TypeInstagramDM,
	TypeTelegramMessage,
	TypeNotification,
	TypeSyncUpdate,
	TypeMediaUpdate,
}

// QueueName returns the Redis list backing this type.
func (t MessageType) QueueName() string {
	switch t {
	case TypeInstagramDM:
		return "instagram_dm_queue"
	case TypeTelegramMessage:
		return "telegram_message_queue"
	case TypeNotification:
		return "notification_queue"
	case TypeSyncUpdate:
		return "sync_update_queue"
	case TypeMediaUpdate:
		return "media_update_queue"
	default:
		return "default_queue"
	}
}

// Priority orders messages for operator inspection. Drain order within a
// type queue stays FIFO; the priority lists are a secondary index.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// AllPriorities lists every priority level.
var AllPriorities = []Priority{PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow}

// QueueName returns the Redis list indexing this priority level.
func (p Priority) QueueName() string {
	switch p {
	case PriorityUrgent:
		return "urgent_queue"
	case PriorityHigh:
		return "high_queue"
	case PriorityLow:
		return "low_queue"
	default:
		return "normal_queue"
	}
}

// Status is the lifecycle state tracked in a message's metadata hash.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRetrying   Status = "retrying"
	StatusDeadLetter Status = "dead_letter"
)

// Message is the envelope carried through the queue.
type Message struct {
	ID         string          `json:"id"`
	Type       MessageType     `json:"type"`
	Priority   Priority        `json:"priority"`
	Payload    json.RawMessage `json:"payload"`
	Source     string          `json:"source,omitempty"`
	Target     string          `json:"target,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
}

// NewMessage builds an envelope with a fresh ID and normal priority.
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:         uuid.NewString(),
		Type:       msgType,
		Priority:   PriorityNormal,
		Payload:    data,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: 3,
	}, nil
}
