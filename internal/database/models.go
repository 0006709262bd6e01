package database

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ValidationError reports a domain record that failed construction-time
// validation. The offending record is rejected, never persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// MessageType classifies an Instagram message.
type MessageType string

const (
	MessageTypeText       MessageType = "text"
	MessageTypeImage      MessageType = "image"
	MessageTypeVideo      MessageType = "video"
	MessageTypeAudio      MessageType = "audio"
	MessageTypeFile       MessageType = "file"
	MessageTypeSticker    MessageType = "sticker"
	MessageTypeReaction   MessageType = "reaction"
	MessageTypeStoryReply MessageType = "story_reply"
	MessageTypeUnknown    MessageType = "unknown"
)

// MessageStatus tracks delivery state of a message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusPending   MessageStatus = "pending"
)

// SyncState tracks the state of a sync operation on a thread or cycle.
type SyncState string

const (
	SyncStatePending    SyncState = "pending"
	SyncStateInProgress SyncState = "in_progress"
	SyncStateCompleted  SyncState = "completed"
	SyncStateFailed     SyncState = "failed"
	SyncStateCancelled  SyncState = "cancelled"
)

// InstagramUser is a profile record anchored on the immutable instagram_id.
// Subsequent syncs upsert by instagram_id and never duplicate.
type InstagramUser struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	InstagramID    string             `bson:"instagram_id"`
	Username       string             `bson:"username"`
	FullName       string             `bson:"full_name,omitempty"`
	ProfilePicture string             `bson:"profile_picture,omitempty"`
	IsVerified     bool               `bson:"is_verified"`
	IsPrivate      bool               `bson:"is_private"`
	IsBusiness     bool               `bson:"is_business"`
	FollowersCount int                `bson:"followers_count,omitempty"`
	FollowingCount int                `bson:"following_count,omitempty"`
	PostsCount     int                `bson:"posts_count,omitempty"`
	Biography      string             `bson:"biography,omitempty"`
	ExternalURL    string             `bson:"external_url,omitempty"`
	IsActive       bool               `bson:"is_active"`
	LastSeen       *time.Time         `bson:"last_seen,omitempty"`
	CreatedAt      time.Time          `bson:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at"`
}

const maxUsernameLen = 30

// NewInstagramUser builds a user record, normalizing the username to
// lowercase and rejecting empty or oversized usernames.
func NewInstagramUser(instagramID, username string) (*InstagramUser, error) {
	if instagramID == "" {
		return nil, &ValidationError{Field: "instagram_id", Reason: "cannot be empty"}
	}
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, &ValidationError{Field: "username", Reason: "cannot be empty"}
	}
	if len(username) > maxUsernameLen {
		return nil, &ValidationError{Field: "username", Reason: "too long"}
	}

	now := time.Now().UTC()
	return &InstagramUser{
		InstagramID: instagramID,
		Username:    username,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// InstagramThread is a direct-message conversation anchored on thread_id.
// Threads are never deleted, only marked inactive.
type InstagramThread struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	ThreadID     string             `bson:"thread_id"`
	Participants []string           `bson:"participants"`
	Title        string             `bson:"title,omitempty"`
	IsGroup      bool               `bson:"is_group"`
	IsActive     bool               `bson:"is_active"`
	LastActivity *time.Time         `bson:"last_activity,omitempty"`
	MessageCount int                `bson:"message_count"`
	UnreadCount  int                `bson:"unread_count"`
	LastSync     *time.Time         `bson:"last_sync,omitempty"`
	SyncStatus   SyncState          `bson:"sync_status"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

// NewInstagramThread builds a thread record. A thread must have at least
// two participants; the group flag derives from the participant count.
func NewInstagramThread(threadID string, participants []string) (*InstagramThread, error) {
	if threadID == "" {
		return nil, &ValidationError{Field: "thread_id", Reason: "cannot be empty"}
	}
	if len(participants) < 2 {
		return nil, &ValidationError{Field: "participants", Reason: "thread must have at least 2 participants"}
	}

	now := time.Now().UTC()
	return &InstagramThread{
		ThreadID:     threadID,
		Participants: participants,
		IsGroup:      len(participants) > 2,
		IsActive:     true,
		SyncStatus:   SyncStatePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// MediaFile describes one media attachment of a message.
type MediaFile struct {
	Type      string `bson:"type"`
	URL       string `bson:"url"`
	LocalPath string `bson:"local_path,omitempty"`
	Size      int64  `bson:"size,omitempty"`
	Format    string `bson:"format,omitempty"`
	Width     int    `bson:"width,omitempty"`
	Height    int    `bson:"height,omitempty"`
	Duration  float64 `bson:"duration,omitempty"`
	Filename  string `bson:"filename,omitempty"`
	MimeType  string `bson:"mime_type,omitempty"`
}

// InstagramMessage is a direct message anchored on message_id, the
// deduplication key. A message must carry non-empty content or at least
// one media file. Immutable once created except status transitions and
// the edit/delete flags.
type InstagramMessage struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	MessageID          string             `bson:"message_id"`
	ThreadID           string             `bson:"thread_id"`
	SenderID           string             `bson:"sender_id"`
	MessageType        MessageType        `bson:"message_type"`
	Content            string             `bson:"content"`
	MediaFiles         []MediaFile        `bson:"media_files,omitempty"`
	ReplyTo            string             `bson:"reply_to,omitempty"`
	Status             MessageStatus      `bson:"status"`
	IsEdited           bool               `bson:"is_edited"`
	EditedAt           *time.Time         `bson:"edited_at,omitempty"`
	IsDeleted          bool               `bson:"is_deleted"`
	DeletedAt          *time.Time         `bson:"deleted_at,omitempty"`
	Metadata           map[string]any     `bson:"metadata,omitempty"`
	InstagramTimestamp *time.Time         `bson:"instagram_timestamp,omitempty"`
	CreatedAt          time.Time          `bson:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at"`
}

// Validate checks the message invariants: identity fields present and
// content-or-media non-empty.
func (m *InstagramMessage) Validate() error {
	if m.MessageID == "" {
		return &ValidationError{Field: "message_id", Reason: "cannot be empty"}
	}
	if m.ThreadID == "" {
		return &ValidationError{Field: "thread_id", Reason: "cannot be empty"}
	}
	if m.SenderID == "" {
		return &ValidationError{Field: "sender_id", Reason: "cannot be empty"}
	}
	if strings.TrimSpace(m.Content) == "" && len(m.MediaFiles) == 0 {
		return &ValidationError{Field: "content", Reason: "message must have content or media"}
	}
	return nil
}

// ChatSession binds a Telegram user to a currently active Instagram thread.
// One active session per (telegram user, instagram account) pair.
type ChatSession struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	TelegramUserID  int64              `bson:"telegram_user_id"`
	TelegramChatID  int64              `bson:"telegram_chat_id"`
	InstagramUserID string             `bson:"instagram_user_id,omitempty"`
	ActiveThreadID  string             `bson:"active_thread_id,omitempty"`
	IsActive        bool               `bson:"is_active"`
	LastActivity    time.Time          `bson:"last_activity"`
	Preferences     map[string]any     `bson:"preferences,omitempty"`
	CreatedAt       time.Time          `bson:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at"`
}

// Touch refreshes the activity timestamps. Called on every interaction.
func (s *ChatSession) Touch() {
	now := time.Now().UTC()
	s.LastActivity = now
	s.UpdatedAt = now
}

// SyncRecord persists the outcome of one sync operation.
type SyncRecord struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	OperationID    string             `bson:"operation_id"`
	OperationType  string             `bson:"operation_type"`
	Status         SyncState          `bson:"status"`
	UsersSynced    int                `bson:"users_synced"`
	ThreadsSynced  int                `bson:"threads_synced"`
	MessagesSynced int                `bson:"messages_synced"`
	ErrorMessage   string             `bson:"error_message,omitempty"`
	StartedAt      time.Time          `bson:"started_at"`
	CompletedAt    *time.Time         `bson:"completed_at,omitempty"`
}

// UserPreference stores per-Telegram-user settings.
type UserPreference struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty"`
	TelegramUserID       int64              `bson:"telegram_user_id"`
	InstagramUserID      string             `bson:"instagram_user_id,omitempty"`
	Language             string             `bson:"language"`
	Timezone             string             `bson:"timezone"`
	NotificationsEnabled bool               `bson:"notifications_enabled"`
	NotificationTypes    []string           `bson:"notification_types,omitempty"`
	AutoSync             bool               `bson:"auto_sync"`
	CreatedAt            time.Time          `bson:"created_at"`
	UpdatedAt            time.Time          `bson:"updated_at"`
}
