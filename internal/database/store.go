package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UpsertOutcome reports whether an upsert created a new record or
// refreshed an existing one.
type UpsertOutcome string

const (
	OutcomeCreated UpsertOutcome = "created"
	OutcomeUpdated UpsertOutcome = "updated"
)

// Store defines persistence operations for the bridge. All writes are
// idempotent upserts keyed on natural identifiers, so re-running a sync
// never duplicates data.
type Store interface {
	// Users.
	UpsertUser(ctx context.Context, user *InstagramUser) (UpsertOutcome, error)
	GetUserByInstagramID(ctx context.Context, instagramID string) (*InstagramUser, bool, error)
	GetUserByUsername(ctx context.Context, username string) (*InstagramUser, bool, error)

	// Threads.
	UpsertThread(ctx context.Context, thread *InstagramThread) (UpsertOutcome, error)
	GetThread(ctx context.Context, threadID string) (*InstagramThread, bool, error)
	ListThreads(ctx context.Context, limit int64) ([]InstagramThread, error)
	SetThreadSyncState(ctx context.Context, threadID string, state SyncState) error

	// Messages.
	UpsertMessage(ctx context.Context, msg *InstagramMessage) (UpsertOutcome, error)
	GetMessage(ctx context.Context, messageID string) (*InstagramMessage, bool, error)
	ThreadMessages(ctx context.Context, threadID string, limit int64) ([]InstagramMessage, error)
	RecentMessages(ctx context.Context, limit int64) ([]InstagramMessage, error)
	SearchMessages(ctx context.Context, query string, limit int64) ([]InstagramMessage, error)

	// Chat sessions.
	GetOrCreateSession(ctx context.Context, telegramUserID, telegramChatID int64) (*ChatSession, error)
	SaveSession(ctx context.Context, session *ChatSession) error

	// Sync bookkeeping.
	SaveSyncRecord(ctx context.Context, record *SyncRecord) error
	LatestSyncRecord(ctx context.Context) (*SyncRecord, bool, error)

	// Preferences.
	UpsertPreference(ctx context.Context, pref *UserPreference) error
	GetPreference(ctx context.Context, telegramUserID int64) (*UserPreference, bool, error)

	// Stats.
	Counts(ctx context.Context) (StoreCounts, error)
}

// StoreCounts summarizes the persisted dataset for status reporting.
type StoreCounts struct {
	Users    int64 `json:"users"`
	Threads  int64 `json:"threads"`
	Messages int64 `json:"messages"`
	Sessions int64 `json:"sessions"`
}

type mongoStore struct {
	db     *DB
	logger *slog.Logger
}

// NewStore creates the MongoDB-backed Store.
func NewStore(db *DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &mongoStore{db: db, logger: logger.With("component", "store")}
}

func (s *mongoStore) UpsertUser(ctx context.Context, user *InstagramUser) (UpsertOutcome, error) {
	coll, err := s.db.Collection(ctx, CollectionUsers)
	if err != nil {
		return "", err
	}

	user.UpdatedAt = time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"username":        user.Username,
			"full_name":       user.FullName,
			"profile_picture": user.ProfilePicture,
			"is_verified":     user.IsVerified,
			"is_private":      user.IsPrivate,
			"is_business":     user.IsBusiness,
			"followers_count": user.FollowersCount,
			"following_count": user.FollowingCount,
			"posts_count":     user.PostsCount,
			"biography":       user.Biography,
			"external_url":    user.ExternalURL,
			"is_active":       user.IsActive,
			"last_seen":       user.LastSeen,
			"updated_at":      user.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"instagram_id": user.InstagramID,
			"created_at":   user.CreatedAt,
		},
	}

	res, err := coll.UpdateOne(ctx,
		bson.M{"instagram_id": user.InstagramID},
		update, options.Update().SetUpsert(true))
	if err != nil {
		return "", fmt.Errorf("failed to upsert user %s: %w", user.InstagramID, err)
	}
	if res.UpsertedCount > 0 {
		return OutcomeCreated, nil
	}
	return OutcomeUpdated, nil
}

func (s *mongoStore) GetUserByInstagramID(ctx context.Context, instagramID string) (*InstagramUser, bool, error) {
	return s.findUser(ctx, bson.M{"instagram_id": instagramID})
}

func (s *mongoStore) GetUserByUsername(ctx context.Context, username string) (*InstagramUser, bool, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *mongoStore) findUser(ctx context.Context, filter bson.M) (*InstagramUser, bool, error) {
	coll, err := s.db.Collection(ctx, CollectionUsers)
	if err != nil {
		return nil, false, err
	}

	var user InstagramUser
	err = coll.FindOne(ctx, filter).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, true, nil
}

func (s *mongoStore) UpsertThread(ctx context.Context, thread *InstagramThread) (UpsertOutcome, error) {
	coll, err := s.db.Collection(ctx, CollectionThreads)
	if err != nil {
		return "", err
	}

	thread.UpdatedAt = time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"participants":  thread.Participants,
			"title":         thread.Title,
			"is_group":      thread.IsGroup,
			"is_active":     thread.IsActive,
			"last_activity": thread.LastActivity,
			"message_count": thread.MessageCount,
			"unread_count":  thread.UnreadCount,
			"updated_at":    thread.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"thread_id":   thread.ThreadID,
			"sync_status": thread.SyncStatus,
			"created_at":  thread.CreatedAt,
		},
	}

	res, err := coll.UpdateOne(ctx,
		bson.M{"thread_id": thread.ThreadID},
		update, options.Update().SetUpsert(true))
	if err != nil {
		return "", fmt.Errorf("failed to upsert thread %s: %w", thread.ThreadID, err)
	}
	if res.UpsertedCount > 0 {
		return OutcomeCreated, nil
	}
	return OutcomeUpdated, nil
}

func (s *mongoStore) GetThread(ctx context.Context, threadID string) (*InstagramThread, bool, error) {
	coll, err := s.db.Collection(ctx, CollectionThreads)
	if err != nil {
		return nil, false, err
	}

	var thread InstagramThread
	err = coll.FindOne(ctx, bson.M{"thread_id": threadID}).Decode(&thread)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to find thread %s: %w", threadID, err)
	}
	return &thread, true, nil
}

func (s *mongoStore) ListThreads(ctx context.Context, limit int64) ([]InstagramThread, error) {
	coll, err := s.db.Collection(ctx, CollectionThreads)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "last_activity", Value: -1}}).
		SetLimit(limit)
	cursor, err := coll.Find(ctx, bson.M{"is_active": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer cursor.Close(ctx)

	var threads []InstagramThread
	if err := cursor.All(ctx, &threads); err != nil {
		return nil, fmt.Errorf("failed to decode threads: %w", err)
	}
	return threads, nil
}

func (s *mongoStore) SetThreadSyncState(ctx context.Context, threadID string, state SyncState) error {
	coll, err := s.db.Collection(ctx, CollectionThreads)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = coll.UpdateOne(ctx,
		bson.M{"thread_id": threadID},
		bson.M{"$set": bson.M{"sync_status": state, "last_sync": now, "updated_at": now}})
	if err != nil {
		return fmt.Errorf("failed to update sync state for thread %s: %w", threadID, err)
	}
	return nil
}

func (s *mongoStore) UpsertMessage(ctx context.Context, msg *InstagramMessage) (UpsertOutcome, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	coll, err := s.db.Collection(ctx, CollectionMessages)
	if err != nil {
		return "", err
	}

	msg.UpdatedAt = time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"status":     msg.Status,
			"is_edited":  msg.IsEdited,
			"edited_at":  msg.EditedAt,
			"is_deleted": msg.IsDeleted,
			"deleted_at": msg.DeletedAt,
			"updated_at": msg.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"message_id":          msg.MessageID,
			"thread_id":           msg.ThreadID,
			"sender_id":           msg.SenderID,
			"message_type":        msg.MessageType,
			"content":             msg.Content,
			"media_files":         msg.MediaFiles,
			"reply_to":            msg.ReplyTo,
			"metadata":            msg.Metadata,
			"instagram_timestamp": msg.InstagramTimestamp,
			"created_at":          msg.CreatedAt,
		},
	}

	res, err := coll.UpdateOne(ctx,
		bson.M{"message_id": msg.MessageID},
		update, options.Update().SetUpsert(true))
	if err != nil {
		return "", fmt.Errorf("failed to upsert message %s: %w", msg.MessageID, err)
	}
	if res.UpsertedCount > 0 {
		return OutcomeCreated, nil
	}
	return OutcomeUpdated, nil
}

func (s *mongoStore) GetMessage(ctx context.Context, messageID string) (*InstagramMessage, bool, error) {
	coll, err := s.db.Collection(ctx, CollectionMessages)
	if err != nil {
		return nil, false, err
	}

	var msg InstagramMessage
	err = coll.FindOne(ctx, bson.M{"message_id": messageID}).Decode(&msg)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to find message %s: %w", messageID, err)
	}
	return &msg, true, nil
}

func (s *mongoStore) ThreadMessages(ctx context.Context, threadID string, limit int64) ([]InstagramMessage, error) {
	return s.findMessages(ctx, bson.M{"thread_id": threadID, "is_deleted": false}, limit)
}

func (s *mongoStore) RecentMessages(ctx context.Context, limit int64) ([]InstagramMessage, error) {
	return s.findMessages(ctx, bson.M{"is_deleted": false}, limit)
}

func (s *mongoStore) SearchMessages(ctx context.Context, query string, limit int64) ([]InstagramMessage, error) {
	filter := bson.M{
		"is_deleted": false,
		"content":    bson.M{"$regex": primitive.Regex{Pattern: query, Options: "i"}},
	}
	return s.findMessages(ctx, filter, limit)
}

func (s *mongoStore) findMessages(ctx context.Context, filter bson.M, limit int64) ([]InstagramMessage, error) {
	coll, err := s.db.Collection(ctx, CollectionMessages)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []InstagramMessage
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}

func (s *mongoStore) GetOrCreateSession(ctx context.Context, telegramUserID, telegramChatID int64) (*ChatSession, error) {
	coll, err := s.db.Collection(ctx, CollectionSessions)
	if err != nil {
		return nil, err
	}

	var session ChatSession
	err = coll.FindOne(ctx, bson.M{
		"telegram_user_id": telegramUserID,
		"is_active":        true,
	}).Decode(&session)
	if err == nil {
		return &session, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to find session for user %d: %w", telegramUserID, err)
	}

	now := time.Now().UTC()
	session = ChatSession{
		TelegramUserID: telegramUserID,
		TelegramChatID: telegramChatID,
		IsActive:       true,
		LastActivity:   now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	res, err := coll.InsertOne(ctx, &session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for user %d: %w", telegramUserID, err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		session.ID = oid
	}
	s.logger.Debug("Created chat session", "telegram_user_id", telegramUserID)
	return &session, nil
}

func (s *mongoStore) SaveSession(ctx context.Context, session *ChatSession) error {
	coll, err := s.db.Collection(ctx, CollectionSessions)
	if err != nil {
		return err
	}

	session.UpdatedAt = time.Now().UTC()
	filter := bson.M{"_id": session.ID}
	if session.ID.IsZero() {
		filter = bson.M{"telegram_user_id": session.TelegramUserID, "is_active": true}
	}
	_, err = coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"telegram_chat_id":  session.TelegramChatID,
		"instagram_user_id": session.InstagramUserID,
		"active_thread_id":  session.ActiveThreadID,
		"is_active":         session.IsActive,
		"last_activity":     session.LastActivity,
		"preferences":       session.Preferences,
		"updated_at":        session.UpdatedAt,
	}}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save session for user %d: %w", session.TelegramUserID, err)
	}
	return nil
}

func (s *mongoStore) SaveSyncRecord(ctx context.Context, record *SyncRecord) error {
	coll, err := s.db.Collection(ctx, CollectionSyncStatus)
	if err != nil {
		return err
	}

	_, err = coll.UpdateOne(ctx,
		bson.M{"operation_id": record.OperationID},
		bson.M{"$set": bson.M{
			"operation_type":  record.OperationType,
			"status":          record.Status,
			"users_synced":    record.UsersSynced,
			"threads_synced":  record.ThreadsSynced,
			"messages_synced": record.MessagesSynced,
			"error_message":   record.ErrorMessage,
			"started_at":      record.StartedAt,
			"completed_at":    record.CompletedAt,
		}}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save sync record %s: %w", record.OperationID, err)
	}
	return nil
}

func (s *mongoStore) LatestSyncRecord(ctx context.Context) (*SyncRecord, bool, error) {
	coll, err := s.db.Collection(ctx, CollectionSyncStatus)
	if err != nil {
		return nil, false, err
	}

	var record SyncRecord
	opts := options.FindOne().SetSort(bson.D{{Key: "started_at", Value: -1}})
	err = coll.FindOne(ctx, bson.M{}, opts).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to find latest sync record: %w", err)
	}
	return &record, true, nil
}

func (s *mongoStore) UpsertPreference(ctx context.Context, pref *UserPreference) error {
	coll, err := s.db.Collection(ctx, CollectionPreferences)
	if err != nil {
		return err
	}

	pref.UpdatedAt = time.Now().UTC()
	_, err = coll.UpdateOne(ctx,
		bson.M{"telegram_user_id": pref.TelegramUserID},
		bson.M{
			"$set": bson.M{
				"instagram_user_id":     pref.InstagramUserID,
				"language":              pref.Language,
				"timezone":              pref.Timezone,
				"notifications_enabled": pref.NotificationsEnabled,
				"notification_types":    pref.NotificationTypes,
				"auto_sync":             pref.AutoSync,
				"updated_at":            pref.UpdatedAt,
			},
			"$setOnInsert": bson.M{"created_at": pref.CreatedAt},
		}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert preference for user %d: %w", pref.TelegramUserID, err)
	}
	return nil
}

func (s *mongoStore) GetPreference(ctx context.Context, telegramUserID int64) (*UserPreference, bool, error) {
	coll, err := s.db.Collection(ctx, CollectionPreferences)
	if err != nil {
		return nil, false, err
	}

	var pref UserPreference
	err = coll.FindOne(ctx, bson.M{"telegram_user_id": telegramUserID}).Decode(&pref)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to find preference for user %d: %w", telegramUserID, err)
	}
	return &pref, true, nil
}

func (s *mongoStore) Counts(ctx context.Context) (StoreCounts, error) {
	var counts StoreCounts
	for _, c := range []struct {
		coll string
		dst  *int64
	}{
		{CollectionUsers, &counts.Users},
		{CollectionThreads, &counts.Threads},
		{CollectionMessages, &counts.Messages},
		{CollectionSessions, &counts.Sessions},
	} {
		coll, err := s.db.Collection(ctx, c.coll)
		if err != nil {
			return counts, err
		}
		n, err := coll.CountDocuments(ctx, bson.M{})
		if err != nil {
			return counts, fmt.Errorf("failed to count %s: %w", c.coll, err)
		}
		*c.dst = n
	}
	return counts, nil
}
