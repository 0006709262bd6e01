// Package normalize converts raw Instagram API payloads into validated
// database records, classifying message types and caching media locally.
package normalize

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/edgard/instabridge/internal/database"
	"github.com/edgard/instabridge/internal/instagram"
)

// Media type codes used by the Instagram API.
const (
	mediaCodeImage = 1
	mediaCodeVideo = 2
	mediaCodeAudio = 3
)

// Processor normalizes raw Instagram data. Media download failures are
// tolerated: the message keeps its source URL and the local path stays
// empty.
type Processor struct {
	cache  *MediaCache
	logger *slog.Logger
}

// NewProcessor creates a processor. A nil cache disables media download;
// messages then keep only their remote URLs.
func NewProcessor(cache *MediaCache, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{cache: cache, logger: logger.With("component", "processor")}
}

// Message converts a raw API message into a validated database record.
func (p *Processor) Message(ctx context.Context, raw instagram.RawMessage) (*database.InstagramMessage, error) {
	msgType := classifyMessage(raw)

	now := time.Now().UTC()
	msg := &database.InstagramMessage{
		MessageID:          raw.MessageID,
		ThreadID:           raw.ThreadID,
		SenderID:           raw.UserID,
		MessageType:        msgType,
		Content:            extractContent(raw, msgType),
		ReplyTo:            raw.ReplyToID,
		Status:             database.MessageStatusDelivered,
		Metadata:           extractMetadata(raw),
		InstagramTimestamp: raw.Timestamp,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if raw.MediaURL != "" {
		msg.MediaFiles = []database.MediaFile{p.mediaFile(ctx, raw, msgType)}
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

// User converts a raw API user into a validated database record.
func (p *Processor) User(raw instagram.RawUser) (*database.InstagramUser, error) {
	user, err := database.NewInstagramUser(raw.UserID, raw.Username)
	if err != nil {
		return nil, err
	}

	user.FullName = raw.FullName
	user.ProfilePicture = raw.ProfilePicURL
	user.IsVerified = raw.IsVerified
	user.IsPrivate = raw.IsPrivate
	user.IsBusiness = raw.IsBusiness
	user.FollowersCount = raw.FollowerCount
	user.FollowingCount = raw.FollowingCount
	user.PostsCount = raw.MediaCount
	user.Biography = raw.Biography
	user.ExternalURL = raw.ExternalURL
	return user, nil
}

// Thread converts a raw API thread into a validated database record.
func (p *Processor) Thread(raw instagram.RawThread) (*database.InstagramThread, error) {
	participants := make([]string, 0, len(raw.Users))
	for _, u := range raw.Users {
		participants = append(participants, u.UserID)
	}

	thread, err := database.NewInstagramThread(raw.ThreadID, participants)
	if err != nil {
		return nil, err
	}

	thread.Title = raw.Title
	thread.MessageCount = raw.MessageCount
	thread.LastActivity = raw.LastActivity
	return thread, nil
}

func (p *Processor) mediaFile(ctx context.Context, raw instagram.RawMessage, msgType database.MessageType) database.MediaFile {
	media := database.MediaFile{
		Type:   string(msgType),
		URL:    raw.MediaURL,
		Format: strings.TrimPrefix(extensionFromURL(raw.MediaURL), "."),
	}

	if p.cache == nil {
		return media
	}

	localPath, err := p.cache.Fetch(ctx, raw.MediaURL, string(msgType))
	if err != nil {
		p.logger.Warn("Failed to cache media",
			"message_id", raw.MessageID, "url", raw.MediaURL, "error", err)
		return media
	}
	media.LocalPath = localPath
	return media
}

// classifyMessage maps a raw message onto a bridge message type. The
// checks run in precedence order: media code, then story reply, then
// reaction, then sticker, then file attachment, then text.
func classifyMessage(raw instagram.RawMessage) database.MessageType {
	switch raw.MediaType {
	case mediaCodeImage:
		return database.MessageTypeImage
	case mediaCodeVideo:
		return database.MessageTypeVideo
	case mediaCodeAudio:
		return database.MessageTypeAudio
	}

	switch {
	case raw.ItemType == "story_share" || raw.ItemType == "reel_share":
		return database.MessageTypeStoryReply
	case raw.ReactionTo != "":
		return database.MessageTypeReaction
	case raw.StickerID != "" || raw.ItemType == "animated_media":
		return database.MessageTypeSticker
	case raw.MediaURL != "":
		return database.MessageTypeFile
	}

	return database.MessageTypeText
}

// extractContent builds the stored content string for a message. Media
// messages carry a bracketed type tag plus any caption text.
func extractContent(raw instagram.RawMessage, msgType database.MessageType) string {
	caption := strings.TrimSpace(raw.Text)
	switch msgType {
	case database.MessageTypeImage:
		return tagged("[Image]", caption)
	case database.MessageTypeVideo:
		return tagged("[Video]", caption)
	case database.MessageTypeAudio:
		return tagged("[Audio]", caption)
	case database.MessageTypeFile:
		return tagged("[File]", filenameFromURL(raw.MediaURL))
	case database.MessageTypeSticker:
		return "[Sticker]"
	case database.MessageTypeStoryReply:
		return tagged("[Story Reply]", caption)
	case database.MessageTypeReaction:
		if caption == "" {
			caption = "❤️"
		}
		return "[Reaction] " + caption
	default:
		return caption
	}
}

func tagged(tag, rest string) string {
	if rest == "" {
		return tag
	}
	return tag + " " + rest
}

func filenameFromURL(sourceURL string) string {
	if extensionFromURL(sourceURL) == ".bin" {
		return "attachment"
	}
	parts := strings.Split(strings.SplitN(sourceURL, "?", 2)[0], "/")
	return parts[len(parts)-1]
}

// extractMetadata keeps vendor-level details the normalized record would
// otherwise lose.
func extractMetadata(raw instagram.RawMessage) map[string]any {
	metadata := map[string]any{}
	if raw.ItemType != "" {
		metadata["item_type"] = raw.ItemType
	}
	if raw.MediaType != 0 {
		metadata["media_type_code"] = raw.MediaType
	}
	if raw.ReactionTo != "" {
		metadata["reaction_to"] = raw.ReactionTo
	}
	if raw.StickerID != "" {
		metadata["sticker_id"] = raw.StickerID
	}
	if raw.IsFromOwner {
		metadata["is_from_owner"] = true
	}
	if len(metadata) == 0 {
		return nil
	}
	return metadata
}
