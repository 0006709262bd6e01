// Package instagram wraps the Instagram private messaging API behind a
// typed boundary. The rest of the bridge only sees the Raw* structs and
// the API interface, never the wire format.
package instagram

import (
	"errors"
	"time"
)

// ErrNotAuthenticated is returned by operations that require a logged-in
// session when none is established.
var ErrNotAuthenticated = errors.New("instagram: not authenticated")

// ErrLoginRequired signals that an existing session was rejected by the
// server and a fresh credential login is needed.
var ErrLoginRequired = errors.New("instagram: login required")

// RawUser is a user as returned by the Instagram API, before
// normalization into a database record.
type RawUser struct {
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	ProfilePicURL  string `json:"profile_pic_url"`
	IsPrivate      bool   `json:"is_private"`
	IsVerified     bool   `json:"is_verified"`
	IsBusiness     bool   `json:"is_business"`
	FollowerCount  int    `json:"follower_count"`
	FollowingCount int    `json:"following_count"`
	MediaCount     int    `json:"media_count"`
	Biography      string `json:"biography"`
	ExternalURL    string `json:"external_url"`
}

// RawThread is a direct-message thread as returned by the API.
type RawThread struct {
	ThreadID     string     `json:"thread_id"`
	Title        string     `json:"title"`
	Users        []RawUser  `json:"users"`
	LastActivity *time.Time `json:"last_activity"`
	MessageCount int        `json:"message_count"`
	IsGroup      bool       `json:"is_group"`
}

// RawMessage is a direct message as returned by the API. ItemType is the
// vendor's classification string (text, media, clip, voice_media,
// animated_media, story_share, reel_share, ...); normalization maps it
// onto the bridge's own message types.
type RawMessage struct {
	MessageID   string     `json:"message_id"`
	ThreadID    string     `json:"thread_id"`
	UserID      string     `json:"user_id"`
	Text        string     `json:"text"`
	Timestamp   *time.Time `json:"timestamp"`
	ItemType    string     `json:"item_type"`
	MediaURL    string     `json:"media_url,omitempty"`
	MediaType   int        `json:"media_type,omitempty"`
	ReplyToID   string     `json:"reply_to_id,omitempty"`
	ReactionTo  string     `json:"reaction_to,omitempty"`
	StickerID   string     `json:"sticker_id,omitempty"`
	IsFromOwner bool       `json:"is_from_owner"`
}

// RawAccount is the authenticated account's own profile.
type RawAccount struct {
	RawUser
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}
