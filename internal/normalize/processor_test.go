package normalize

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/instabridge/internal/config"
	"github.com/edgard/instabridge/internal/database"
	"github.com/edgard/instabridge/internal/instagram"
)

func TestClassifyMessagePrecedence(t *testing.T) {
	cases := []struct {
		name string
		raw  instagram.RawMessage
		want database.MessageType
	}{
		{"image", instagram.RawMessage{MediaType: 1}, database.MessageTypeImage},
		{"video", instagram.RawMessage{MediaType: 2}, database.MessageTypeVideo},
		{"audio", instagram.RawMessage{MediaType: 3}, database.MessageTypeAudio},
		{"story reply", instagram.RawMessage{ItemType: "story_share", Text: "nice"}, database.MessageTypeStoryReply},
		{"reel reply", instagram.RawMessage{ItemType: "reel_share"}, database.MessageTypeStoryReply},
		{"reaction", instagram.RawMessage{ReactionTo: "m1", Text: "🔥"}, database.MessageTypeReaction},
		{"sticker", instagram.RawMessage{StickerID: "s1"}, database.MessageTypeSticker},
		{"file url", instagram.RawMessage{MediaURL: "https://cdn.example.com/doc.pdf"}, database.MessageTypeFile},
		{"plain text", instagram.RawMessage{Text: "hello"}, database.MessageTypeText},
		// Media code wins over everything else.
		{"image beats story reply", instagram.RawMessage{MediaType: 1, ItemType: "story_share"}, database.MessageTypeImage},
		{"story reply beats reaction", instagram.RawMessage{ItemType: "story_share", ReactionTo: "m1"}, database.MessageTypeStoryReply},
		{"reaction beats sticker", instagram.RawMessage{ReactionTo: "m1", StickerID: "s1"}, database.MessageTypeReaction},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyMessage(tc.raw))
		})
	}
}

func TestExtractContent(t *testing.T) {
	cases := []struct {
		name string
		raw  instagram.RawMessage
		typ  database.MessageType
		want string
	}{
		{"image with caption", instagram.RawMessage{Text: "look"}, database.MessageTypeImage, "[Image] look"},
		{"image without caption", instagram.RawMessage{}, database.MessageTypeImage, "[Image]"},
		{"video", instagram.RawMessage{Text: "clip"}, database.MessageTypeVideo, "[Video] clip"},
		{"sticker", instagram.RawMessage{Text: "ignored"}, database.MessageTypeSticker, "[Sticker]"},
		{"story reply", instagram.RawMessage{Text: "cool story"}, database.MessageTypeStoryReply, "[Story Reply] cool story"},
		{"reaction with emoji", instagram.RawMessage{Text: "🔥"}, database.MessageTypeReaction, "[Reaction] 🔥"},
		{"reaction default emoji", instagram.RawMessage{}, database.MessageTypeReaction, "[Reaction] ❤️"},
		{"text trims whitespace", instagram.RawMessage{Text: "  hi  "}, database.MessageTypeText, "hi"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractContent(tc.raw, tc.typ))
		})
	}
}

func TestMessageNormalization(t *testing.T) {
	p := NewProcessor(nil, nil)
	ts := time.Now().UTC()

	msg, err := p.Message(context.Background(), instagram.RawMessage{
		MessageID: "m1",
		ThreadID:  "t1",
		UserID:    "u1",
		Text:      "hello",
		ItemType:  "text",
		Timestamp: &ts,
	})
	require.NoError(t, err)
	assert.Equal(t, database.MessageTypeText, msg.MessageType)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, database.MessageStatusDelivered, msg.Status)
	assert.Equal(t, &ts, msg.InstagramTimestamp)
	assert.Equal(t, "text", msg.Metadata["item_type"])
}

func TestMessageRejectsInvalid(t *testing.T) {
	p := NewProcessor(nil, nil)

	_, err := p.Message(context.Background(), instagram.RawMessage{
		ThreadID: "t1", UserID: "u1", Text: "x",
	})
	require.Error(t, err)

	// Empty content and no media is rejected.
	_, err = p.Message(context.Background(), instagram.RawMessage{
		MessageID: "m1", ThreadID: "t1", UserID: "u1",
	})
	require.Error(t, err)
}

func TestUserNormalizationLowercasesUsername(t *testing.T) {
	p := NewProcessor(nil, nil)

	user, err := p.User(instagram.RawUser{
		UserID: "u1", Username: "SomeBody", FullName: "Some Body", FollowerCount: 9,
	})
	require.NoError(t, err)
	assert.Equal(t, "somebody", user.Username)
	assert.Equal(t, 9, user.FollowersCount)
}

func TestThreadNormalization(t *testing.T) {
	p := NewProcessor(nil, nil)

	thread, err := p.Thread(instagram.RawThread{
		ThreadID: "t1",
		Users:    []instagram.RawUser{{UserID: "u1"}, {UserID: "u2"}, {UserID: "u3"}},
		Title:    "group chat",
	})
	require.NoError(t, err)
	assert.True(t, thread.IsGroup)
	assert.Equal(t, []string{"u1", "u2", "u3"}, thread.Participants)

	_, err = p.Thread(instagram.RawThread{ThreadID: "t2", Users: []instagram.RawUser{{UserID: "u1"}}})
	require.Error(t, err)
}

func newTestCache(t *testing.T) *MediaCache {
	t.Helper()
	cache, err := NewMediaCache(config.MediaConfig{
		CacheDir:    t.TempDir(),
		MaxFileSize: 1 << 20,
		HTTPTimeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return cache
}

func TestMediaCacheDeterministicPath(t *testing.T) {
	cache := newTestCache(t)

	p1 := cache.CachePath("https://cdn.example.com/photo.jpg?sig=abc", "image")
	p2 := cache.CachePath("https://cdn.example.com/photo.jpg?sig=abc", "image")
	assert.Equal(t, p1, p2)
	assert.Contains(t, p1, "image_")
	assert.Contains(t, p1, ".jpg")

	// Different type scopes the same URL into a different entry.
	p3 := cache.CachePath("https://cdn.example.com/photo.jpg?sig=abc", "video")
	assert.NotEqual(t, p1, p3)
}

func TestMediaCacheSkipsRedownload(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	cache := newTestCache(t)
	url := srv.URL + "/photo.jpg"

	first, err := cache.Fetch(context.Background(), url, "image")
	require.NoError(t, err)
	second, err := cache.Fetch(context.Background(), url, "image")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load(), "second fetch should hit the cache")
}

func TestMediaCacheRejectsOversized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	cache, err := NewMediaCache(config.MediaConfig{
		CacheDir:    t.TempDir(),
		MaxFileSize: 1024,
		HTTPTimeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)

	_, err = cache.Fetch(context.Background(), srv.URL+"/big.bin", "file")
	require.Error(t, err)

	// Nothing should be left behind in the cache.
	stats, err := cache.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FileCount)
}

func TestMediaCacheCleanup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	cache := newTestCache(t)
	_, err := cache.Fetch(context.Background(), srv.URL+"/a.jpg", "image")
	require.NoError(t, err)

	// Nothing is old enough yet.
	removed, err := cache.Cleanup(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	// With a zero max age everything is stale.
	removed, err = cache.Cleanup(0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
