package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstagramUser(t *testing.T) {
	user, err := NewInstagramUser("12345", "  TestUser  ")
	require.NoError(t, err)
	assert.Equal(t, "12345", user.InstagramID)
	assert.Equal(t, "testuser", user.Username, "username should be lowercased and trimmed")
	assert.True(t, user.IsActive)
	assert.False(t, user.CreatedAt.IsZero())
}

func TestNewInstagramUserRejectsEmpty(t *testing.T) {
	_, err := NewInstagramUser("", "testuser")
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "instagram_id", verr.Field)

	_, err = NewInstagramUser("12345", "   ")
	require.Error(t, err)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "username", verr.Field)
}

func TestNewInstagramUserRejectsLongUsername(t *testing.T) {
	long := "abcdefghijklmnopqrstuvwxyz12345" // 31 chars
	_, err := NewInstagramUser("12345", long)
	require.Error(t, err)
}

func TestNewInstagramThread(t *testing.T) {
	thread, err := NewInstagramThread("t1", []string{"u1", "u2"})
	require.NoError(t, err)
	assert.False(t, thread.IsGroup)
	assert.Equal(t, SyncStatePending, thread.SyncStatus)

	group, err := NewInstagramThread("t2", []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	assert.True(t, group.IsGroup)
}

func TestNewInstagramThreadRequiresTwoParticipants(t *testing.T) {
	_, err := NewInstagramThread("t1", []string{"u1"})
	require.Error(t, err)

	_, err = NewInstagramThread("", []string{"u1", "u2"})
	require.Error(t, err)
}

func TestMessageValidate(t *testing.T) {
	msg := &InstagramMessage{
		MessageID:   "m1",
		ThreadID:    "t1",
		SenderID:    "u1",
		MessageType: MessageTypeText,
		Content:     "hello",
	}
	require.NoError(t, msg.Validate())

	// Media-only messages are valid without content.
	msg.Content = ""
	msg.MediaFiles = []MediaFile{{Type: "image", URL: "https://example.com/a.jpg"}}
	require.NoError(t, msg.Validate())
}

func TestMessageValidateRejectsEmpty(t *testing.T) {
	cases := []struct {
		name string
		msg  InstagramMessage
	}{
		{"missing message_id", InstagramMessage{ThreadID: "t1", SenderID: "u1", Content: "x"}},
		{"missing thread_id", InstagramMessage{MessageID: "m1", SenderID: "u1", Content: "x"}},
		{"missing sender_id", InstagramMessage{MessageID: "m1", ThreadID: "t1", Content: "x"}},
		{"no content or media", InstagramMessage{MessageID: "m1", ThreadID: "t1", SenderID: "u1", Content: "   "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.msg.Validate())
		})
	}
}

func TestChatSessionTouch(t *testing.T) {
	session := &ChatSession{LastActivity: time.Now().Add(-time.Hour)}
	before := session.LastActivity
	session.Touch()
	assert.True(t, session.LastActivity.After(before))
	assert.Equal(t, session.LastActivity, session.UpdatedAt)
}
