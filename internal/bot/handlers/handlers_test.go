package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/instabridge/internal/database"
)

func TestCommandArgument(t *testing.T) {
	assert.Equal(t, "", commandArgument("/messages"))
	assert.Equal(t, "thread-1", commandArgument("/messages thread-1"))
	assert.Equal(t, "thread-1", commandArgument("/messages   thread-1  extra"))
}

func TestParseSendArgs(t *testing.T) {
	threadID, body, ok := parseSendArgs("/send thread-1 hello there")
	require.True(t, ok)
	assert.Equal(t, "thread-1", threadID)
	assert.Equal(t, "hello there", body)

	_, _, ok = parseSendArgs("/send")
	assert.False(t, ok)

	_, _, ok = parseSendArgs("/send thread-1")
	assert.False(t, ok)

	_, _, ok = parseSendArgs("/send thread-1   ")
	assert.False(t, ok)
}

func TestFormatThreadList(t *testing.T) {
	threads := []database.InstagramThread{
		{ThreadID: "t1", Title: "Friends", IsGroup: true, MessageCount: 42},
		{ThreadID: "t2", Participants: []string{"alice", "bob"}, MessageCount: 3},
	}

	out := formatThreadList(threads)

	assert.Contains(t, out, "Conversations (2):")
	assert.Contains(t, out, "1. Friends [group, 42 messages]")
	assert.Contains(t, out, "2. alice, bob [direct, 3 messages]")
	assert.Contains(t, out, "id: t1")
	assert.Contains(t, out, "id: t2")
}

func TestFormatMessageList(t *testing.T) {
	ts := time.Date(2025, time.March, 4, 9, 30, 0, 0, time.UTC)
	thread := &database.InstagramThread{ThreadID: "t1", Title: "Friends"}
	messages := []database.InstagramMessage{
		{SenderID: "alice", Content: "hi", InstagramTimestamp: &ts},
		{SenderID: "bob", Content: "[Image] sunset"},
	}

	out := formatMessageList(thread, messages)

	assert.Contains(t, out, "Friends — last 2 messages:")
	assert.Contains(t, out, "[Mar 4 09:30] alice: hi")
	assert.Contains(t, out, "bob: [Image] sunset")
}

func TestFormatMessageListFallsBackToThreadID(t *testing.T) {
	thread := &database.InstagramThread{ThreadID: "t9"}
	out := formatMessageList(thread, []database.InstagramMessage{{SenderID: "a", Content: "x"}})
	assert.Contains(t, out, "t9 — last 1 messages:")
}
