package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/instabridge/internal/config"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := NewWithClient(client, config.RedisConfig{
		MetadataTTL:    time.Hour,
		DequeueTimeout: time.Second,
		MaxRetries:     3,
	}, nil)
	return q, mr
}

func enqueueText(t *testing.T, q *Queue, msgType MessageType, payload string) *Message {
	t.Helper()
	msg, err := NewMessage(msgType, map[string]string{"text": payload})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), msg))
	return msg
}

func TestEnqueueDequeue(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	sent := enqueueText(t, q, TypeInstagramDM, "hello")

	// The message lands on both the type queue and the priority index.
	typeLen, err := q.client.LLen(ctx, TypeInstagramDM.QueueName()).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, typeLen)
	prioLen, err := q.client.LLen(ctx, PriorityNormal.QueueName()).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, prioLen)

	got, err := q.Dequeue(ctx, TypeInstagramDM)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, TypeInstagramDM, got.Type)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, "hello", payload["text"])

	// Metadata reflects the processing transition.
	assert.Equal(t, string(StatusProcessing), mr.HGet(metadataKey(sent.ID), "status"))
}

func TestDequeueEmptyQueue(t *testing.T) {
	q, mr := newTestQueue(t)

	// Unblock the BRPOP timeout.
	timer := time.AfterFunc(50*time.Millisecond, func() { mr.FastForward(2 * time.Second) })
	defer timer.Stop()

	msg, err := q.Dequeue(context.Background(), TypeNotification)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestDequeueIsFIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	first := enqueueText(t, q, TypeSyncUpdate, "first")
	second := enqueueText(t, q, TypeSyncUpdate, "second")

	got1, err := q.Dequeue(ctx, TypeSyncUpdate)
	require.NoError(t, err)
	got2, err := q.Dequeue(ctx, TypeSyncUpdate)
	require.NoError(t, err)

	assert.Equal(t, first.ID, got1.ID)
	assert.Equal(t, second.ID, got2.ID)
}

func TestMarkCompletedAndFailed(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	msg := enqueueText(t, q, TypeNotification, "x")

	require.NoError(t, q.MarkCompleted(ctx, msg.ID))
	assert.Equal(t, string(StatusCompleted), mr.HGet(metadataKey(msg.ID), "status"))

	require.NoError(t, q.MarkFailed(ctx, msg.ID, "handler exploded"))
	assert.Equal(t, string(StatusFailed), mr.HGet(metadataKey(msg.ID), "status"))
	assert.Equal(t, "handler exploded", mr.HGet(metadataKey(msg.ID), "error"))
}

func TestRetryReenqueuesOriginalPayload(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	msg := enqueueText(t, q, TypeInstagramDM, "retry me")

	// Drain and fail the message.
	_, err := q.Dequeue(ctx, TypeInstagramDM)
	require.NoError(t, err)
	require.NoError(t, q.MarkFailed(ctx, msg.ID, "boom"))

	ok, err := q.Retry(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := q.Dequeue(ctx, TypeInstagramDM)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, 1, got.RetryCount)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, "retry me", payload["text"])
}

func TestRetryMovesToDeadLetterAtBound(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	msg := enqueueText(t, q, TypeInstagramDM, "doomed")

	for i := 0; i < 3; i++ {
		sent, err := q.Dequeue(ctx, TypeInstagramDM)
		require.NoError(t, err)
		require.NotNil(t, sent)
		ok, err := q.Retry(ctx, msg.ID)
		require.NoError(t, err)
		assert.True(t, ok, "retry %d should be allowed", i+1)
	}

	// Fourth attempt exceeds max_retries=3.
	_, err := q.Dequeue(ctx, TypeInstagramDM)
	require.NoError(t, err)
	ok, err := q.Retry(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, string(StatusDeadLetter), mr.HGet(metadataKey(msg.ID), "status"))
}

func TestRetryUnknownMessage(t *testing.T) {
	q, _ := newTestQueue(t)
	ok, err := q.Retry(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	enqueueText(t, q, TypeInstagramDM, "a")
	enqueueText(t, q, TypeInstagramDM, "b")
	enqueueText(t, q, TypeNotification, "c")

	done := enqueueText(t, q, TypeSyncUpdate, "d")
	_, err := q.Dequeue(ctx, TypeSyncUpdate)
	require.NoError(t, err)
	require.NoError(t, q.MarkCompleted(ctx, done.ID))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats[TypeInstagramDM.QueueName()])
	assert.EqualValues(t, 1, stats[TypeNotification.QueueName()])
	assert.EqualValues(t, 0, stats[TypeSyncUpdate.QueueName()])
	assert.EqualValues(t, 4, stats[PriorityNormal.QueueName()])
	assert.EqualValues(t, 1, stats["completed"])
}

func TestHealthCheck(t *testing.T) {
	q, mr := newTestQueue(t)

	health := q.HealthCheck(context.Background())
	assert.Equal(t, "healthy", health.Status)

	mr.Close()
	health = q.HealthCheck(context.Background())
	assert.Equal(t, "unhealthy", health.Status)
	assert.NotEmpty(t, health.Error)
}

func TestWorkerPoolProcessesMessages(t *testing.T) {
	q, _ := newTestQueue(t)

	received := make(chan *Message, 1)
	pool := NewWorkerPool(q, nil)
	pool.Register(TypeNotification, func(_ context.Context, msg *Message) error {
		received <- msg
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = pool.Run(ctx) }()

	sent := enqueueText(t, q, TypeNotification, "ping")

	select {
	case got := <-received:
		assert.Equal(t, sent.ID, got.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("worker never processed the message")
	}
}

func TestPriorityIndexIsCapped(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < priorityIndexCap+5; i++ {
		enqueueText(t, q, TypeInstagramDM, "bulk")
	}

	// The drain queue keeps everything; the inspection index is trimmed.
	typeLen, err := q.client.LLen(ctx, TypeInstagramDM.QueueName()).Result()
	require.NoError(t, err)
	assert.EqualValues(t, priorityIndexCap+5, typeLen)
	prioLen, err := q.client.LLen(ctx, PriorityNormal.QueueName()).Result()
	require.NoError(t, err)
	assert.EqualValues(t, priorityIndexCap, prioLen)
}

func TestDequeueSurvivesMetadataWriteFailure(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	sent := enqueueText(t, q, TypeInstagramDM, "hello")

	// Corrupt the metadata key so the processing transition cannot be
	// written; the dequeue itself must still hand the message over.
	mr.Del(metadataKey(sent.ID))
	require.NoError(t, mr.Set(metadataKey(sent.ID), "not-a-hash"))

	got, err := q.Dequeue(ctx, TypeInstagramDM)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sent.ID, got.ID)
}
