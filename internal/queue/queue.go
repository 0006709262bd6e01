package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edgard/instabridge/internal/config"
)

// priorityIndexCap bounds each priority inspection list.
const priorityIndexCap = 1000

// Queue is the Redis-backed message queue. Every message is pushed onto
// its type queue (the drain path) and its priority queue (an inspection
// index), with a metadata hash at msg:{id} tracking lifecycle status.
type Queue struct {
	client      *redis.Client
	logger      *slog.Logger
	metadataTTL time.Duration
	dequeueWait time.Duration
	maxRetries  int
}

// New creates the queue and verifies the Redis connection.
func New(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Message queue initialized", "addr", cfg.Addr)
	return &Queue{
		client:      client,
		logger:      logger.With("component", "queue"),
		metadataTTL: cfg.MetadataTTL,
		dequeueWait: cfg.DequeueTimeout,
		maxRetries:  cfg.MaxRetries,
	}, nil
}

// NewWithClient wraps an existing client, used by tests.
func NewWithClient(client *redis.Client, cfg config.RedisConfig, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		client:      client,
		logger:      logger.With("component", "queue"),
		metadataTTL: cfg.MetadataTTL,
		dequeueWait: cfg.DequeueTimeout,
		maxRetries:  cfg.MaxRetries,
	}
}

// Close releases the Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}

func metadataKey(id string) string { return "msg:" + id }

// Enqueue pushes a message onto its type and priority queues and writes
// its metadata hash. The serialized envelope is kept in the metadata so
// Retry can re-enqueue the original payload.
func (q *Queue) Enqueue(ctx context.Context, msg *Message) error {
	if msg.MaxRetries == 0 {
		msg.MaxRetries = q.maxRetries
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message %s: %w", msg.ID, err)
	}

	queueName := msg.Type.QueueName()
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, queueName, data)
	pipe.LPush(ctx, msg.Priority.QueueName(), data)
	// The priority lists are an inspection index, not a drain source;
	// cap them so they cannot grow without bound.
	pipe.LTrim(ctx, msg.Priority.QueueName(), 0, priorityIndexCap-1)
	pipe.HSet(ctx, metadataKey(msg.ID), map[string]any{
		"status":      string(StatusQueued),
		"queued_at":   time.Now().UTC().Format(time.RFC3339),
		"queue":       queueName,
		"priority":    string(msg.Priority),
		"retry_count": msg.RetryCount,
		"max_retries": msg.MaxRetries,
		"envelope":    string(data),
	})
	pipe.Expire(ctx, metadataKey(msg.ID), q.metadataTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue message %s: %w", msg.ID, err)
	}

	q.logger.Debug("Message enqueued",
		"message_id", msg.ID, "queue", queueName, "priority", msg.Priority)
	return nil
}

// Dequeue blocks up to the configured timeout waiting for a message of
// the given type. A nil message with nil error means the queue was empty.
func (q *Queue) Dequeue(ctx context.Context, msgType MessageType) (*Message, error) {
	result, err := q.client.BRPop(ctx, q.dequeueWait, msgType.QueueName()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue from %s: %w", msgType.QueueName(), err)
	}
	// BRPop returns [key, value].
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP result length %d", len(result))
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to decode queued message: %w", err)
	}

	err = q.client.HSet(ctx, metadataKey(msg.ID),
		"status", string(StatusProcessing),
		"dequeued_at", time.Now().UTC().Format(time.RFC3339)).Err()
	if err != nil {
		q.logger.Warn("Failed to mark message processing",
			"message_id", msg.ID, "error", err)
	}

	q.logger.Debug("Message dequeued", "message_id", msg.ID, "queue", msgType.QueueName())
	return &msg, nil
}

// MarkCompleted records successful processing.
func (q *Queue) MarkCompleted(ctx context.Context, messageID string) error {
	err := q.client.HSet(ctx, metadataKey(messageID),
		"status", string(StatusCompleted),
		"completed_at", time.Now().UTC().Format(time.RFC3339)).Err()
	if err != nil {
		return fmt.Errorf("failed to mark message %s completed: %w", messageID, err)
	}
	return nil
}

// MarkFailed records a processing failure with its reason.
func (q *Queue) MarkFailed(ctx context.Context, messageID, reason string) error {
	err := q.client.HSet(ctx, metadataKey(messageID),
		"status", string(StatusFailed),
		"failed_at", time.Now().UTC().Format(time.RFC3339),
		"error", reason).Err()
	if err != nil {
		return fmt.Errorf("failed to mark message %s failed: %w", messageID, err)
	}
	return nil
}

// Retry re-enqueues a failed message from its stored envelope. Once the
// retry count reaches the bound the message moves to dead_letter and
// false is returned.
func (q *Queue) Retry(ctx context.Context, messageID string) (bool, error) {
	key := metadataKey(messageID)
	meta, err := q.client.HGetAll(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to load metadata for %s: %w", messageID, err)
	}
	if len(meta) == 0 {
		q.logger.Warn("Message metadata not found for retry", "message_id", messageID)
		return false, nil
	}

	retryCount, _ := strconv.Atoi(meta["retry_count"])
	maxRetries, _ := strconv.Atoi(meta["max_retries"])
	if maxRetries == 0 {
		maxRetries = q.maxRetries
	}
	if retryCount >= maxRetries {
		q.logger.Warn("Message exceeded max retries, moving to dead letter",
			"message_id", messageID, "retry_count", retryCount)
		if err := q.client.HSet(ctx, key, "status", string(StatusDeadLetter)).Err(); err != nil {
			return false, fmt.Errorf("failed to dead-letter message %s: %w", messageID, err)
		}
		return false, nil
	}

	var msg Message
	if err := json.Unmarshal([]byte(meta["envelope"]), &msg); err != nil {
		return false, fmt.Errorf("failed to decode stored envelope for %s: %w", messageID, err)
	}
	msg.RetryCount = retryCount + 1

	data, err := json.Marshal(&msg)
	if err != nil {
		return false, fmt.Errorf("failed to encode retry for %s: %w", messageID, err)
	}

	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, msg.Type.QueueName(), data)
	pipe.HSet(ctx, key,
		"status", string(StatusRetrying),
		"retry_count", msg.RetryCount,
		"envelope", string(data),
		"retry_at", time.Now().UTC().Format(time.RFC3339))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to re-enqueue message %s: %w", messageID, err)
	}

	q.logger.Debug("Message scheduled for retry",
		"message_id", messageID, "retry_count", msg.RetryCount)
	return true, nil
}

// Stats reports queue depths per type and priority plus lifecycle counts
// scanned from message metadata.
func (q *Queue) Stats(ctx context.Context) (map[string]int64, error) {
	stats := map[string]int64{}

	for _, t := range AllTypes {
		n, err := q.client.LLen(ctx, t.QueueName()).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read length of %s: %w", t.QueueName(), err)
		}
		stats[t.QueueName()] = n
	}
	for _, p := range AllPriorities {
		n, err := q.client.LLen(ctx, p.QueueName()).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read length of %s: %w", p.QueueName(), err)
		}
		stats[p.QueueName()] = n
	}

	var cursor uint64
	for {
		keys, next, err := q.client.Scan(ctx, cursor, "msg:*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan message metadata: %w", err)
		}
		for _, key := range keys {
			status, err := q.client.HGet(ctx, key, "status").Result()
			if err != nil {
				continue
			}
			switch Status(status) {
			case StatusProcessing:
				stats["processing"]++
			case StatusFailed:
				stats["failed"]++
			case StatusCompleted:
				stats["completed"]++
			case StatusDeadLetter:
				stats["dead_letter"]++
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return stats, nil
}

// HealthStatus is the structured result of a queue health check.
type HealthStatus struct {
	Status     string  `json:"status"`
	PingTimeMs float64 `json:"ping_time_ms,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// HealthCheck pings Redis and reports a structured status without
// returning an error.
func (q *Queue) HealthCheck(ctx context.Context) HealthStatus {
	start := time.Now()
	if err := q.client.Ping(ctx).Err(); err != nil {
		return HealthStatus{Status: "unhealthy", Error: err.Error()}
	}
	return HealthStatus{
		Status:     "healthy",
		PingTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
}
