// Package sync orchestrates the periodic pull of Instagram data into the
// store: users first, then threads, then messages, with per-item errors
// skipped and whole-cycle failures retried with exponential backoff.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edgard/instabridge/internal/config"
	"github.com/edgard/instabridge/internal/database"
	"github.com/edgard/instabridge/internal/instagram"
	"github.com/edgard/instabridge/internal/normalize"
	"github.com/edgard/instabridge/internal/queue"
)

// Source is the slice of the Instagram client the orchestrator needs.
type Source interface {
	TestConnection(ctx context.Context) error
	DirectThreads(ctx context.Context, limit int) ([]instagram.RawThread, error)
	ThreadMessages(ctx context.Context, threadID string, limit int, maxID string) ([]instagram.RawMessage, error)
}

// Stats accumulates sync counters across cycles.
type Stats struct {
	TotalSyncs      int `json:"total_syncs"`
	SuccessfulSyncs int `json:"successful_syncs"`
	FailedSyncs     int `json:"failed_syncs"`
	UsersSynced     int `json:"total_users_synced"`
	ThreadsSynced   int `json:"total_threads_synced"`
	MessagesSynced  int `json:"total_messages_synced"`
}

// StatusInfo is the queryable orchestrator state. Reading it never
// blocks on a running cycle.
type StatusInfo struct {
	IsRunning    bool       `json:"is_running"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	NextSyncTime *time.Time `json:"next_sync_time,omitempty"`
	SyncInterval string     `json:"sync_interval"`
	Stats        Stats      `json:"stats"`
}

// Result reports the outcome of a manual sync.
type Result struct {
	Status          string  `json:"status"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Error           string  `json:"error,omitempty"`
	Stats           Stats   `json:"stats"`
}

// Orchestrator drives sync cycles. A failed cycle is retried with
// exponential backoff up to the configured bound, then abandoned; the
// orchestrator itself keeps running for the next scheduled cycle.
type Orchestrator struct {
	source    Source
	store     database.Store
	processor *normalize.Processor
	queue     *queue.Queue
	cfg       config.SyncConfig
	logger    *slog.Logger

	mu       sync.Mutex
	stats    Stats
	lastSync *time.Time
	running  bool

	// sleep is swapped in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires the sync pipeline. The queue is optional; when
// present, completed cycles and newly stored messages publish events.
func NewOrchestrator(source Source, store database.Store, processor *normalize.Processor, q *queue.Queue, cfg config.SyncConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		source:    source,
		store:     store,
		processor: processor,
		queue:     q,
		cfg:       cfg,
		logger:    logger.With("component", "sync"),
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunCycle executes one sync cycle with retry handling. The returned
// error reflects the final outcome after retries; callers ignoring it
// (the scheduler does) keep running regardless.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	err := o.cycle(ctx)
	if err == nil {
		return nil
	}

	o.logger.Error("Sync cycle failed", "error", err)
	o.addFailed()

	for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
		delay := o.cfg.RetryDelay * (1 << uint(attempt-1))
		o.logger.Info("Retrying sync",
			"attempt", attempt, "max_retries", o.cfg.MaxRetries, "delay", delay)
		if sleepErr := o.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}

		if connErr := o.source.TestConnection(ctx); connErr != nil {
			o.logger.Error("Retry attempt failed, connection still down",
				"attempt", attempt, "error", connErr)
			err = connErr
			continue
		}

		o.logger.Info("Connection restored, retrying sync")
		if err = o.cycle(ctx); err == nil {
			return nil
		}
		o.logger.Error("Retry attempt failed", "attempt", attempt, "error", err)
	}

	o.logger.Error("Sync cycle abandoned after retries", "max_retries", o.cfg.MaxRetries)
	return fmt.Errorf("sync abandoned after %d retries: %w", o.cfg.MaxRetries, err)
}

// cycle is one connectivity check plus the three ordered phases.
func (o *Orchestrator) cycle(ctx context.Context) error {
	start := time.Now()
	o.logger.Info("Starting sync cycle")

	record := &database.SyncRecord{
		OperationID:   uuid.NewString(),
		OperationType: "full_sync",
		Status:        database.SyncStateInProgress,
		StartedAt:     start.UTC(),
	}

	if err := o.source.TestConnection(ctx); err != nil {
		o.finishRecord(ctx, record, database.SyncStateFailed, err)
		return fmt.Errorf("connectivity check failed: %w", err)
	}

	users, err := o.syncUsers(ctx)
	if err != nil {
		o.finishRecord(ctx, record, database.SyncStateFailed, err)
		return fmt.Errorf("users sync failed: %w", err)
	}
	record.UsersSynced = users

	threads, err := o.syncThreads(ctx)
	if err != nil {
		o.finishRecord(ctx, record, database.SyncStateFailed, err)
		return fmt.Errorf("threads sync failed: %w", err)
	}
	record.ThreadsSynced = threads

	messages, err := o.syncMessages(ctx)
	if err != nil {
		o.finishRecord(ctx, record, database.SyncStateFailed, err)
		return fmt.Errorf("messages sync failed: %w", err)
	}
	record.MessagesSynced = messages

	o.finishRecord(ctx, record, database.SyncStateCompleted, nil)

	now := time.Now()
	o.mu.Lock()
	o.lastSync = &now
	o.stats.TotalSyncs++
	o.stats.SuccessfulSyncs++
	o.stats.UsersSynced += users
	o.stats.ThreadsSynced += threads
	o.stats.MessagesSynced += messages
	o.mu.Unlock()

	o.publishSyncUpdate(ctx, record)
	o.logger.Info("Sync cycle completed",
		"duration", time.Since(start),
		"users", users, "threads", threads, "messages", messages)
	return nil
}

// syncUsers extracts users from the inbox threads and upserts each one.
// A bad user is logged and skipped without failing the phase.
func (o *Orchestrator) syncUsers(ctx context.Context) (int, error) {
	o.logger.Info("Syncing users")

	threads, err := o.source.DirectThreads(ctx, 0)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, thread := range threads {
		for _, rawUser := range thread.Users {
			user, err := o.processor.User(rawUser)
			if err != nil {
				o.logger.Error("Error syncing user",
					"username", rawUser.Username, "error", err)
				continue
			}
			if _, err := o.store.UpsertUser(ctx, user); err != nil {
				o.logger.Error("Error syncing user",
					"username", rawUser.Username, "error", err)
				continue
			}
			synced++
		}
	}

	o.logger.Info("Users sync completed", "synced", synced)
	return synced, nil
}

func (o *Orchestrator) syncThreads(ctx context.Context) (int, error) {
	o.logger.Info("Syncing threads")

	threads, err := o.source.DirectThreads(ctx, 0)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, rawThread := range threads {
		thread, err := o.processor.Thread(rawThread)
		if err != nil {
			o.logger.Error("Error syncing thread",
				"thread_id", rawThread.ThreadID, "error", err)
			continue
		}
		if _, err := o.store.UpsertThread(ctx, thread); err != nil {
			o.logger.Error("Error syncing thread",
				"thread_id", rawThread.ThreadID, "error", err)
			continue
		}
		synced++
	}

	o.logger.Info("Threads sync completed", "synced", synced)
	return synced, nil
}

// syncMessages walks the stored threads rather than the live inbox, so
// a thread that vanished upstream still finishes its backlog.
func (o *Orchestrator) syncMessages(ctx context.Context) (int, error) {
	o.logger.Info("Syncing messages")

	threads, err := o.store.ListThreads(ctx, 100)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, thread := range threads {
		messages, err := o.source.ThreadMessages(ctx, thread.ThreadID, 0, "")
		if err != nil {
			o.logger.Error("Error syncing messages for thread",
				"thread_id", thread.ThreadID, "error", err)
			continue
		}

		for _, rawMsg := range messages {
			msg, err := o.processor.Message(ctx, rawMsg)
			if err != nil {
				o.logger.Error("Error syncing message",
					"message_id", rawMsg.MessageID, "error", err)
				continue
			}
			outcome, err := o.store.UpsertMessage(ctx, msg)
			if err != nil {
				o.logger.Error("Error syncing message",
					"message_id", rawMsg.MessageID, "error", err)
				continue
			}
			synced++
			if outcome == database.OutcomeCreated {
				o.publishNewMessage(ctx, msg)
			}
		}

		if err := o.store.SetThreadSyncState(ctx, thread.ThreadID, database.SyncStateCompleted); err != nil {
			o.logger.Warn("Failed to update thread sync state",
				"thread_id", thread.ThreadID, "error", err)
		}
	}

	o.logger.Info("Messages sync completed", "synced", synced)
	return synced, nil
}

func (o *Orchestrator) finishRecord(ctx context.Context, record *database.SyncRecord, state database.SyncState, cause error) {
	now := time.Now().UTC()
	record.Status = state
	record.CompletedAt = &now
	if cause != nil {
		record.ErrorMessage = cause.Error()
	}
	if err := o.store.SaveSyncRecord(ctx, record); err != nil {
		o.logger.Warn("Failed to save sync record",
			"operation_id", record.OperationID, "error", err)
	}
}

func (o *Orchestrator) publishNewMessage(ctx context.Context, msg *database.InstagramMessage) {
	if o.queue == nil {
		return
	}
	event, err := queue.NewMessage(queue.TypeInstagramDM, map[string]any{
		"message_id":   msg.MessageID,
		"thread_id":    msg.ThreadID,
		"sender_id":    msg.SenderID,
		"message_type": msg.MessageType,
		"content":      msg.Content,
	})
	if err != nil {
		o.logger.Warn("Failed to build message event", "message_id", msg.MessageID, "error", err)
		return
	}
	if err := o.queue.Enqueue(ctx, event); err != nil {
		o.logger.Warn("Failed to publish message event", "message_id", msg.MessageID, "error", err)
	}
}

func (o *Orchestrator) publishSyncUpdate(ctx context.Context, record *database.SyncRecord) {
	if o.queue == nil {
		return
	}
	event, err := queue.NewMessage(queue.TypeSyncUpdate, map[string]any{
		"operation_id":    record.OperationID,
		"status":          record.Status,
		"users_synced":    record.UsersSynced,
		"threads_synced":  record.ThreadsSynced,
		"messages_synced": record.MessagesSynced,
	})
	if err != nil {
		o.logger.Warn("Failed to build sync event", "error", err)
		return
	}
	if err := o.queue.Enqueue(ctx, event); err != nil {
		o.logger.Warn("Failed to publish sync event", "error", err)
	}
}

func (o *Orchestrator) addFailed() {
	o.mu.Lock()
	o.stats.TotalSyncs++
	o.stats.FailedSyncs++
	o.mu.Unlock()
}

// ManualSync runs one cycle on demand and reports a structured result.
func (o *Orchestrator) ManualSync(ctx context.Context) Result {
	o.logger.Info("Manual sync triggered")
	start := time.Now()

	if err := o.RunCycle(ctx); err != nil {
		return Result{Status: "failed", Error: err.Error(), Stats: o.snapshotStats()}
	}
	return Result{
		Status:          "completed",
		DurationSeconds: time.Since(start).Seconds(),
		Stats:           o.snapshotStats(),
	}
}

func (o *Orchestrator) snapshotStats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

// Status reports the orchestrator state without blocking on a running
// cycle.
func (o *Orchestrator) Status() StatusInfo {
	o.mu.Lock()
	defer o.mu.Unlock()

	info := StatusInfo{
		IsRunning:    o.running,
		LastSyncTime: o.lastSync,
		SyncInterval: o.cfg.Interval.String(),
		Stats:        o.stats,
	}
	if o.lastSync != nil {
		next := o.lastSync.Add(o.cfg.Interval)
		info.NextSyncTime = &next
	}
	return info
}

func (o *Orchestrator) setRunning(running bool) {
	o.mu.Lock()
	o.running = running
	o.mu.Unlock()
}
