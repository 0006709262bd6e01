package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Handler processes one dequeued message. Returning an error marks the
// message failed and schedules a retry.
type Handler func(ctx context.Context, msg *Message) error

// WorkerPool runs one consumer goroutine per registered message type,
// each draining its type queue with the blocking dequeue timeout as the
// poll interval.
type WorkerPool struct {
	queue  *Queue
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[MessageType]Handler
	wg       sync.WaitGroup
	running  bool
}

// NewWorkerPool creates an empty pool over the queue.
func NewWorkerPool(q *Queue, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		queue:    q,
		logger:   logger.With("component", "queue_worker"),
		handlers: map[MessageType]Handler{},
	}
}

// Register binds a handler to a message type. Must be called before Run.
func (w *WorkerPool) Register(msgType MessageType, handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[msgType] = handler
	w.logger.Info("Registered consumer", "message_type", msgType)
}

// Run starts one worker per registered type and blocks until the context
// is cancelled and all workers have drained their in-flight message.
func (w *WorkerPool) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running || len(w.handlers) == 0 {
		w.mu.Unlock()
		if len(w.handlers) == 0 {
			w.logger.Warn("No consumers registered")
		}
		<-ctx.Done()
		return ctx.Err()
	}
	w.running = true
	handlers := make(map[MessageType]Handler, len(w.handlers))
	for t, h := range w.handlers {
		handlers[t] = h
	}
	w.mu.Unlock()

	for msgType, handler := range handlers {
		w.wg.Add(1)
		go w.consume(ctx, msgType, handler)
	}

	<-ctx.Done()
	w.wg.Wait()
	w.logger.Info("All consumer workers stopped")
	return ctx.Err()
}

func (w *WorkerPool) consume(ctx context.Context, msgType MessageType, handler Handler) {
	defer w.wg.Done()
	w.logger.Info("Consumer worker started", "message_type", msgType)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Consumer worker stopped", "message_type", msgType)
			return
		default:
		}

		msg, err := w.queue.Dequeue(ctx, msgType)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("Consumer dequeue error", "message_type", msgType, "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if msg == nil {
			continue
		}

		w.process(ctx, msg, handler)
	}
}

func (w *WorkerPool) process(ctx context.Context, msg *Message, handler Handler) {
	if err := handler(ctx, msg); err != nil {
		w.logger.Error("Error processing message", "message_id", msg.ID, "error", err)
		if markErr := w.queue.MarkFailed(ctx, msg.ID, err.Error()); markErr != nil {
			w.logger.Error("Failed to record message failure", "message_id", msg.ID, "error", markErr)
		}
		if _, retryErr := w.queue.Retry(ctx, msg.ID); retryErr != nil {
			w.logger.Error("Failed to schedule retry", "message_id", msg.ID, "error", retryErr)
		}
		return
	}

	if err := w.queue.MarkCompleted(ctx, msg.ID); err != nil {
		w.logger.Error("Failed to record completion", "message_id", msg.ID, "error", err)
	}
}
