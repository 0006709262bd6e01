package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/edgard/instabridge/internal/database"
	"github.com/edgard/instabridge/internal/instagram"
	"github.com/edgard/instabridge/internal/queue"
)

const signatureHeader = "X-Hub-Signature-256"

// maxWebhookBody bounds the request body read for signature checking.
const maxWebhookBody = 1 << 20

// webhookEvent is the envelope Instagram posts to the webhook endpoint.
type webhookEvent struct {
	EventType string                `json:"event_type"`
	Message   *instagram.RawMessage `json:"message,omitempty"`
	User      *instagram.RawUser    `json:"user,omitempty"`
	Thread    *instagram.RawThread  `json:"thread,omitempty"`
	Sync      map[string]any        `json:"sync,omitempty"`
	Error     map[string]any        `json:"error,omitempty"`
}

// handleWebhook verifies the HMAC signature over the raw body, then
// dispatches the event by type. Unknown event types are accepted and
// logged rather than rejected.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}

	if !s.verifySignature(body, r.Header.Get(signatureHeader)) {
		s.logger.Warn("Webhook signature verification failed")
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if err := s.dispatchEvent(r.Context(), event); err != nil {
		s.logger.Error("Error processing webhook event",
			"event_type", event.EventType, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "processing failed"})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// verifySignature checks the sha256= HMAC of the raw body. An empty
// configured secret skips verification unless signed webhooks are
// required.
func (s *Server) verifySignature(body []byte, signature string) bool {
	secret := s.cfg.WebhookSecret
	if secret == "" {
		if s.security.RequireSignedWebhooks {
			return false
		}
		s.logger.Warn("Webhook secret not configured, skipping signature verification")
		return true
	}
	// A configured secret makes signatures mandatory regardless of the
	// require_signed_webhooks toggle.
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func (s *Server) dispatchEvent(ctx context.Context, event webhookEvent) error {
	switch event.EventType {
	case "message":
		return s.handleMessageEvent(ctx, event)
	case "user":
		return s.handleUserEvent(ctx, event)
	case "thread":
		return s.handleThreadEvent(ctx, event)
	case "sync":
		return s.handleSyncEvent(ctx, event)
	case "error":
		s.logger.Error("Instagram webhook error event", "details", event.Error)
		return nil
	default:
		s.logger.Info("Ignoring unknown webhook event", "event_type", event.EventType)
		return nil
	}
}

func (s *Server) handleMessageEvent(ctx context.Context, event webhookEvent) error {
	if event.Message == nil {
		s.logger.Warn("No message data in webhook")
		return nil
	}

	msg, err := s.processor.Message(ctx, *event.Message)
	if err != nil {
		return err
	}

	outcome, err := s.store.UpsertMessage(ctx, msg)
	if err != nil {
		return err
	}

	if outcome == database.OutcomeCreated && s.queue != nil {
		dm, err := queue.NewMessage(queue.TypeInstagramDM, map[string]any{
			"message_id": msg.MessageID,
			"thread_id":  msg.ThreadID,
			"sender_id":  msg.SenderID,
			"content":    msg.Content,
		})
		if err == nil {
			if err := s.queue.Enqueue(ctx, dm); err != nil {
				s.logger.Warn("Failed to publish webhook message event", "error", err)
			}
		}
	}

	s.logger.Info("Processed message event", "message_id", msg.MessageID)
	return nil
}

func (s *Server) handleUserEvent(ctx context.Context, event webhookEvent) error {
	if event.User == nil {
		s.logger.Warn("No user data in webhook")
		return nil
	}

	user, err := s.processor.User(*event.User)
	if err != nil {
		return err
	}
	if _, err := s.store.UpsertUser(ctx, user); err != nil {
		return err
	}

	s.logger.Info("Processed user event", "username", user.Username)
	return nil
}

func (s *Server) handleThreadEvent(ctx context.Context, event webhookEvent) error {
	if event.Thread == nil {
		s.logger.Warn("No thread data in webhook")
		return nil
	}

	thread, err := s.processor.Thread(*event.Thread)
	if err != nil {
		return err
	}
	if _, err := s.store.UpsertThread(ctx, thread); err != nil {
		return err
	}

	s.logger.Info("Processed thread event", "thread_id", thread.ThreadID)
	return nil
}

func (s *Server) handleSyncEvent(ctx context.Context, event webhookEvent) error {
	if len(event.Sync) == 0 {
		s.logger.Warn("No sync data in webhook")
		return nil
	}

	if s.queue != nil {
		update, err := queue.NewMessage(queue.TypeSyncUpdate, event.Sync)
		if err != nil {
			return err
		}
		if err := s.queue.Enqueue(ctx, update); err != nil {
			return err
		}
	}

	s.logger.Info("Processed sync event")
	return nil
}
