package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewSyncHandler returns a handler for the admin-only /sync command. It
// runs a sync cycle inline and reports the result.
func NewSyncHandler(deps HandlerDeps) bot.HandlerFunc {
	return syncHandler{deps}.Handle
}

type syncHandler struct {
	deps HandlerDeps
}

func (h syncHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "sync")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Sync handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Handling /sync command", "chat_id", chatID, "user_id", update.Message.From.ID)

	h.deps.touchSession(ctx, update.Message.From.ID, chatID)

	sendReply(ctx, b, log, chatID, "Sync started…")

	result := h.deps.Sync.ManualSync(ctx)
	if result.Status != "completed" {
		log.ErrorContext(ctx, "Manual sync failed", "error", result.Error)
		sendReply(ctx, b, log, chatID, fmt.Sprintf("Sync failed: %s", result.Error))
		return
	}

	sendReply(ctx, b, log, chatID, fmt.Sprintf(
		"Sync completed in %.1fs: %d users, %d threads, %d messages.",
		result.DurationSeconds,
		result.Stats.UsersSynced, result.Stats.ThreadsSynced, result.Stats.MessagesSynced))
}
