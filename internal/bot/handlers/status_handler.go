package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStatusHandler returns a handler for the /status command. It reports
// the sync loop state and the size of the stored dataset.
func NewStatusHandler(deps HandlerDeps) bot.HandlerFunc {
	return statusHandler{deps}.Handle
}

type statusHandler struct {
	deps HandlerDeps
}

func (h statusHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "status")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Status handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Handling /status command", "chat_id", chatID, "user_id", update.Message.From.ID)

	h.deps.touchSession(ctx, update.Message.From.ID, chatID)

	counts, err := h.deps.Store.Counts(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read store counts", "error", err)
		sendReply(ctx, b, log, chatID, h.deps.Config.Telegram.MsgGeneralError)
		return
	}

	info := h.deps.Sync.Status()

	var sb strings.Builder
	sb.WriteString("Bridge status\n")
	if info.IsRunning {
		sb.WriteString("Sync: running\n")
	} else {
		sb.WriteString("Sync: idle\n")
	}
	sb.WriteString("Interval: " + info.SyncInterval + "\n")
	if info.LastSyncTime != nil {
		fmt.Fprintf(&sb, "Last sync: %s\n", info.LastSyncTime.Format("Jan 2 15:04:05"))
	} else {
		sb.WriteString("Last sync: never\n")
	}
	if info.NextSyncTime != nil {
		fmt.Fprintf(&sb, "Next sync: %s\n", info.NextSyncTime.Format("Jan 2 15:04:05"))
	}
	fmt.Fprintf(&sb, "Cycles: %d total, %d ok, %d failed\n",
		info.Stats.TotalSyncs, info.Stats.SuccessfulSyncs, info.Stats.FailedSyncs)
	fmt.Fprintf(&sb, "Stored: %d users, %d threads, %d messages, %d sessions\n",
		counts.Users, counts.Threads, counts.Messages, counts.Sessions)

	sendReply(ctx, b, log, chatID, sb.String())
}
