package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/instabridge/internal/database"
)

const threadListLimit = 20

// NewThreadsHandler returns a handler for the /threads command. It lists
// the most recently active Instagram conversations.
func NewThreadsHandler(deps HandlerDeps) bot.HandlerFunc {
	return threadsHandler{deps}.Handle
}

type threadsHandler struct {
	deps HandlerDeps
}

func (h threadsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "threads")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Threads handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	log.InfoContext(ctx, "Handling /threads command",
		"chat_id", update.Message.Chat.ID, "user_id", update.Message.From.ID)

	h.deps.touchSession(ctx, update.Message.From.ID, update.Message.Chat.ID)

	threads, err := h.deps.Store.ListThreads(ctx, threadListLimit)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list threads", "error", err)
		sendReply(ctx, b, log, update.Message.Chat.ID, h.deps.Config.Telegram.MsgGeneralError)
		return
	}

	if len(threads) == 0 {
		sendReply(ctx, b, log, update.Message.Chat.ID, h.deps.Config.Telegram.MsgNoThreads)
		return
	}

	sendReply(ctx, b, log, update.Message.Chat.ID, formatThreadList(threads))
}

func formatThreadList(threads []database.InstagramThread) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Conversations (%d):\n", len(threads))
	for i, t := range threads {
		title := t.Title
		if title == "" {
			title = strings.Join(t.Participants, ", ")
		}
		kind := "direct"
		if t.IsGroup {
			kind = "group"
		}
		fmt.Fprintf(&sb, "%d. %s [%s, %d messages]\n   id: %s\n", i+1, title, kind, t.MessageCount, t.ThreadID)
	}
	return sb.String()
}
