package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const searchResultLimit = 10

// NewSearchHandler returns a handler for the /search command. It runs a
// case-insensitive text search over the stored message history.
func NewSearchHandler(deps HandlerDeps) bot.HandlerFunc {
	return searchHandler{deps}.Handle
}

type searchHandler struct {
	deps HandlerDeps
}

func (h searchHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "search")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Search handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Handling /search command", "chat_id", chatID, "user_id", update.Message.From.ID)

	h.deps.touchSession(ctx, update.Message.From.ID, chatID)

	query := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/search"))
	if query == "" {
		sendReply(ctx, b, log, chatID, "Usage: /search <text>")
		return
	}

	messages, err := h.deps.Store.SearchMessages(ctx, query, searchResultLimit)
	if err != nil {
		log.ErrorContext(ctx, "Message search failed", "error", err, "query", query)
		sendReply(ctx, b, log, chatID, h.deps.Config.Telegram.MsgGeneralError)
		return
	}

	if len(messages) == 0 {
		sendReply(ctx, b, log, chatID, fmt.Sprintf("No messages matching %q.", query))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d messages matching %q:\n", len(messages), query)
	for _, m := range messages {
		fmt.Fprintf(&sb, "• %s: %s\n  thread: %s\n", m.SenderID, m.Content, m.ThreadID)
	}
	sendReply(ctx, b, log, chatID, sb.String())
}
