package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/instabridge/internal/database"
)

const messageListLimit = 20

// NewMessagesHandler returns a handler for the /messages command. With an
// argument it shows that thread and remembers it as the session's active
// thread; without one it falls back to the previously selected thread.
func NewMessagesHandler(deps HandlerDeps) bot.HandlerFunc {
	return messagesHandler{deps}.Handle
}

type messagesHandler struct {
	deps HandlerDeps
}

func (h messagesHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "messages")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Messages handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Handling /messages command", "chat_id", chatID, "user_id", update.Message.From.ID)

	session := h.deps.touchSession(ctx, update.Message.From.ID, chatID)

	threadID := commandArgument(update.Message.Text)
	if threadID == "" && session != nil {
		threadID = session.ActiveThreadID
	}
	if threadID == "" {
		sendReply(ctx, b, log, chatID, h.deps.Config.Telegram.MsgNotLinked)
		return
	}

	thread, found, err := h.deps.Store.GetThread(ctx, threadID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load thread", "error", err, "thread_id", threadID)
		sendReply(ctx, b, log, chatID, h.deps.Config.Telegram.MsgGeneralError)
		return
	}
	if !found {
		sendReply(ctx, b, log, chatID, fmt.Sprintf("Unknown conversation: %s", threadID))
		return
	}

	if session != nil && session.ActiveThreadID != threadID {
		session.ActiveThreadID = threadID
		if err := h.deps.Store.SaveSession(ctx, session); err != nil {
			log.WarnContext(ctx, "Failed to persist active thread", "error", err, "thread_id", threadID)
		}
	}

	messages, err := h.deps.Store.ThreadMessages(ctx, threadID, messageListLimit)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load thread messages", "error", err, "thread_id", threadID)
		sendReply(ctx, b, log, chatID, h.deps.Config.Telegram.MsgGeneralError)
		return
	}

	if len(messages) == 0 {
		sendReply(ctx, b, log, chatID, h.deps.Config.Telegram.MsgNoMessages)
		return
	}

	sendReply(ctx, b, log, chatID, formatMessageList(thread, messages))
}

// commandArgument returns the first argument after the command token, or
// an empty string when the command was sent bare.
func commandArgument(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

func formatMessageList(thread *database.InstagramThread, messages []database.InstagramMessage) string {
	title := thread.Title
	if title == "" {
		title = thread.ThreadID
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s — last %d messages:\n", title, len(messages))
	for _, m := range messages {
		when := ""
		if m.InstagramTimestamp != nil {
			when = m.InstagramTimestamp.Format("Jan 2 15:04")
		}
		fmt.Fprintf(&sb, "[%s] %s: %s\n", when, m.SenderID, m.Content)
	}
	return sb.String()
}
