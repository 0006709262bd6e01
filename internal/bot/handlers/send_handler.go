package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/instabridge/internal/database"
)

// NewSendHandler returns a handler for the admin-only /send command. It
// relays a text message into an Instagram thread and records the sent
// message in the local history.
func NewSendHandler(deps HandlerDeps) bot.HandlerFunc {
	return sendHandler{deps}.Handle
}

type sendHandler struct {
	deps HandlerDeps
}

func (h sendHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "send")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Send handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Handling /send command", "chat_id", chatID, "user_id", update.Message.From.ID)

	h.deps.touchSession(ctx, update.Message.From.ID, chatID)

	threadID, text, ok := parseSendArgs(update.Message.Text)
	if !ok {
		sendReply(ctx, b, log, chatID, "Usage: /send <thread_id> <text>")
		return
	}

	messageID, err := h.deps.Sender.SendText(ctx, threadID, text, nil)
	if err != nil {
		log.ErrorContext(ctx, "Failed to send Instagram message", "error", err, "thread_id", threadID)
		sendReply(ctx, b, log, chatID, h.deps.Config.Telegram.MsgGeneralError)
		return
	}

	now := time.Now().UTC()
	sent := &database.InstagramMessage{
		MessageID:          messageID,
		ThreadID:           threadID,
		SenderID:           h.deps.Config.Instagram.Username,
		MessageType:        database.MessageTypeText,
		Content:            text,
		Status:             database.MessageStatusSent,
		InstagramTimestamp: &now,
		Metadata:           map[string]any{"relayed_from_telegram": update.Message.From.ID},
	}
	if _, err := h.deps.Store.UpsertMessage(ctx, sent); err != nil {
		log.WarnContext(ctx, "Failed to record sent message", "error", err, "message_id", messageID)
	}

	sendReply(ctx, b, log, chatID, fmt.Sprintf("Sent to %s.", threadID))
}

// parseSendArgs splits "/send <thread_id> <text>". The thread id is the
// first token; everything after it is the message body.
func parseSendArgs(text string) (threadID, body string, ok bool) {
	rest := strings.TrimSpace(strings.TrimPrefix(text, "/send"))
	threadID, body, found := strings.Cut(rest, " ")
	if !found || threadID == "" || strings.TrimSpace(body) == "" {
		return "", "", false
	}
	return threadID, strings.TrimSpace(body), true
}
