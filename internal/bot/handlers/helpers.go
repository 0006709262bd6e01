package handlers

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
)

// sendReply sends a plain-text reply and logs delivery failures. Handlers
// never surface Telegram transport errors to the user.
func sendReply(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", chatID)
	}
}
