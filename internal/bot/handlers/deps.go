package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/instabridge/internal/config"
	"github.com/edgard/instabridge/internal/database"
	"github.com/edgard/instabridge/internal/sync"
)

// Sender is the slice of the Instagram client the bot needs for
// outbound messages.
type Sender interface {
	SendText(ctx context.Context, threadID, text string, userIDs []string) (string, error)
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger *slog.Logger
	Config *config.Config
	Store  database.Store
	Sender Sender
	Sync   *sync.Orchestrator
}

// touchSession refreshes the caller's chat session. Session failures are
// logged, never surfaced to the user.
func (d HandlerDeps) touchSession(ctx context.Context, userID, chatID int64) *database.ChatSession {
	session, err := d.Store.GetOrCreateSession(ctx, userID, chatID)
	if err != nil {
		d.Logger.Warn("Failed to load chat session", "user_id", userID, "error", err)
		return nil
	}
	session.Touch()
	if err := d.Store.SaveSession(ctx, session); err != nil {
		d.Logger.Warn("Failed to save chat session", "user_id", userID, "error", err)
	}
	return session
}
