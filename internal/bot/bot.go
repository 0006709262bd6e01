// Package bot implements lifecycle management and component
// orchestration for the Instagram bridge application.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbot "github.com/go-telegram/bot"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/instabridge/internal/config"
	"github.com/edgard/instabridge/internal/database"
	"github.com/edgard/instabridge/internal/queue"
	"github.com/edgard/instabridge/internal/server"
	"github.com/edgard/instabridge/internal/sync"
)

// Bot is the top-level application: it owns the Telegram listener, the
// sync loop, the HTTP server and the queue consumers, and manages their
// shared lifecycle.
type Bot struct {
	logger  *slog.Logger
	cfg     *config.Config
	db      *database.DB
	store   database.Store
	tgBot   *tgbot.Bot
	orch    *sync.Orchestrator
	srv     *server.Server
	workers *queue.WorkerPool
}

// NewBot assembles the application from its fully constructed components.
func NewBot(
	logger *slog.Logger,
	cfg *config.Config,
	db *database.DB,
	store database.Store,
	tgBot *tgbot.Bot,
	orch *sync.Orchestrator,
	srv *server.Server,
	workers *queue.WorkerPool,
) *Bot {
	return &Bot{
		logger:  logger.With("component", "bot_orchestrator"),
		cfg:     cfg,
		db:      db,
		store:   store,
		tgBot:   tgBot,
		orch:    orch,
		srv:     srv,
		workers: workers,
	}
}

// Run starts every component and blocks until the context is cancelled
// or one of them fails. All components share one errgroup context, so a
// failure in any of them stops the rest.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting Telegram bot listener...")

		b.tgBot.Start(gCtx)
		b.logger.Info("Telegram bot listener stopped.")

		if gCtx.Err() == nil {
			b.logger.Warn("Telegram bot listener stopped unexpectedly without context cancellation.")

			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		b.logger.Info("Starting sync scheduler...")
		if err := b.orch.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("sync scheduler failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		b.logger.Info("Starting HTTP server...")
		if err := b.srv.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		b.logger.Info("Starting queue consumers...")
		if err := b.workers.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("queue consumers failed: %w", err)
		}
		return nil
	})

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}
