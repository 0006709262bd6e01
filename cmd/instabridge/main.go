// Package main contains the entrypoint for the Instagram bridge application.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/instabridge/internal/bot"
	"github.com/edgard/instabridge/internal/bot/handlers"
	"github.com/edgard/instabridge/internal/config"
	"github.com/edgard/instabridge/internal/database"
	"github.com/edgard/instabridge/internal/instagram"
	"github.com/edgard/instabridge/internal/logger"
	"github.com/edgard/instabridge/internal/normalize"
	"github.com/edgard/instabridge/internal/queue"
	"github.com/edgard/instabridge/internal/realtime"
	"github.com/edgard/instabridge/internal/server"
	"github.com/edgard/instabridge/internal/sync"
	"github.com/edgard/instabridge/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger,
// database, queue, Instagram client, sync loop, HTTP server, Telegram
// bot), handles graceful shutdown, and returns an exit code.
func run(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	log := logger.New(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db := database.NewDB(cfg.Database, log)
	if err := db.Connect(ctx); err != nil {
		log.Error("Failed to connect to database", "uri", cfg.Database.URI, "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db.Disconnect(shutdownCtx)
	}()
	store := database.NewStore(db, log)

	q, err := queue.New(ctx, cfg.Redis, log)
	if err != nil {
		log.Error("Failed to connect to Redis", "addr", cfg.Redis.Addr, "error", err)
		return 1
	}
	defer func() {
		if err := q.Close(); err != nil {
			log.Warn("Error closing Redis connection", "error", err)
		}
	}()

	media, err := normalize.NewMediaCache(cfg.Media, log)
	if err != nil {
		log.Error("Failed to initialize media cache", "dir", cfg.Media.CacheDir, "error", err)
		return 1
	}
	processor := normalize.NewProcessor(media, log)

	igClient := instagram.NewClient(instagram.NewWebAPI(), cfg.Instagram, log)
	if err := igClient.Authenticate(ctx); err != nil {
		log.Error("Failed to authenticate with Instagram", "username", cfg.Instagram.Username, "error", err)
		return 1
	}
	defer igClient.Close()

	orch := sync.NewOrchestrator(igClient, store, processor, q, cfg.Sync, log)

	var hub *realtime.Hub
	workers := queue.NewWorkerPool(q, log)
	if cfg.Realtime.Enabled {
		hub = realtime.NewHub(cfg.Realtime, log)
		realtime.NewNotifier(hub, log).RegisterConsumers(workers)
	}

	srv := server.New(cfg.Server, cfg.Security, log, store, db, q, hub, orch, processor, media)

	hDeps := handlers.HandlerDeps{
		Logger: log,
		Config: cfg,
		Store:  store,
		Sender: igClient,
		Sync:   orch,
	}

	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, tgbot.WithMiddlewares(logger.BotMiddleware(log)))
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}
	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	app := bot.NewBot(log, cfg, db, store, tg, orch, srv, workers)

	log.Info("Starting bridge...")
	runErr := app.Run(ctx)
	log.Info("Run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bridge stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bridge stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
