package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"youtrack_notification_bot/internal/app"
	"youtrack_notification_bot/internal/domain/channel"
	"youtrack_notification_bot/internal/domain/schedule"
	"youtrack_notification_bot/internal/infra/config"
	idb "youtrack_notification_bot/internal/infra/database"
	"youtrack_notification_bot/internal/infra/filestore"
	"youtrack_notification_bot/internal/infra/logger"
	"youtrack_notification_bot/internal/infra/scheduler"
	"youtrack_notification_bot/internal/infra/telegram"
	"youtrack_notification_bot/internal/infra/youtrack"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	fmt.Println("YouTrack Notification Bot starting...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load application configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg)
	mainLogger := logger.Component(log, "main")
	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"storage":     cfg.StorageDriver,
		"tick":        cfg.TickInterval.String(),
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not open channel store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			mainLogger.WithError(err).Warn("Error closing channel store")
		}
	}()

	registry, err := app.LoadRegistry(ctx, store)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not load channel configuration")
	}
	mainLogger.Info("Channel registry loaded.")

	// Initialize Telegram Bot
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second, AllowedUpdates: []string{"message", "channel_post"}},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := logger.Component(log, "telebot").WithError(err)
			if c != nil && c.Chat() != nil {
				entry = entry.WithField("chat_id", c.Chat().ID)
			}
			entry.Error("Telegram handler error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not create Telegram bot")
	}

	deliverer := telegram.NewTelebotAdapter(bot, cfg.TelegramRatePerSec, cfg.TelegramMaxMessageSize, logger.Component(log, "telegram"))

	source := youtrack.NewClient(youtrack.Config{
		APIEndpoint:   cfg.YouTrackAPIEndpoint,
		Authorization: cfg.YouTrackAuthorization,
		MaxIssues:     cfg.YouTrackMaxIssues,
		IssueFields:   cfg.YouTrackIssueFields,
		IDField:       cfg.YouTrackIssueIDField,
		Timeout:       cfg.YouTrackRequestTimeout,
	}, logger.Component(log, "youtrack"))

	formatter := app.NewFormatter(cfg.YouTrackBaseURL, app.LinkStyle(cfg.LinkStyle))
	notificationService := app.NewNotificationService(
		registry,
		source,
		deliverer,
		formatter,
		schedule.NewEvaluator(cfg.TickInterval),
		logger.Component(log, "notifications"),
	)
	commandService := app.NewCommandService(registry, notificationService, logger.Component(log, "commands"))

	router := telegram.NewCommandRouter(commandService, deliverer, logger.Component(log, "telegram"))
	router.Register(ctx, bot)
	mainLogger.Info("Bot command handlers registered.")

	scanScheduler := scheduler.NewTickScheduler(notificationService, cfg.TickInterval, logger.Component(log, "scheduler"))
	if err := scanScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	// Start bot in a goroutine so it doesn't block graceful shutdown handling
	go bot.Start()
	mainLogger.Info("Application setup complete. Bot and Scheduler are running.")

	<-ctx.Done() // Block until a signal is received

	mainLogger.Info("Shutting down application...")
	scanScheduler.Stop()
	bot.Stop()
	mainLogger.Info("Application shut down gracefully.")
}

func openStore(ctx context.Context, cfg *config.AppConfig) (channel.Store, error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store, err := idb.NewSQLChannelStore(ctx, db, idb.DialectPostgres)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	case config.StorageSQLite:
		db, err := idb.NewSQLiteConnection(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		store, err := idb.NewSQLChannelStore(ctx, db, idb.DialectSQLite)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	default:
		return filestore.NewYAMLStore(cfg.StoragePath), nil
	}
}
