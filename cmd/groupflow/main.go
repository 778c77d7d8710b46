// Package main contains the entrypoint for the groupflow service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgard/groupflow/internal/app"
	"github.com/edgard/groupflow/internal/config"
	"github.com/edgard/groupflow/internal/database"
	"github.com/edgard/groupflow/internal/ingest"
	"github.com/edgard/groupflow/internal/logger"
	"github.com/edgard/groupflow/internal/server"
	"github.com/edgard/groupflow/internal/tasks"
	"github.com/edgard/groupflow/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all application components (config, logger, db, telegram
// clients, server, scheduler), handles graceful shutdown, and returns an
// exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	bots, err := telegram.ResolveBots(cfg)
	if err != nil {
		log.Error("Failed to resolve bot identities", "error", err)
		return 1
	}

	var clients []*telegram.Client
	clientByID := make(map[telegram.BotID]*telegram.Client)
	for _, bc := range bots {
		client, clientErr := telegram.NewClient(bc, cfg.Telegram.APIBaseURL, cfg.Telegram.DropPendingUpdates, log)
		if clientErr != nil {
			log.Error("Failed to create Telegram client", "bot", string(bc.ID), "error", clientErr)
			return 1
		}
		clients = append(clients, client)
		clientByID[bc.ID] = client
	}

	// Outage notifications go through the notifications bot when it exists,
	// falling back to the main bot.
	notifier := clientByID[telegram.BotNotifications]
	if notifier == nil {
		notifier = clientByID[telegram.BotMain]
	}

	gate := telegram.NewRecoveryGate(cfg.Recovery.Cooldown, cfg.Recovery.MaxAttemptsHour)
	recovery := telegram.NewRecovery(gate, clients, notifier, cfg.Telegram.MonitoringChatID, log)
	monitor := telegram.NewMonitor(clients, log)

	processor := ingest.NewProcessor(store, log)
	srv := server.New(cfg, bots, processor, monitor, recovery, store, log)

	tDeps := tasks.TaskDeps{
		Logger:       log,
		Store:        store,
		Monitor:      monitor,
		Recovery:     recovery,
		HealthClient: clientByID[telegram.BotMain],
		Config:       cfg,
	}
	sched, err := tasks.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	application := app.New(log, cfg, srv.Handler(), clients, sched)

	log.Info("Starting groupflow...")
	runErr := application.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Service stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Service stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
