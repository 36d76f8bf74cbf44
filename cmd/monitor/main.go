// Standalone timer monitor, for deployments that run the sweep loop in its
// own process instead of inside the API server.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"meggy/backend/internal/config"
	"meggy/backend/internal/db"
	"meggy/backend/internal/monitor"
	"meggy/backend/internal/notify"
	"meggy/backend/internal/repository"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
		logger.Fatal("run migrations", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	timerRepo := repository.NewTimerRepository(database)
	timerMonitor := monitor.New(timerRepo, notify.NewHub(logger), logger, monitor.Config{
		Interval:         cfg.MonitorInterval,
		WarningThreshold: cfg.WarningThreshold,
		TickEnabled:      cfg.MonitorTick,
	})

	timerMonitor.Run(ctx)
}
