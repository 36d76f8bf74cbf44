package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"meggy/backend/internal/config"
	"meggy/backend/internal/db"
	"meggy/backend/internal/handler"
	"meggy/backend/internal/monitor"
	"meggy/backend/internal/notify"
	"meggy/backend/internal/repository"
	"meggy/backend/internal/router"
	"meggy/backend/internal/service"
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

	userRepo := repository.NewUserRepository(database)
	timerRepo := repository.NewTimerRepository(database)

	hub := notify.NewHub(logger)
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.TokenTTL)
	timerService := service.NewTimerService(timerRepo, hub, logger)

	authHandler := handler.NewAuthHandler(authService)
	timerHandler := handler.NewTimerHandler(timerService)
	eventsHandler := handler.NewEventsHandler(hub)

	engine := router.New(authService, authHandler, timerHandler, eventsHandler, cfg.CORSOrigins)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	timerMonitor := monitor.New(timerRepo, hub, logger, monitor.Config{
		Interval:         cfg.MonitorInterval,
		WarningThreshold: cfg.WarningThreshold,
		TickEnabled:      cfg.MonitorTick,
	})
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		timerMonitor.Run(ctx)
	}()

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	go func() {
		logger.Info("backend listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("run server", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown server", zap.Error(err))
	}
	<-monitorDone
}
