package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"changewindow-tracker/internal/config"
	"changewindow-tracker/internal/database"
	"changewindow-tracker/internal/events"
	httpapi "changewindow-tracker/internal/http"
	"changewindow-tracker/internal/importer"
	"changewindow-tracker/internal/logger"
	"changewindow-tracker/internal/repository"
	"changewindow-tracker/internal/service"
	"changewindow-tracker/internal/store"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "changewindow-tracker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting changewindow-tracker service")

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	redisClient := store.NewRedisClient(cfg)
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	redisUp := redisClient.Ping(pingCtx).Err() == nil
	pingCancel()

	plannedRepo := repository.NewPostgresPlannedRepository(db)
	controlRepo := repository.NewPostgresControlRepository(db)
	rollbackRepo := repository.NewPostgresRollbackRepository(db)
	parser := importer.NewParser(cfg.Tracker.Groups, log)

	var svc *service.TrackerService
	if redisUp {
		kv := store.NewRedisKVStore(redisClient)
		cache := store.NewRollbackCache(kv, time.Duration(cfg.Tracker.RollbackCacheTTL)*time.Second, log)
		publisher := events.NewStreamPublisher(redisClient, cfg.Tracker.TransitionStream, log)
		svc = service.NewTrackerService(
			plannedRepo, controlRepo, rollbackRepo,
			cache, publisher, parser,
			cfg.Tracker.Groups, log,
		)
	} else {
		// The service still works without Redis: listings read the rollback
		// flags from Postgres and transitions simply go unpublished.
		log.Warn("Redis unavailable, running without cache and event stream")
		svc = service.NewTrackerService(
			plannedRepo, controlRepo, rollbackRepo,
			nil, nil, parser,
			cfg.Tracker.Groups, log,
		)
	}

	handler := httpapi.NewTrackerHandler(svc, db, log)
	auth := httpapi.NewAuthenticator(cfg.Auth.JWTSecret)
	if cfg.Auth.JWTSecret == "" {
		log.Warn("AUTH_JWT_SECRET is empty, API authentication disabled")
	}

	router := httpapi.NewRouter(log)
	router.RegisterTrackerRoutes(handler, auth)

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		log.Error("Server error", zap.Error(err))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	_ = redisClient.Close()
	_ = db.Close()

	log.Info("Service stopped")
}
