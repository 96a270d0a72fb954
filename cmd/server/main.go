package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/nzuziariete/Chat-Aribeth/internal/api"
	"github.com/nzuziariete/Chat-Aribeth/internal/chat"
	"github.com/nzuziariete/Chat-Aribeth/internal/config"
	"github.com/nzuziariete/Chat-Aribeth/internal/presence"
	"github.com/nzuziariete/Chat-Aribeth/internal/redis"
	"github.com/nzuziariete/Chat-Aribeth/internal/store"
	"github.com/nzuziariete/Chat-Aribeth/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env file not found, using environment", "error", err)
	}

	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	db, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to open message store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}

	persister := store.NewPersister(db, store.PersisterConfig{
		QueueSize:    cfg.PersistQueueSize,
		Workers:      cfg.PersistWorkers,
		WriteTimeout: cfg.PersistTimeout,
	}, logger)
	if err := persister.Start(); err != nil {
		slog.Error("Failed to start persister", "error", err)
		os.Exit(1)
	}

	// Create hub
	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := ws.NewHub(logger)
	go hub.Run(hubCtx)

	service := chat.NewService(presence.NewRegistry(), hub, persister, chat.WithLogger(logger))

	wsServer := ws.NewServer(hub, service, ws.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxMessageSize: cfg.MaxMessageSize,
		RateBurst:      cfg.RateLimitBurst,
		RatePerSecond:  cfg.RateLimitPerSecond,
	}, logger)

	h := &api.Handler{
		Store:        db,
		Roster:       service,
		Connections:  hub,
		Persistence:  persister,
		WebSocket:    wsServer,
		HistoryLimit: cfg.HistoryLimit,
		Logger:       logger,
	}

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(h.SetupRouter()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Chat server starting", "port", cfg.Port, "store", cfg.StoreDriver, "websocket", "/ws")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			// One operation so the steps stay ordered.
			"chat-server": func(ctx context.Context) error {
				slog.Info("Graceful shutdown initiated...")

				var errs []error
				if err := srv.Shutdown(ctx); err != nil {
					errs = append(errs, fmt.Errorf("http shutdown: %w", err))
				}

				stopHub()
				select {
				case <-hub.Done():
				case <-ctx.Done():
				}

				if err := persister.Stop(ctx); err != nil {
					errs = append(errs, fmt.Errorf("persister drain: %w", err))
				}
				stats := persister.Stats()
				slog.Info("Persistence totals", "persisted", stats.Persisted, "failed", stats.Failed, "dropped", stats.Dropped)

				if err := db.Close(); err != nil {
					errs = append(errs, fmt.Errorf("store close: %w", err))
				}
				return errors.Join(errs...)
			},
		},
	)

	exitCode := <-wait
	slog.Info("Application exited", "code", exitCode)
	os.Exit(exitCode)
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		return store.OpenSQLite(cfg.DBPath, cfg.DBDebug)
	case config.DriverRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return redis.NewClient(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
