package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/outlinehq/go-outline-editor/broadcast"
	"github.com/outlinehq/go-outline-editor/config"
	"github.com/outlinehq/go-outline-editor/outline"
	"github.com/outlinehq/go-outline-editor/server"
	"github.com/outlinehq/go-outline-editor/store"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	ctx := context.Background()

	nodes, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer nodes.Close()

	if cfg.CacheDocs > 0 {
		logger.Info().Int("docs", cfg.CacheDocs).Msg("document cache enabled")
		nodes = store.NewCachedStore(nodes, cfg.CacheDocs)
	}

	broker := broadcast.NewBroker(logger)

	var publisher outline.EventPublisher = broker
	var bridge *broadcast.RedisBridge
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("connect to redis")
		}
		defer client.Close()
		bridge, err = broadcast.NewRedisBridge(ctx, client, broker, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("start event bridge")
		}
		publisher = bridge
		logger.Info().Msg("cross-process event bridge enabled")
	}

	svc := outline.NewService(nodes, publisher, logger, cfg.WorkerIdle)
	hub := server.NewHub(svc, broker, logger)
	handler := server.NewHandler(svc, hub, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("outline server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	hub.Close()
	svc.Close()
	if bridge != nil {
		bridge.Close()
	}
	broker.Close()
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}

// openStore picks the persistence backend: Firestore when a project is
// configured, Postgres when a database URL is, in-memory otherwise.
func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (outline.NodeStore, error) {
	switch {
	case strings.TrimSpace(cfg.FirestoreProject) != "":
		logger.Info().Str("project", cfg.FirestoreProject).Msg("using firestore store")
		client, err := firestore.NewClient(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, fmt.Errorf("connect to firestore: %w", err)
		}
		return store.NewFirestoreStore(client), nil
	case strings.TrimSpace(cfg.DatabaseURL) != "":
		logger.Info().Msg("using postgres store")
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store.NewPostgresStore(db), nil
	default:
		logger.Info().Msg("using in-memory store")
		return store.NewMemoryStore(), nil
	}
}
