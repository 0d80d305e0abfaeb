package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindhaven/relay/internal/api"
	"github.com/mindhaven/relay/internal/assistant"
	"github.com/mindhaven/relay/internal/bridge"
	"github.com/mindhaven/relay/internal/codec"
	"github.com/mindhaven/relay/internal/config"
	"github.com/mindhaven/relay/internal/dispatch"
	"github.com/mindhaven/relay/internal/history"
	"github.com/mindhaven/relay/internal/registry"
	"github.com/mindhaven/relay/internal/session"
	"github.com/mindhaven/relay/internal/store"
	"github.com/mindhaven/relay/internal/transport"
)

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Room directory: Postgres when configured, SQLite otherwise.
	var directory store.Directory
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}

		pg, err := store.NewPostgresDirectory(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		directory = pg
		logger.Info().Msg("room directory on PostgreSQL")
	} else {
		sq, err := store.NewSQLiteDirectory(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		directory = sq
		logger.Info().Str("path", cfg.SQLitePath).Msg("room directory on SQLite")
	}
	defer directory.Close()

	// Dedup and rate limiting: Redis when configured, in-process otherwise.
	var (
		dedup      store.DedupStore
		limiter    store.RateLimiter
		redisStore *store.RedisStore
	)
	if cfg.RedisURL != "" {
		rs, err := store.NewRedisStore(ctx, cfg.RedisURL, cfg.DedupRetention)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		redisStore = rs
		dedup = rs
		limiter = rs
		logger.Info().Msg("dedup window on Redis")
	} else {
		dedup = store.NewMemoryDedup(cfg.DedupRetention)
		limiter = store.NewMemoryLimiter()
	}
	defer dedup.Close()

	sessions := session.NewManager(
		session.NewVerifier(cfg.JWTSecret),
		cfg.AckTimeout, cfg.AckRetries, cfg.ReconnectWindow,
		logger,
	)
	reg := registry.New(logger)

	var bot dispatch.Assistant
	if cfg.AssistantURL != "" {
		bot = assistant.New(cfg.AssistantURL, cfg.AssistantTimeout)
	}

	var hist bridge.History = history.Disabled{}
	if cfg.HistoryURL != "" {
		hist = history.New(cfg.HistoryURL, 10*time.Second)
	} else {
		logger.Warn().Msg("no history collaborator configured, reconnects will not backfill")
	}

	b := bridge.New(sessions, reg, hist, logger)
	sessions.SetCloseHook(func(sessionID string) {
		reg.RemoveSession(sessionID)
		b.OnClose(sessionID)
	})

	router := dispatch.New(dispatch.Config{
		Sessions:   sessions,
		Registry:   reg,
		Directory:  directory,
		Dedup:      dedup,
		Limiter:    limiter,
		Codec:      codec.New(cfg.InlineMaxBytes, cfg.AttachmentMaxBytes),
		Bot:        bot,
		BotTimeout: cfg.AssistantTimeout,
		RateLimit:  cfg.MessageRateLimit,
		Log:        logger,
	})

	socket := transport.NewHandler(transport.HandlerConfig{
		Sessions: sessions,
		Router:   router,
		Bridge:   b,
		// Base64 inflates inline payloads by a third; leave room for the
		// envelope around them.
		MaxFrameBytes: cfg.InlineMaxBytes*2 + 64*1024,
		Log:           logger,
	})

	mux := api.NewRouter(api.RouterConfig{
		Directory: directory,
		Redis:     redisStore,
		Limiter:   limiter,
		Sessions:  sessions,
		Registry:  reg,
		Socket:    socket,
		Log:       logger,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket connections are hijacked and manage
		// their own deadlines.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting relay server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Drop every session so retry timers and retention windows stop.
	sessions.CloseAll()

	logger.Info().Msg("server stopped")
}
