package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/browser-bridge/bridge/internal/config"
	"github.com/browser-bridge/bridge/internal/db"
	"github.com/browser-bridge/bridge/internal/logger"
	"github.com/browser-bridge/bridge/internal/mirror"
	"github.com/browser-bridge/bridge/internal/repository"
	"github.com/browser-bridge/bridge/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.Default()
		boot.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.New(os.Stdout, cfg.LogLevel, cfg.IsDevelopment())

	scan, err := ws.ParseScanMode(cfg.ReplyScan)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	var listeners []ws.Listener

	// Connection journal
	var journalRepo *repository.JournalRepository
	if cfg.JournalPath != "" {
		database, err := db.InitDB(cfg.JournalPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.JournalPath).Msg("failed to initialize journal")
		}
		defer db.CloseDB()

		journalRepo = repository.NewJournalRepository(database)
		if n, err := journalRepo.CloseDangling(context.Background(), time.Now()); err != nil {
			log.Warn().Err(err).Msg("failed to close dangling journal entries")
		} else if n > 0 {
			log.Info().Int64("entries", n).Msg("closed journal entries from previous run")
		}
		listeners = append(listeners, repository.NewConnectionJournal(journalRepo, log))
	}

	// Redis mirror
	var (
		m           *mirror.Mirror
		redisClient *redis.Client
	)
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		m, redisClient, err = mirror.Dial(ctx, cfg.RedisURL, cfg.RedisChannel, log)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		listeners = append(listeners, m)
		log.Info().Str("channel", cfg.RedisChannel).Msg("mirroring envelopes to redis")
	}

	relay := ws.NewRelay(ws.Config{
		HistoryLimit:      cfg.HistoryLimit,
		WriteTimeout:      cfg.WriteTimeout,
		KeepAliveInterval: cfg.KeepAliveInterval,
		MaxMessageSize:    cfg.MaxMessageSize,
		MaxConnections:    cfg.MaxConnections,
		PollInterval:      cfg.ReplyPollInterval,
		ReplyScan:         scan,
		ReplyTimeout:      cfg.DefaultTimeout,
	}, log, listeners...)

	var limiter *rate.Limiter
	if cfg.CommandRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.CommandRate), cfg.CommandBurst)
	}

	router := newRouter(cfg, relay, journalRepo, limiter, log)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Addr()).
			Int("max_connections", cfg.MaxConnections).
			Str("reply_scan", scan.String()).
			Msg("starting browser bridge")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown.
	if err := relay.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("relay did not close cleanly")
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server did not shut down cleanly")
	}
	if m != nil {
		m.Close()
		redisClient.Close()
	}

	log.Info().Msg("server stopped")
}
