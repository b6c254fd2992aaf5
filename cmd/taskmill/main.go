// cmd/taskmill/main.go
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"taskmill/internal/api/routes"
	"taskmill/internal/config"
	"taskmill/internal/events"
	"taskmill/internal/localtime"
	"taskmill/internal/orchestrator"
	"taskmill/internal/storage/cache"
	"taskmill/internal/storage/sqlstore"
	"taskmill/internal/task"
	"taskmill/internal/task/builtin"
)

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.Pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the server configuration file")
	flag.Parse()

	// Load configuration; a malformed config is fatal at startup.
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := newLogger(cfg.Logging)

	// Initialize run store
	store, err := sqlstore.NewClient(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open run store")
	}
	defer store.Close()

	// Initialize optional last-completed-run cache
	var lastCache *cache.Client
	if cfg.Cache.Path != "" {
		lastCache, err = cache.NewClient(cfg.Cache, 24*time.Hour)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize cache")
		}
		defer lastCache.Close()
	}

	// Initialize optional lifecycle event stream
	publisher, err := events.Connect(cfg.NATS, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect event stream")
	}
	defer publisher.Close()

	// Register task modules
	registry := task.NewRegistry()
	if err := builtin.Register(registry); err != nil {
		log.Fatal().Err(err).Msg("failed to register builtin tasks")
	}

	zone := localtime.New(cfg.Scheduler.UTCOffset)
	loader := task.NewLoader(registry, store, lastCache, zone, log)
	executor := orchestrator.NewExecutor(store, loader, lastCache, publisher, log)

	flushInterval := time.Duration(cfg.Scheduler.FlushInterval) * time.Second
	scheduler := orchestrator.NewScheduler(store, executor, zone, flushInterval, log)

	ctx := context.Background()
	if err := scheduler.LoadFile(ctx, cfg.Scheduler.GroupsFile); err != nil {
		log.Fatal().Err(err).Msg("failed to load task groups")
	}
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	facade := orchestrator.NewFacade(store, scheduler, executor, log)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      routes.SetupRouter(facade),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("shutting down")

	// Stop the scheduler first so in-flight runs are finalized in the store
	// before the process exits.
	if err := scheduler.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("error stopping scheduler")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down http server")
	}

	log.Info().Msg("shutdown complete")
}
