package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gotham-cipher/internal/config"
	"github.com/gotham-cipher/internal/events"
	"github.com/gotham-cipher/internal/handler"
	"github.com/gotham-cipher/internal/identity"
	"github.com/gotham-cipher/internal/kafka"
	"github.com/gotham-cipher/internal/notify"
	"github.com/gotham-cipher/internal/postgres"
	"github.com/gotham-cipher/internal/progress"
	"github.com/gotham-cipher/internal/redis"
	"github.com/gotham-cipher/internal/riddle"
	"github.com/gotham-cipher/internal/speech"
	"github.com/gotham-cipher/internal/token"
	"github.com/gotham-cipher/internal/websocket"
	"github.com/gotham-cipher/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	cache, err := redis.NewCacheService(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer cache.Close()
	logger.Info("connected to Redis")

	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	gateway := identity.NewHTTPGateway(&cfg.Identity, logger)
	tokens := token.NewIssuer(&cfg.Token)
	mailer := notify.NewSMTPMailer(&cfg.SMTP, logger)
	synthesizer := speech.NewHTTPSynthesizer(&cfg.Speech, logger)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		p, err := events.NewKafkaPublisher(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create event publisher, continuing without it", "error", err)
		} else {
			publisher = p
		}
	}
	defer publisher.Close()

	engine := progress.NewEngine(
		repo,
		gateway,
		mailer,
		cfg.Game.CompletionLevels,
		logger,
		progress.WithScoreboard(cache),
		progress.WithEventSink(publisher),
		progress.WithBroadcaster(wsHub),
	)

	catalog := riddle.NewCatalog(repo, cache, logger)
	selector := riddle.NewSelector(catalog, engine, logger)
	selector.SetEvents(publisher)

	refresher := worker.NewCatalogRefresher(cache, repo, &cfg.Sync, logger)
	refresher.SetBroadcaster(wsHub)

	// Warm the catalog and rebuild the scoreboard before serving traffic
	logger.Info("warming catalog and scoreboard from database")
	refresher.RunOnce(ctx)

	if cfg.Sync.Enabled {
		if err := refresher.Start(ctx); err != nil {
			logger.Error("failed to start catalog refresher", "error", err)
			os.Exit(1)
		}
	}

	var solveConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.SolvesTopic,
		)
		var err error
		solveConsumer, err = kafka.NewConsumer(&cfg.Kafka, engine, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := solveConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				solveConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	httpHandler := handler.NewHandler(
		engine,
		selector,
		repo,
		gateway,
		tokens,
		synthesizer,
		cache,
		wsHub,
		&cfg.Game,
		cfg.Server.FrontendURL,
		logger,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		logger.Info("WebSocket endpoint available at /ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	wsHub.Stop()

	if solveConsumer != nil {
		if err := solveConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if refresher.IsRunning() {
		if err := refresher.Stop(); err != nil {
			logger.Error("failed to stop catalog refresher", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
