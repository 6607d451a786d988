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

	"github.com/grus-gras/internal/config"
	"github.com/grus-gras/internal/handler"
	"github.com/grus-gras/internal/kafka"
	"github.com/grus-gras/internal/metrics"
	"github.com/grus-gras/internal/postgres"
	"github.com/grus-gras/internal/redis"
	"github.com/grus-gras/internal/service"
	"github.com/grus-gras/internal/session"
	"github.com/grus-gras/internal/websocket"
	"github.com/grus-gras/internal/worker"
	"github.com/joho/godotenv"
)

// sessionBackend is what the session manager and the change fan-out need
type sessionBackend interface {
	session.Store
	session.Notifier
	session.Subscriber
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", "error", err)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Postgres.URL = url
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.New("grus")

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	postgresRepo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer postgresRepo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := postgresRepo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize session storage
	var sessions sessionBackend
	switch cfg.Session.Backend {
	case config.SessionBackendMemory:
		logger.Warn("using in-memory sessions; preferences are lost on restart")
		sessions = session.NewMemoryStore()
	default:
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		redisStore, err := redis.NewSessionStore(&cfg.Redis, cfg.Session.TTL, logger)
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		sessions = redisStore
		logger.Info("connected to Redis")
	}
	sessionManager := session.NewManager(sessions, sessions, logger)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(appMetrics, logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Forward area changes from any instance to this instance's tabs
	go func() {
		if err := sessions.Subscribe(ctx, wsHub.BroadcastSessionChange); err != nil {
			logger.Error("session change subscription ended", "error", err)
		}
	}()

	// Match events go through Kafka when enabled so every instance hears
	// them; otherwise straight to the local hub.
	var publisher service.EventPublisher = wsHub
	var kafkaProducer *kafka.Producer
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaProducer, err = kafka.NewProducer(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka producer, continuing without Kafka", "error", err)
		} else {
			kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, wsHub, logger)
			if err == nil {
				err = kafkaConsumer.Start()
			}
			if err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaProducer.Close()
				kafkaProducer = nil
				kafkaConsumer = nil
			} else {
				publisher = kafkaProducer
				logger.Info("Kafka started successfully")
			}
		}
	}

	// Initialize services
	matchService := service.NewMatchService(
		postgresRepo,
		postgresRepo,
		publisher,
		&cfg.Matches,
		appMetrics,
		logger,
	)
	authService := service.NewAuthService(postgresRepo, appMetrics, logger)

	// Start visibility worker
	visibilityWorker := worker.NewVisibilityWorker(
		matchService,
		wsHub,
		&cfg.Worker,
		cfg.Matches.Location(),
		appMetrics,
		logger,
	)
	if cfg.Worker.Enabled {
		if err := visibilityWorker.Start(ctx); err != nil {
			logger.Error("failed to start visibility worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(handler.Options{
		Matches:  matchService,
		Auth:     authService,
		Sessions: sessionManager,
		Hub:      wsHub,
		DB:       postgresRepo,
		Config:   cfg,
		Metrics:  appMetrics,
		Logger:   logger,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Stop visibility worker
	if err := visibilityWorker.Stop(); err != nil {
		logger.Error("failed to stop visibility worker", "error", err)
	}

	// Stop Kafka
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			logger.Error("failed to close Kafka producer", "error", err)
		}
	}

	// Stop session fan-out and WebSocket hub
	cancel()
	wsHub.Stop()

	logger.Info("server stopped")
}
