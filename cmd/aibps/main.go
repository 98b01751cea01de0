package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/adapters/clickhouse"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/adapters/config"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/adapters/database"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/adapters/postgres"
	redisAdapter "github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/adapters/redis"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/adapters/telegram"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/engine"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/health"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/workers"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/logger"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/worker"
)

func main() {
	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	// Run application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration and initialize logger
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("🚀 AI Bubble Pressure Score service starting...",
		zap.String("model", cfg.Compute.ModelPath),
		zap.Duration("interval", cfg.Compute.Interval),
	)

	// Load the scoring model and build the engine
	model, err := config.LoadModel(cfg.Compute.ModelPath)
	if err != nil {
		return fmt.Errorf("failed to load model config: %w", err)
	}

	eng, err := engine.New(model)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	logger.Info("scoring model loaded",
		zap.Int("pillars", len(model.Pillars)),
	)

	// Initialize Postgres (observations in, alert history out)
	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := postgres.NewRepository(db.DB())

	// ClickHouse score store is optional; the CSV artifact is always written
	var scoreStore workers.ScoreStore
	chDB, err := initClickHouse(cfg)
	if err != nil {
		logger.Warn("ClickHouse not available, scores kept in CSV artifact only", zap.Error(err))
	} else if chDB != nil {
		defer chDB.Close()
		scoreStore = clickhouse.NewRepository(chDB.DB())
	}

	// Redis lock keeps recomputes single-flight across replicas
	var lock workers.Locker
	redisClient, err := initRedis(cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		lock = redisClient.NewComputeLock(cfg.Compute.LockTTL)
	}

	// Telegram alert delivery (optional)
	notifier := initNotifier(cfg)

	// Recompute worker on a periodic schedule
	recompute := workers.NewRecomputeWorker(
		eng,
		repo,
		repo,
		scoreStore,
		notifier,
		lock,
		cfg.Compute.ArtifactPath,
	)

	group := worker.NewGroup(ctx)
	group.Add(recompute, cfg.Compute.Interval)
	group.Start()

	// Start health server
	healthServer := startHealthServer(cfg, db, recompute)

	// Wait for shutdown signal
	<-ctx.Done()

	return performGracefulShutdown(healthServer, group, db)
}

// initConfig loads configuration and initializes logger
func initConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// initDatabase initializes database connection with sqlx
func initDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Run migrations
	migrationsPath := "./migrations"
	if err := database.RunMigrations(db.Conn(), migrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("database connection established (sqlx)",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Name),
	)

	return db, nil
}

// initClickHouse initializes ClickHouse connection
func initClickHouse(cfg *config.Config) (*database.DB, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}

	ch, err := database.NewClickHouse(&cfg.ClickHouse)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := ch.DB().Ping(); err != nil {
		ch.Close()
		return nil, fmt.Errorf("ClickHouse ping failed: %w", err)
	}

	logger.Info("ClickHouse connection established",
		zap.String("host", cfg.ClickHouse.Host),
		zap.String("database", cfg.ClickHouse.Database),
	)

	return ch, nil
}

// initRedis initializes Redis client with Redlock support
func initRedis(cfg *config.Config) (*redisAdapter.Client, error) {
	if !cfg.Redis.Enabled {
		logger.Info("redis disabled, recompute lock not enforced")
		return nil, nil
	}

	redisClient, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis connection established (redlock)",
		zap.String("host", cfg.Redis.Host),
		zap.Int("port", cfg.Redis.Port),
	)

	return redisClient, nil
}

// initNotifier initializes Telegram alert delivery
func initNotifier(cfg *config.Config) workers.Notifier {
	if cfg.Telegram.BotToken == "" {
		logger.Info("telegram notifier disabled (no token provided)")
		return nil
	}

	notifier, err := telegram.NewNotifier(&cfg.Telegram)
	if err != nil {
		logger.Warn("failed to initialize telegram notifier", zap.Error(err))
		return nil
	}

	logger.Info("📱 Telegram notifier initialized")
	return notifier
}

// startHealthServer initializes and starts health check server for K8s probes
func startHealthServer(cfg *config.Config, db *database.DB, recompute *workers.RecomputeWorker) *health.Server {
	healthServer := health.NewServer(cfg.Health.Port, db, recompute)

	go func() {
		if err := healthServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", zap.Error(err))
		}
	}()

	logger.Info("📊 Pressure score engine ready",
		zap.String("health_port", cfg.Health.Port),
	)

	// Mark service as ready after initialization
	healthServer.SetReady(true)

	return healthServer
}

// performGracefulShutdown handles graceful shutdown of all components
func performGracefulShutdown(healthServer *health.Server, group *worker.Group, db *database.DB) error {
	logger.Info("🛑 Shutdown signal received, starting graceful shutdown...")

	// Mark service as not ready (stop accepting new traffic)
	healthServer.SetReady(false)

	// K8s gives 30s terminationGracePeriodSeconds
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer shutdownCancel()

	logger.Info("stopping workers...")
	group.Stop(20 * time.Second)

	logger.Info("closing database connection...")
	if err := db.Close(); err != nil {
		logger.Error("database close error", zap.Error(err))
	}

	logger.Info("stopping health server...")
	if err := healthServer.Stop(shutdownCtx); err != nil {
		logger.Error("health server stop error", zap.Error(err))
	}

	logger.Sync()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("⚠️ shutdown timeout exceeded")
		return fmt.Errorf("graceful shutdown timeout")
	default:
		logger.Info("✅ shutdown completed successfully")
	}

	return nil
}
