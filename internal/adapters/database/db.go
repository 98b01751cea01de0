package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/adapters/config"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/logger"
)

// DB wraps a sqlx connection to either Postgres or ClickHouse
type DB struct {
	conn *sqlx.DB
}

// New creates the Postgres connection holding raw indicator observations
// and the alert event history
func New(cfg *config.DatabaseConfig) (*DB, error) {
	conn, err := sqlx.Connect("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("database connection established",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Name),
	)

	return &DB{conn: conn}, nil
}

// NewClickHouse creates the analytic score store connection
func NewClickHouse(cfg *config.ClickHouseConfig) (*DB, error) {
	conn, err := sqlx.Connect("clickhouse", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	logger.Info("ClickHouse connection established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)

	return &DB{conn: conn}, nil
}

// Close closes the connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying *sql.DB (for migrations)
func (db *DB) Conn() *sql.DB {
	return db.conn.DB
}

// DB returns the sqlx handle
func (db *DB) DB() *sqlx.DB {
	return db.conn
}

// Health checks the connection with a short timeout
func (db *DB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
