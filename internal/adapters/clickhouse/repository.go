package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/artifact"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/logger"
)

// Repository writes the monthly score artifact to ClickHouse in long format:
// one row per (period, series). The dashboard reads these rows directly and
// re-derives nothing.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new ClickHouse repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// SaveScores appends every valid cell of the table plus the per-period
// regime labels for one run. Missing cells are simply not written; the store
// never holds NaN or Inf.
func (r *Repository) SaveScores(ctx context.Context, runAt time.Time, t *artifact.Table) error {
	if len(t.Index) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.Preparex(`
		INSERT INTO pressure_scores (run_at, period, series, value)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, col := range t.Columns {
		cells := t.Cells[col]
		for i, period := range t.Index {
			if !cells[i].Valid {
				continue
			}
			if _, err := stmt.ExecContext(ctx, runAt, period, col, cells[i].Value); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to insert score: %w", err)
			}
			written++
		}
	}

	regimeStmt, err := tx.Preparex(`
		INSERT INTO pressure_regimes (run_at, period, regime)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer regimeStmt.Close()

	for i, period := range t.Index {
		if t.Regimes[i] == "" {
			continue
		}
		if _, err := regimeStmt.ExecContext(ctx, runAt, period, string(t.Regimes[i])); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert regime: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("saved scores to ClickHouse",
		zap.Int("rows", written),
		zap.Int("periods", len(t.Index)),
	)

	return nil
}
