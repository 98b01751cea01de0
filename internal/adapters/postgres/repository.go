package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/logger"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/models"
)

// Repository reads the raw indicator observations that fetch collaborators
// maintain, and persists alert-event history.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new Postgres repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

type observationRow struct {
	Indicator  string          `db:"indicator"`
	ObservedAt time.Time       `db:"observed_at"`
	Value      decimal.Decimal `db:"value"`
}

// LoadSeries returns every indicator series, points ordered by timestamp.
// The series are handed to the engine read-only.
func (r *Repository) LoadSeries(ctx context.Context) (map[string]models.IndicatorSeries, error) {
	var rows []observationRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT indicator, observed_at, value
		FROM indicator_observations
		ORDER BY indicator, observed_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load observations: %w", err)
	}

	series := make(map[string]models.IndicatorSeries)
	for _, row := range rows {
		s := series[row.Indicator]
		s.Key = row.Indicator
		s.Points = append(s.Points, models.Observation{
			Timestamp: row.ObservedAt.UTC(),
			Value:     row.Value,
		})
		series[row.Indicator] = s
	}

	logger.Debug("loaded indicator observations",
		zap.Int("indicators", len(series)),
		zap.Int("points", len(rows)),
	)

	return series, nil
}

// SaveAlerts replaces the alert history for a run. Events are fully
// recomputed each run, so the previous rows for the same rules are stale.
func (r *Repository) SaveAlerts(ctx context.Context, runAt time.Time, events []models.AlertEvent) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_events`); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to clear alert events: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO alert_events (rule, severity, starts_at, ends_at, value, message, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		_, err = stmt.ExecContext(ctx,
			string(ev.Rule),
			ev.Severity,
			ev.Start,
			ev.End,
			ev.Value,
			ev.Message,
			runAt,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert alert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("saved alert events",
		zap.Int("count", len(events)),
	)

	return nil
}
