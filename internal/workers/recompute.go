package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/adapters/telegram"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/artifact"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/engine"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/logger"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/models"
)

// SeriesLoader supplies the raw indicator series for a run
type SeriesLoader interface {
	LoadSeries(ctx context.Context) (map[string]models.IndicatorSeries, error)
}

// AlertStore persists the recomputed alert history
type AlertStore interface {
	SaveAlerts(ctx context.Context, runAt time.Time, events []models.AlertEvent) error
}

// ScoreStore persists the tabular score artifact
type ScoreStore interface {
	SaveScores(ctx context.Context, runAt time.Time, t *artifact.Table) error
}

// Notifier delivers fresh alert events
type Notifier interface {
	SendAlerts(ctx context.Context, events []telegram.AlertView) error
}

// Locker keeps the recompute single-flight across replicas
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RecomputeWorker runs the full scoring pipeline on a schedule: load raw
// series, compute, persist the artifact, store alerts, notify. Every run
// recomputes from scratch; there is no incremental state.
type RecomputeWorker struct {
	eng          *engine.Engine
	loader       SeriesLoader
	alerts       AlertStore
	scores       ScoreStore // optional
	notifier     Notifier   // optional
	lock         Locker     // optional
	artifactPath string

	mu      sync.RWMutex
	lastRun time.Time
	lastErr error
}

// NewRecomputeWorker creates the recompute worker. scores, notifier, and
// lock may be nil when the deployment runs without ClickHouse, Telegram, or
// Redis.
func NewRecomputeWorker(
	eng *engine.Engine,
	loader SeriesLoader,
	alerts AlertStore,
	scores ScoreStore,
	notifier Notifier,
	lock Locker,
	artifactPath string,
) *RecomputeWorker {
	return &RecomputeWorker{
		eng:          eng,
		loader:       loader,
		alerts:       alerts,
		scores:       scores,
		notifier:     notifier,
		lock:         lock,
		artifactPath: artifactPath,
	}
}

// Name returns worker name for logging
func (w *RecomputeWorker) Name() string {
	return "recompute"
}

// Run executes one full recompute
func (w *RecomputeWorker) Run(ctx context.Context) error {
	err := w.run(ctx)

	w.mu.Lock()
	w.lastRun = time.Now()
	w.lastErr = err
	w.mu.Unlock()

	return err
}

func (w *RecomputeWorker) run(ctx context.Context) error {
	if w.lock != nil {
		acquired, err := w.lock.TryAcquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire recompute lock: %w", err)
		}
		if !acquired {
			logger.Info("skipping recompute, another replica holds the lock")
			return nil
		}
		defer w.lock.Release(ctx)
	}

	runAt := time.Now().UTC()

	series, err := w.loader.LoadSeries(ctx)
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}
	if len(series) == 0 {
		return fmt.Errorf("no indicator observations available")
	}

	result, err := w.eng.Run(ctx, series)
	if err != nil {
		return fmt.Errorf("compute: %w", err)
	}

	table := artifact.FromResult(result)

	if err := artifact.WriteFile(w.artifactPath, table); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	logger.Info("artifact written",
		zap.String("path", w.artifactPath),
		zap.Int("periods", len(table.Index)),
	)

	if w.scores != nil {
		if err := w.scores.SaveScores(ctx, runAt, table); err != nil {
			return fmt.Errorf("save scores: %w", err)
		}
	}

	if err := w.alerts.SaveAlerts(ctx, runAt, result.Alerts); err != nil {
		return fmt.Errorf("save alerts: %w", err)
	}

	w.notifyCurrent(ctx, result)
	return nil
}

// notifyCurrent sends only events still active at the latest period. The
// full history lives in the database; pinging the chat about alerts from
// years ago would be noise.
func (w *RecomputeWorker) notifyCurrent(ctx context.Context, result *engine.Result) {
	if w.notifier == nil || len(result.Composite.Index) == 0 {
		return
	}

	latest := result.Composite.Index[len(result.Composite.Index)-1]

	var views []telegram.AlertView
	for _, ev := range result.Alerts {
		if !ev.End.Equal(latest) {
			continue
		}
		views = append(views, telegram.AlertView{
			Rule:     string(ev.Rule),
			Severity: ev.Severity,
			Period:   ev.End.Format("2006-01"),
			Value:    ev.Value,
			Message:  ev.Message,
		})
	}
	if len(views) == 0 {
		return
	}

	if err := w.notifier.SendAlerts(ctx, views); err != nil {
		logger.Error("failed to notify alerts", zap.Error(err))
	}
}

// LastRun reports when the worker last completed and with what outcome
func (w *RecomputeWorker) LastRun() (time.Time, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastRun, w.lastErr
}
