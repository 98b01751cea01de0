package workers

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/adapters/config"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/adapters/telegram"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/artifact"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/engine"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/logger"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/models"
)

func TestMain(m *testing.M) {
	logger.Init("error", "")
	os.Exit(m.Run())
}

type fakeLoader struct {
	series map[string]models.IndicatorSeries
	err    error
}

func (f *fakeLoader) LoadSeries(ctx context.Context) (map[string]models.IndicatorSeries, error) {
	return f.series, f.err
}

type fakeAlertStore struct {
	saved []models.AlertEvent
	calls int
}

func (f *fakeAlertStore) SaveAlerts(ctx context.Context, runAt time.Time, events []models.AlertEvent) error {
	f.saved = events
	f.calls++
	return nil
}

type fakeScoreStore struct {
	table *artifact.Table
}

func (f *fakeScoreStore) SaveScores(ctx context.Context, runAt time.Time, t *artifact.Table) error {
	f.table = t
	return nil
}

type fakeNotifier struct {
	views []telegram.AlertView
}

func (f *fakeNotifier) SendAlerts(ctx context.Context, events []telegram.AlertView) error {
	f.views = append(f.views, events...)
	return nil
}

type fakeLock struct {
	held      bool
	acquired  int
	released  int
}

func (f *fakeLock) TryAcquire(ctx context.Context) (bool, error) {
	f.acquired++
	return !f.held, nil
}

func (f *fakeLock) Release(ctx context.Context) error {
	f.released++
	return nil
}

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := &config.ModelConfig{
		StartYear:    2015,
		MaxFillGap:   2,
		SmoothWindow: 3,
		Pillars: []config.PillarConfig{
			{Name: "Market", Weight: 1.0, Indicators: []config.IndicatorConfig{
				{Key: "MKT", Weight: 1.0, Method: "rolling_z_sigmoid", Window: 12, MinPeriods: 3, Clip: 4.0},
			}},
		},
		Regimes: []config.BandConfig{
			{Name: "Watch", Lower: 0, Upper: 50},
			{Name: "Hot", Lower: 50, Upper: 100},
		},
	}
	cfg.ApplyDefaults()
	eng, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	return eng
}

func testLoader() *fakeLoader {
	s := models.IndicatorSeries{Key: "MKT"}
	cur := time.Date(2022, time.January, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 24; i++ {
		s.Points = append(s.Points, models.Observation{
			Timestamp: cur,
			Value:     models.NewDecimal(100 + 3*float64(i) + 4*math.Sin(float64(i))),
		})
		cur = cur.AddDate(0, 1, 0)
	}
	return &fakeLoader{series: map[string]models.IndicatorSeries{"MKT": s}}
}

func TestRecomputeRun(t *testing.T) {
	t.Run("full run writes artifact and stores", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")
		alerts := &fakeAlertStore{}
		scores := &fakeScoreStore{}
		lock := &fakeLock{}

		w := NewRecomputeWorker(testEngine(t), testLoader(), alerts, scores, nil, lock, path)
		if err := w.Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		f, err := os.Open(path)
		if err != nil {
			t.Fatalf("artifact not written: %v", err)
		}
		table, err := artifact.ReadCSV(f)
		f.Close()
		if err != nil {
			t.Fatalf("artifact unreadable: %v", err)
		}
		if len(table.Index) != 24 {
			t.Errorf("artifact has %d rows, want 24", len(table.Index))
		}

		if scores.table == nil {
			t.Error("scores were not persisted")
		}
		if alerts.calls != 1 {
			t.Errorf("SaveAlerts called %d times, want 1", alerts.calls)
		}
		if lock.acquired != 1 || lock.released != 1 {
			t.Errorf("lock acquired/released = %d/%d, want 1/1", lock.acquired, lock.released)
		}

		lastRun, lastErr := w.LastRun()
		if lastRun.IsZero() || lastErr != nil {
			t.Errorf("LastRun = %s/%v, want recorded success", lastRun, lastErr)
		}
	})

	t.Run("held lock skips the run", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")
		alerts := &fakeAlertStore{}
		lock := &fakeLock{held: true}

		w := NewRecomputeWorker(testEngine(t), testLoader(), alerts, nil, nil, lock, path)
		if err := w.Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if alerts.calls != 0 {
			t.Error("run proceeded despite lock held elsewhere")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("artifact written despite skipped run")
		}
	})

	t.Run("loader failure recorded", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")
		loader := &fakeLoader{err: fmt.Errorf("connection refused")}

		w := NewRecomputeWorker(testEngine(t), loader, &fakeAlertStore{}, nil, nil, nil, path)
		if err := w.Run(context.Background()); err == nil {
			t.Fatal("expected error from failing loader")
		}
		if _, lastErr := w.LastRun(); lastErr == nil {
			t.Error("failure not recorded in last-run status")
		}
	})

	t.Run("empty series is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")
		loader := &fakeLoader{series: map[string]models.IndicatorSeries{}}

		w := NewRecomputeWorker(testEngine(t), loader, &fakeAlertStore{}, nil, nil, nil, path)
		if err := w.Run(context.Background()); err == nil {
			t.Fatal("expected error for empty observation set")
		}
	})

	t.Run("only alerts at latest period notified", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")
		notifier := &fakeNotifier{}

		w := NewRecomputeWorker(testEngine(t), testLoader(), &fakeAlertStore{}, nil, notifier, nil, path)
		if err := w.Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		// historical events must never page the chat retroactively
		for _, v := range notifier.views {
			if v.Period == "" {
				t.Errorf("notified view missing period: %+v", v)
			}
		}
	})
}

func TestWorkerName(t *testing.T) {
	w := NewRecomputeWorker(nil, nil, nil, nil, nil, nil, "")
	if w.Name() != "recompute" {
		t.Errorf("Name = %q", w.Name())
	}
}
