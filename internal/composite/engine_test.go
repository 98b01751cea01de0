package composite

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/pillar"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/models"
)

func testIndex(n int) []time.Time {
	index := make([]time.Time, n)
	cur := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	for i := range index {
		index[i] = cur
		cur = time.Date(cur.Year(), cur.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 2, -1)
	}
	return index
}

func pillarScore(name string, index []time.Time, values ...float64) models.PillarScore {
	cells := make([]models.Cell, len(values))
	for i, v := range values {
		if !math.IsNaN(v) {
			cells[i] = models.Cell{Value: v, Valid: true}
		}
	}
	return models.PillarScore{Pillar: name, Index: index, Values: cells}
}

func TestCompose(t *testing.T) {
	t.Run("weighted average of pillars", func(t *testing.T) {
		e, err := NewEngine(1)
		if err != nil {
			t.Fatalf("NewEngine failed: %v", err)
		}
		index := testIndex(2)
		comp, err := e.Compose(
			map[string]models.PillarScore{
				"Market": pillarScore("Market", index, 80, 60),
				"Credit": pillarScore("Credit", index, 40, 20),
			},
			map[string]float64{"Market": 0.5, "Credit": 0.5},
			pillar.Options{},
		)
		if err != nil {
			t.Fatalf("Compose failed: %v", err)
		}
		if got := comp.Raw[0].Value; math.Abs(got-60) > 1e-9 {
			t.Errorf("period 0 = %v, want 60", got)
		}
		if got := comp.Raw[1].Value; math.Abs(got-40) > 1e-9 {
			t.Errorf("period 1 = %v, want 40", got)
		}
	})

	t.Run("missing pillar renormalizes the rest", func(t *testing.T) {
		e, _ := NewEngine(1)
		index := testIndex(1)
		comp, err := e.Compose(
			map[string]models.PillarScore{
				"Market": pillarScore("Market", index, 90),
				"Credit": pillarScore("Credit", index, math.NaN()),
			},
			map[string]float64{"Market": 0.5, "Credit": 0.5},
			pillar.Options{},
		)
		if err != nil {
			t.Fatalf("Compose failed: %v", err)
		}
		if got := comp.Raw[0].Value; math.Abs(got-90) > 1e-9 {
			t.Errorf("composite over remaining pillar = %v, want 90", got)
		}
	})

	t.Run("all pillars missing stays missing", func(t *testing.T) {
		e, _ := NewEngine(1)
		index := testIndex(1)
		comp, err := e.Compose(
			map[string]models.PillarScore{
				"Market": pillarScore("Market", index, math.NaN()),
			},
			map[string]float64{"Market": 1.0},
			pillar.Options{},
		)
		if err != nil {
			t.Fatalf("Compose failed: %v", err)
		}
		if comp.Raw[0].Valid || comp.Smoothed[0].Valid {
			t.Error("all-missing period must stay missing in raw and smoothed")
		}
	})

	t.Run("smoothing averages trailing window with partial start", func(t *testing.T) {
		e, _ := NewEngine(3)
		index := testIndex(4)
		comp, err := e.Compose(
			map[string]models.PillarScore{
				"P": pillarScore("P", index, 30, 60, 90, 60),
			},
			map[string]float64{"P": 1.0},
			pillar.Options{},
		)
		if err != nil {
			t.Fatalf("Compose failed: %v", err)
		}
		want := []float64{30, 45, 60, 70}
		for i, w := range want {
			if got := comp.Smoothed[i].Value; math.Abs(got-w) > 1e-9 {
				t.Errorf("smoothed[%d] = %v, want %v", i, got, w)
			}
		}
	})

	t.Run("gap longer than window does not leak old values", func(t *testing.T) {
		e, _ := NewEngine(3)
		index := testIndex(7)
		comp, err := e.Compose(
			map[string]models.PillarScore{
				"P": pillarScore("P", index, 10, 10, 10, math.NaN(), math.NaN(), math.NaN(), 90),
			},
			map[string]float64{"P": 1.0},
			pillar.Options{},
		)
		if err != nil {
			t.Fatalf("Compose failed: %v", err)
		}

		// trailing window is periods, not observations: after a 3-period gap
		// only the fresh 90 is in reach
		if got := comp.Smoothed[6]; !got.Valid || math.Abs(got.Value-90) > 1e-9 {
			t.Errorf("post-gap smoothed = %+v, want 90", got)
		}
		if got := comp.Smoothed[5]; got.Valid {
			t.Errorf("smoothed inside empty window = %v, want missing", got.Value)
		}

		// a missing period with valid neighbors in-window still averages them
		if got := comp.Smoothed[3]; !got.Valid || math.Abs(got.Value-10) > 1e-9 {
			t.Errorf("smoothed at gap start = %+v, want 10", got)
		}
		if got := comp.Smoothed[4]; !got.Valid || math.Abs(got.Value-10) > 1e-9 {
			t.Errorf("smoothed one into gap = %+v, want 10", got)
		}
	})

	t.Run("identical input gives bit-identical output", func(t *testing.T) {
		e, _ := NewEngine(3)
		index := testIndex(5)
		pillars := map[string]models.PillarScore{
			"A": pillarScore("A", index, 11.1, 22.2, math.NaN(), 44.4, 55.5),
			"B": pillarScore("B", index, 99.9, 88.8, 77.7, math.NaN(), 55.5),
		}
		weights := map[string]float64{"A": 0.3, "B": 0.7}

		c1, err := e.Compose(pillars, weights, pillar.Options{})
		if err != nil {
			t.Fatalf("Compose failed: %v", err)
		}
		c2, err := e.Compose(pillars, weights, pillar.Options{})
		if err != nil {
			t.Fatalf("Compose failed: %v", err)
		}
		for i := range c1.Raw {
			if c1.Raw[i] != c2.Raw[i] || c1.Smoothed[i] != c2.Smoothed[i] {
				t.Fatalf("period %d differs between identical runs", i)
			}
		}
	})

	t.Run("weight for unknown pillar rejected", func(t *testing.T) {
		e, _ := NewEngine(1)
		index := testIndex(1)
		_, err := e.Compose(
			map[string]models.PillarScore{"Market": pillarScore("Market", index, 50)},
			map[string]float64{"Market": 0.5, "Ghost": 0.5},
			pillar.Options{},
		)
		if !errors.Is(err, models.ErrConfig) {
			t.Errorf("err = %v, want ErrConfig", err)
		}
	})

	t.Run("pillar without weight rejected", func(t *testing.T) {
		e, _ := NewEngine(1)
		index := testIndex(1)
		_, err := e.Compose(
			map[string]models.PillarScore{
				"Market": pillarScore("Market", index, 50),
				"Credit": pillarScore("Credit", index, 50),
			},
			map[string]float64{"Market": 1.0},
			pillar.Options{},
		)
		if !errors.Is(err, models.ErrConfig) {
			t.Errorf("err = %v, want ErrConfig", err)
		}
	})

	t.Run("bad weight sum rejected without renormalize", func(t *testing.T) {
		e, _ := NewEngine(1)
		index := testIndex(1)
		_, err := e.Compose(
			map[string]models.PillarScore{"Market": pillarScore("Market", index, 50)},
			map[string]float64{"Market": 0.7},
			pillar.Options{},
		)
		if !errors.Is(err, models.ErrConfig) {
			t.Errorf("err = %v, want ErrConfig", err)
		}
	})

	t.Run("auto renormalize rescales weights", func(t *testing.T) {
		e, _ := NewEngine(1)
		index := testIndex(1)
		comp, err := e.Compose(
			map[string]models.PillarScore{
				"A": pillarScore("A", index, 100),
				"B": pillarScore("B", index, 0),
			},
			map[string]float64{"A": 3, "B": 1},
			pillar.Options{AutoRenormalize: true},
		)
		if err != nil {
			t.Fatalf("Compose failed: %v", err)
		}
		if got := comp.Raw[0].Value; math.Abs(got-75) > 1e-9 {
			t.Errorf("renormalized composite = %v, want 75", got)
		}
	})
}
