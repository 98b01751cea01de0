package pillar

import (
	"errors"
	"math"
	"testing"
	"time"

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

func component(key string, index []time.Time, values ...float64) models.NormalizedSeries {
	cells := make([]models.Cell, len(values))
	for i, v := range values {
		if !math.IsNaN(v) {
			cells[i] = models.Cell{Value: v, Valid: true}
		}
	}
	return models.NormalizedSeries{Key: key, Index: index, Values: cells}
}

func TestAggregate(t *testing.T) {
	agg := NewAggregator()

	t.Run("weighted average of full components", func(t *testing.T) {
		index := testIndex(2)
		score, err := agg.Aggregate("Market",
			[]models.NormalizedSeries{
				component("A", index, 60, 80),
				component("B", index, 40, 20),
			},
			[]float64{0.75, 0.25}, Options{})
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		if got := score.Values[0].Value; math.Abs(got-55) > 1e-9 {
			t.Errorf("period 0 = %v, want 55", got)
		}
		if got := score.Values[1].Value; math.Abs(got-65) > 1e-9 {
			t.Errorf("period 1 = %v, want 65", got)
		}
	})

	t.Run("missing component renormalizes over the rest", func(t *testing.T) {
		index := testIndex(1)
		score, err := agg.Aggregate("Infra",
			[]models.NormalizedSeries{
				component("A", index, 60),
				component("B", index, math.NaN()),
				component("C", index, 30),
			},
			[]float64{0.5, 0.25, 0.25}, Options{})
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		// (0.5*60 + 0.25*30) / 0.75 = 50
		if got := score.Values[0].Value; math.Abs(got-50) > 1e-9 {
			t.Errorf("degraded pillar = %v, want 50", got)
		}
	})

	t.Run("all components missing stays missing", func(t *testing.T) {
		index := testIndex(1)
		score, err := agg.Aggregate("Adoption",
			[]models.NormalizedSeries{
				component("A", index, math.NaN()),
				component("B", index, math.NaN()),
			},
			[]float64{0.5, 0.5}, Options{})
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		if score.Values[0].Valid {
			t.Errorf("all-missing period = %+v, want missing", score.Values[0])
		}
	})

	t.Run("weights must sum to one by default", func(t *testing.T) {
		index := testIndex(1)
		_, err := agg.Aggregate("Market",
			[]models.NormalizedSeries{component("A", index, 50)},
			[]float64{0.8}, Options{})
		if !errors.Is(err, models.ErrConfig) {
			t.Errorf("err = %v, want ErrConfig", err)
		}
	})

	t.Run("auto renormalize rescales instead", func(t *testing.T) {
		index := testIndex(1)
		score, err := agg.Aggregate("Market",
			[]models.NormalizedSeries{
				component("A", index, 60),
				component("B", index, 20),
			},
			[]float64{2, 2}, Options{AutoRenormalize: true})
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		if got := score.Values[0].Value; math.Abs(got-40) > 1e-9 {
			t.Errorf("renormalized pillar = %v, want 40", got)
		}
	})

	t.Run("negative weight rejected even with renormalize", func(t *testing.T) {
		index := testIndex(1)
		_, err := agg.Aggregate("Market",
			[]models.NormalizedSeries{
				component("A", index, 60),
				component("B", index, 20),
			},
			[]float64{1.5, -0.5}, Options{AutoRenormalize: true})
		if !errors.Is(err, models.ErrConfig) {
			t.Errorf("err = %v, want ErrConfig", err)
		}
	})

	t.Run("component length mismatch rejected", func(t *testing.T) {
		_, err := agg.Aggregate("Market",
			[]models.NormalizedSeries{
				component("A", testIndex(2), 1, 2),
				component("B", testIndex(2), 1),
			},
			[]float64{0.5, 0.5}, Options{})
		if err == nil {
			t.Error("expected error for ragged components")
		}
	})
}

func TestValidateWeights(t *testing.T) {
	if err := ValidateWeights([]float64{0.25, 0.25, 0.5}); err != nil {
		t.Errorf("valid weights rejected: %v", err)
	}
	if err := ValidateWeights([]float64{0.5, 0.6}); !errors.Is(err, models.ErrConfig) {
		t.Errorf("sum 1.1 accepted: %v", err)
	}
	if err := ValidateWeights([]float64{1.5, -0.5}); !errors.Is(err, models.ErrConfig) {
		t.Errorf("negative weight accepted: %v", err)
	}
	// drift below tolerance is fine
	if err := ValidateWeights([]float64{0.3333333, 0.3333333, 0.3333334}); err != nil {
		t.Errorf("tolerable drift rejected: %v", err)
	}
}

func TestRebaseFirstValid(t *testing.T) {
	t.Run("first valid becomes 100", func(t *testing.T) {
		in := []models.Cell{
			{},
			{Value: 50, Valid: true},
			{Value: 75, Valid: true},
			{},
			{Value: 25, Valid: true},
		}
		out := RebaseFirstValid(in)
		if out[0].Valid {
			t.Error("leading missing cell should stay missing")
		}
		want := []float64{100, 150, 50}
		got := []float64{out[1].Value, out[2].Value, out[4].Value}
		for i := range want {
			if math.Abs(got[i]-want[i]) > 1e-9 {
				t.Errorf("rebased[%d] = %v, want %v", i, got[i], want[i])
			}
		}
	})

	t.Run("zero baseline leaves series unscaled", func(t *testing.T) {
		in := []models.Cell{{Value: 0, Valid: true}, {Value: 5, Valid: true}}
		out := RebaseFirstValid(in)
		if out[1].Value != 5 {
			t.Errorf("series with zero baseline changed: %v", out[1].Value)
		}
	})

	t.Run("all missing returns copy", func(t *testing.T) {
		out := RebaseFirstValid(make([]models.Cell, 3))
		for i, c := range out {
			if c.Valid {
				t.Errorf("cell %d should be missing", i)
			}
		}
	})
}
