package resample

import (
	"testing"
	"time"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func series(key string, points map[time.Time]float64) models.IndicatorSeries {
	s := models.IndicatorSeries{Key: key}
	// deterministic order does not matter for Align input, but keep sorted
	var ts []time.Time
	for t := range points {
		ts = append(ts, t)
	}
	for i := 0; i < len(ts); i++ {
		for j := i + 1; j < len(ts); j++ {
			if ts[j].Before(ts[i]) {
				ts[i], ts[j] = ts[j], ts[i]
			}
		}
	}
	for _, t := range ts {
		s.Points = append(s.Points, models.Observation{
			Timestamp: t,
			Value:     models.NewDecimal(points[t]),
		})
	}
	return s
}

func TestAlign(t *testing.T) {
	t.Run("daily data takes last observation of month", func(t *testing.T) {
		a := NewAligner(2020, 0)
		frame, err := a.Align(map[string]models.IndicatorSeries{
			"PX": series("PX", map[time.Time]float64{
				day(2024, time.January, 2):  10,
				day(2024, time.January, 15): 11,
				day(2024, time.January, 31): 12,
				day(2024, time.February, 5): 20,
			}),
		})
		if err != nil {
			t.Fatalf("Align failed: %v", err)
		}

		if len(frame.Index) != 2 {
			t.Fatalf("expected 2 month-end buckets, got %d", len(frame.Index))
		}
		if !frame.Index[0].Equal(day(2024, time.January, 31)) {
			t.Errorf("first bucket = %s, want 2024-01-31", frame.Index[0])
		}
		if !frame.Index[1].Equal(day(2024, time.February, 29)) {
			t.Errorf("second bucket = %s, want 2024-02-29", frame.Index[1])
		}

		col := frame.Columns["PX"]
		if !col[0].Valid || col[0].Value != 12 {
			t.Errorf("January cell = %+v, want last-of-month 12", col[0])
		}
		if !col[1].Valid || col[1].Value != 20 {
			t.Errorf("February cell = %+v, want 20", col[1])
		}
	})

	t.Run("forward fill bounded by max gap", func(t *testing.T) {
		a := NewAligner(2020, 2)
		frame, err := a.Align(map[string]models.IndicatorSeries{
			"Q": series("Q", map[time.Time]float64{
				day(2024, time.January, 31): 5,
				day(2024, time.June, 30):    6,
			}),
		})
		if err != nil {
			t.Fatalf("Align failed: %v", err)
		}

		col := frame.Columns["Q"]
		// Jan observed, Feb+Mar filled, Apr+May beyond gap, Jun observed
		wantValid := []bool{true, true, true, false, false, true}
		for i, want := range wantValid {
			if col[i].Valid != want {
				t.Errorf("month %d valid = %v, want %v", i, col[i].Valid, want)
			}
		}
		if col[1].Value != 5 || col[2].Value != 5 {
			t.Errorf("filled cells = %v, %v, want carried 5", col[1].Value, col[2].Value)
		}
	})

	t.Run("grid spans union of ranges", func(t *testing.T) {
		a := NewAligner(2020, 0)
		frame, err := a.Align(map[string]models.IndicatorSeries{
			"A": series("A", map[time.Time]float64{day(2024, time.January, 10): 1}),
			"B": series("B", map[time.Time]float64{day(2024, time.April, 10): 2}),
		})
		if err != nil {
			t.Fatalf("Align failed: %v", err)
		}
		if len(frame.Index) != 4 {
			t.Fatalf("expected Jan..Apr grid, got %d buckets", len(frame.Index))
		}
		// A missing after its last observation (no fill), B missing before its first
		if frame.Columns["A"][3].Valid {
			t.Error("A should be missing in April")
		}
		if frame.Columns["B"][0].Valid {
			t.Error("B should be missing in January")
		}
	})

	t.Run("observations before start year are clipped", func(t *testing.T) {
		a := NewAligner(2024, 0)
		frame, err := a.Align(map[string]models.IndicatorSeries{
			"X": series("X", map[time.Time]float64{
				day(1999, time.December, 31): 99,
				day(2024, time.March, 15):    1,
			}),
		})
		if err != nil {
			t.Fatalf("Align failed: %v", err)
		}
		if !frame.Index[0].Equal(day(2024, time.March, 31)) {
			t.Errorf("grid starts at %s, want 2024-03-31", frame.Index[0])
		}
	})

	t.Run("no observations after start is an error", func(t *testing.T) {
		a := NewAligner(2024, 0)
		_, err := a.Align(map[string]models.IndicatorSeries{
			"X": series("X", map[time.Time]float64{day(2000, time.June, 1): 1}),
		})
		if err == nil {
			t.Fatal("expected error for data entirely before grid start")
		}
	})

	t.Run("empty input is an error", func(t *testing.T) {
		a := NewAligner(2024, 0)
		if _, err := a.Align(nil); err == nil {
			t.Fatal("expected error for empty input")
		}
	})

	t.Run("deterministic for identical input", func(t *testing.T) {
		a := NewAligner(2020, 3)
		in := map[string]models.IndicatorSeries{
			"A": series("A", map[time.Time]float64{
				day(2024, time.January, 10): 1.5,
				day(2024, time.March, 20):   2.5,
			}),
		}
		f1, err := a.Align(in)
		if err != nil {
			t.Fatalf("Align failed: %v", err)
		}
		f2, err := a.Align(in)
		if err != nil {
			t.Fatalf("Align failed: %v", err)
		}
		for i := range f1.Index {
			if f1.Columns["A"][i] != f2.Columns["A"][i] {
				t.Fatalf("cell %d differs between runs", i)
			}
		}
	})
}

func TestMonthEnd(t *testing.T) {
	cases := []struct {
		in, want time.Time
	}{
		{day(2024, time.February, 1), day(2024, time.February, 29)},
		{day(2023, time.February, 10), day(2023, time.February, 28)},
		{day(2024, time.December, 31), day(2024, time.December, 31)},
	}
	for _, c := range cases {
		if got := monthEnd(c.in); !got.Equal(c.want) {
			t.Errorf("monthEnd(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}
