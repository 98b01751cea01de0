package resample

import (
	"fmt"
	"sort"
	"time"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/models"
)

// Aligner resamples arbitrary-frequency indicator series onto a shared
// month-end grid. Daily data aggregates down to the last observation of the
// month; sparse data is forward-filled up to maxFillGap buckets, after which
// cells stay missing instead of going stale.
type Aligner struct {
	start      time.Time
	maxFillGap int
}

// NewAligner creates an aligner with a grid clipped to January of startYear.
// maxFillGap is the number of consecutive empty months a prior observation
// may cover; 0 disables forward fill.
func NewAligner(startYear int, maxFillGap int) *Aligner {
	return &Aligner{
		start:      time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC),
		maxFillGap: maxFillGap,
	}
}

// Align produces one frame on a month-end grid spanning the union of all
// input ranges, clipped to the configured start. Pure function of its inputs.
func (a *Aligner) Align(series map[string]models.IndicatorSeries) (*models.Frame, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("no input series to align")
	}

	var earliest, latest time.Time
	for _, s := range series {
		for _, p := range s.Points {
			if p.Timestamp.Before(a.start) {
				continue
			}
			if earliest.IsZero() || p.Timestamp.Before(earliest) {
				earliest = p.Timestamp
			}
			if latest.IsZero() || p.Timestamp.After(latest) {
				latest = p.Timestamp
			}
		}
	}
	if earliest.IsZero() {
		return nil, fmt.Errorf("no observations after grid start %s", a.start.Format("2006-01-02"))
	}

	index := monthEndRange(earliest, latest)

	frame := &models.Frame{
		Index:   index,
		Columns: make(map[string][]Cell, len(series)),
	}

	for _, key := range sortedKeys(series) {
		frame.Columns[key] = a.resampleColumn(series[key], index)
	}

	return frame, nil
}

// Cell aliases the shared optional value type
type Cell = models.Cell

// resampleColumn buckets one series onto the grid: last observation inside a
// month wins, then bounded forward fill. A series with no observations in the
// window yields an all-missing column.
func (a *Aligner) resampleColumn(s models.IndicatorSeries, index []time.Time) []Cell {
	cells := make([]Cell, len(index))

	pos := 0
	for i, bucket := range index {
		var last *models.Observation
		for pos < len(s.Points) && !s.Points[pos].Timestamp.After(bucket) {
			if !s.Points[pos].Timestamp.Before(a.start) {
				last = &s.Points[pos]
			}
			pos++
		}
		if last != nil {
			cells[i] = models.NewCell(last.Value.InexactFloat64())
		}
	}

	if a.maxFillGap > 0 {
		forwardFill(cells, a.maxFillGap)
	}

	return cells
}

// forwardFill carries the last valid cell forward, at most maxGap steps
func forwardFill(cells []Cell, maxGap int) {
	gap := 0
	var carry Cell
	for i := range cells {
		if cells[i].Valid {
			carry = cells[i]
			gap = 0
			continue
		}
		gap++
		if carry.Valid && gap <= maxGap {
			cells[i] = carry
		}
	}
}

// monthEndRange builds the month-end index covering [from, to]
func monthEndRange(from, to time.Time) []time.Time {
	var index []time.Time
	cur := monthEnd(from)
	last := monthEnd(to)
	for !cur.After(last) {
		index = append(index, cur)
		cur = monthEnd(cur.AddDate(0, 0, 1))
	}
	return index
}

// monthEnd returns the final day of t's month at midnight UTC
func monthEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
}

func sortedKeys(series map[string]models.IndicatorSeries) []string {
	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
