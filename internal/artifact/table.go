package artifact

import (
	"sort"
	"time"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/engine"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/models"
)

// Column names for the composite pair, matching the published artifact
const (
	CompositeColumn = "AIBPS"
	SmoothedColumn  = "AIBPS_RA"
)

// Table is the tabular artifact: one row per aligned period with columns for
// every normalized sub-indicator, every pillar score, the raw and smoothed
// composite, and the regime label. The in-memory shape the storage and
// dashboard collaborators consume.
type Table struct {
	Index   []time.Time
	Columns []string
	Cells   map[string][]models.Cell
	Regimes []models.RegimeLabel
}

// FromResult flattens a pipeline result into the artifact table. Column
// order is deterministic: sub-indicators, pillars, composite, smoothed.
func FromResult(res *engine.Result) *Table {
	t := &Table{
		Index:   res.Composite.Index,
		Cells:   make(map[string][]models.Cell),
		Regimes: res.Regimes,
	}

	for _, key := range sortedSeriesKeys(res.Normalized) {
		t.Columns = append(t.Columns, key)
		t.Cells[key] = res.Normalized[key].Values
	}
	for _, name := range sortedPillarKeys(res.Pillars) {
		t.Columns = append(t.Columns, name)
		t.Cells[name] = res.Pillars[name].Values
	}
	t.Columns = append(t.Columns, CompositeColumn, SmoothedColumn)
	t.Cells[CompositeColumn] = res.Composite.Raw
	t.Cells[SmoothedColumn] = res.Composite.Smoothed

	return t
}

func sortedSeriesKeys(m map[string]models.NormalizedSeries) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedPillarKeys(m map[string]models.PillarScore) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
