package regime

import (
	"fmt"
	"sort"
	"time"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/models"
)

// OverheatRule fires when the composite stays above Threshold for at least
// MinRun consecutive periods.
type OverheatRule struct {
	Threshold float64
	MinRun    int
}

// SectoralRule fires when at least MinPillars pillar scores simultaneously
// exceed Threshold at one period.
type SectoralRule struct {
	Threshold  float64
	MinPillars int
}

// CollapseRule fires when the named pillar drops by more than Drop points
// within Lookback periods while the composite holds above Floor.
type CollapseRule struct {
	Pillar   string
	Drop     float64
	Lookback int
	Floor    float64
}

// AlertEngine evaluates the trigger rules over the full composite history,
// producing every historical event, not just the latest one.
type AlertEngine struct {
	overheat OverheatRule
	sectoral SectoralRule
	collapse CollapseRule
}

// NewAlertEngine validates the rule thresholds up front
func NewAlertEngine(overheat OverheatRule, sectoral SectoralRule, collapse CollapseRule) (*AlertEngine, error) {
	if overheat.MinRun < 1 {
		return nil, fmt.Errorf("overheating min_run %d must be at least 1: %w", overheat.MinRun, models.ErrConfig)
	}
	if sectoral.MinPillars < 2 {
		return nil, fmt.Errorf("sectoral min_pillars %d must be at least 2: %w", sectoral.MinPillars, models.ErrConfig)
	}
	if collapse.Pillar == "" {
		return nil, fmt.Errorf("collapse rule needs a pillar name: %w", models.ErrConfig)
	}
	if collapse.Lookback < 1 {
		return nil, fmt.Errorf("collapse lookback %d must be at least 1: %w", collapse.Lookback, models.ErrConfig)
	}
	if collapse.Drop <= 0 {
		return nil, fmt.Errorf("collapse drop %v must be positive: %w", collapse.Drop, models.ErrConfig)
	}
	return &AlertEngine{overheat: overheat, sectoral: sectoral, collapse: collapse}, nil
}

// Evaluate runs every rule over the composite and pillar history
func (e *AlertEngine) Evaluate(composite models.Composite, pillars map[string]models.PillarScore) []models.AlertEvent {
	events := e.evaluateOverheating(composite)
	events = append(events, e.evaluateSectoral(composite.Index, pillars)...)
	events = append(events, e.evaluateCollapse(composite, pillars)...)

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	return events
}

// evaluateOverheating reports each maximal run of composite > threshold with
// length >= MinRun. Missing periods break a run.
func (e *AlertEngine) evaluateOverheating(composite models.Composite) []models.AlertEvent {
	var events []models.AlertEvent

	runStart, runLen, peak := -1, 0, 0.0
	flush := func(end int) {
		if runLen >= e.overheat.MinRun {
			events = append(events, models.AlertEvent{
				Rule:     models.RuleSystemicOverheating,
				Severity: models.SeverityCritical,
				Start:    composite.Index[runStart],
				End:      composite.Index[end],
				Value:    peak,
				Message: fmt.Sprintf("composite above %.1f for %d consecutive periods (peak %.1f)",
					e.overheat.Threshold, runLen, peak),
			})
		}
		runStart, runLen, peak = -1, 0, 0
	}

	for t, cell := range composite.Raw {
		if cell.Valid && cell.Value > e.overheat.Threshold {
			if runLen == 0 {
				runStart = t
			}
			runLen++
			if cell.Value > peak {
				peak = cell.Value
			}
			continue
		}
		if runLen > 0 {
			flush(t - 1)
		}
	}
	if runLen > 0 {
		flush(len(composite.Raw) - 1)
	}

	return events
}

// evaluateSectoral reports each period where enough pillars exceed the
// threshold at once. One event per period.
func (e *AlertEngine) evaluateSectoral(index []time.Time, pillars map[string]models.PillarScore) []models.AlertEvent {
	names := sortedPillarNames(pillars)

	var events []models.AlertEvent
	for t := range index {
		var hot []string
		top := 0.0
		for _, name := range names {
			cell := pillars[name].Values[t]
			if cell.Valid && cell.Value > e.sectoral.Threshold {
				hot = append(hot, name)
				if cell.Value > top {
					top = cell.Value
				}
			}
		}
		if len(hot) >= e.sectoral.MinPillars {
			events = append(events, models.AlertEvent{
				Rule:     models.RuleSectoralBubble,
				Severity: models.SeverityHigh,
				Start:    index[t],
				End:      index[t],
				Value:    top,
				Message:  fmt.Sprintf("%d pillars above %.1f: %v", len(hot), e.sectoral.Threshold, hot),
			})
		}
	}
	return events
}

// evaluateCollapse compares the watched pillar against its own recent high.
// Consecutive qualifying periods merge into one event; the drop window start
// and the last qualifying period bound the event.
func (e *AlertEngine) evaluateCollapse(composite models.Composite, pillars map[string]models.PillarScore) []models.AlertEvent {
	watched, ok := pillars[e.collapse.Pillar]
	if !ok {
		return nil
	}

	var events []models.AlertEvent
	open := false
	for t := range composite.Index {
		drop, from, qualifies := e.collapseAt(t, watched, composite)
		if !qualifies {
			open = false
			continue
		}
		if open {
			// Extend the running event instead of stacking duplicates
			last := &events[len(events)-1]
			last.End = composite.Index[t]
			if drop > last.Value {
				last.Value = drop
			}
			continue
		}
		events = append(events, models.AlertEvent{
			Rule:     models.RuleEarlyCollapse,
			Severity: models.SeverityCritical,
			Start:    composite.Index[from],
			End:      composite.Index[t],
			Value:    drop,
			Message: fmt.Sprintf("%s pillar fell %.1f points within %d periods with composite above %.1f",
				e.collapse.Pillar, drop, e.collapse.Lookback, e.collapse.Floor),
		})
		open = true
	}
	return events
}

// collapseAt checks the rule at period t: largest decline from any point in
// the trailing lookback, with the composite still above the floor.
func (e *AlertEngine) collapseAt(t int, watched models.PillarScore, composite models.Composite) (drop float64, from int, qualifies bool) {
	cur := watched.Values[t]
	comp := composite.Raw[t]
	if !cur.Valid || !comp.Valid || comp.Value <= e.collapse.Floor {
		return 0, 0, false
	}

	lo := t - e.collapse.Lookback
	if lo < 0 {
		lo = 0
	}
	best, bestAt := 0.0, -1
	for i := lo; i < t; i++ {
		prev := watched.Values[i]
		if !prev.Valid {
			continue
		}
		if d := prev.Value - cur.Value; d > best {
			best, bestAt = d, i
		}
	}
	if bestAt < 0 || best <= e.collapse.Drop {
		return 0, 0, false
	}
	return best, bestAt, true
}

func sortedPillarNames(pillars map[string]models.PillarScore) []string {
	names := make([]string, 0, len(pillars))
	for name := range pillars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
