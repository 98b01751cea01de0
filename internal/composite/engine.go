package composite

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cinar/indicator"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/pillar"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/models"
)

// Engine combines pillar scores into the composite index. Re-weighting is a
// pure recomputation over already-normalized pillars, which is what keeps
// interactive weight adjustment cheap: normalization never reruns.
type Engine struct {
	smoothWindow int
}

// NewEngine creates a composite engine with the given smoothing window
func NewEngine(smoothWindow int) (*Engine, error) {
	if smoothWindow < 1 {
		return nil, fmt.Errorf("smoothing window %d must be at least 1: %w", smoothWindow, models.ErrConfig)
	}
	return &Engine{smoothWindow: smoothWindow}, nil
}

// Compose weights the pillar scores into the raw composite plus its trailing
// moving-average variant. Weights must reference known pillars, be
// non-negative, and sum to 1.0 unless opts.AutoRenormalize is set. Missing
// pillars at a period renormalize the remaining weights; a period where every
// pillar is missing stays missing.
func (e *Engine) Compose(pillars map[string]models.PillarScore, weights map[string]float64, opts pillar.Options) (models.Composite, error) {
	if len(pillars) == 0 {
		return models.Composite{}, fmt.Errorf("no pillar scores to compose: %w", models.ErrConfig)
	}

	names := make([]string, 0, len(weights))
	for name := range weights {
		if _, ok := pillars[name]; !ok {
			return models.Composite{}, fmt.Errorf("weight references unknown pillar %q: %w", name, models.ErrConfig)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for name := range pillars {
		if _, ok := weights[name]; !ok {
			return models.Composite{}, fmt.Errorf("pillar %q has no weight: %w", name, models.ErrConfig)
		}
	}

	vec := make([]float64, len(names))
	for i, name := range names {
		vec[i] = weights[name]
	}
	vec, err := validateVector(vec, opts)
	if err != nil {
		return models.Composite{}, err
	}

	index, err := sharedIndex(pillars, names)
	if err != nil {
		return models.Composite{}, err
	}

	raw := make([]models.Cell, len(index))
	for t := range index {
		weighted, available := 0.0, 0.0
		for i, name := range names {
			cell := pillars[name].Values[t]
			if !cell.Valid {
				continue
			}
			weighted += vec[i] * cell.Value
			available += vec[i]
		}
		if available > 0 {
			raw[t] = models.NewCell(weighted / available)
		}
	}

	used := make(map[string]float64, len(names))
	for i, name := range names {
		used[name] = vec[i]
	}

	return models.Composite{
		Index:    index,
		Raw:      raw,
		Smoothed: e.smooth(raw),
		Weights:  used,
	}, nil
}

// smooth applies a trailing simple moving average over grid positions. The
// window shrinks near the start (min one valid period); a missing period
// inside the window contributes nothing but does not pull older observations
// into it, so the smoothed value never mixes in scores beyond the window.
func (e *Engine) smooth(raw []models.Cell) []models.Cell {
	smoothed := make([]models.Cell, len(raw))

	first, contiguous := -1, true
	for i, c := range raw {
		if c.Valid {
			if first < 0 {
				first = i
			}
		} else if first >= 0 {
			contiguous = false
			break
		}
	}
	if first < 0 {
		return smoothed
	}

	if contiguous {
		dense := make([]float64, 0, len(raw)-first)
		for _, c := range raw[first:] {
			dense = append(dense, c.Value)
		}
		for j, v := range indicator.Sma(e.smoothWindow, dense) {
			smoothed[first+j] = models.NewCell(v)
		}
		return smoothed
	}

	for i := range raw {
		lo := i - e.smoothWindow + 1
		if lo < 0 {
			lo = 0
		}
		sum, n := 0.0, 0
		for j := lo; j <= i; j++ {
			if raw[j].Valid {
				sum += raw[j].Value
				n++
			}
		}
		if n > 0 {
			smoothed[i] = models.NewCell(sum / float64(n))
		}
	}
	return smoothed
}

func validateVector(vec []float64, opts pillar.Options) ([]float64, error) {
	if opts.AutoRenormalize {
		sum := 0.0
		for _, w := range vec {
			if w < 0 {
				return nil, fmt.Errorf("negative pillar weight %v: %w", w, models.ErrConfig)
			}
			sum += w
		}
		if sum == 0 {
			return nil, fmt.Errorf("pillar weights sum to zero: %w", models.ErrConfig)
		}
		if math.Abs(sum-1.0) > pillar.WeightTolerance {
			scaled := make([]float64, len(vec))
			for i, w := range vec {
				scaled[i] = w / sum
			}
			return scaled, nil
		}
		return vec, nil
	}
	if err := pillar.ValidateWeights(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// sharedIndex enforces the frame invariant: every pillar rides the same grid
func sharedIndex(pillars map[string]models.PillarScore, names []string) ([]time.Time, error) {
	index := pillars[names[0]].Index
	for _, name := range names[1:] {
		p := pillars[name]
		if len(p.Index) != len(index) {
			return nil, fmt.Errorf("pillar %q has %d periods, want %d", name, len(p.Index), len(index))
		}
	}
	for _, name := range names {
		if len(pillars[name].Values) != len(index) {
			return nil, fmt.Errorf("pillar %q values do not match its index", name)
		}
	}
	return index, nil
}
