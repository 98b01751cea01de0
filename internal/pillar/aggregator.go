package pillar

import (
	"fmt"
	"math"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/models"
)

// WeightTolerance is how far a weight vector may drift from summing to 1.0
const WeightTolerance = 1e-6

// Options controls aggregation behavior
type Options struct {
	// AutoRenormalize rescales weights that do not sum to 1.0 instead of
	// rejecting them. Explicit opt-in; the default is a configuration error.
	AutoRenormalize bool
}

// Aggregator combines normalized sub-indicators into a single pillar series
type Aggregator struct{}

// NewAggregator creates new pillar aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// ValidateWeights rejects negative weights and sums away from 1.0
func ValidateWeights(weights []float64) error {
	sum := 0.0
	for i, w := range weights {
		if w < 0 {
			return fmt.Errorf("weight %d is negative (%v): %w", i, w, models.ErrConfig)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > WeightTolerance {
		return fmt.Errorf("weights sum to %v, want 1.0: %w", sum, models.ErrConfig)
	}
	return nil
}

// Aggregate computes the weighted average of the components at every period.
// Weights renormalize over the components present at each period, so one
// missing sub-indicator degrades the pillar instead of nulling it. A period
// where every component is missing stays missing.
func (a *Aggregator) Aggregate(pillarName string, components []models.NormalizedSeries, weights []float64, opts Options) (models.PillarScore, error) {
	if len(components) == 0 {
		return models.PillarScore{}, fmt.Errorf("pillar %s has no components: %w", pillarName, models.ErrConfig)
	}
	if len(components) != len(weights) {
		return models.PillarScore{}, fmt.Errorf("pillar %s: %d components but %d weights: %w",
			pillarName, len(components), len(weights), models.ErrConfig)
	}

	weights, err := normalizeWeights(weights, opts)
	if err != nil {
		return models.PillarScore{}, fmt.Errorf("pillar %s: %w", pillarName, err)
	}

	index := components[0].Index
	keys := make([]string, len(components))
	for i, c := range components {
		if len(c.Values) != len(index) {
			return models.PillarScore{}, fmt.Errorf("pillar %s: component %s has %d periods, want %d",
				pillarName, c.Key, len(c.Values), len(index))
		}
		keys[i] = c.Key
	}

	values := make([]models.Cell, len(index))
	for t := range index {
		weighted, available := 0.0, 0.0
		for i, c := range components {
			if !c.Values[t].Valid {
				continue
			}
			weighted += weights[i] * c.Values[t].Value
			available += weights[i]
		}
		if available > 0 {
			values[t] = models.NewCell(weighted / available)
		}
	}

	return models.PillarScore{
		Pillar:     pillarName,
		Index:      index,
		Values:     values,
		Components: keys,
	}, nil
}

// normalizeWeights validates, or rescales when auto-renormalization was
// requested. Negative weights are rejected either way.
func normalizeWeights(weights []float64, opts Options) ([]float64, error) {
	if !opts.AutoRenormalize {
		if err := ValidateWeights(weights); err != nil {
			return nil, err
		}
		return weights, nil
	}

	sum := 0.0
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("weight %d is negative (%v): %w", i, w, models.ErrConfig)
		}
		sum += w
	}
	if sum == 0 {
		return nil, fmt.Errorf("weights sum to zero: %w", models.ErrConfig)
	}

	scaled := make([]float64, len(weights))
	for i, w := range weights {
		scaled[i] = w / sum
	}
	return scaled, nil
}
