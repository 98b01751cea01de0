package normalize

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/logger"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/models"
)

// Normalizer converts a raw aligned column into a 0-100 pressure series.
// Missing inputs produce missing outputs; imputation is the aligner's job.
type Normalizer struct{}

// New creates new normalizer
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize applies params.Method over the trailing window. The returned
// degenerate count is how many cells were dropped because the rolling window
// was flat (zero standard deviation); those cells are missing, never Inf.
func (n *Normalizer) Normalize(key string, index []time.Time, raw []models.Cell, params models.NormalizationParams) (models.NormalizedSeries, int, error) {
	if err := validateParams(params); err != nil {
		return models.NormalizedSeries{}, 0, err
	}
	if len(index) != len(raw) {
		return models.NormalizedSeries{}, 0, fmt.Errorf("series %s: index has %d periods but column has %d cells", key, len(index), len(raw))
	}

	values := make([]models.Cell, len(raw))
	degenerate := 0

	for t := range raw {
		if !raw[t].Valid {
			continue
		}

		window := trailingWindow(raw, t, params.Window)
		if len(window) < params.MinPeriods {
			continue // insufficient data, stays missing
		}

		switch params.Method {
		case models.MethodRollingZSigmoid:
			score, ok := zSigmoidScore(raw[t].Value, window, params)
			if !ok {
				degenerate++
				continue
			}
			values[t] = models.NewCell(score)

		case models.MethodPercentileRank:
			values[t] = models.NewCell(percentileScore(raw[t].Value, window, params.Invert))
		}
	}

	if degenerate > 0 {
		logger.Warn("flat rolling window produced missing scores",
			zap.String("indicator", key),
			zap.Int("window", params.Window),
			zap.Int("cells", degenerate),
		)
	}

	return models.NormalizedSeries{
		Key:    key,
		Params: params,
		Index:  index,
		Values: values,
	}, degenerate, nil
}

func validateParams(params models.NormalizationParams) error {
	switch params.Method {
	case models.MethodRollingZSigmoid, models.MethodPercentileRank:
	default:
		return fmt.Errorf("unknown normalization method %q: %w", params.Method, models.ErrConfig)
	}
	if params.Window < 2 {
		return fmt.Errorf("normalization window %d must be at least 2: %w", params.Window, models.ErrConfig)
	}
	if params.MinPeriods < 2 || params.MinPeriods > params.Window {
		return fmt.Errorf("min_periods %d must be in [2, window]: %w", params.MinPeriods, models.ErrConfig)
	}
	if params.Method == models.MethodRollingZSigmoid && params.Clip <= 0 {
		return fmt.Errorf("z-clip %v must be positive: %w", params.Clip, models.ErrConfig)
	}
	return nil
}

// trailingWindow collects the valid values in the inclusive window ending at t
func trailingWindow(raw []models.Cell, t, window int) []float64 {
	lo := t - window + 1
	if lo < 0 {
		lo = 0
	}
	out := make([]float64, 0, t-lo+1)
	for i := lo; i <= t; i++ {
		if raw[i].Valid {
			out = append(out, raw[i].Value)
		}
	}
	return out
}

// zSigmoidScore maps the current value's clipped z-score through a sigmoid.
// Returns ok=false on a flat window; never divides by zero.
func zSigmoidScore(x float64, window []float64, params models.NormalizationParams) (float64, bool) {
	mean, std := meanStd(window)
	if std == 0 {
		return 0, false
	}

	z := (x - mean) / std
	if z > params.Clip {
		z = params.Clip
	} else if z < -params.Clip {
		z = -params.Clip
	}
	if params.Invert {
		z = -z
	}

	return 100 / (1 + math.Exp(-z)), true
}

// percentileScore ranks x among the trailing window with ties averaged,
// scaled to 0-100. Matches pandas rank(pct=True) on the same window.
func percentileScore(x float64, window []float64, invert bool) float64 {
	less, equal := 0, 0
	for _, v := range window {
		switch {
		case v < x:
			less++
		case v == x:
			equal++
		}
	}

	rank := float64(less) + (float64(equal)+1)/2
	score := 100 * rank / float64(len(window))
	if invert {
		score = 100 - score
	}
	return score
}

// meanStd computes mean and sample standard deviation
func meanStd(values []float64) (float64, float64) {
	n := float64(len(values))
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	if len(values) < 2 {
		return mean, 0
	}

	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / (n - 1))
}
