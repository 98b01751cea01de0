package regime

import (
	"fmt"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/models"
)

// Band is one interpretive zone: lower inclusive, upper exclusive. The final
// band additionally includes its upper bound so 100 classifies.
type Band struct {
	Name  models.RegimeLabel
	Lower float64
	Upper float64
}

// Classifier maps composite values onto regime labels via a boundary table
// that must be a true partition of [0,100].
type Classifier struct {
	bands []Band
}

// NewClassifier validates the boundary table: ordered, contiguous, covering
// exactly [0,100], with no gaps or overlaps. A malformed table is fatal.
func NewClassifier(bands []Band) (*Classifier, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("regime boundary table is empty: %w", models.ErrConfig)
	}

	seen := make(map[models.RegimeLabel]bool, len(bands))
	for i, b := range bands {
		if b.Name == models.RegimeNone {
			return nil, fmt.Errorf("regime band %d has no name: %w", i, models.ErrConfig)
		}
		if seen[b.Name] {
			return nil, fmt.Errorf("duplicate regime label %q: %w", b.Name, models.ErrConfig)
		}
		seen[b.Name] = true

		if b.Lower >= b.Upper {
			return nil, fmt.Errorf("regime band %q has lower %v >= upper %v: %w", b.Name, b.Lower, b.Upper, models.ErrConfig)
		}
		if i > 0 && b.Lower != bands[i-1].Upper {
			return nil, fmt.Errorf("regime bands %q and %q leave a gap or overlap at %v: %w",
				bands[i-1].Name, b.Name, b.Lower, models.ErrConfig)
		}
	}
	if bands[0].Lower != 0 {
		return nil, fmt.Errorf("regime table starts at %v, want 0: %w", bands[0].Lower, models.ErrConfig)
	}
	if bands[len(bands)-1].Upper != 100 {
		return nil, fmt.Errorf("regime table ends at %v, want 100: %w", bands[len(bands)-1].Upper, models.ErrConfig)
	}

	return &Classifier{bands: bands}, nil
}

// Classify returns the single band containing value
func (c *Classifier) Classify(value float64) (models.RegimeLabel, error) {
	if value < 0 || value > 100 {
		return models.RegimeNone, fmt.Errorf("value %v outside [0,100]", value)
	}
	for i, b := range c.bands {
		if value < b.Upper || (i == len(c.bands)-1 && value == b.Upper) {
			return b.Name, nil
		}
	}
	// Unreachable given a validated table
	return models.RegimeNone, fmt.Errorf("value %v matched no regime band", value)
}

// ClassifySeries labels every valid cell; missing cells get RegimeNone
func (c *Classifier) ClassifySeries(cells []models.Cell) []models.RegimeLabel {
	labels := make([]models.RegimeLabel, len(cells))
	for i, cell := range cells {
		if !cell.Valid {
			continue
		}
		label, err := c.Classify(cell.Value)
		if err != nil {
			continue // out-of-range never comes from the engine, guard anyway
		}
		labels[i] = label
	}
	return labels
}
