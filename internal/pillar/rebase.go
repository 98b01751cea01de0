package pillar

import "github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/models"

// RebaseFirstValid rescales a level series to index=100 at its first valid
// observation. Used for capex/infrastructure levels before normalization so
// heterogeneous units become comparable. A first value of zero cannot anchor
// the index, so the series is returned unscaled.
func RebaseFirstValid(cells []models.Cell) []models.Cell {
	base := 0.0
	found := false
	for _, c := range cells {
		if c.Valid {
			base = c.Value
			found = true
			break
		}
	}

	out := make([]models.Cell, len(cells))
	copy(out, cells)
	if !found || base == 0 {
		return out
	}

	for i, c := range cells {
		if c.Valid {
			out[i] = models.NewCell(c.Value / base * 100)
		}
	}
	return out
}
