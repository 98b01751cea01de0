package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// NewDecimal creates decimal from float64
func NewDecimal(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// NormalizationMethod selects how a raw series is mapped onto 0-100
type NormalizationMethod string

const (
	MethodRollingZSigmoid NormalizationMethod = "rolling_z_sigmoid"
	MethodPercentileRank  NormalizationMethod = "rolling_percentile"
)

// RegimeLabel is the interpretive zone assigned to a composite value
type RegimeLabel string

const (
	RegimeNone RegimeLabel = ""
)

// AlertRule identifies an alert trigger condition
type AlertRule string

const (
	RuleSystemicOverheating AlertRule = "systemic_overheating"
	RuleSectoralBubble      AlertRule = "sectoral_bubble"
	RuleEarlyCollapse       AlertRule = "early_collapse"
)

// Alert severities, highest first
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
)

// Observation represents a single raw data point as persisted by fetch collaborators
type Observation struct {
	Timestamp time.Time       `json:"timestamp" db:"observed_at"`
	Value     decimal.Decimal `json:"value" db:"value"`
}

// IndicatorSeries is an ordered raw series, timestamps strictly increasing.
// Owned by the upstream fetcher; the engine only reads it.
type IndicatorSeries struct {
	Key    string        `json:"key"`
	Points []Observation `json:"points"`
}

// Cell is a value-or-missing slot in an aligned frame or score series.
// Every consumer has to check Valid; NaN/Inf never live inside a valid cell.
type Cell struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// NewCell creates a valid cell, demoting NaN/Inf to missing
func NewCell(value float64) Cell {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Cell{}
	}
	return Cell{Value: value, Valid: true}
}

// Missing returns an explicit missing cell
func Missing() Cell {
	return Cell{}
}

// Frame maps a shared period index to one column of cells per indicator key.
// Invariant: every column has exactly len(Index) cells.
type Frame struct {
	Index   []time.Time       `json:"index"`
	Columns map[string][]Cell `json:"columns"`
}

// NormalizationParams records how a normalized series was produced
type NormalizationParams struct {
	Method     NormalizationMethod `json:"method"`
	Window     int                 `json:"window"`
	MinPeriods int                 `json:"min_periods"`
	Clip       float64             `json:"clip"`
	Invert     bool                `json:"invert"`
}

// NormalizedSeries is a 0-100 pressure series plus the parameters that made it
type NormalizedSeries struct {
	Key    string              `json:"key"`
	Params NormalizationParams `json:"params"`
	Index  []time.Time         `json:"index"`
	Values []Cell              `json:"values"`
}

// PillarScore is an aggregated 0-100 series for one thematic pillar
type PillarScore struct {
	Pillar     string      `json:"pillar"`
	Index      []time.Time `json:"index"`
	Values     []Cell      `json:"values"`
	Components []string    `json:"components"`
}

// Composite is the weighted combination of all pillar scores
type Composite struct {
	Index    []time.Time        `json:"index"`
	Raw      []Cell             `json:"raw"`
	Smoothed []Cell             `json:"smoothed"`
	Weights  map[string]float64 `json:"weights"`
}

// AlertEvent is one detected trigger occurrence over the composite history
type AlertEvent struct {
	Rule     AlertRule `json:"rule" db:"rule"`
	Severity string    `json:"severity" db:"severity"`
	Start    time.Time `json:"start" db:"starts_at"`
	End      time.Time `json:"end" db:"ends_at"`
	Value    float64   `json:"value" db:"value"`
	Message  string    `json:"message" db:"message"`
}
