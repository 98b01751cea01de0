package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/models"
)

// ModelConfig is the scoring model: which indicator feeds which pillar, how
// each is normalized, how pillars weigh into the composite, and where the
// regime boundaries and alert thresholds sit. It is an explicit immutable
// object handed to every engine call, never process-wide mutable state.
type ModelConfig struct {
	StartYear       int  `yaml:"start_year"`
	MaxFillGap      int  `yaml:"max_fill_gap"`
	SmoothWindow    int  `yaml:"smooth_window"`
	AutoRenormalize bool `yaml:"auto_renormalize"`

	Pillars []PillarConfig `yaml:"pillars"`
	Regimes []BandConfig   `yaml:"regimes"`
	Alerts  AlertsConfig   `yaml:"alerts"`
}

// PillarConfig groups indicators into one thematic pillar
type PillarConfig struct {
	Name       string            `yaml:"name"`
	Weight     float64           `yaml:"weight"`
	Indicators []IndicatorConfig `yaml:"indicators"`
}

// IndicatorConfig describes one indicator key and its normalization
type IndicatorConfig struct {
	Key        string  `yaml:"key"`
	Weight     float64 `yaml:"weight"`
	Method     string  `yaml:"method"`
	Window     int     `yaml:"window"`
	MinPeriods int     `yaml:"min_periods"`
	Clip       float64 `yaml:"clip"`
	Invert     bool    `yaml:"invert"`
	Rebase     bool    `yaml:"rebase"`
}

// BandConfig is one regime zone row of the boundary table
type BandConfig struct {
	Name  string  `yaml:"name"`
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

// AlertsConfig carries the three alert rule parameter sets
type AlertsConfig struct {
	Overheat struct {
		Threshold float64 `yaml:"threshold"`
		MinRun    int     `yaml:"min_run"`
	} `yaml:"overheat"`
	Sectoral struct {
		Threshold  float64 `yaml:"threshold"`
		MinPillars int     `yaml:"min_pillars"`
	} `yaml:"sectoral"`
	Collapse struct {
		Pillar   string  `yaml:"pillar"`
		Drop     float64 `yaml:"drop"`
		Lookback int     `yaml:"lookback"`
		Floor    float64 `yaml:"floor"`
	} `yaml:"collapse"`
}

// LoadModel reads and validates a YAML model file
func LoadModel(path string) (*ModelConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model config: %w", err)
	}

	var cfg ModelConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse model config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultModel is the shipped six-pillar equal-weight model with the
// long-cycle windows for market/credit and shorter windows for the
// investment and hype pillars.
func DefaultModel() *ModelConfig {
	cfg := &ModelConfig{
		StartYear:    1980,
		MaxFillGap:   6,
		SmoothWindow: 3,
		Pillars: []PillarConfig{
			{Name: "Market", Indicators: []IndicatorConfig{
				{Key: "MKT_SOXX", Window: 120},
				{Key: "MKT_QQQ", Window: 120},
			}},
			{Name: "Credit", Indicators: []IndicatorConfig{
				{Key: "HY_OAS", Window: 120, Invert: true},
			}},
			{Name: "Capex_Supply", Indicators: []IndicatorConfig{
				{Key: "CAPEX_HYPERSCALER", Window: 36, Rebase: true},
				{Key: "CAPEX_MACRO", Window: 36, Rebase: true},
			}},
			{Name: "Infra", Indicators: []IndicatorConfig{
				{Key: "INFRA_MANUAL", Window: 36, Rebase: true},
				{Key: "INFRA_MACRO", Window: 36, Rebase: true},
			}},
			{Name: "Adoption", Indicators: []IndicatorConfig{
				{Key: "ADOPTION", Window: 24},
			}},
			{Name: "Sentiment", Indicators: []IndicatorConfig{
				{Key: "SENTIMENT", Window: 24},
			}},
		},
		Regimes: []BandConfig{
			{Name: "Watch", Lower: 0, Upper: 50},
			{Name: "Rising", Lower: 50, Upper: 70},
			{Name: "Elevated", Lower: 70, Upper: 85},
			{Name: "Critical", Lower: 85, Upper: 100},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills the documented defaults: equal weights where none were
// given, rolling_z_sigmoid with clip 4.0, min_periods = max(24, window/4)
// capped at the window, and the standard alert thresholds.
func (c *ModelConfig) ApplyDefaults() {
	if c.StartYear == 0 {
		c.StartYear = 1980
	}
	if c.MaxFillGap == 0 {
		c.MaxFillGap = 6
	}
	if c.SmoothWindow == 0 {
		c.SmoothWindow = 3
	}

	fillEqualPillarWeights(c.Pillars)

	for i := range c.Pillars {
		p := &c.Pillars[i]
		fillEqualIndicatorWeights(p.Indicators)
		for j := range p.Indicators {
			ind := &p.Indicators[j]
			if ind.Method == "" {
				ind.Method = string(models.MethodRollingZSigmoid)
			}
			if ind.Window == 0 {
				ind.Window = 120
			}
			if ind.Clip == 0 {
				ind.Clip = 4.0
			}
			if ind.MinPeriods == 0 {
				ind.MinPeriods = defaultMinPeriods(ind.Window)
			}
		}
	}

	if c.Alerts.Overheat.Threshold == 0 {
		c.Alerts.Overheat.Threshold = 80
	}
	if c.Alerts.Overheat.MinRun == 0 {
		c.Alerts.Overheat.MinRun = 3
	}
	if c.Alerts.Sectoral.Threshold == 0 {
		c.Alerts.Sectoral.Threshold = 85
	}
	if c.Alerts.Sectoral.MinPillars == 0 {
		c.Alerts.Sectoral.MinPillars = 2
	}
	if c.Alerts.Collapse.Pillar == "" {
		c.Alerts.Collapse.Pillar = "Market"
	}
	if c.Alerts.Collapse.Drop == 0 {
		c.Alerts.Collapse.Drop = 15
	}
	if c.Alerts.Collapse.Lookback == 0 {
		c.Alerts.Collapse.Lookback = 6
	}
	if c.Alerts.Collapse.Floor == 0 {
		c.Alerts.Collapse.Floor = 70
	}
}

// Validate enforces the fatal invariants: weights sum to 1.0 (unless
// auto-renormalization was requested), no negative weights, no duplicate
// keys, known methods, and a well-formed regime table. Computation must not
// start on a config that fails here.
func (c *ModelConfig) Validate() error {
	if len(c.Pillars) == 0 {
		return fmt.Errorf("model has no pillars: %w", models.ErrConfig)
	}
	if c.StartYear < 1900 {
		return fmt.Errorf("start_year %d is implausible: %w", c.StartYear, models.ErrConfig)
	}
	if c.SmoothWindow < 1 {
		return fmt.Errorf("smooth_window %d must be at least 1: %w", c.SmoothWindow, models.ErrConfig)
	}
	if c.MaxFillGap < 0 {
		return fmt.Errorf("max_fill_gap %d must not be negative: %w", c.MaxFillGap, models.ErrConfig)
	}

	pillarNames := make(map[string]bool, len(c.Pillars))
	for _, p := range c.Pillars {
		pillarNames[p.Name] = true
	}

	pillarSum := 0.0
	seenPillars := make(map[string]bool)
	seenKeys := make(map[string]bool)
	for _, p := range c.Pillars {
		if p.Name == "" {
			return fmt.Errorf("pillar with empty name: %w", models.ErrConfig)
		}
		if seenPillars[p.Name] {
			return fmt.Errorf("duplicate pillar %q: %w", p.Name, models.ErrConfig)
		}
		if reservedColumns[p.Name] {
			return fmt.Errorf("pillar name %q is a reserved artifact column: %w", p.Name, models.ErrConfig)
		}
		seenPillars[p.Name] = true

		if p.Weight < 0 {
			return fmt.Errorf("pillar %q has negative weight %v: %w", p.Name, p.Weight, models.ErrConfig)
		}
		pillarSum += p.Weight

		if len(p.Indicators) == 0 {
			return fmt.Errorf("pillar %q has no indicators: %w", p.Name, models.ErrConfig)
		}

		indSum := 0.0
		for _, ind := range p.Indicators {
			if ind.Key == "" {
				return fmt.Errorf("pillar %q has an indicator with empty key: %w", p.Name, models.ErrConfig)
			}
			if seenKeys[ind.Key] {
				return fmt.Errorf("indicator %q referenced twice: %w", ind.Key, models.ErrConfig)
			}
			if reservedColumns[ind.Key] {
				return fmt.Errorf("indicator key %q is a reserved artifact column: %w", ind.Key, models.ErrConfig)
			}
			if pillarNames[ind.Key] {
				return fmt.Errorf("indicator key %q collides with a pillar name: %w", ind.Key, models.ErrConfig)
			}
			seenKeys[ind.Key] = true

			if ind.Weight < 0 {
				return fmt.Errorf("indicator %q has negative weight %v: %w", ind.Key, ind.Weight, models.ErrConfig)
			}
			indSum += ind.Weight

			switch models.NormalizationMethod(ind.Method) {
			case models.MethodRollingZSigmoid, models.MethodPercentileRank:
			default:
				return fmt.Errorf("indicator %q has unknown method %q: %w", ind.Key, ind.Method, models.ErrConfig)
			}
			if ind.Window < 2 {
				return fmt.Errorf("indicator %q window %d must be at least 2: %w", ind.Key, ind.Window, models.ErrConfig)
			}
		}
		if !c.AutoRenormalize && math.Abs(indSum-1.0) > weightTolerance {
			return fmt.Errorf("pillar %q indicator weights sum to %v, want 1.0: %w", p.Name, indSum, models.ErrConfig)
		}
	}
	if !c.AutoRenormalize && math.Abs(pillarSum-1.0) > weightTolerance {
		return fmt.Errorf("pillar weights sum to %v, want 1.0: %w", pillarSum, models.ErrConfig)
	}

	if c.Alerts.Collapse.Pillar != "" && !seenPillars[c.Alerts.Collapse.Pillar] {
		return fmt.Errorf("collapse rule references unknown pillar %q: %w", c.Alerts.Collapse.Pillar, models.ErrConfig)
	}

	return validateBands(c.Regimes)
}

// PillarWeights returns the pillar weight vector keyed by name
func (c *ModelConfig) PillarWeights() map[string]float64 {
	weights := make(map[string]float64, len(c.Pillars))
	for _, p := range c.Pillars {
		weights[p.Name] = p.Weight
	}
	return weights
}

// Params converts one indicator entry into engine normalization parameters
func (ind *IndicatorConfig) Params() models.NormalizationParams {
	return models.NormalizationParams{
		Method:     models.NormalizationMethod(ind.Method),
		Window:     ind.Window,
		MinPeriods: ind.MinPeriods,
		Clip:       ind.Clip,
		Invert:     ind.Invert,
	}
}

const weightTolerance = 1e-6

// reservedColumns are artifact columns every model shares; a pillar or
// indicator named like one would clobber it in the written table
var reservedColumns = map[string]bool{
	"date":     true,
	"AIBPS":    true,
	"AIBPS_RA": true,
	"Regime":   true,
}

// defaultMinPeriods mirrors the flexible rolling-rank rule: a quarter of the
// window, but never below 24 observations, never above the window itself.
func defaultMinPeriods(window int) int {
	mp := window / 4
	if mp < 24 {
		mp = 24
	}
	if mp > window {
		mp = window
	}
	return mp
}

func fillEqualPillarWeights(pillars []PillarConfig) {
	for _, p := range pillars {
		if p.Weight != 0 {
			return // explicit weights present, leave them alone
		}
	}
	if len(pillars) == 0 {
		return
	}
	w := 1.0 / float64(len(pillars))
	for i := range pillars {
		pillars[i].Weight = w
	}
}

func fillEqualIndicatorWeights(indicators []IndicatorConfig) {
	for _, ind := range indicators {
		if ind.Weight != 0 {
			return
		}
	}
	if len(indicators) == 0 {
		return
	}
	w := 1.0 / float64(len(indicators))
	for i := range indicators {
		indicators[i].Weight = w
	}
}

func validateBands(bands []BandConfig) error {
	if len(bands) == 0 {
		return fmt.Errorf("regime boundary table is empty: %w", models.ErrConfig)
	}
	for i, b := range bands {
		if b.Name == "" {
			return fmt.Errorf("regime band %d has no name: %w", i, models.ErrConfig)
		}
		if b.Lower >= b.Upper {
			return fmt.Errorf("regime band %q has lower %v >= upper %v: %w", b.Name, b.Lower, b.Upper, models.ErrConfig)
		}
		if i > 0 && b.Lower != bands[i-1].Upper {
			return fmt.Errorf("regime bands %q and %q do not meet at %v: %w", bands[i-1].Name, b.Name, b.Lower, models.ErrConfig)
		}
	}
	if bands[0].Lower != 0 || bands[len(bands)-1].Upper != 100 {
		return fmt.Errorf("regime table must cover [0,100]: %w", models.ErrConfig)
	}
	return nil
}
