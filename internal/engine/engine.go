package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/adapters/config"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/composite"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/normalize"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/pillar"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/regime"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/resample"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/logger"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/models"
)

// Result is everything one run produces: the aligned frame, every normalized
// sub-indicator, the pillar scores, the composite with its smoothed variant,
// per-period regime labels, and the full alert history.
type Result struct {
	Frame      *models.Frame
	Normalized map[string]models.NormalizedSeries
	Pillars    map[string]models.PillarScore
	Composite  models.Composite
	Regimes    []models.RegimeLabel
	Alerts     []models.AlertEvent
	Degenerate int
}

// Engine runs the full scoring pipeline. It holds no state across runs; each
// Run is a pure function of its inputs and the model config it was built
// from, so identical inputs give bit-identical output.
type Engine struct {
	cfg        *config.ModelConfig
	aligner    *resample.Aligner
	normalizer *normalize.Normalizer
	aggregator *pillar.Aggregator
	composer   *composite.Engine
	classifier *regime.Classifier
	alerts     *regime.AlertEngine
}

// New validates the model config and assembles the pipeline
func New(cfg *config.ModelConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	composer, err := composite.NewEngine(cfg.SmoothWindow)
	if err != nil {
		return nil, err
	}

	bands := make([]regime.Band, len(cfg.Regimes))
	for i, b := range cfg.Regimes {
		bands[i] = regime.Band{Name: models.RegimeLabel(b.Name), Lower: b.Lower, Upper: b.Upper}
	}
	classifier, err := regime.NewClassifier(bands)
	if err != nil {
		return nil, err
	}

	alerts, err := regime.NewAlertEngine(
		regime.OverheatRule{Threshold: cfg.Alerts.Overheat.Threshold, MinRun: cfg.Alerts.Overheat.MinRun},
		regime.SectoralRule{Threshold: cfg.Alerts.Sectoral.Threshold, MinPillars: cfg.Alerts.Sectoral.MinPillars},
		regime.CollapseRule{
			Pillar:   cfg.Alerts.Collapse.Pillar,
			Drop:     cfg.Alerts.Collapse.Drop,
			Lookback: cfg.Alerts.Collapse.Lookback,
			Floor:    cfg.Alerts.Collapse.Floor,
		},
	)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:        cfg,
		aligner:    resample.NewAligner(cfg.StartYear, cfg.MaxFillGap),
		normalizer: normalize.New(),
		aggregator: pillar.NewAggregator(),
		composer:   composer,
		classifier: classifier,
		alerts:     alerts,
	}, nil
}

// Run executes one full pass: align, normalize, aggregate pillars
// (concurrently; pillars are independent until composition), compose,
// classify, and evaluate alerts.
func (e *Engine) Run(ctx context.Context, series map[string]models.IndicatorSeries) (*Result, error) {
	started := time.Now()

	// Unknown indicator references are fatal before any work happens
	for _, p := range e.cfg.Pillars {
		for _, ind := range p.Indicators {
			if _, ok := series[ind.Key]; !ok {
				return nil, fmt.Errorf("indicator %q configured but not supplied: %w", ind.Key, models.ErrConfig)
			}
		}
	}

	frame, err := e.aligner.Align(series)
	if err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}

	pillarResults := make([]pillarResult, len(e.cfg.Pillars))

	// Each pillar reads the shared frame and writes only its own slot,
	// so no locking is needed before the join.
	var wg sync.WaitGroup
	for i := range e.cfg.Pillars {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			pillarResults[slot] = e.computePillar(frame, &e.cfg.Pillars[slot])
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		Frame:      frame,
		Normalized: make(map[string]models.NormalizedSeries),
		Pillars:    make(map[string]models.PillarScore, len(e.cfg.Pillars)),
	}
	for _, pr := range pillarResults {
		if pr.err != nil {
			return nil, pr.err
		}
		result.Pillars[pr.score.Pillar] = pr.score
		result.Degenerate += pr.degenerate
		for _, ns := range pr.normalized {
			result.Normalized[ns.Key] = ns
		}
	}

	comp, err := e.composer.Compose(result.Pillars, e.cfg.PillarWeights(), pillar.Options{AutoRenormalize: e.cfg.AutoRenormalize})
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	result.Composite = comp
	result.Regimes = e.classifier.ClassifySeries(comp.Smoothed)
	result.Alerts = e.alerts.Evaluate(comp, result.Pillars)

	logger.Info("pressure score computed",
		zap.Int("periods", len(frame.Index)),
		zap.Int("indicators", len(result.Normalized)),
		zap.Int("pillars", len(result.Pillars)),
		zap.Int("alerts", len(result.Alerts)),
		zap.Int("degenerate_cells", result.Degenerate),
		zap.Duration("took", time.Since(started)),
	)

	return result, nil
}

// Reweight recomputes only the composite, regimes, and alerts from existing
// pillar scores. This is the cheap path dashboards use for interactive
// weight adjustment; normalization never reruns.
func (e *Engine) Reweight(result *Result, weights map[string]float64) (*Result, error) {
	comp, err := e.composer.Compose(result.Pillars, weights, pillar.Options{AutoRenormalize: e.cfg.AutoRenormalize})
	if err != nil {
		return nil, err
	}

	out := *result
	out.Composite = comp
	out.Regimes = e.classifier.ClassifySeries(comp.Smoothed)
	out.Alerts = e.alerts.Evaluate(comp, result.Pillars)
	return &out, nil
}

type pillarResult struct {
	score      models.PillarScore
	normalized []models.NormalizedSeries
	degenerate int
	err        error
}

// computePillar normalizes each member indicator (rebasing level series
// first) and aggregates them into the pillar score.
func (e *Engine) computePillar(frame *models.Frame, cfg *config.PillarConfig) pillarResult {
	components := make([]models.NormalizedSeries, 0, len(cfg.Indicators))
	weights := make([]float64, 0, len(cfg.Indicators))
	degenerate := 0

	for _, ind := range cfg.Indicators {
		raw := frame.Columns[ind.Key]
		if ind.Rebase {
			raw = pillar.RebaseFirstValid(raw)
		}

		ns, deg, err := e.normalizer.Normalize(ind.Key, frame.Index, raw, ind.Params())
		if err != nil {
			return pillarResult{err: fmt.Errorf("pillar %s: %w", cfg.Name, err)}
		}
		components = append(components, ns)
		weights = append(weights, ind.Weight)
		degenerate += deg
	}

	score, err := e.aggregator.Aggregate(cfg.Name, components, weights, pillar.Options{AutoRenormalize: e.cfg.AutoRenormalize})
	if err != nil {
		return pillarResult{err: err}
	}

	return pillarResult{score: score, normalized: components, degenerate: degenerate}
}
