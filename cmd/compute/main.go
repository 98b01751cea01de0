package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/adapters/config"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/artifact"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/internal/engine"
	"github.com/mjmonnot/ai-bubble-pressure-score-v1/pkg/logger"
)

// One-shot compute: read indicator CSVs from a directory, run the scoring
// pipeline once, write the artifact. Useful for research runs and backfills
// without the full service stack.
func main() {
	modelPath := flag.String("model", "./config/model.yaml", "path to model YAML config")
	inputDir := flag.String("input", "./data/series", "directory with per-indicator CSV files (date,value)")
	outputPath := flag.String("output", "./data/aibps_monthly.csv", "path for the score artifact CSV")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	if err := run(*modelPath, *inputDir, *outputPath, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(modelPath, inputDir, outputPath, logLevel string) error {
	if err := logger.Init(logLevel, ""); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	model, err := config.LoadModel(modelPath)
	if err != nil {
		return fmt.Errorf("failed to load model config: %w", err)
	}

	eng, err := engine.New(model)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	series, err := artifact.LoadSeriesDir(inputDir)
	if err != nil {
		return fmt.Errorf("failed to load series: %w", err)
	}
	if len(series) == 0 {
		return fmt.Errorf("no series files found in %s", inputDir)
	}
	logger.Info("series loaded",
		zap.Int("indicators", len(series)),
		zap.String("dir", inputDir),
	)

	result, err := eng.Run(context.Background(), series)
	if err != nil {
		return fmt.Errorf("compute failed: %w", err)
	}

	table := artifact.FromResult(result)
	if err := artifact.WriteFile(outputPath, table); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}

	printSummary(result, outputPath)
	return nil
}

func printSummary(result *engine.Result, outputPath string) {
	n := len(result.Composite.Index)
	fmt.Printf("✅ Computed %d monthly periods, artifact written to %s\n", n, outputPath)

	// Latest reading, skipping trailing periods without a score
	for i := n - 1; i >= 0; i-- {
		if !result.Composite.Smoothed[i].Valid {
			continue
		}
		fmt.Printf("📊 Latest: %s  AIBPS %.1f  regime %s\n",
			result.Composite.Index[i].Format("2006-01"),
			result.Composite.Smoothed[i].Value,
			result.Regimes[i],
		)
		break
	}

	if len(result.Alerts) > 0 {
		fmt.Printf("⚠️ Alerts: %d\n", len(result.Alerts))
		for _, ev := range result.Alerts {
			fmt.Printf("  [%s] %s %s to %s: %s\n",
				ev.Severity, ev.Rule,
				ev.Start.Format("2006-01"), ev.End.Format("2006-01"),
				ev.Message,
			)
		}
	}
}
