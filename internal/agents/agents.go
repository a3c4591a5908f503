// Package agents provides the concrete workers behind each pipeline stage:
// dataset analysis, format conversion, quality evaluation, and semantic
// enrichment. Each worker is built by a pool factory and validates its own
// preconditions at construction time so a misconfigured deployment fails at
// startup, not mid-pipeline.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"crucible/internal/config"
	"crucible/internal/logging"
	"crucible/internal/pipeline"
	"crucible/internal/worker"
)

// Factories returns the full factory set for the pool, one per worker kind,
// built from cfg.
func Factories(cfg *config.Config) map[pipeline.Kind]worker.Factory {
	return map[pipeline.Kind]worker.Factory{
		pipeline.KindAnalysis: func(ctx context.Context) (pipeline.Worker, error) {
			return NewAnalyzer(cfg.Workers.Analysis.Formats)
		},
		pipeline.KindConversion: func(ctx context.Context) (pipeline.Worker, error) {
			return NewConverter(cfg.Workers.Conversion.OutputDir)
		},
		pipeline.KindEvaluation: func(ctx context.Context) (pipeline.Worker, error) {
			return NewEvaluator(cfg.Workers.Evaluation.MinScore)
		},
		pipeline.KindEnrichment: func(ctx context.Context) (pipeline.Worker, error) {
			return NewEnricher(cfg.Workers.Enrichment.Ontology)
		},
	}
}

func param[T any](req pipeline.Request, name string) (T, error) {
	var zero T
	raw, ok := req.Params[name]
	if !ok {
		return zero, fmt.Errorf("missing parameter %q", name)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("parameter %q has type %T", name, raw)
	}
	return v, nil
}

func slot(req pipeline.Request, name string) (string, error) {
	v, ok := req.Slots[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("session slot %q is empty", name)
	}
	return v, nil
}

func normalizeExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func mustDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("output directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return nil
}

func newLog(kind pipeline.Kind) *slog.Logger {
	return logging.New("agent." + string(kind))
}
