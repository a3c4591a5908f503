package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"crucible/internal/pipeline"
	"crucible/internal/session"
)

// Evaluator scores a finished conversion by reading its manifest back and
// checking completeness. Scores run 0..1; results below the configured
// minimum are flagged but still advance the pipeline, since a failed
// evaluation is itself a pipeline result.
type Evaluator struct {
	minScore float64
	log      *slog.Logger
}

// NewEvaluator builds the evaluation worker.
func NewEvaluator(minScore float64) (*Evaluator, error) {
	if minScore < 0 || minScore > 1 {
		return nil, fmt.Errorf("evaluator: min score %v outside [0,1]", minScore)
	}
	return &Evaluator{minScore: minScore, log: newLog(pipeline.KindEvaluation)}, nil
}

func (e *Evaluator) Kind() pipeline.Kind { return pipeline.KindEvaluation }

// Execute loads the manifest written by the conversion stage and produces a
// completeness report.
func (e *Evaluator) Execute(ctx context.Context, req pipeline.Request) (*pipeline.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	outPath, err := slot(req, session.SlotCurrentOutputPath)
	if err != nil {
		return nil, fmt.Errorf("evaluator: %w", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("evaluator: read manifest: %w", err)
	}
	var m conversionManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("evaluator: decode manifest %s: %w", outPath, err)
	}

	score, issues := scoreManifest(&m)
	passed := score >= e.minScore

	e.log.Info("conversion evaluated", "manifest", outPath, "score", score, "passed", passed)

	return &pipeline.Response{Payload: map[string]any{
		"report": map[string]any{
			"manifest":  outPath,
			"score":     score,
			"passed":    passed,
			"min_score": e.minScore,
			"issues":    issues,
		},
		"score":  score,
		"passed": passed,
	}}, nil
}

// scoreManifest grades the manifest on field completeness. Each missing
// field costs an equal share of the score.
func scoreManifest(m *conversionManifest) (float64, []string) {
	checks := []struct {
		name string
		ok   bool
	}{
		{"source recorded", m.Source != ""},
		{"source format recorded", m.SourceFormat != ""},
		{"target format recorded", m.TargetFormat != ""},
		{"plan has steps", len(m.Steps) > 0},
		{"metadata carried", len(m.Metadata) > 0},
		{"timestamp recorded", m.WrittenAt != ""},
	}

	var issues []string
	passed := 0
	for _, c := range checks {
		if c.ok {
			passed++
		} else {
			issues = append(issues, c.name+" missing")
		}
	}
	return float64(passed) / float64(len(checks)), issues
}
