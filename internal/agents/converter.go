package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crucible/internal/pipeline"
	"crucible/internal/session"
)

// conversionManifest is the durable record a conversion leaves behind. The
// evaluator reads it back to score the result.
type conversionManifest struct {
	SessionKey   string         `json:"session_key"`
	Source       string         `json:"source"`
	SourceFormat string         `json:"source_format"`
	TargetFormat string         `json:"target_format"`
	Steps        []string       `json:"steps"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	WrittenAt    string         `json:"written_at"`
}

// Converter plans and records the conversion of an analyzed dataset into a
// target format. Plans are written as manifest files under the configured
// output directory.
type Converter struct {
	outDir string
	log    *slog.Logger
}

// NewConverter builds the conversion worker. The output directory is created
// up front; failure to create it aborts initialization.
func NewConverter(outDir string) (*Converter, error) {
	if err := mustDir(outDir); err != nil {
		return nil, fmt.Errorf("converter: %w", err)
	}
	return &Converter{outDir: outDir, log: newLog(pipeline.KindConversion)}, nil
}

func (c *Converter) Kind() pipeline.Kind { return pipeline.KindConversion }

// Execute consumes the analysis handoff from the session slots, plans the
// conversion, and writes the manifest. The manifest path is the handoff to
// the evaluation stage.
func (c *Converter) Execute(ctx context.Context, req pipeline.Request) (*pipeline.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := param[string](req, "target_format")
	if err != nil {
		return nil, err
	}
	target = strings.TrimPrefix(strings.ToLower(target), ".")
	if target == "" {
		return nil, fmt.Errorf("converter: empty target format")
	}

	source, err := slot(req, session.SlotLastAnalyzedDataset)
	if err != nil {
		return nil, fmt.Errorf("converter: %w", err)
	}
	meta, _ := req.Slots[session.SlotNormalizedMetadata].(map[string]any)
	sourceFormat, _ := meta["format"].(string)

	steps := planSteps(sourceFormat, target)

	manifest := conversionManifest{
		SessionKey:   req.SessionKey,
		Source:       source,
		SourceFormat: sourceFormat,
		TargetFormat: target,
		Steps:        steps,
		Metadata:     meta,
		WrittenAt:    time.Now().UTC().Format(time.RFC3339),
	}

	name := fmt.Sprintf("%s-%s.%s.manifest.json",
		req.SessionKey, strings.TrimSuffix(filepath.Base(source), filepath.Ext(source)), target)
	outPath := filepath.Join(c.outDir, name)

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("converter: encode manifest: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		// The output directory existed at init; losing it mid-run means
		// this worker cannot make progress until it is rebuilt.
		return nil, fmt.Errorf("converter: write manifest %s: %v: %w", outPath, err, pipeline.ErrWorkerFault)
	}

	c.log.Info("conversion planned", "source", source, "target", target, "manifest", outPath)

	return &pipeline.Response{Payload: map[string]any{
		"output_path": outPath,
		"status":      "converted",
		"steps":       steps,
	}}, nil
}

// planSteps derives the conversion plan for a source/target format pair.
func planSteps(sourceFormat, target string) []string {
	src := strings.TrimPrefix(sourceFormat, ".")
	steps := []string{
		fmt.Sprintf("read %s input", orUnknown(src)),
		"validate schema",
	}
	if src != target {
		steps = append(steps, fmt.Sprintf("transcode %s to %s", orUnknown(src), target))
	}
	steps = append(steps, fmt.Sprintf("write %s output", target), "emit manifest")
	return steps
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
