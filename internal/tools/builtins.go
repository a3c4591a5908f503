// Package tools registers the built-in pipeline tools: one stage-advancing
// tool per worker kind plus a read-only status tool. Handlers hold the only
// domain knowledge about payload and slot shapes; the coordinator stays
// generic.
package tools

import (
	"context"
	"fmt"

	"crucible/internal/pipeline"
	"crucible/internal/registry"
	"crucible/internal/session"
)

// Tool names. Adapters expose tools under these names verbatim.
const (
	ToolAnalyzeDataset     = "analyze_dataset"
	ToolConvertDataset     = "convert_dataset"
	ToolEvaluateConversion = "evaluate_conversion"
	ToolEnrichMetadata     = "enrich_metadata"
	ToolPipelineStatus     = "pipeline_status"
)

// RegisterBuiltins installs the five built-in tools into reg.
func RegisterBuiltins(reg *registry.Registry) error {
	for _, d := range Builtins() {
		if err := reg.Register(d); err != nil {
			return fmt.Errorf("register builtins: %w", err)
		}
	}
	return nil
}

// Builtins returns the built-in tool descriptors.
func Builtins() []*registry.Descriptor {
	return []*registry.Descriptor{
		{
			Name:        ToolAnalyzeDataset,
			Description: "Analyze a dataset on disk and record its normalized metadata.",
			Worker:      pipeline.KindAnalysis,
			Requires:    pipeline.StageEmpty,
			Params: []registry.ParamSpec{
				{Name: "dataset_path", Type: registry.TypeString, Required: true,
					Description: "File or directory holding the dataset"},
			},
			Handler: analyzeHandler,
		},
		{
			Name:        ToolConvertDataset,
			Description: "Plan the conversion of the analyzed dataset and write its manifest.",
			Worker:      pipeline.KindConversion,
			Requires:    pipeline.StageAnalyzed,
			Params: []registry.ParamSpec{
				{Name: "target_format", Type: registry.TypeString, Required: true,
					Description: "Format to convert the dataset into"},
			},
			Handler: convertHandler,
		},
		{
			Name:        ToolEvaluateConversion,
			Description: "Score the conversion manifest for completeness.",
			Worker:      pipeline.KindEvaluation,
			Requires:    pipeline.StageConverted,
			Handler:     evaluateHandler,
		},
		{
			Name:        ToolEnrichMetadata,
			Description: "Attach ontology terms and a knowledge-graph reference to the result.",
			Worker:      pipeline.KindEnrichment,
			Requires:    pipeline.StageEvaluated,
			Handler:     enrichHandler,
		},
		{
			Name:        ToolPipelineStatus,
			Description: "Report the session's current stage and slots. Read-only.",
			Handler:     statusHandler,
		},
	}
}

// atStage guards stage-advancing tools against re-runs on sessions that have
// already moved past their entry stage. The registry's Requires field covers
// the too-early case; this covers too-late.
func atStage(call *registry.Call, entry pipeline.Stage, tool string) error {
	if call.Stage != entry {
		return fmt.Errorf("%s: session already at stage %q; reset to re-run", tool, call.Stage)
	}
	return nil
}

// runWorker executes the acquired worker against the call.
func runWorker(ctx context.Context, call *registry.Call, tool string) (*pipeline.Response, error) {
	if call.Worker == nil {
		return nil, fmt.Errorf("%s: no worker acquired", tool)
	}
	return call.Worker.Execute(ctx, pipeline.Request{
		Tool:       tool,
		SessionKey: call.SessionKey,
		Params:     call.Params,
		Slots:      call.Slots,
	})
}

func analyzeHandler(ctx context.Context, call *registry.Call) (*registry.Outcome, error) {
	if err := atStage(call, pipeline.StageEmpty, ToolAnalyzeDataset); err != nil {
		return nil, err
	}
	resp, err := runWorker(ctx, call, ToolAnalyzeDataset)
	if err != nil {
		return nil, err
	}
	return &registry.Outcome{
		Payload: resp.Payload,
		Slots: map[string]any{
			session.SlotLastAnalyzedDataset: resp.Payload["dataset"],
			session.SlotNormalizedMetadata:  resp.Payload["metadata"],
		},
		Advance: pipeline.StageAnalyzed,
	}, nil
}

func convertHandler(ctx context.Context, call *registry.Call) (*registry.Outcome, error) {
	if err := atStage(call, pipeline.StageAnalyzed, ToolConvertDataset); err != nil {
		return nil, err
	}
	resp, err := runWorker(ctx, call, ToolConvertDataset)
	if err != nil {
		return nil, err
	}
	return &registry.Outcome{
		Payload: resp.Payload,
		Slots: map[string]any{
			session.SlotCurrentOutputPath: resp.Payload["output_path"],
			session.SlotConversionStatus:  resp.Payload["status"],
		},
		Advance: pipeline.StageConverted,
	}, nil
}

func evaluateHandler(ctx context.Context, call *registry.Call) (*registry.Outcome, error) {
	if err := atStage(call, pipeline.StageConverted, ToolEvaluateConversion); err != nil {
		return nil, err
	}
	resp, err := runWorker(ctx, call, ToolEvaluateConversion)
	if err != nil {
		return nil, err
	}
	return &registry.Outcome{
		Payload: resp.Payload,
		Slots: map[string]any{
			session.SlotEvaluationReport: resp.Payload["report"],
		},
		Advance: pipeline.StageEvaluated,
	}, nil
}

func enrichHandler(ctx context.Context, call *registry.Call) (*registry.Outcome, error) {
	if err := atStage(call, pipeline.StageEvaluated, ToolEnrichMetadata); err != nil {
		return nil, err
	}
	resp, err := runWorker(ctx, call, ToolEnrichMetadata)
	if err != nil {
		return nil, err
	}
	return &registry.Outcome{
		Payload: resp.Payload,
		Slots: map[string]any{
			session.SlotKnowledgeGraphRef: resp.Payload["knowledge_graph_ref"],
		},
		Advance: pipeline.StageEnriched,
	}, nil
}

func statusHandler(_ context.Context, call *registry.Call) (*registry.Outcome, error) {
	slots := make(map[string]any, len(call.Slots))
	for k, v := range call.Slots {
		slots[k] = v
	}
	return &registry.Outcome{
		Payload: map[string]any{
			"session": call.SessionKey,
			"stage":   string(call.Stage),
			"slots":   slots,
		},
	}, nil
}
