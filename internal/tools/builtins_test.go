package tools

import (
	"context"
	"testing"

	"crucible/internal/pipeline"
	"crucible/internal/registry"
	"crucible/internal/session"
)

// fakeWorker echoes a canned payload for handler wiring tests.
type fakeWorker struct {
	kind    pipeline.Kind
	payload map[string]any
	lastReq pipeline.Request
}

func (w *fakeWorker) Kind() pipeline.Kind { return w.kind }

func (w *fakeWorker) Execute(_ context.Context, req pipeline.Request) (*pipeline.Response, error) {
	w.lastReq = req
	return &pipeline.Response{Payload: w.payload}, nil
}

func TestRegisterBuiltins(t *testing.T) {
	reg := registry.New()
	if err := RegisterBuiltins(reg); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	if reg.Len() != 5 {
		t.Fatalf("registered %d tools, want 5", reg.Len())
	}
	for _, name := range []string{
		ToolAnalyzeDataset, ToolConvertDataset, ToolEvaluateConversion,
		ToolEnrichMetadata, ToolPipelineStatus,
	} {
		if _, err := reg.Lookup(name); err != nil {
			t.Errorf("Lookup(%s): %v", name, err)
		}
	}
	// Double registration is a wiring mistake.
	if err := RegisterBuiltins(reg); err == nil {
		t.Fatal("expected duplicate error on second registration")
	}
}

func TestStageLadderDeclarations(t *testing.T) {
	want := map[string]struct {
		worker   pipeline.Kind
		requires pipeline.Stage
	}{
		ToolAnalyzeDataset:     {pipeline.KindAnalysis, pipeline.StageEmpty},
		ToolConvertDataset:     {pipeline.KindConversion, pipeline.StageAnalyzed},
		ToolEvaluateConversion: {pipeline.KindEvaluation, pipeline.StageConverted},
		ToolEnrichMetadata:     {pipeline.KindEnrichment, pipeline.StageEvaluated},
		ToolPipelineStatus:     {"", ""},
	}
	for _, d := range Builtins() {
		w, ok := want[d.Name]
		if !ok {
			t.Errorf("unexpected builtin %q", d.Name)
			continue
		}
		if d.Worker != w.worker || d.Requires != w.requires {
			t.Errorf("%s: worker=%q requires=%q, want worker=%q requires=%q",
				d.Name, d.Worker, d.Requires, w.worker, w.requires)
		}
	}
}

func TestAnalyzeHandlerMapsSlots(t *testing.T) {
	w := &fakeWorker{kind: pipeline.KindAnalysis, payload: map[string]any{
		"dataset":  "/data/d.csv",
		"metadata": map[string]any{"format": ".csv"},
	}}
	out, err := analyzeHandler(context.Background(), &registry.Call{
		SessionKey: "s1",
		Params:     map[string]any{"dataset_path": "/data/d.csv"},
		Worker:     w,
		Stage:      pipeline.StageEmpty,
	})
	if err != nil {
		t.Fatalf("analyzeHandler: %v", err)
	}
	if out.Advance != pipeline.StageAnalyzed {
		t.Errorf("advance = %q", out.Advance)
	}
	if out.Slots[session.SlotLastAnalyzedDataset] != "/data/d.csv" {
		t.Errorf("slots = %v", out.Slots)
	}
	if w.lastReq.Params["dataset_path"] != "/data/d.csv" {
		t.Errorf("worker request params = %v", w.lastReq.Params)
	}
}

func TestAdvancingHandlersRejectReRun(t *testing.T) {
	w := &fakeWorker{kind: pipeline.KindAnalysis, payload: map[string]any{}}
	_, err := analyzeHandler(context.Background(), &registry.Call{
		SessionKey: "s1",
		Worker:     w,
		Stage:      pipeline.StageConverted,
	})
	if err == nil {
		t.Fatal("expected re-run rejection past entry stage")
	}
	if w.lastReq.SessionKey != "" {
		t.Error("worker executed despite stage guard")
	}
}

func TestConvertHandlerMapsSlots(t *testing.T) {
	w := &fakeWorker{kind: pipeline.KindConversion, payload: map[string]any{
		"output_path": "/out/m.json",
		"status":      "converted",
	}}
	out, err := convertHandler(context.Background(), &registry.Call{
		SessionKey: "s1",
		Params:     map[string]any{"target_format": "json"},
		Worker:     w,
		Stage:      pipeline.StageAnalyzed,
		Slots:      map[string]any{session.SlotLastAnalyzedDataset: "/data/d.csv"},
	})
	if err != nil {
		t.Fatalf("convertHandler: %v", err)
	}
	if out.Advance != pipeline.StageConverted {
		t.Errorf("advance = %q", out.Advance)
	}
	if out.Slots[session.SlotCurrentOutputPath] != "/out/m.json" ||
		out.Slots[session.SlotConversionStatus] != "converted" {
		t.Errorf("slots = %v", out.Slots)
	}
	// The analysis handoff rides along in the worker request.
	if w.lastReq.Slots[session.SlotLastAnalyzedDataset] != "/data/d.csv" {
		t.Errorf("worker request slots = %v", w.lastReq.Slots)
	}
}

func TestHandlersRequireWorker(t *testing.T) {
	_, err := evaluateHandler(context.Background(), &registry.Call{
		SessionKey: "s1",
		Stage:      pipeline.StageConverted,
	})
	if err == nil {
		t.Fatal("expected error for nil worker")
	}
}

func TestStatusHandlerReadOnly(t *testing.T) {
	out, err := statusHandler(context.Background(), &registry.Call{
		SessionKey: "s1",
		Stage:      pipeline.StageAnalyzed,
		Slots:      map[string]any{session.SlotLastAnalyzedDataset: "/data/d.csv"},
	})
	if err != nil {
		t.Fatalf("statusHandler: %v", err)
	}
	if out.Advance != "" || len(out.Slots) != 0 {
		t.Errorf("status tool must not mutate state: %+v", out)
	}
	if out.Payload["stage"] != "analyzed" {
		t.Errorf("payload = %v", out.Payload)
	}
	slots := out.Payload["slots"].(map[string]any)
	if slots[session.SlotLastAnalyzedDataset] != "/data/d.csv" {
		t.Errorf("slots payload = %v", slots)
	}
}
