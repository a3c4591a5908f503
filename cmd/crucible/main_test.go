package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// execute runs the root command in-process with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "crucible.yaml")
	cfg := "logging:\n  level: error\nworkers:\n  conversion:\n    output_dir: " +
		filepath.Join(dir, "out") + "\n"
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunCommand_FullPipeline(t *testing.T) {
	cfgPath := writeConfig(t)
	dataset := filepath.Join(t.TempDir(), "readings.csv")
	if err := os.WriteFile(dataset, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", cfgPath, "run", dataset, "--target-format", "json")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Stage:   enriched") {
		t.Fatalf("expected enriched stage in output:\n%s", out)
	}
	// All four transitions are reported.
	for _, tool := range []string{"analyze_dataset", "convert_dataset", "evaluate_conversion", "enrich_metadata"} {
		if !strings.Contains(out, tool) {
			t.Errorf("missing %s transition in output:\n%s", tool, out)
		}
	}
}

func TestToolsCommand_ListsBuiltins(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := execute(t, "--config", cfgPath, "tools")
	if err != nil {
		t.Fatalf("tools: %v\n%s", err, out)
	}
	for _, tool := range []string{"analyze_dataset", "convert_dataset", "pipeline_status"} {
		if !strings.Contains(out, tool) {
			t.Errorf("missing tool %s in output:\n%s", tool, out)
		}
	}
}

func TestInvokeCommand_ErrorIsData(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := execute(t, "--config", cfgPath,
		"invoke", "no_such_tool", "--session", "cli-test")
	if err != nil {
		t.Fatalf("invoke should report errors as result data: %v\n%s", err, out)
	}
	if !strings.Contains(out, "unknown_tool") {
		t.Fatalf("expected unknown_tool kind in output:\n%s", out)
	}
}

func TestRunCommand_SqliteBackendPersistsAcrossProcesses(t *testing.T) {
	cfgPath := writeConfig(t)
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	dataset := filepath.Join(t.TempDir(), "d.csv")
	if err := os.WriteFile(dataset, []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", cfgPath, "--db", dbPath,
		"run", dataset, "--session", "persisted")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}

	// A second coordinator over the same DB sees the finished session.
	out, err = execute(t, "--config", cfgPath, "--db", dbPath,
		"status", "--session", "persisted")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	if !strings.Contains(out, "enriched") {
		t.Fatalf("expected enriched session in sqlite-backed status:\n%s", out)
	}
	if !strings.Contains(out, "(idle ") {
		t.Errorf("expected idle age next to the updated timestamp:\n%s", out)
	}
	rootFlags.dbPath = ""
}

func TestInvokeCommand_ParamPairs(t *testing.T) {
	cfgPath := writeConfig(t)
	dataset := filepath.Join(t.TempDir(), "d.csv")
	if err := os.WriteFile(dataset, []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", cfgPath,
		"invoke", "analyze_dataset", "--session", "pairs-test",
		"--param", "dataset_path="+dataset)
	if err != nil {
		t.Fatalf("invoke: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"status": "success"`) {
		t.Fatalf("expected success result:\n%s", out)
	}
	invokeFlags.pairs = nil
}

func TestResetWorkerCommand_RejectsUnknownKind(t *testing.T) {
	if _, err := execute(t, "reset-worker", "welding"); err == nil {
		t.Fatal("expected error for unknown worker kind")
	}
}
