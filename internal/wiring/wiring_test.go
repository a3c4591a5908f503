package wiring

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"crucible/internal/config"
	"crucible/internal/pipeline"
)

func TestBuildWithSqliteBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Backend = "sqlite"
	cfg.Store.Path = filepath.Join(dir, "sessions.db")
	cfg.Workers.Conversion.OutputDir = filepath.Join(dir, "out")

	ctx := context.Background()
	coord, done, err := Build(ctx, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer func() {
		if err := done(); err != nil {
			t.Errorf("close: %v", err)
		}
	}()

	dataset := filepath.Join(dir, "d.csv")
	if err := os.WriteFile(dataset, []byte("a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	state, err := Run(ctx, coord, "sqlite-session", dataset, "json")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.Stage != pipeline.StageEnriched {
		t.Fatalf("stage = %q", state.Stage)
	}
	if _, err := os.Stat(cfg.Store.Path); err != nil {
		t.Fatalf("sqlite db not written: %v", err)
	}
}

func TestBuildFailsFastOnBadWorkerConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Workers.Conversion.OutputDir = t.TempDir()
	cfg.Workers.Evaluation.MinScore = 3 // outside [0,1], evaluator refuses

	if _, _, err := Build(context.Background(), cfg); err == nil {
		t.Fatal("expected initialization failure")
	}
}
