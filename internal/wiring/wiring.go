// Package wiring is the composition root: it assembles the registry, worker
// pool, session store, and coordinator from configuration, and drives the
// full pipeline for smoke flows.
package wiring

import (
	"context"
	"fmt"
	"time"

	"crucible/internal/agents"
	"crucible/internal/config"
	"crucible/internal/logging"
	"crucible/internal/orchestrate"
	"crucible/internal/pipeline"
	"crucible/internal/registry"
	"crucible/internal/session"
	"crucible/internal/tools"
	"crucible/internal/worker"
)

// Build assembles a coordinator from configuration. The returned close
// function releases the session store; callers must invoke it on shutdown.
func Build(ctx context.Context, cfg *config.Config) (*orchestrate.Coordinator, func() error, error) {
	reg := registry.New()
	if err := tools.RegisterBuiltins(reg); err != nil {
		return nil, nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	timeout, err := cfg.AcquireTimeout()
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	pool, err := worker.Initialize(ctx, agents.Factories(cfg), timeout)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("initialize workers: %w", err)
	}

	if ttl, err := cfg.IdleTTL(); err == nil && ttl > 0 {
		go pruneLoop(ctx, store, ttl)
	}

	return orchestrate.New(reg, pool, store), store.Close, nil
}

// pruneLoop drops idle sessions on a fixed cadence until ctx is cancelled.
func pruneLoop(ctx context.Context, store session.Store, ttl time.Duration) {
	log := logging.New("session-gc")
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PruneIdle(ttl)
			if err != nil {
				log.Warn("prune failed", "error", err.Error())
				continue
			}
			if n > 0 {
				log.Info("pruned idle sessions", "count", n)
			}
		}
	}
}

func openStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		return session.Open(cfg.Store.Path)
	default:
		return session.NewMemStore(), nil
	}
}

// Run drives one session through the full ladder: analyze, convert,
// evaluate, enrich. It stops at the first error result and returns the
// session's final state.
func Run(ctx context.Context, coord *orchestrate.Coordinator, sessionKey, datasetPath, targetFormat string) (*session.State, error) {
	steps := []struct {
		tool   string
		params map[string]any
	}{
		{tools.ToolAnalyzeDataset, map[string]any{"dataset_path": datasetPath}},
		{tools.ToolConvertDataset, map[string]any{"target_format": targetFormat}},
		{tools.ToolEvaluateConversion, nil},
		{tools.ToolEnrichMetadata, nil},
	}
	for _, step := range steps {
		res := coord.Invoke(ctx, sessionKey, step.tool, step.params)
		if res.Status != orchestrate.StatusSuccess {
			return nil, fmt.Errorf("%s failed (%s): %s", step.tool, res.ErrorKind, res.Message)
		}
	}

	state, err := coord.State(sessionKey)
	if err != nil {
		return nil, err
	}
	if state.Stage != pipeline.StageEnriched {
		return state, fmt.Errorf("pipeline ended at stage %q", state.Stage)
	}
	return state, nil
}
