package main

import (
	"context"
	"fmt"
	"os"

	"crucible/internal/config"
	"crucible/internal/logging"
	"crucible/internal/orchestrate"
	"crucible/internal/wiring"
)

// loadConfig reads the configured (or default) config file and initializes
// logging from it. A missing default file is not an error.
func loadConfig() (*config.Config, error) {
	path := rootFlags.configPath
	cfg := config.Default()
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			path = config.DefaultPath
		}
	}
	if path != "" {
		loaded, err := config.LoadFromPath(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if rootFlags.dbPath != "" {
		cfg.Store.Backend = "sqlite"
		cfg.Store.Path = rootFlags.dbPath
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logging.Init(level, cfg.Logging.Format)
	return cfg, nil
}

// buildCoordinator assembles the full pipeline from config. The returned
// close function must run on shutdown.
func buildCoordinator(ctx context.Context) (*orchestrate.Coordinator, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	coord, done, err := wiring.Build(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("build pipeline: %w", err)
	}
	return coord, done, nil
}
