// Package config loads the crucible configuration file (YAML or JSON) that
// drives worker construction, the session store backend, and logging.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration when --config is not
// given. A missing file is not an error; defaults apply.
const DefaultPath = ".crucible/crucible.yaml"

// Logging selects the slog level and output format.
type Logging struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// Store selects the session store backend.
type Store struct {
	Backend string `json:"backend" yaml:"backend"` // memory or sqlite
	Path    string `json:"path" yaml:"path"`       // sqlite file path
}

// Analysis configures the dataset analysis worker.
type Analysis struct {
	// Formats is the extension allow-list the sniffer accepts. Must be
	// non-empty or the worker refuses to initialize.
	Formats []string `json:"formats" yaml:"formats"`
}

// Conversion configures the conversion worker.
type Conversion struct {
	// OutputDir is where conversion manifests are written. Created at
	// startup; creation failure aborts initialization.
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

// Evaluation configures the quality evaluation worker.
type Evaluation struct {
	// MinScore is the completeness score below which a report is flagged.
	MinScore float64 `json:"min_score" yaml:"min_score"`
}

// Enrichment configures the semantic enrichment worker.
type Enrichment struct {
	// Ontology labels the vocabulary the knowledge graph is built against.
	Ontology string `json:"ontology" yaml:"ontology"`
}

// Workers groups per-kind worker configuration and the pool acquire bound.
type Workers struct {
	AcquireTimeout string     `json:"acquire_timeout" yaml:"acquire_timeout"` // e.g. "30s"
	Analysis       Analysis   `json:"analysis" yaml:"analysis"`
	Conversion     Conversion `json:"conversion" yaml:"conversion"`
	Evaluation     Evaluation `json:"evaluation" yaml:"evaluation"`
	Enrichment     Enrichment `json:"enrichment" yaml:"enrichment"`
}

// Session holds session housekeeping knobs.
type Session struct {
	IdleTTL string `json:"idle_ttl" yaml:"idle_ttl"` // prune sessions idle longer than this; "" = never
}

// Config is the root configuration record.
type Config struct {
	Logging Logging `json:"logging" yaml:"logging"`
	Store   Store   `json:"store" yaml:"store"`
	Workers Workers `json:"workers" yaml:"workers"`
	Session Session `json:"session" yaml:"session"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Logging: Logging{Level: "info", Format: "text"},
		Store:   Store{Backend: "memory"},
		Workers: Workers{
			AcquireTimeout: "30s",
			Analysis: Analysis{
				Formats: []string{".csv", ".tsv", ".json", ".parquet", ".h5", ".nc", ".zarr"},
			},
			Conversion: Conversion{OutputDir: ".crucible/out"},
			Evaluation: Evaluation{MinScore: 0.5},
			Enrichment: Enrichment{Ontology: "generic"},
		},
	}
}

// LoadFromPath reads a config file (YAML or JSON) and returns the parsed
// Config merged over defaults. Format is detected by extension or content.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Load(data, filepath.Ext(path))
}

// Load parses config from bytes over defaults. ext is the file extension for
// a format hint; empty = detect from content.
func Load(data []byte, ext string) (*Config, error) {
	cfg := Default()
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}

	asJSON := ext == ".json"
	if ext == "" {
		asJSON = strings.HasPrefix(strings.TrimSpace(string(data)), "{")
	}

	if asJSON {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that would otherwise surface as
// confusing failures deep in startup.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("config: sqlite backend needs store.path")
	}
	if _, err := c.AcquireTimeout(); err != nil {
		return err
	}
	if _, err := c.IdleTTL(); err != nil {
		return err
	}
	return nil
}

// AcquireTimeout parses the worker acquire bound; zero means the pool
// default.
func (c *Config) AcquireTimeout() (time.Duration, error) {
	if c.Workers.AcquireTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Workers.AcquireTimeout)
	if err != nil {
		return 0, fmt.Errorf("config: workers.acquire_timeout: %w", err)
	}
	return d, nil
}

// IdleTTL parses the session prune TTL; zero means pruning is disabled.
func (c *Config) IdleTTL() (time.Duration, error) {
	if c.Session.IdleTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Session.IdleTTL)
	if err != nil {
		return 0, fmt.Errorf("config: session.idle_ttl: %w", err)
	}
	return d, nil
}
