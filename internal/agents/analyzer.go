package agents

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"crucible/internal/pipeline"
)

// Analyzer inspects a dataset on disk and produces normalized metadata for
// the rest of the pipeline. It accepts either a single file or a directory
// of files sharing a format.
type Analyzer struct {
	formats map[string]bool
	log     *slog.Logger
}

// NewAnalyzer builds the analysis worker. The extension allow-list must be
// non-empty; an analyzer that accepts nothing is a configuration error.
func NewAnalyzer(formats []string) (*Analyzer, error) {
	if len(formats) == 0 {
		return nil, fmt.Errorf("analyzer: empty format allow-list")
	}
	allow := make(map[string]bool, len(formats))
	for _, f := range formats {
		ext := strings.ToLower(strings.TrimSpace(f))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allow[ext] = true
	}
	if len(allow) == 0 {
		return nil, fmt.Errorf("analyzer: empty format allow-list")
	}
	return &Analyzer{formats: allow, log: newLog(pipeline.KindAnalysis)}, nil
}

func (a *Analyzer) Kind() pipeline.Kind { return pipeline.KindAnalysis }

// Execute stats the dataset path, sniffs its format against the allow-list,
// and returns the dataset reference plus normalized metadata.
func (a *Analyzer) Execute(ctx context.Context, req pipeline.Request) (*pipeline.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := param[string](req, "dataset_path")
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("analyzer: stat dataset: %w", err)
	}

	var (
		format string
		size   int64
		files  int
	)
	if info.IsDir() {
		format, size, files, err = a.scanDir(path)
		if err != nil {
			return nil, err
		}
	} else {
		format = normalizeExt(path)
		if !a.formats[format] {
			return nil, fmt.Errorf("analyzer: unsupported format %q for %s", format, path)
		}
		size = info.Size()
		files = 1
	}

	a.log.Info("dataset analyzed", "path", path, "format", format, "files", files, "bytes", size)

	return &pipeline.Response{Payload: map[string]any{
		"dataset": path,
		"metadata": map[string]any{
			"name":       filepath.Base(path),
			"format":     format,
			"modality":   modality(format),
			"size_bytes": size,
			"file_count": files,
			"modified":   info.ModTime().UTC().Format(time.RFC3339),
		},
	}}, nil
}

// modality classifies a format extension by its data shape.
func modality(ext string) string {
	switch ext {
	case ".csv", ".tsv", ".parquet":
		return "tabular"
	case ".json":
		return "semi-structured"
	case ".h5", ".nc", ".zarr":
		return "array"
	default:
		return "binary"
	}
}

// scanDir walks one directory level and picks the dominant supported format.
func (a *Analyzer) scanDir(dir string) (format string, size int64, files int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, 0, fmt.Errorf("analyzer: read dataset dir: %w", err)
	}

	counts := make(map[string]int)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := normalizeExt(e.Name())
		if !a.formats[ext] {
			continue
		}
		counts[ext]++
		files++
		if fi, ferr := e.Info(); ferr == nil {
			size += fi.Size()
		}
	}
	if files == 0 {
		return "", 0, 0, fmt.Errorf("analyzer: no supported files under %s", dir)
	}

	exts := make([]string, 0, len(counts))
	for ext := range counts {
		exts = append(exts, ext)
	}
	sort.Slice(exts, func(i, j int) bool {
		if counts[exts[i]] != counts[exts[j]] {
			return counts[exts[i]] > counts[exts[j]]
		}
		return exts[i] < exts[j]
	})
	return exts[0], size, files, nil
}
