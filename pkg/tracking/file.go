// pkg/tracking/file.go
package tracking

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	metaFile     = "meta.json"
	paramsFile   = "params.json"
	metricsFile  = "metrics.json"
	artifactsDir = "artifacts"
)

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileTracker stores runs as <dir>/<experiment>/<run-id>/ with meta.json,
// params.json, metrics.json and an artifacts/ directory
type FileTracker struct {
	dir    string
	logger *zap.Logger
}

// NewFileTracker creates a tracker rooted at dir
func NewFileTracker(dir string, logger *zap.Logger) (*FileTracker, error) {
	if dir == "" {
		return nil, errors.New("tracking directory cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tracking directory: %w", err)
	}
	return &FileTracker{dir: dir, logger: logger.Named("file-tracker")}, nil
}

// ExperimentDir returns the directory holding an experiment's runs
func (t *FileTracker) ExperimentDir(experiment string) string {
	name := unsafePathChars.ReplaceAllString(experiment, "_")
	if name == "" || name == "." || name == ".." {
		name = "default"
	}
	return filepath.Join(t.dir, name)
}

// RunDir returns the directory of one run
func (t *FileTracker) RunDir(experiment, runID string) string {
	return filepath.Join(t.ExperimentDir(experiment), runID)
}

// StartRun creates the run directory and writes its metadata
func (t *FileTracker) StartRun(ctx context.Context, experiment string) (*Run, error) {
	run := newRun(experiment, t)
	if err := os.MkdirAll(filepath.Join(t.runDir(run), artifactsDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	if err := t.writeJSON(run, metaFile, run.info); err != nil {
		return nil, err
	}
	t.logger.Info("Started run",
		zap.String("experiment", experiment),
		zap.String("run_id", run.info.ID),
		zap.String("dir", t.runDir(run)))
	return run, nil
}

// ListRuns returns the stored runs of an experiment, oldest first
func (t *FileTracker) ListRuns(experiment string) ([]RunInfo, error) {
	dir := t.ExperimentDir(experiment)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var runs []RunInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name(), metaFile))
		if err != nil {
			t.logger.Warn("Skipping run without metadata", zap.String("run", entry.Name()))
			continue
		}
		var info RunInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return nil, fmt.Errorf("failed to decode run %s: %w", entry.Name(), err)
		}
		runs = append(runs, info)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.Before(runs[j].StartedAt) })
	return runs, nil
}

func (t *FileTracker) runDir(run *Run) string {
	return t.RunDir(run.info.Experiment, run.info.ID)
}

func (t *FileTracker) writeJSON(run *Run, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(t.runDir(run), name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func (t *FileTracker) saveParam(_ context.Context, run *Run, _, _ string) error {
	return t.writeJSON(run, paramsFile, run.params)
}

func (t *FileTracker) saveMetric(_ context.Context, run *Run, _ string, _ float64, _ int) error {
	return t.writeJSON(run, metricsFile, run.metrics)
}

func (t *FileTracker) saveArtifact(_ context.Context, run *Run, name string, data []byte) error {
	path := filepath.Join(t.runDir(run), artifactsDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", name, err)
	}
	return nil
}

func (t *FileTracker) saveFeatureColumns(_ context.Context, run *Run) error {
	return t.writeJSON(run, metaFile, run.info)
}

func (t *FileTracker) finish(_ context.Context, run *Run) error {
	if err := t.writeJSON(run, metaFile, run.info); err != nil {
		return err
	}
	t.logger.Info("Ended run",
		zap.String("run_id", run.info.ID),
		zap.String("status", string(run.info.Status)),
		zap.Duration("duration", run.info.EndedAt.Sub(run.info.StartedAt)))
	return nil
}
