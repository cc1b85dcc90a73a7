// pkg/tracking/tracker.go

// Package tracking records experiment runs: parameters, metrics and
// artifacts, in a directory tree or in PostgreSQL.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

var (
	// ErrRunClosed is returned when logging to a run that has ended
	ErrRunClosed = errors.New("run has ended")

	// ErrInvalidMetric is returned for non-finite metric values
	ErrInvalidMetric = errors.New("metric value must be finite")

	// ErrRunNotFound is returned when a stored run does not exist
	ErrRunNotFound = errors.New("run not found")
)

// Status is the lifecycle state of a run
type Status string

const (
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
	StatusFailed   Status = "FAILED"
)

// Tracker starts experiment runs
type Tracker interface {
	StartRun(ctx context.Context, experiment string) (*Run, error)
}

// RunInfo describes a stored run
type RunInfo struct {
	ID             string     `json:"run_id" db:"run_id"`
	Experiment     string     `json:"experiment" db:"experiment"`
	Status         Status     `json:"status" db:"status"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	FeatureColumns []string   `json:"feature_columns,omitempty" db:"-"`
}

// backend persists run updates. Every method is called with the run lock
// held, after the in-memory state has been updated.
type backend interface {
	saveParam(ctx context.Context, run *Run, key, value string) error
	saveMetric(ctx context.Context, run *Run, key string, value float64, step int) error
	saveArtifact(ctx context.Context, run *Run, name string, data []byte) error
	saveFeatureColumns(ctx context.Context, run *Run) error
	finish(ctx context.Context, run *Run) error
}

// Run is one tracked execution. It is safe for concurrent use.
type Run struct {
	mu sync.Mutex

	info      RunInfo
	params    map[string]string
	metrics   map[string]float64
	steps     map[string]int
	artifacts []string
	backend   backend
}

func newRun(experiment string, b backend) *Run {
	return &Run{
		info: RunInfo{
			ID:         uuid.New().String(),
			Experiment: experiment,
			Status:     StatusRunning,
			StartedAt:  time.Now().UTC(),
		},
		params:  make(map[string]string),
		metrics: make(map[string]float64),
		steps:   make(map[string]int),
		backend: b,
	}
}

// ID returns the run identifier
func (r *Run) ID() string {
	return r.info.ID
}

// Info returns a snapshot of the run description
func (r *Run) Info() RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	info := r.info
	info.FeatureColumns = append([]string(nil), r.info.FeatureColumns...)
	return info
}

// LogParam records a parameter. Logging a key again overwrites it.
func (r *Run) LogParam(ctx context.Context, key string, value interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.info.Status != StatusRunning {
		return ErrRunClosed
	}
	s := fmt.Sprint(value)
	r.params[key] = s
	return r.backend.saveParam(ctx, r, key, s)
}

// LogParams records several parameters in key order
func (r *Run) LogParams(ctx context.Context, params map[string]interface{}) error {
	for _, key := range sortedKeys(params) {
		if err := r.LogParam(ctx, key, params[key]); err != nil {
			return fmt.Errorf("param %s: %w", key, err)
		}
	}
	return nil
}

// LogMetric records a metric value. Each call for the same key is a new step
// and the latest value wins in the summary.
func (r *Run) LogMetric(ctx context.Context, key string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s", ErrInvalidMetric, key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.info.Status != StatusRunning {
		return ErrRunClosed
	}
	step := r.steps[key]
	r.steps[key] = step + 1
	r.metrics[key] = value
	return r.backend.saveMetric(ctx, r, key, value, step)
}

// LogMetrics records several metrics in key order
func (r *Run) LogMetrics(ctx context.Context, metrics map[string]float64) error {
	for _, key := range sortedKeys(metrics) {
		if err := r.LogMetric(ctx, key, metrics[key]); err != nil {
			return err
		}
	}
	return nil
}

// LogText stores text as an artifact called name
func (r *Run) LogText(ctx context.Context, name, text string) error {
	return r.logArtifact(ctx, name, []byte(text))
}

// LogJSON stores v, JSON encoded, as an artifact called name
func (r *Run) LogJSON(ctx context.Context, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return r.logArtifact(ctx, name, data)
}

// LogArtifact copies a file into the run under its base name
func (r *Run) LogArtifact(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	return r.logArtifact(ctx, filepath.Base(path), data)
}

// LogFeatureColumns stores the encoded column list with the run and as the
// feature_columns.txt artifact
func (r *Run) LogFeatureColumns(ctx context.Context, columns []string) error {
	r.mu.Lock()
	if r.info.Status != StatusRunning {
		r.mu.Unlock()
		return ErrRunClosed
	}
	r.info.FeatureColumns = append([]string(nil), columns...)
	err := r.backend.saveFeatureColumns(ctx, r)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	var text []byte
	for _, col := range columns {
		text = append(text, col...)
		text = append(text, '\n')
	}
	return r.logArtifact(ctx, "feature_columns.txt", text)
}

func (r *Run) logArtifact(ctx context.Context, name string, data []byte) error {
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.info.Status != StatusRunning {
		return ErrRunClosed
	}
	if err := r.backend.saveArtifact(ctx, r, name, data); err != nil {
		return err
	}
	for _, existing := range r.artifacts {
		if existing == name {
			return nil
		}
	}
	r.artifacts = append(r.artifacts, name)
	return nil
}

// End closes the run with a final status
func (r *Run) End(ctx context.Context, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.info.Status != StatusRunning {
		return ErrRunClosed
	}
	now := time.Now().UTC()
	r.info.Status = status
	r.info.EndedAt = &now
	return r.backend.finish(ctx, r)
}

// Params returns a copy of the logged parameters
func (r *Run) Params() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.params))
	for k, v := range r.params {
		out[k] = v
	}
	return out
}

// Metrics returns a copy of the latest metric values
func (r *Run) Metrics() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]float64, len(r.metrics))
	for k, v := range r.metrics {
		out[k] = v
	}
	return out
}

// Artifacts returns the artifact names in logging order
func (r *Run) Artifacts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.artifacts...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
