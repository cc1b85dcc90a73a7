// pkg/pipeline/metrics.go
package pipeline

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Stage names used in logs, metrics and error records
const (
	StageLoad       = "load"
	StageValidate   = "validate"
	StagePreprocess = "preprocess"
	StageEncode     = "encode"
	StageSplit      = "split"
	StageTune       = "tune"
	StageTrain      = "train"
	StageEvaluate   = "evaluate"
	StagePersist    = "persist"
	StageTable      = "persist_table"
	StageTrack      = "track"
)

// StageMetrics tracks one pipeline stage
type StageMetrics struct {
	Name      string
	StartTime time.Time
	EndTime   time.Time
	Rows      int
	Skipped   bool
	Error     string
}

// Duration returns how long the stage ran
func (sm *StageMetrics) Duration() time.Duration {
	if sm.EndTime.IsZero() {
		return time.Since(sm.StartTime)
	}
	return sm.EndTime.Sub(sm.StartTime)
}

// RunMetrics tracks metrics for one pipeline run
type RunMetrics struct {
	mu                sync.Mutex
	logger            *zap.Logger
	StartTime         time.Time
	EndTime           time.Time
	Stages            []*StageMetrics
	RowsLoaded        int
	RowsEncoded       int
	FeatureCount      int
	CleaningOps       int
	SuccessfulTrials  int
	FailedTrials      int
	PeakMemoryUsage   int64
	ErrorCounts       map[ErrorCategory]int
	WorkerUtilization map[int]time.Duration
}

// NewRunMetrics creates a new RunMetrics instance
func NewRunMetrics(logger *zap.Logger) *RunMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunMetrics{
		logger:            logger,
		StartTime:         time.Now(),
		ErrorCounts:       make(map[ErrorCategory]int),
		WorkerUtilization: make(map[int]time.Duration),
	}
}

func (rm *RunMetrics) stage(name string) *StageMetrics {
	for i := len(rm.Stages) - 1; i >= 0; i-- {
		if rm.Stages[i].Name == name {
			return rm.Stages[i]
		}
	}
	return nil
}

// StartStage begins timing a stage
func (rm *RunMetrics) StartStage(name string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.Stages = append(rm.Stages, &StageMetrics{Name: name, StartTime: time.Now()})
	rm.logger.Info("Started stage", zap.String("stage", name))
}

// EndStage completes a stage. rows is the number of records it produced.
func (rm *RunMetrics) EndStage(name string, rows int, err error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	sm := rm.stage(name)
	if sm == nil {
		return
	}
	sm.EndTime = time.Now()
	sm.Rows = rows
	if err != nil {
		sm.Error = err.Error()
	}
	rm.sampleMemory()

	rm.logger.Info("Completed stage",
		zap.String("stage", name),
		zap.Duration("duration", sm.Duration()),
		zap.Int("rows", rows),
		zap.Bool("success", err == nil))
}

// SkipStage marks a stage as skipped
func (rm *RunMetrics) SkipStage(name, reason string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	sm := rm.stage(name)
	if sm == nil {
		now := time.Now()
		sm = &StageMetrics{Name: name, StartTime: now}
		rm.Stages = append(rm.Stages, sm)
	}
	sm.EndTime = time.Now()
	sm.Skipped = true
	sm.Error = reason

	rm.logger.Info("Skipped stage",
		zap.String("stage", name),
		zap.String("reason", reason))
}

// StageDuration returns the duration of the last run of a stage
func (rm *RunMetrics) StageDuration(name string) time.Duration {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if sm := rm.stage(name); sm != nil {
		return sm.Duration()
	}
	return 0
}

// RecordDataset records the size of the loaded and encoded data
func (rm *RunMetrics) RecordDataset(loaded, encoded, features, cleaningOps int) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.RowsLoaded = loaded
	rm.RowsEncoded = encoded
	rm.FeatureCount = features
	rm.CleaningOps = cleaningOps
}

// RecordTrial records metrics for a finished trial
func (rm *RunMetrics) RecordTrial(result TrialResult) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if result.Success {
		rm.SuccessfulTrials++
	} else {
		rm.FailedTrials++
		for _, err := range result.Errors {
			rm.recordError(err.Category)
		}
	}
	rm.WorkerUtilization[result.WorkerID] += result.Duration

	rm.logger.Info("Trial recorded",
		zap.Int("trial", result.Index),
		zap.Bool("success", result.Success),
		zap.Float64("score", result.Score),
		zap.Duration("duration", result.Duration),
		zap.Int("worker", result.WorkerID))
}

// RecordError increments the count for a specific error category
func (rm *RunMetrics) RecordError(category ErrorCategory) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.recordError(category)
}

func (rm *RunMetrics) recordError(category ErrorCategory) {
	rm.ErrorCounts[category]++
}

// GetCurrentResourceUsage retrieves the current heap allocation
func (rm *RunMetrics) GetCurrentResourceUsage() int64 {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return int64(memStats.Alloc)
}

func (rm *RunMetrics) sampleMemory() {
	if usage := rm.GetCurrentResourceUsage(); usage > rm.PeakMemoryUsage {
		rm.PeakMemoryUsage = usage
	}
}

// Complete marks the run as complete
func (rm *RunMetrics) Complete() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.EndTime = time.Now()
	rm.sampleMemory()

	rm.logger.Info("Pipeline run completed",
		zap.Duration("totalDuration", rm.duration()),
		zap.Int("rowsEncoded", rm.RowsEncoded),
		zap.Int("features", rm.FeatureCount),
		zap.Float64("throughput", rm.throughput()))
}

// Duration returns the total duration of the run
func (rm *RunMetrics) Duration() time.Duration {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.duration()
}

func (rm *RunMetrics) duration() time.Duration {
	if rm.EndTime.IsZero() {
		return time.Since(rm.StartTime)
	}
	return rm.EndTime.Sub(rm.StartTime)
}

// CalculateThroughput returns encoded rows per second over the whole run
func (rm *RunMetrics) CalculateThroughput() float64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.throughput()
}

func (rm *RunMetrics) throughput() float64 {
	seconds := rm.duration().Seconds()
	if seconds <= 0 {
		return 0
	}
	return float64(rm.RowsEncoded) / seconds
}

// GetWorkerEfficiency returns each worker's busy share of the run
func (rm *RunMetrics) GetWorkerEfficiency() map[int]float64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.workerEfficiency()
}

func (rm *RunMetrics) workerEfficiency() map[int]float64 {
	efficiency := make(map[int]float64)
	total := rm.duration()
	if total <= 0 {
		return efficiency
	}
	for workerID, busy := range rm.WorkerUtilization {
		efficiency[workerID] = float64(busy) / float64(total)
	}
	return efficiency
}

// formatBytes converts bytes to a human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats a duration to a human-readable string
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// getPercentage safely calculates a percentage, avoiding division by zero
func getPercentage(value, total float64) float64 {
	if total == 0 {
		return 0
	}
	return (value / total) * 100
}

// GenerateMetricsReport creates a detailed metrics report
func (rm *RunMetrics) GenerateMetricsReport() string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	trials := rm.SuccessfulTrials + rm.FailedTrials
	report := fmt.Sprintf(`
Pipeline Metrics Report
=======================
Duration:                %s
Start Time:              %s
End Time:                %s

Data Summary
------------
Rows Loaded:             %d
Rows Encoded:            %d
Feature Columns:         %d
Cleaning Ops:            %d
Average Throughput:      %.2f rows/sec

Tuning Summary
--------------
Total Trials:            %d
Successful Trials:       %d (%.1f%%)
Failed Trials:           %d (%.1f%%)

Resource Usage
--------------
Peak Memory Usage:       %s
`,
		formatDuration(rm.duration()),
		rm.StartTime.Format(time.RFC3339),
		rm.EndTime.Format(time.RFC3339),

		rm.RowsLoaded,
		rm.RowsEncoded,
		rm.FeatureCount,
		rm.CleaningOps,
		rm.throughput(),

		trials,
		rm.SuccessfulTrials, getPercentage(float64(rm.SuccessfulTrials), float64(trials)),
		rm.FailedTrials, getPercentage(float64(rm.FailedTrials), float64(trials)),

		formatBytes(rm.PeakMemoryUsage),
	)

	report += "\nStage Details\n-------------\n"
	for _, sm := range rm.Stages {
		status := "ok"
		switch {
		case sm.Skipped:
			status = "skipped: " + sm.Error
		case sm.Error != "":
			status = "failed: " + sm.Error
		}
		report += fmt.Sprintf("- %s: %s, %d rows, %s\n", sm.Name, formatDuration(sm.Duration()), sm.Rows, status)
	}

	if len(rm.ErrorCounts) > 0 {
		report += "\nError Distribution\n------------------\n"
		totalErrors := 0
		for _, count := range rm.ErrorCounts {
			totalErrors += count
		}
		categories := make([]ErrorCategory, 0, len(rm.ErrorCounts))
		for category := range rm.ErrorCounts {
			categories = append(categories, category)
		}
		sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
		for _, category := range categories {
			count := rm.ErrorCounts[category]
			report += fmt.Sprintf("- %s: %d (%.1f%%)\n", category, count, getPercentage(float64(count), float64(totalErrors)))
		}
	}

	if len(rm.WorkerUtilization) > 0 {
		report += "\nWorker Efficiency\n-----------------\n"
		efficiency := rm.workerEfficiency()
		workers := make([]int, 0, len(efficiency))
		for id := range efficiency {
			workers = append(workers, id)
		}
		sort.Ints(workers)
		for _, id := range workers {
			report += fmt.Sprintf("- Worker %d: %.1f%% active time\n", id, efficiency[id]*100)
		}
	}

	return report
}

// ToJSON serializes metrics to JSON
func (rm *RunMetrics) ToJSON() ([]byte, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	stages := make(map[string]string, len(rm.Stages))
	for _, sm := range rm.Stages {
		stages[sm.Name] = formatDuration(sm.Duration())
	}

	return json.Marshal(struct {
		Duration         string                `json:"duration"`
		RowsLoaded       int                   `json:"rowsLoaded"`
		RowsEncoded      int                   `json:"rowsEncoded"`
		FeatureCount     int                   `json:"featureCount"`
		SuccessfulTrials int                   `json:"successfulTrials"`
		FailedTrials     int                   `json:"failedTrials"`
		Throughput       float64               `json:"throughput"`
		Stages           map[string]string     `json:"stages"`
		ErrorCounts      map[ErrorCategory]int `json:"errorCounts"`
	}{
		Duration:         formatDuration(rm.duration()),
		RowsLoaded:       rm.RowsLoaded,
		RowsEncoded:      rm.RowsEncoded,
		FeatureCount:     rm.FeatureCount,
		SuccessfulTrials: rm.SuccessfulTrials,
		FailedTrials:     rm.FailedTrials,
		Throughput:       rm.throughput(),
		Stages:           stages,
		ErrorCounts:      rm.ErrorCounts,
	})
}
