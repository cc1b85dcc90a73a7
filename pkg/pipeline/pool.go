// pkg/pipeline/pool.go
package pipeline

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/boost"
	"github.com/David-Botos/churn-pipeline/pkg/tuning"
)

// TrialPool runs tuning trials on a fixed set of workers
type TrialPool struct {
	scorer       Scorer
	X            [][]float64
	y            []float64
	errorHandler *ErrorHandler
	metrics      *RunMetrics
	logger       *zap.Logger
	workerCount  int
	maxRetries   int
}

// NewTrialPool creates a pool over a training matrix. workerCount <= 0 picks
// a count from the available CPUs.
func NewTrialPool(
	scorer Scorer,
	X [][]float64,
	y []float64,
	workerCount int,
	errorHandler *ErrorHandler,
	metrics *RunMetrics,
	logger *zap.Logger,
) *TrialPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workerCount <= 0 {
		workerCount = calculateOptimalWorkerCount()
	}
	return &TrialPool{
		scorer:       scorer,
		X:            X,
		y:            y,
		errorHandler: errorHandler,
		metrics:      metrics,
		logger:       logger.Named("trial-pool"),
		workerCount:  workerCount,
		maxRetries:   1,
	}
}

// WithMaxRetries sets how often a failed trial is resubmitted
func (p *TrialPool) WithMaxRetries(maxRetries int) *TrialPool {
	p.maxRetries = maxRetries
	return p
}

// StartWorkerPool initializes and starts worker goroutines
func (p *TrialPool) StartWorkerPool(
	ctx context.Context,
	count int,
	jobs <-chan TrialJob,
	results chan<- TrialResult,
) *sync.WaitGroup {
	var wg sync.WaitGroup

	for i := 0; i < count; i++ {
		worker := NewWorker(i, p.scorer, p.X, p.y, p.errorHandler, p.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Start(ctx, jobs, results)
		}()
	}

	return &wg
}

// Run scores every candidate and returns the ranked summary. Failed trials
// are retried when the error handler asks for it and reported otherwise. A
// critical failure stops the search.
func (p *TrialPool) Run(ctx context.Context, candidates []boost.Params) (*TuningSummary, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", tuning.ErrNoTrials)
	}
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// In-flight jobs never exceed the candidate count, so neither channel blocks
	jobQueue := make(chan TrialJob, len(candidates))
	resultQueue := make(chan TrialResult, len(candidates))

	workers := min(p.workerCount, len(candidates))
	wg := p.StartWorkerPool(ctx, workers, jobQueue, resultQueue)
	p.logger.Info("Started trial workers",
		zap.Int("workers", workers),
		zap.Int("trials", len(candidates)))

	pending := make(map[string]TrialJob, len(candidates))
	for i, params := range candidates {
		job := NewTrialJob(i, params).WithMaxRetries(p.maxRetries)
		pending[job.ID] = job
		jobQueue <- job
	}

	final := make([]TrialResult, 0, len(candidates))
	var runErr error
	for len(pending) > 0 && runErr == nil {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()

		case result := <-resultQueue:
			job := pending[result.JobID]

			if !result.Success && result.Action == ActionRetry && job.IsRetryable() {
				retry := job.Retry()
				p.logger.Info("Resubmitting trial",
					zap.Int("trial", job.Index),
					zap.Int("retryCount", retry.RetryCount))
				pending[job.ID] = retry
				jobQueue <- retry
				continue
			}

			delete(pending, result.JobID)
			if p.metrics != nil {
				p.metrics.RecordTrial(result)
			}
			final = append(final, result)

			if !result.Success && result.Action == ActionAbort {
				runErr = WrapError(result.Trial().Err, fmt.Sprintf("trial %d", result.Index))
			}
		}
	}

	close(jobQueue)
	cancel()
	wg.Wait()

	if runErr != nil {
		return nil, runErr
	}

	sort.Slice(final, func(i, j int) bool { return final[i].Index < final[j].Index })
	summary := &TuningSummary{Trials: make([]tuning.Trial, len(final))}
	for i := range final {
		summary.Trials[i] = final[i].Trial()
		if final[i].Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}

	best, err := tuning.Best(summary.Trials)
	if err != nil {
		return nil, err
	}
	summary.Best = best
	summary.Duration = time.Since(start)

	p.logger.Info("Trial search finished",
		zap.Int("best_trial", best.Index),
		zap.Float64("best_recall", best.Score),
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

// calculateOptimalWorkerCount uses three quarters of the logical CPUs, at
// least 2 and at most 12. Folds inside a trial run in parallel too.
func calculateOptimalWorkerCount() int {
	workerCount := int(math.Ceil(float64(runtime.NumCPU()) * 0.75))
	return min(max(workerCount, 2), 12)
}
