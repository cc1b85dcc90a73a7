// pkg/pipeline/worker.go
package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/boost"
)

var errTrialFailed = errors.New("trial failed")

// Scorer cross-validates one parameter set on a labelled matrix
type Scorer interface {
	Score(ctx context.Context, X [][]float64, y []float64, params boost.Params) (float64, []float64, error)
}

// WorkerState represents the current state of a worker
type WorkerState string

const (
	WorkerStateIdle      WorkerState = "idle"
	WorkerStateWorking   WorkerState = "working"
	WorkerStateCompleted WorkerState = "completed"
)

// Worker scores trial jobs from a shared queue
type Worker struct {
	ID           int
	scorer       Scorer
	X            [][]float64
	y            []float64
	logger       *zap.Logger
	errorHandler *ErrorHandler
	state        WorkerState
	currentJob   *TrialJob
	stateLock    sync.RWMutex
}

// NewWorker creates a new worker over a read-only training matrix
func NewWorker(
	id int,
	scorer Scorer,
	X [][]float64,
	y []float64,
	errorHandler *ErrorHandler,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		ID:           id,
		scorer:       scorer,
		X:            X,
		y:            y,
		errorHandler: errorHandler,
		logger:       logger.With(zap.Int("workerID", id)),
		state:        WorkerStateIdle,
	}
}

// GetState returns the current state of the worker
func (w *Worker) GetState() WorkerState {
	w.stateLock.RLock()
	defer w.stateLock.RUnlock()
	return w.state
}

// setState updates the worker state
func (w *Worker) setState(state WorkerState) {
	w.stateLock.Lock()
	defer w.stateLock.Unlock()

	prevState := w.state
	w.state = state

	if prevState != state {
		w.logger.Debug("Worker state changed",
			zap.String("from", string(prevState)),
			zap.String("to", string(state)))
	}
}

// GetCurrentJob returns the job currently being processed
func (w *Worker) GetCurrentJob() *TrialJob {
	w.stateLock.RLock()
	defer w.stateLock.RUnlock()
	return w.currentJob
}

func (w *Worker) setCurrentJob(job *TrialJob) {
	w.stateLock.Lock()
	defer w.stateLock.Unlock()
	w.currentJob = job
}

// Start begins the worker processing loop
func (w *Worker) Start(ctx context.Context, jobs <-chan TrialJob, results chan<- TrialResult) {
	w.setState(WorkerStateWorking)
	w.logger.Debug("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Worker stopping due to context cancellation")
			w.setState(WorkerStateCompleted)
			return

		case job, ok := <-jobs:
			if !ok {
				w.logger.Debug("Worker stopping due to closed job channel")
				w.setState(WorkerStateCompleted)
				return
			}

			result := w.ProcessJob(ctx, job)

			select {
			case results <- result:
			case <-ctx.Done():
				w.logger.Warn("Context cancelled while sending result",
					zap.Int("trial", job.Index))
				w.setState(WorkerStateCompleted)
				return
			}
		}
	}
}

// ProcessJob cross-validates a single trial
func (w *Worker) ProcessJob(ctx context.Context, job TrialJob) TrialResult {
	w.setCurrentJob(&job)
	defer w.setCurrentJob(nil)

	result := NewTrialResult(job, w.ID)

	w.logger.Info("Starting trial",
		zap.Int("trial", job.Index),
		zap.Int("n_estimators", job.Params.NEstimators),
		zap.Float64("learning_rate", job.Params.LearningRate),
		zap.Int("max_depth", job.Params.MaxDepth),
		zap.Int("retryCount", job.RetryCount))

	score, folds, err := w.scorer.Score(ctx, w.X, w.y, job.Params)
	if err != nil {
		record := NewErrorRecord(err, w.errorHandler.CategorizeError(err)).
			WithStage(StageTune).
			WithOptional().
			WithRetry(job.RetryCount)
		result.AddError(record)
		result.Action = w.errorHandler.HandleError(record)
		result.Complete(false)
		w.logger.Warn("Trial failed",
			zap.Int("trial", job.Index),
			zap.String("action", result.Action.String()),
			zap.Error(err))
		return *result
	}

	result.Score = score
	result.FoldScores = folds
	result.Complete(true)
	w.logger.Info("Trial completed",
		zap.Int("trial", job.Index),
		zap.Float64("recall", score),
		zap.Duration("duration", result.Duration))
	return *result
}
