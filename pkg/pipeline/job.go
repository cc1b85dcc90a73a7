// pkg/pipeline/job.go
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/David-Botos/churn-pipeline/pkg/boost"
	"github.com/David-Botos/churn-pipeline/pkg/tuning"
)

// TrialJob is one hyperparameter set waiting to be cross-validated
type TrialJob struct {
	ID         string       // Unique job identifier
	Index      int          // Position in the candidate list
	Params     boost.Params // Parameters to score
	CreatedAt  time.Time    // Job creation timestamp
	RetryCount int          // Number of retries attempted
	MaxRetries int          // Maximum allowed retries
}

// NewTrialJob creates a new trial job with defaults
func NewTrialJob(index int, params boost.Params) TrialJob {
	return TrialJob{
		ID:         uuid.New().String(),
		Index:      index,
		Params:     params,
		CreatedAt:  time.Now(),
		MaxRetries: 1,
	}
}

// WithMaxRetries sets the maximum retry count and returns the modified job
func (j TrialJob) WithMaxRetries(maxRetries int) TrialJob {
	j.MaxRetries = maxRetries
	return j
}

// IsRetryable checks if the job can be retried
func (j TrialJob) IsRetryable() bool {
	return j.RetryCount < j.MaxRetries
}

// Retry increments the retry count and returns the modified job
func (j TrialJob) Retry() TrialJob {
	j.RetryCount++
	return j
}

// TrialResult is the outcome of one trial job
type TrialResult struct {
	JobID      string
	Index      int
	Params     boost.Params
	Success    bool
	Score      float64
	FoldScores []float64
	Errors     []ErrorRecord
	Action     Action // what the error handler recommended on failure
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	RetryCount int
	WorkerID   int
}

// NewTrialResult initializes a result for a job
func NewTrialResult(job TrialJob, workerID int) *TrialResult {
	return &TrialResult{
		JobID:      job.ID,
		Index:      job.Index,
		Params:     job.Params,
		StartTime:  time.Now(),
		RetryCount: job.RetryCount,
		WorkerID:   workerID,
	}
}

// Complete marks the trial as complete and calculates duration
func (r *TrialResult) Complete(success bool) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.Success = success
}

// AddError adds an error to the result
func (r *TrialResult) AddError(err ErrorRecord) {
	r.Errors = append(r.Errors, err)
	r.Success = false
}

// HasErrors checks if any errors occurred
func (r *TrialResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Trial converts the result for ranking
func (r *TrialResult) Trial() tuning.Trial {
	t := tuning.Trial{
		Index:      r.Index,
		Params:     r.Params,
		Score:      r.Score,
		FoldScores: r.FoldScores,
	}
	if len(r.Errors) > 0 {
		t.Err = r.Errors[0].Error
		if t.Err == nil {
			t.Err = errTrialFailed
		}
	} else if !r.Success {
		t.Err = errTrialFailed
	}
	return t
}

// TuningSummary is the outcome of a hyperparameter search
type TuningSummary struct {
	Best       tuning.Trial   `json:"best"`
	Trials     []tuning.Trial `json:"trials"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Duration   time.Duration  `json:"duration"`
}
