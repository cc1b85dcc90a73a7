// pkg/pipeline/pool_test.go
package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/David-Botos/churn-pipeline/pkg/boost"
	"github.com/David-Botos/churn-pipeline/pkg/tuning"
)

// fakeScorer scores a candidate by its max depth. failures lists how often a
// depth fails before succeeding; a negative count always fails.
type fakeScorer struct {
	mu       sync.Mutex
	failures map[int]int
	err      error
	calls    map[int]int
}

func (s *fakeScorer) Score(_ context.Context, _ [][]float64, _ []float64, p boost.Params) (float64, []float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[int]int)
	}
	s.calls[p.MaxDepth]++

	left, ok := s.failures[p.MaxDepth]
	if ok && left != 0 {
		if left > 0 {
			s.failures[p.MaxDepth] = left - 1
		}
		return 0, nil, s.err
	}
	score := float64(p.MaxDepth) / 10
	return score, []float64{score, score}, nil
}

func candidates(depths ...int) []boost.Params {
	out := make([]boost.Params, len(depths))
	for i, d := range depths {
		out[i] = boost.DefaultParams()
		out[i].MaxDepth = d
	}
	return out
}

func TestTrialPoolRun(t *testing.T) {
	scorer := &fakeScorer{}
	metrics := NewRunMetrics(nil)
	pool := NewTrialPool(scorer, nil, nil, 3, NewErrorHandler(nil, 1), metrics, nil)

	summary, err := pool.Run(context.Background(), candidates(3, 7, 5, 7))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Successful != 4 || summary.Failed != 0 {
		t.Errorf("successful = %d, failed = %d", summary.Successful, summary.Failed)
	}
	// Equal scores go to the earlier trial
	if summary.Best.Index != 1 || summary.Best.Score != 0.7 {
		t.Errorf("best = trial %d score %v, want trial 1 score 0.7", summary.Best.Index, summary.Best.Score)
	}
	for i, trial := range summary.Trials {
		if trial.Index != i {
			t.Errorf("trials not ordered by index: %d at %d", trial.Index, i)
		}
	}
	if metrics.SuccessfulTrials != 4 {
		t.Errorf("metrics recorded %d trials", metrics.SuccessfulTrials)
	}
}

func TestTrialPoolRetriesStorageErrors(t *testing.T) {
	scorer := &fakeScorer{
		failures: map[int]int{4: 1},
		err:      errors.New("connection refused"),
	}
	pool := NewTrialPool(scorer, nil, nil, 2, NewErrorHandler(nil, 1), nil, nil)

	summary, err := pool.Run(context.Background(), candidates(2, 4))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Failed != 0 || summary.Best.Index != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if scorer.calls[4] != 2 {
		t.Errorf("depth 4 scored %d times, want 2", scorer.calls[4])
	}
}

func TestTrialPoolSkipsFailedTrials(t *testing.T) {
	scorer := &fakeScorer{
		failures: map[int]int{9: -1},
		err:      boost.ErrInvalidParams,
	}
	pool := NewTrialPool(scorer, nil, nil, 2, NewErrorHandler(nil, 1), nil, nil)

	summary, err := pool.Run(context.Background(), candidates(9, 2))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Failed != 1 || summary.Successful != 1 {
		t.Errorf("successful = %d, failed = %d", summary.Successful, summary.Failed)
	}
	if summary.Best.Index != 1 {
		t.Errorf("best = %d, want the surviving trial", summary.Best.Index)
	}
	if !errors.Is(summary.Trials[0].Err, boost.ErrInvalidParams) {
		t.Errorf("failed trial error = %v", summary.Trials[0].Err)
	}
}

func TestTrialPoolAbortsOnCriticalError(t *testing.T) {
	scorer := &fakeScorer{
		failures: map[int]int{3: -1},
		err:      errors.New("out of memory"),
	}
	pool := NewTrialPool(scorer, nil, nil, 1, NewErrorHandler(nil, 1), nil, nil)

	_, err := pool.Run(context.Background(), candidates(3))
	if err == nil {
		t.Fatal("expected the search to stop")
	}
}

func TestTrialPoolAllFailed(t *testing.T) {
	scorer := &fakeScorer{
		failures: map[int]int{3: -1},
		err:      tuning.ErrInvalidSplit,
	}
	pool := NewTrialPool(scorer, nil, nil, 1, NewErrorHandler(nil, 1), nil, nil)

	if _, err := pool.Run(context.Background(), candidates(3)); !errors.Is(err, tuning.ErrNoTrials) {
		t.Errorf("Run() error = %v, want ErrNoTrials", err)
	}
	if _, err := pool.Run(context.Background(), nil); !errors.Is(err, tuning.ErrNoTrials) {
		t.Errorf("empty Run() error = %v, want ErrNoTrials", err)
	}
}

func TestCalculateOptimalWorkerCount(t *testing.T) {
	if n := calculateOptimalWorkerCount(); n < 2 || n > 12 {
		t.Errorf("worker count %d outside [2, 12]", n)
	}
}
