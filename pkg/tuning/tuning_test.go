// pkg/tuning/tuning_test.go
package tuning

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/David-Botos/churn-pipeline/pkg/boost"
)

// labels returns n rows with the first pos of them positive
func labels(n, pos int) []float64 {
	y := make([]float64, n)
	for i := 0; i < pos; i++ {
		y[i] = 1
	}
	return y
}

func countPositive(y []float64, idx []int) int {
	n := 0
	for _, i := range idx {
		if y[i] == 1 {
			n++
		}
	}
	return n
}

func TestStratifiedSplit(t *testing.T) {
	y := labels(100, 20)
	train, test, err := StratifiedSplit(y, 0.2, 42)
	if err != nil {
		t.Fatalf("StratifiedSplit() error = %v", err)
	}
	if len(train) != 80 || len(test) != 20 {
		t.Fatalf("sizes = %d/%d, want 80/20", len(train), len(test))
	}
	if got := countPositive(y, test); got != 4 {
		t.Errorf("positives in test = %d, want 4", got)
	}

	seen := make(map[int]bool)
	for _, i := range append(append([]int(nil), train...), test...) {
		if seen[i] {
			t.Fatalf("row %d appears twice", i)
		}
		seen[i] = true
	}
	if len(seen) != 100 {
		t.Errorf("split covers %d rows, want 100", len(seen))
	}

	again, _, _ := StratifiedSplit(y, 0.2, 42)
	if !reflect.DeepEqual(train, again) {
		t.Error("same seed produced a different split")
	}
	other, _, _ := StratifiedSplit(y, 0.2, 7)
	if reflect.DeepEqual(train, other) {
		t.Error("different seeds produced the same split")
	}
}

func TestStratifiedSplitKeepsRareClassOnBothSides(t *testing.T) {
	y := labels(10, 2)
	train, test, err := StratifiedSplit(y, 0.1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if countPositive(y, test) != 1 || countPositive(y, train) != 1 {
		t.Errorf("rare class not split: train=%v test=%v", train, test)
	}
}

func TestStratifiedSplitErrors(t *testing.T) {
	tests := []struct {
		name     string
		y        []float64
		testSize float64
	}{
		{"zero test size", labels(10, 5), 0},
		{"whole test size", labels(10, 5), 1},
		{"single row", labels(1, 1), 0.5},
	}
	for _, tt := range tests {
		if _, _, err := StratifiedSplit(tt.y, tt.testSize, 1); !errors.Is(err, ErrInvalidSplit) {
			t.Errorf("%s: error = %v, want ErrInvalidSplit", tt.name, err)
		}
	}
}

func TestStratifiedKFold(t *testing.T) {
	y := labels(9, 3)
	folds, err := StratifiedKFold(y, 3)
	if err != nil {
		t.Fatalf("StratifiedKFold() error = %v", err)
	}

	want := [][]int{{0, 3, 4}, {1, 5, 6}, {2, 7, 8}}
	tested := 0
	for f, fold := range folds {
		if !reflect.DeepEqual(fold.Test, want[f]) {
			t.Errorf("fold %d test = %v, want %v", f, fold.Test, want[f])
		}
		if len(fold.Train)+len(fold.Test) != len(y) {
			t.Errorf("fold %d does not cover every row", f)
		}
		tested += len(fold.Test)
	}
	if tested != len(y) {
		t.Errorf("tested %d rows, want %d", tested, len(y))
	}

	if _, err := StratifiedKFold(y, 1); !errors.Is(err, ErrInvalidSplit) {
		t.Errorf("k=1 error = %v", err)
	}
	if _, err := StratifiedKFold(labels(2, 1), 3); !errors.Is(err, ErrInvalidSplit) {
		t.Errorf("too few rows error = %v", err)
	}
}

func TestSubset(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}}
	y := []float64{0, 1, 0}
	xs, ys := Subset(X, y, []int{2, 0})
	if !reflect.DeepEqual(xs, [][]float64{{2}, {0}}) || !reflect.DeepEqual(ys, []float64{0, 0}) {
		t.Errorf("Subset() = %v %v", xs, ys)
	}
	if _, ys := Subset(X, nil, []int{1}); ys != nil {
		t.Errorf("nil labels should stay nil, got %v", ys)
	}
}

func TestSampleStaysInSpace(t *testing.T) {
	space := DefaultSearchSpace()
	base := boost.DefaultParams()
	rnd := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		p := space.Sample(rnd, base)
		if p.NEstimators < 300 || p.NEstimators > 800 ||
			p.MaxDepth < 3 || p.MaxDepth > 10 ||
			p.LearningRate < 0.01 || p.LearningRate >= 0.2 ||
			p.Subsample < 0.5 || p.Subsample > 1 ||
			p.ColSampleByTree < 0.5 || p.ColSampleByTree > 1 {
			t.Fatalf("sample %d out of range: %+v", i, p)
		}
		if p.Seed != base.Seed || p.Lambda != base.Lambda {
			t.Fatalf("sample %d changed fixed parameters: %+v", i, p)
		}
		if err := p.Validate(); err != nil {
			t.Fatalf("sample %d invalid: %v", i, err)
		}
	}
}

func TestCandidatesDeterministic(t *testing.T) {
	a := NewTuner(DefaultSearchSpace(), boost.DefaultParams(), 3, 42, nil).Candidates(5)
	b := NewTuner(DefaultSearchSpace(), boost.DefaultParams(), 3, 42, nil).Candidates(5)
	if len(a) != 5 || !reflect.DeepEqual(a, b) {
		t.Errorf("candidates differ for the same seed")
	}
}

func TestScore(t *testing.T) {
	X := make([][]float64, 60)
	y := make([]float64, 60)
	for i := range X {
		X[i] = []float64{float64(i % 30)}
		if i%30 >= 15 {
			y[i] = 1
		}
	}

	params := boost.DefaultParams()
	params.NEstimators = 20
	params.LearningRate = 0.3
	params.MaxDepth = 2
	params.Subsample = 1
	params.ColSampleByTree = 1

	tuner := NewTuner(DefaultSearchSpace(), params, 3, 42, nil)
	mean, folds, err := tuner.Score(context.Background(), X, y, params)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if len(folds) != 3 {
		t.Fatalf("fold scores = %v", folds)
	}
	if mean != 1 {
		t.Errorf("recall = %v, want 1 on separable data", mean)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := tuner.Score(ctx, X, y, params); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Score() error = %v", err)
	}

	params.MaxDepth = 0
	if _, _, err := tuner.Score(context.Background(), X, y, params); !errors.Is(err, boost.ErrInvalidParams) {
		t.Errorf("invalid params error = %v", err)
	}
}

func TestBest(t *testing.T) {
	trials := []Trial{
		{Index: 0, Score: 0.6},
		{Index: 1, Score: 0.8},
		{Index: 2, Score: 0.9, Err: errors.New("failed")},
		{Index: 3, Score: 0.8},
	}
	best, err := Best(trials)
	if err != nil {
		t.Fatal(err)
	}
	if best.Index != 1 {
		t.Errorf("best = %d, want 1", best.Index)
	}

	if _, err := Best([]Trial{{Err: errors.New("x")}}); !errors.Is(err, ErrNoTrials) {
		t.Errorf("Best() error = %v, want ErrNoTrials", err)
	}
}
