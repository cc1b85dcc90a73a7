// pkg/tuning/split.go
package tuning

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// ErrInvalidSplit is returned when labels cannot be split as requested
var ErrInvalidSplit = errors.New("invalid split")

// Fold is one cross-validation round
type Fold struct {
	Train []int
	Test  []int
}

// StratifiedSplit shuffles each class with a seeded source and holds out
// testSize of it, so train and test keep the class balance of y. Indices are
// returned in ascending order.
func StratifiedSplit(y []float64, testSize float64, seed int64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("%w: test size %v must be in (0, 1)", ErrInvalidSplit, testSize)
	}
	if len(y) < 2 {
		return nil, nil, fmt.Errorf("%w: need at least 2 rows, got %d", ErrInvalidSplit, len(y))
	}

	rnd := rand.New(rand.NewSource(seed))
	for _, members := range classIndices(y) {
		rnd.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })

		nTest := int(math.Round(testSize * float64(len(members))))
		if len(members) >= 2 {
			nTest = min(max(nTest, 1), len(members)-1)
		}
		test = append(test, members[:nTest]...)
		train = append(train, members[nTest:]...)
	}

	if len(train) == 0 || len(test) == 0 {
		return nil, nil, fmt.Errorf("%w: %d rows leave an empty side", ErrInvalidSplit, len(y))
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// StratifiedKFold deals each class into k folds in row order without
// shuffling. Every row is tested exactly once.
func StratifiedKFold(y []float64, k int) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("%w: need at least 2 folds, got %d", ErrInvalidSplit, k)
	}
	if len(y) < k {
		return nil, fmt.Errorf("%w: %d rows for %d folds", ErrInvalidSplit, len(y), k)
	}

	assignment := make([]int, len(y))
	for _, members := range classIndices(y) {
		size, extra := len(members)/k, len(members)%k
		pos := 0
		for f := 0; f < k; f++ {
			n := size
			if f < extra {
				n++
			}
			for _, i := range members[pos : pos+n] {
				assignment[i] = f
			}
			pos += n
		}
	}

	folds := make([]Fold, k)
	for i, f := range assignment {
		for g := range folds {
			if g == f {
				folds[g].Test = append(folds[g].Test, i)
			} else {
				folds[g].Train = append(folds[g].Train, i)
			}
		}
	}
	for f, fold := range folds {
		if len(fold.Test) == 0 || len(fold.Train) == 0 {
			return nil, fmt.Errorf("%w: fold %d is empty", ErrInvalidSplit, f)
		}
	}
	return folds, nil
}

// Subset selects rows of X and y. Rows are shared, not copied.
func Subset(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	var ys []float64
	if y != nil {
		ys = make([]float64, len(idx))
	}
	for k, i := range idx {
		xs[k] = X[i]
		if y != nil {
			ys[k] = y[i]
		}
	}
	return xs, ys
}

// classIndices groups row indices by label, classes in ascending order
func classIndices(y []float64) [][]int {
	byClass := make(map[float64][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	labels := make([]float64, 0, len(byClass))
	for label := range byClass {
		labels = append(labels, label)
	}
	sort.Float64s(labels)

	out := make([][]int, len(labels))
	for k, label := range labels {
		out[k] = byClass[label]
	}
	return out
}
