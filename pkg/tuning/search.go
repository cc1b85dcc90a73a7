// pkg/tuning/search.go

// Package tuning splits labelled data and searches booster hyperparameters
// by cross-validated recall.
package tuning

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/David-Botos/churn-pipeline/pkg/boost"
	"github.com/David-Botos/churn-pipeline/pkg/evaluate"
)

// ErrNoTrials is returned by Best when no trial succeeded
var ErrNoTrials = errors.New("no successful trials")

// cvThreshold is the decision threshold used when scoring folds
const cvThreshold = 0.5

// IntRange is an inclusive integer range
type IntRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// FloatRange is a half-open float range [Min, Max)
type FloatRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// SearchSpace bounds the sampled hyperparameters. Everything else comes
// from the base parameters.
type SearchSpace struct {
	NEstimators     IntRange   `json:"n_estimators"`
	LearningRate    FloatRange `json:"learning_rate"`
	MaxDepth        IntRange   `json:"max_depth"`
	Subsample       FloatRange `json:"subsample"`
	ColSampleByTree FloatRange `json:"colsample_bytree"`
}

// DefaultSearchSpace returns the churn model search ranges
func DefaultSearchSpace() SearchSpace {
	return SearchSpace{
		NEstimators:     IntRange{Min: 300, Max: 800},
		LearningRate:    FloatRange{Min: 0.01, Max: 0.2},
		MaxDepth:        IntRange{Min: 3, Max: 10},
		Subsample:       FloatRange{Min: 0.5, Max: 1},
		ColSampleByTree: FloatRange{Min: 0.5, Max: 1},
	}
}

// Sample draws one parameter set
func (s SearchSpace) Sample(rnd *rand.Rand, base boost.Params) boost.Params {
	p := base
	p.NEstimators = sampleInt(rnd, s.NEstimators)
	p.LearningRate = sampleFloat(rnd, s.LearningRate)
	p.MaxDepth = sampleInt(rnd, s.MaxDepth)
	p.Subsample = sampleFloat(rnd, s.Subsample)
	p.ColSampleByTree = sampleFloat(rnd, s.ColSampleByTree)
	return p
}

func sampleInt(rnd *rand.Rand, r IntRange) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rnd.Intn(r.Max-r.Min+1)
}

func sampleFloat(rnd *rand.Rand, r FloatRange) float64 {
	return r.Min + rnd.Float64()*(r.Max-r.Min)
}

// Trial is one evaluated parameter set
type Trial struct {
	Index      int          `json:"index"`
	Params     boost.Params `json:"params"`
	Score      float64      `json:"score"`
	FoldScores []float64    `json:"fold_scores"`
	Err        error        `json:"-"`
}

// Tuner scores candidate parameter sets by stratified k-fold recall
type Tuner struct {
	space  SearchSpace
	base   boost.Params
	folds  int
	seed   int64
	logger *zap.Logger
}

// NewTuner creates a tuner. Candidates are derived from seed, so the same
// seed always proposes the same trials.
func NewTuner(space SearchSpace, base boost.Params, folds int, seed int64, logger *zap.Logger) *Tuner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tuner{
		space:  space,
		base:   base,
		folds:  folds,
		seed:   seed,
		logger: logger.Named("tuner"),
	}
}

// Candidates returns n parameter sets drawn from the search space
func (t *Tuner) Candidates(n int) []boost.Params {
	rnd := rand.New(rand.NewSource(t.seed))
	out := make([]boost.Params, n)
	for i := range out {
		out[i] = t.space.Sample(rnd, t.base)
	}
	return out
}

// Score returns the mean recall of params over the folds and the per fold
// recalls. Folds are trained concurrently.
func (t *Tuner) Score(ctx context.Context, X [][]float64, y []float64, params boost.Params) (float64, []float64, error) {
	if err := params.Validate(); err != nil {
		return 0, nil, err
	}
	folds, err := StratifiedKFold(y, t.folds)
	if err != nil {
		return 0, nil, err
	}

	scores := make([]float64, len(folds))
	g, ctx := errgroup.WithContext(ctx)
	for f, fold := range folds {
		f, fold := f, fold
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			xTrain, yTrain := Subset(X, y, fold.Train)
			xTest, yTest := Subset(X, y, fold.Test)

			model := boost.New(params)
			if err := model.Fit(xTrain, yTrain); err != nil {
				return fmt.Errorf("fold %d: %w", f, err)
			}
			pred, err := model.Predict(xTest, cvThreshold)
			if err != nil {
				return fmt.Errorf("fold %d: %w", f, err)
			}
			_, _, recall, _ := evaluate.Confusion(yTest, pred).Scores()
			scores[f] = recall
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))
	t.logger.Debug("Scored candidate",
		zap.Int("n_estimators", params.NEstimators),
		zap.Float64("learning_rate", params.LearningRate),
		zap.Int("max_depth", params.MaxDepth),
		zap.Float64("recall", mean))
	return mean, scores, nil
}

// Best returns the highest scoring successful trial. Ties go to the earlier
// trial.
func Best(trials []Trial) (Trial, error) {
	found := false
	var best Trial
	for _, tr := range trials {
		if tr.Err != nil {
			continue
		}
		if !found || tr.Score > best.Score || (tr.Score == best.Score && tr.Index < best.Index) {
			best = tr
			found = true
		}
	}
	if !found {
		return Trial{}, ErrNoTrials
	}
	return best, nil
}
