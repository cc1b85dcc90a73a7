// pkg/boost/model.go

// Package boost implements a gradient-boosted tree classifier for binary
// targets: logistic loss, second order tree growth over quantized features,
// row and column subsampling, and positive-class reweighting.
package boost

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrNotFitted is returned when predicting with an untrained model
	ErrNotFitted = errors.New("model is not fitted")

	// ErrFeatureMismatch is returned when an input row has the wrong width
	ErrFeatureMismatch = errors.New("feature count mismatch")

	// ErrInvalidTrainingData is returned for unusable training inputs
	ErrInvalidTrainingData = errors.New("invalid training data")

	// ErrModelInvalid is returned when a persisted model cannot be used
	ErrModelInvalid = errors.New("invalid model document")
)

// probabilityClamp keeps the initial log-odds finite for single class data
const probabilityClamp = 1e-6

// Model is a boosted ensemble of regression trees on the logit scale
type Model struct {
	Params       Params   `json:"params"`
	BaseMargin   float64  `json:"base_margin"`
	NumFeatures  int      `json:"num_features"`
	FeatureNames []string `json:"feature_names,omitempty"`
	Trees        []Tree   `json:"trees"`
}

// New creates an unfitted model
func New(params Params) *Model {
	return &Model{Params: params}
}

// Fit trains the ensemble on X (rows x features) and 0/1 labels y. Training
// is deterministic for a given seed.
func (m *Model) Fit(X [][]float64, y []float64) error {
	if err := m.Params.Validate(); err != nil {
		return err
	}
	if err := checkTrainingData(X, y); err != nil {
		return err
	}

	n, p := len(X), len(X[0])
	params := m.Params
	rnd := rand.New(rand.NewSource(params.Seed))

	weights := make([]float64, n)
	for i, label := range y {
		weights[i] = 1
		if label == 1 {
			weights[i] = params.ScalePosWeight
		}
	}
	positive := 0.0
	for i, label := range y {
		positive += label * weights[i]
	}
	rate := positive / floats.Sum(weights)
	rate = math.Min(math.Max(rate, probabilityClamp), 1-probabilityClamp)

	m.NumFeatures = p
	m.BaseMargin = math.Log(rate / (1 - rate))
	m.Trees = make([]Tree, 0, params.NEstimators)

	margins := make([]float64, n)
	for i := range margins {
		margins[i] = m.BaseMargin
	}

	g := &grower{
		params: params,
		bins:   newBinner(X, params.MaxBins),
		grad:   make([]float64, n),
		hess:   make([]float64, n),
	}

	nCols := max(1, int(params.ColSampleByTree*float64(p)))
	rows := make([]int, 0, n)
	for round := 0; round < params.NEstimators; round++ {
		for i := range margins {
			prob := sigmoid(margins[i])
			g.grad[i] = weights[i] * (prob - y[i])
			g.hess[i] = weights[i] * math.Max(prob*(1-prob), 1e-16)
		}

		rows = rows[:0]
		for i := 0; i < n; i++ {
			if params.Subsample >= 1 || rnd.Float64() < params.Subsample {
				rows = append(rows, i)
			}
		}
		if len(rows) == 0 {
			rows = append(rows, rnd.Intn(n))
		}

		if nCols < p {
			g.features = rnd.Perm(p)[:nCols]
			sort.Ints(g.features)
		} else {
			g.features = identity(p)
		}

		tree := g.grow(rows)
		for i, x := range X {
			margins[i] += tree.predict(x)
		}
		m.Trees = append(m.Trees, tree)
	}
	return nil
}

func checkTrainingData(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("%w: no rows", ErrInvalidTrainingData)
	}
	if len(y) != len(X) {
		return fmt.Errorf("%w: %d rows but %d labels", ErrInvalidTrainingData, len(X), len(y))
	}
	p := len(X[0])
	if p == 0 {
		return fmt.Errorf("%w: no features", ErrInvalidTrainingData)
	}
	for i, row := range X {
		if len(row) != p {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrInvalidTrainingData, i, len(row), p)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite value at row %d column %d", ErrInvalidTrainingData, i, j)
			}
		}
		if y[i] != 0 && y[i] != 1 {
			return fmt.Errorf("%w: label %v at row %d is not 0 or 1", ErrInvalidTrainingData, y[i], i)
		}
	}
	return nil
}

// Margin returns the raw log-odds for one row
func (m *Model) Margin(x []float64) (float64, error) {
	if len(m.Trees) == 0 {
		return 0, ErrNotFitted
	}
	if len(x) != m.NumFeatures {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureMismatch, len(x), m.NumFeatures)
	}
	margin := m.BaseMargin
	for i := range m.Trees {
		margin += m.Trees[i].predict(x)
	}
	return margin, nil
}

// PredictProbaOne returns the positive class probability for one row
func (m *Model) PredictProbaOne(x []float64) (float64, error) {
	margin, err := m.Margin(x)
	if err != nil {
		return 0, err
	}
	return sigmoid(margin), nil
}

// PredictProba returns the positive class probability of every row
func (m *Model) PredictProba(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, x := range X {
		prob, err := m.PredictProbaOne(x)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = prob
	}
	return out, nil
}

// Predict labels rows 1 when their probability reaches the threshold
func (m *Model) Predict(X [][]float64, threshold float64) ([]float64, error) {
	probs, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return Threshold(probs, threshold), nil
}

// Threshold converts probabilities into 0/1 labels
func Threshold(probs []float64, threshold float64) []float64 {
	out := make([]float64, len(probs))
	for i, prob := range probs {
		if prob >= threshold {
			out[i] = 1
		}
	}
	return out
}

// FeatureImportance returns the total split gain per feature, normalised to
// sum to 1. A model without splits reports all zeros.
func (m *Model) FeatureImportance() []float64 {
	gains := make([]float64, m.NumFeatures)
	for _, t := range m.Trees {
		for _, n := range t.Nodes {
			if !n.Leaf {
				gains[n.Feature] += n.Gain
			}
		}
	}
	if total := floats.Sum(gains); total > 0 {
		floats.Scale(1/total, gains)
	}
	return gains
}

// Save writes the model as JSON
func (m *Model) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	return nil
}

// Load reads a model written by Save and checks its structure
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	return Parse(data)
}

// Parse decodes and checks a model document
func Parse(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelInvalid, err)
	}
	if m.NumFeatures < 1 || len(m.Trees) == 0 {
		return nil, fmt.Errorf("%w: model has no features or trees", ErrModelInvalid)
	}
	if len(m.FeatureNames) > 0 && len(m.FeatureNames) != m.NumFeatures {
		return nil, fmt.Errorf("%w: %d feature names for %d features", ErrModelInvalid, len(m.FeatureNames), m.NumFeatures)
	}
	for ti, t := range m.Trees {
		if len(t.Nodes) == 0 {
			return nil, fmt.Errorf("%w: tree %d is empty", ErrModelInvalid, ti)
		}
		for ni, n := range t.Nodes {
			if n.Leaf {
				continue
			}
			// Children always follow their parent, which rules out cycles
			if n.Feature < 0 || n.Feature >= m.NumFeatures ||
				n.Left <= ni || n.Left >= len(t.Nodes) ||
				n.Right <= ni || n.Right >= len(t.Nodes) {
				return nil, fmt.Errorf("%w: tree %d node %d is malformed", ErrModelInvalid, ti, ni)
			}
		}
	}
	return &m, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
