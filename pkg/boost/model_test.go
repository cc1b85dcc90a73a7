// pkg/boost/model_test.go
package boost

import (
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"testing"
)

// thresholdData is separable on feature 0; feature 1 is constant noise
func thresholdData() ([][]float64, []float64) {
	X := make([][]float64, 100)
	y := make([]float64, 100)
	for i := range X {
		X[i] = []float64{float64(i), 3}
		if i >= 50 {
			y[i] = 1
		}
	}
	return X, y
}

func testParams() Params {
	p := DefaultParams()
	p.NEstimators = 50
	p.LearningRate = 0.3
	p.MaxDepth = 2
	p.Subsample = 1
	p.ColSampleByTree = 1
	return p
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *Params)
		valid  bool
	}{
		{"defaults", func(p *Params) {}, true},
		{"zero estimators", func(p *Params) { p.NEstimators = 0 }, false},
		{"learning rate above one", func(p *Params) { p.LearningRate = 1.5 }, false},
		{"zero depth", func(p *Params) { p.MaxDepth = 0 }, false},
		{"zero subsample", func(p *Params) { p.Subsample = 0 }, false},
		{"colsample above one", func(p *Params) { p.ColSampleByTree = 1.1 }, false},
		{"negative lambda", func(p *Params) { p.Lambda = -1 }, false},
		{"zero pos weight", func(p *Params) { p.ScalePosWeight = 0 }, false},
		{"one bin", func(p *Params) { p.MaxBins = 1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			err := p.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidParams) {
				t.Errorf("Validate() = %v, want ErrInvalidParams", err)
			}
		})
	}
}

func TestFitSeparable(t *testing.T) {
	X, y := thresholdData()
	m := New(testParams())
	if err := m.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if len(m.Trees) != 50 || m.NumFeatures != 2 {
		t.Fatalf("trees = %d, features = %d", len(m.Trees), m.NumFeatures)
	}

	preds, err := m.Predict(X, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(preds, y) {
		t.Errorf("model does not separate the training data")
	}

	low, _ := m.PredictProbaOne([]float64{10, 3})
	high, _ := m.PredictProbaOne([]float64{90, 3})
	if low >= 0.1 || high <= 0.9 {
		t.Errorf("probabilities low=%v high=%v", low, high)
	}

	imp := m.FeatureImportance()
	if math.Abs(imp[0]-1) > 1e-12 || imp[1] != 0 {
		t.Errorf("importance = %v, want all weight on feature 0", imp)
	}
}

func TestFitDeterministic(t *testing.T) {
	X, y := thresholdData()
	p := testParams()
	p.Subsample = 0.7
	p.ColSampleByTree = 0.5

	a, b := New(p), New(p)
	if err := a.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if err := b.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Trees, b.Trees) {
		t.Error("same seed produced different ensembles")
	}

	p.Seed++
	c := New(p)
	if err := c.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if reflect.DeepEqual(a.Trees, c.Trees) {
		t.Error("different seeds produced identical ensembles")
	}
}

func TestScalePosWeightRaisesPositiveScores(t *testing.T) {
	// Overlapping classes so weighting changes the fitted probabilities
	X := [][]float64{{0}, {0}, {0}, {0}, {1}, {1}, {1}, {1}}
	y := []float64{0, 0, 0, 1, 0, 1, 1, 1}

	p := testParams()
	p.NEstimators = 10
	plain := New(p)
	if err := plain.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	p.ScalePosWeight = 3
	weighted := New(p)
	if err := weighted.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	a, _ := plain.PredictProbaOne([]float64{0})
	b, _ := weighted.PredictProbaOne([]float64{0})
	if b <= a {
		t.Errorf("weighted probability %v should exceed unweighted %v", b, a)
	}
}

func TestFitErrors(t *testing.T) {
	tests := []struct {
		name string
		X    [][]float64
		y    []float64
	}{
		{"no rows", nil, nil},
		{"label count", [][]float64{{1}, {2}}, []float64{0}},
		{"ragged", [][]float64{{1, 2}, {3}}, []float64{0, 1}},
		{"nan", [][]float64{{math.NaN()}, {1}}, []float64{0, 1}},
		{"bad label", [][]float64{{0}, {1}}, []float64{0, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(testParams()).Fit(tt.X, tt.y)
			if !errors.Is(err, ErrInvalidTrainingData) {
				t.Errorf("Fit() = %v, want ErrInvalidTrainingData", err)
			}
		})
	}
}

func TestPredictErrors(t *testing.T) {
	if _, err := New(testParams()).PredictProbaOne([]float64{1}); !errors.Is(err, ErrNotFitted) {
		t.Errorf("unfitted error = %v", err)
	}

	X, y := thresholdData()
	m := New(testParams())
	if err := m.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if _, err := m.PredictProba([][]float64{{1}}); !errors.Is(err, ErrFeatureMismatch) {
		t.Errorf("width error = %v", err)
	}
}

func TestSaveLoad(t *testing.T) {
	X, y := thresholdData()
	m := New(testParams())
	m.FeatureNames = []string{"tenure", "constant"}
	if err := m.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "artifacts", "model.json")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want, _ := m.PredictProba(X)
	got, err := loaded.PredictProba(X)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Error("loaded model predicts differently")
	}
	if !reflect.DeepEqual(loaded.FeatureNames, m.FeatureNames) || loaded.Params != m.Params {
		t.Error("metadata lost in round trip")
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	docs := map[string]string{
		"not json":      `{`,
		"no trees":      `{"num_features":1,"trees":[]}`,
		"empty tree":    `{"num_features":1,"trees":[{"nodes":[]}]}`,
		"bad child":     `{"num_features":1,"trees":[{"nodes":[{"feature":0,"left":0,"right":2}]}]}`,
		"bad feature":   `{"num_features":1,"trees":[{"nodes":[{"feature":4,"left":1,"right":2},{"leaf":true},{"leaf":true}]}]}`,
		"name mismatch": `{"num_features":2,"feature_names":["a"],"trees":[{"nodes":[{"leaf":true}]}]}`,
	}
	for name, doc := range docs {
		if _, err := Parse([]byte(doc)); !errors.Is(err, ErrModelInvalid) {
			t.Errorf("%s: Parse() = %v, want ErrModelInvalid", name, err)
		}
	}
}

func TestFeatureCuts(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		maxBins int
		want    []float64
	}{
		{"constant", []float64{2, 2, 2}, 256, nil},
		{"binary", []float64{0, 1, 1, 0}, 256, []float64{0.5}},
		{"few distinct", []float64{1, 3, 1, 2}, 256, []float64{1.5, 2.5}},
	}
	for _, tt := range tests {
		if got := featureCuts(tt.values, tt.maxBins); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: featureCuts() = %v, want %v", tt.name, got, tt.want)
		}
	}

	many := make([]float64, 1000)
	for i := range many {
		many[i] = float64(i)
	}
	if got := featureCuts(many, 4); !reflect.DeepEqual(got, []float64{250, 500, 750}) {
		t.Errorf("quantile cuts = %v", got)
	}
}

func TestThreshold(t *testing.T) {
	got := Threshold([]float64{0.1, 0.35, 0.9}, 0.35)
	if !reflect.DeepEqual(got, []float64{0, 1, 1}) {
		t.Errorf("Threshold() = %v", got)
	}
}
