// pkg/serving/predictor.go

// Package serving exposes a trained churn model over HTTP: a JSON prediction
// API, a small HTML form and Prometheus metrics.
package serving

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/boost"
	"github.com/David-Botos/churn-pipeline/pkg/features"
	"github.com/David-Botos/churn-pipeline/pkg/model"
	"github.com/David-Botos/churn-pipeline/pkg/validation"
)

// Prediction labels returned to clients
const (
	LabelChurn    = "Likely to churn"
	LabelNotChurn = "Not likely to churn"
)

// Prediction is the outcome for one customer
type Prediction struct {
	Prediction  string  `json:"prediction"`
	Probability float64 `json:"probability"`
	Churn       bool    `json:"-"`
}

// Predictor scores customer records with a model and the contract it was
// trained with. It is safe for concurrent use.
type Predictor struct {
	contract  *features.Contract
	model     *boost.Model
	encoder   *features.Encoder
	threshold float64
	logger    *zap.Logger
}

// NewPredictor pairs a contract with a model and checks that both describe
// the same feature columns
func NewPredictor(contract *features.Contract, m *boost.Model, threshold float64, logger *zap.Logger) (*Predictor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if contract == nil || m == nil {
		return nil, fmt.Errorf("%w: contract and model are required", features.ErrContractInvalid)
	}
	if contract.NumFeatures() != m.NumFeatures {
		return nil, fmt.Errorf("%w: contract has %d columns, model expects %d",
			features.ErrContractInvalid, contract.NumFeatures(), m.NumFeatures)
	}
	if len(m.FeatureNames) > 0 && !slices.Equal(m.FeatureNames, contract.FeatureColumns()) {
		return nil, fmt.Errorf("%w: model was trained on different feature columns", features.ErrContractInvalid)
	}
	if threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("decision threshold must be in (0, 1), got %v", threshold)
	}

	return &Predictor{
		contract:  contract,
		model:     m,
		encoder:   features.NewEncoder(features.DefaultMappings(), logger),
		threshold: threshold,
		logger:    logger.Named("predictor"),
	}, nil
}

// LoadPredictor reads the contract and model artifacts written by training
func LoadPredictor(contractPath, modelPath string, threshold float64, logger *zap.Logger) (*Predictor, error) {
	contract, err := features.LoadContract(contractPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}
	m, err := boost.Load(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	p, err := NewPredictor(contract, m, threshold, logger)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Loaded model artifacts",
		zap.String("contract", contractPath),
		zap.String("model", modelPath),
		zap.Int("features", contract.NumFeatures()),
		zap.Int("trees", len(m.Trees)),
		zap.Float64("threshold", threshold))
	return p, nil
}

// Contract returns the feature contract used for encoding
func (p *Predictor) Contract() *features.Contract {
	return p.contract
}

// Threshold returns the decision threshold
func (p *Predictor) Threshold() float64 {
	return p.threshold
}

// Predict encodes a raw record and scores it
func (p *Predictor) Predict(rec model.Record) (*Prediction, error) {
	x, err := p.encoder.Transform(rec, p.contract)
	if err != nil {
		return nil, err
	}
	prob, err := p.model.PredictProbaOne(x)
	if err != nil {
		return nil, err
	}

	out := &Prediction{Prediction: LabelNotChurn, Probability: prob}
	if prob >= p.threshold {
		out.Prediction = LabelChurn
		out.Churn = true
	}
	return out, nil
}

// PredictCustomer scores a validated customer profile
func (p *Predictor) PredictCustomer(c *validation.CustomerRecord) (*Prediction, error) {
	return p.Predict(c.Record())
}
