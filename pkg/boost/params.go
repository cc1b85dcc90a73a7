// pkg/boost/params.go
package boost

import (
	"errors"
	"fmt"
)

// ErrInvalidParams is returned for hyperparameters outside their domain
var ErrInvalidParams = errors.New("invalid boosting parameters")

// Params are the hyperparameters of a boosted ensemble
type Params struct {
	NEstimators     int     `json:"n_estimators"`
	LearningRate    float64 `json:"learning_rate"`
	MaxDepth        int     `json:"max_depth"`
	Subsample       float64 `json:"subsample"`
	ColSampleByTree float64 `json:"colsample_bytree"`
	MinChildWeight  float64 `json:"min_child_weight"`
	Lambda          float64 `json:"reg_lambda"`
	ScalePosWeight  float64 `json:"scale_pos_weight"`
	MaxBins         int     `json:"max_bin"`
	Seed            int64   `json:"seed"`
}

// DefaultParams returns the production training configuration
func DefaultParams() Params {
	return Params{
		NEstimators:     301,
		LearningRate:    0.034,
		MaxDepth:        7,
		Subsample:       0.95,
		ColSampleByTree: 0.98,
		MinChildWeight:  1,
		Lambda:          1,
		ScalePosWeight:  1,
		MaxBins:         256,
		Seed:            42,
	}
}

// Validate checks every parameter range
func (p Params) Validate() error {
	switch {
	case p.NEstimators < 1:
		return fmt.Errorf("%w: n_estimators must be positive, got %d", ErrInvalidParams, p.NEstimators)
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return fmt.Errorf("%w: learning_rate must be in (0, 1], got %v", ErrInvalidParams, p.LearningRate)
	case p.MaxDepth < 1:
		return fmt.Errorf("%w: max_depth must be positive, got %d", ErrInvalidParams, p.MaxDepth)
	case p.Subsample <= 0 || p.Subsample > 1:
		return fmt.Errorf("%w: subsample must be in (0, 1], got %v", ErrInvalidParams, p.Subsample)
	case p.ColSampleByTree <= 0 || p.ColSampleByTree > 1:
		return fmt.Errorf("%w: colsample_bytree must be in (0, 1], got %v", ErrInvalidParams, p.ColSampleByTree)
	case p.MinChildWeight < 0:
		return fmt.Errorf("%w: min_child_weight must not be negative, got %v", ErrInvalidParams, p.MinChildWeight)
	case p.Lambda < 0:
		return fmt.Errorf("%w: reg_lambda must not be negative, got %v", ErrInvalidParams, p.Lambda)
	case p.ScalePosWeight <= 0:
		return fmt.Errorf("%w: scale_pos_weight must be positive, got %v", ErrInvalidParams, p.ScalePosWeight)
	case p.MaxBins < 2 || p.MaxBins > 65535:
		return fmt.Errorf("%w: max_bin must be in [2, 65535], got %d", ErrInvalidParams, p.MaxBins)
	}
	return nil
}
