// pkg/features/encoder.go
package features

import (
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/David-Botos/churn-pipeline/pkg/model"
)

// Matrix is an encoded record set: one row of features per record plus the
// label of each row when the target was present
type Matrix struct {
	Columns []string
	X       [][]float64
	Labels  []float64
}

// Rows returns the number of encoded records
func (m *Matrix) Rows() int {
	return len(m.X)
}

// Width returns the number of feature columns
func (m *Matrix) Width() int {
	return len(m.Columns)
}

type planKind int

const (
	planNumeric planKind = iota
	planBinary
	planOneHot
	planConstant
)

// columnPlan is how one training column turns into feature columns
type columnPlan struct {
	field     string
	kind      planKind
	mapping   BinaryMapping
	reference string
	kept      []string
}

// Encoder turns cleaned records into numeric feature rows. It holds only its
// configuration and is safe for concurrent use.
type Encoder struct {
	mappings Mappings
	logger   *zap.Logger
}

// NewEncoder creates an encoder with the given special-case mappings
func NewEncoder(mappings Mappings, logger *zap.Logger) *Encoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Encoder{
		mappings: mappings,
		logger:   logger.Named("feature-encoder"),
	}
}

// Fit encodes a full training dataset and returns the matrix together with
// the contract that reproduces it at inference time.
func (e *Encoder) Fit(ds *model.Dataset, target string) (*Matrix, *Contract, error) {
	if ds == nil || !ds.HasColumn(target) {
		return nil, nil, fmt.Errorf("%w: %q", ErrTargetMissing, target)
	}
	if ds.Len() == 0 {
		return nil, nil, ErrEmptyDataset
	}

	labels, err := e.labels(ds.Values(target))
	if err != nil {
		return nil, nil, err
	}

	var fields []model.Column
	for _, col := range ds.Columns {
		if col.Name != target {
			fields = append(fields, col)
		}
	}

	// Columns are independent, so classify them in parallel and keep the
	// plans in column order.
	plans := make([]columnPlan, len(fields))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, col := range fields {
		i, col := i, col
		g.Go(func() error {
			plans[i] = e.plan(col, ds.Values(col.Name))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	doc := contractDocument{
		Target:      target,
		Binary:      make(map[string]BinaryMapping),
		Categorical: make(map[string][]string),
	}
	for _, p := range plans {
		switch p.kind {
		case planConstant:
			e.logger.Debug("Dropping constant column", zap.String("column", p.field))
			continue
		case planNumeric:
			doc.FeatureColumns = append(doc.FeatureColumns, p.field)
		case planBinary:
			doc.FeatureColumns = append(doc.FeatureColumns, p.field)
			doc.Binary[p.field] = p.mapping
		case planOneHot:
			for _, category := range p.kept {
				doc.FeatureColumns = append(doc.FeatureColumns, IndicatorName(p.field, category))
			}
			doc.Categorical[p.field] = p.kept
		}
		doc.RawFields = append(doc.RawFields, p.field)
	}

	contract, err := newContract(doc)
	if err != nil {
		return nil, nil, err
	}

	matrix := &Matrix{
		Columns: contract.FeatureColumns(),
		X:       make([][]float64, ds.Len()),
		Labels:  labels,
	}
	for i, row := range ds.Rows {
		matrix.X[i] = e.encodeRow(row, contract)
	}

	e.logger.Info("Fitted feature encoder",
		zap.Int("rows", matrix.Rows()),
		zap.Int("rawFields", len(doc.RawFields)),
		zap.Int("features", matrix.Width()),
		zap.Int("binaryFields", len(doc.Binary)),
		zap.Int("oneHotFields", len(doc.Categorical)))

	return matrix, contract, nil
}

// plan classifies one column from its observed values
func (e *Encoder) plan(col model.Column, values []model.Value) columnPlan {
	if col.Kind != model.KindText {
		return columnPlan{field: col.Name, kind: planNumeric}
	}

	distinct := distinctText(values)
	switch {
	case len(distinct) < 2:
		return columnPlan{field: col.Name, kind: planConstant}
	case len(distinct) == 2:
		mapping, _ := e.mappings.Resolve(distinct)
		return columnPlan{field: col.Name, kind: planBinary, mapping: mapping}
	default:
		reference, kept := OneHotCategories(values)
		return columnPlan{field: col.Name, kind: planOneHot, reference: reference, kept: kept}
	}
}

// labels converts target values to 0/1. Text targets go through the same
// binary rules as features.
func (e *Encoder) labels(values []model.Value) ([]float64, error) {
	var mapping BinaryMapping
	textual := false
	for _, v := range values {
		if !v.Missing && v.Kind == model.KindText {
			textual = true
			break
		}
	}
	if textual {
		distinct := distinctText(values)
		m, ok := e.mappings.Resolve(distinct)
		if !ok {
			return nil, fmt.Errorf("%w: target has %d distinct values, want 2", ErrInvalidLabel, len(distinct))
		}
		mapping = m
	}

	out := make([]float64, len(values))
	for i, v := range values {
		if v.Missing {
			return nil, fmt.Errorf("%w: row %d has no label", ErrInvalidLabel, i)
		}
		if v.Kind == model.KindText {
			out[i], _ = mapping.Encode(v.Str)
			continue
		}
		f, _ := v.Float64()
		if f != 0 && f != 1 {
			return nil, fmt.Errorf("%w: row %d has label %v", ErrInvalidLabel, i, f)
		}
		out[i] = f
	}
	return out, nil
}

// Transform encodes one inference record against a training contract. The
// result always has exactly the contract's columns, in order.
func (e *Encoder) Transform(rec model.Record, contract *Contract) ([]float64, error) {
	if contract == nil {
		return nil, fmt.Errorf("%w: no contract loaded", ErrContractInvalid)
	}

	var missing []string
	for _, field := range contract.rawFields {
		if _, ok := rec[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Fields: missing}
	}

	return e.encodeRow(rec, contract), nil
}

// TransformBatch encodes every row of a dataset against a contract. Labels
// are filled in when the dataset carries the target column.
func (e *Encoder) TransformBatch(ds *model.Dataset, contract *Contract) (*Matrix, error) {
	if ds == nil {
		return nil, ErrEmptyDataset
	}

	matrix := &Matrix{
		Columns: contract.FeatureColumns(),
		X:       make([][]float64, ds.Len()),
	}
	for i, row := range ds.Rows {
		vec, err := e.Transform(row, contract)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		matrix.X[i] = vec
	}

	if ds.HasColumn(contract.Target()) {
		labels, err := e.labels(ds.Values(contract.Target()))
		if err != nil {
			return nil, err
		}
		matrix.Labels = labels
	}
	return matrix, nil
}

// encodeRow produces the columns that arise naturally from one record and
// reconciles them against the contract column list. Absent columns are 0 and
// columns outside the contract are dropped.
func (e *Encoder) encodeRow(rec model.Record, contract *Contract) []float64 {
	natural := e.naturalColumns(rec, contract)

	vec := make([]float64, len(contract.featureColumns))
	for i, col := range contract.featureColumns {
		vec[i] = natural[col]
	}
	return vec
}

func (e *Encoder) naturalColumns(rec model.Record, contract *Contract) map[string]float64 {
	out := make(map[string]float64, len(rec))
	for field, v := range rec {
		if field == contract.target || v.Missing {
			continue
		}
		if v.Kind != model.KindText {
			f, _ := v.Float64()
			out[field] = f
			continue
		}

		if mapping, ok := contract.binary[field]; ok {
			if code, ok := mapping.Encode(v.Str); ok {
				out[field] = code
			} else {
				e.logger.Debug("Unseen binary value", zap.String("field", field), zap.String("value", v.Str))
			}
			continue
		}

		if kept, ok := contract.categorical[field]; ok {
			matched := false
			for _, category := range kept {
				if category == v.Str {
					out[IndicatorName(field, category)] = 1
					matched = true
				}
			}
			if !matched {
				// Either the reference level or a category never seen in training
				e.logger.Debug("Category encoded as all-zero indicators",
					zap.String("field", field), zap.String("value", v.Str))
			}
			continue
		}

		if contract.HasColumn(field) {
			if f, ok := parseNumericText(v.Str); ok {
				out[field] = f
			} else if code, ok := e.mappings.lookup(v.Str); ok {
				out[field] = code
			}
			continue
		}

		out[IndicatorName(field, v.Str)] = 1
	}
	return out
}

func parseNumericText(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
