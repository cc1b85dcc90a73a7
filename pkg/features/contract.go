// pkg/features/contract.go
package features

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

// Contract is the encoding established at training time and replayed at
// inference. It is immutable: accessors hand out copies and nothing mutates
// a contract once Fit has returned it, so one instance can be shared by every
// request.
type Contract struct {
	featureColumns []string
	target         string
	rawFields      []string
	binary         map[string]BinaryMapping
	categorical    map[string][]string

	columnIndex map[string]int
}

// contractDocument is the persisted form of a Contract
type contractDocument struct {
	FeatureColumns []string                 `json:"feature_columns"`
	Target         string                   `json:"target"`
	RawFields      []string                 `json:"raw_fields,omitempty"`
	Binary         map[string]BinaryMapping `json:"binary,omitempty"`
	Categorical    map[string][]string      `json:"categorical,omitempty"`
}

// NewContract builds a contract from an ordered column list and target name
// alone, the minimal form older artifacts carry. Raw fields are derived from
// the column names.
func NewContract(featureColumns []string, target string) (*Contract, error) {
	return newContract(contractDocument{FeatureColumns: featureColumns, Target: target})
}

func newContract(doc contractDocument) (*Contract, error) {
	if strings.TrimSpace(doc.Target) == "" {
		return nil, fmt.Errorf("%w: target is empty", ErrContractInvalid)
	}
	if len(doc.FeatureColumns) == 0 {
		return nil, fmt.Errorf("%w: no feature columns", ErrContractInvalid)
	}

	c := &Contract{
		featureColumns: append([]string(nil), doc.FeatureColumns...),
		target:         doc.Target,
		binary:         make(map[string]BinaryMapping, len(doc.Binary)),
		categorical:    make(map[string][]string, len(doc.Categorical)),
		columnIndex:    make(map[string]int, len(doc.FeatureColumns)),
	}
	for i, name := range c.featureColumns {
		if name == "" {
			return nil, fmt.Errorf("%w: empty column name at position %d", ErrContractInvalid, i)
		}
		if name == c.target {
			return nil, fmt.Errorf("%w: target %q listed as a feature", ErrContractInvalid, name)
		}
		if _, dup := c.columnIndex[name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrContractInvalid, name)
		}
		c.columnIndex[name] = i
	}

	for field, mapping := range doc.Binary {
		if mapping.Zero == mapping.One {
			return nil, fmt.Errorf("%w: binary field %q maps one value twice", ErrContractInvalid, field)
		}
		if _, ok := c.columnIndex[field]; !ok {
			return nil, fmt.Errorf("%w: binary field %q has no column", ErrContractInvalid, field)
		}
		c.binary[field] = mapping
	}
	for field, kept := range doc.Categorical {
		for _, category := range kept {
			if _, ok := c.columnIndex[IndicatorName(field, category)]; !ok {
				return nil, fmt.Errorf("%w: indicator %q has no column", ErrContractInvalid, IndicatorName(field, category))
			}
		}
		c.categorical[field] = append([]string(nil), kept...)
	}

	if len(doc.RawFields) > 0 {
		c.rawFields = append([]string(nil), doc.RawFields...)
	} else {
		c.rawFields = deriveRawFields(c.featureColumns, c.categorical)
	}
	return c, nil
}

// deriveRawFields recovers the raw input fields of a contract that does not
// list them. Known one-hot fields map back through their categories; any
// other column containing an underscore is taken to be an indicator whose
// field is the part before the first underscore.
func deriveRawFields(columns []string, categorical map[string][]string) []string {
	owner := make(map[string]string)
	for field, kept := range categorical {
		for _, category := range kept {
			owner[IndicatorName(field, category)] = field
		}
	}

	seen := make(map[string]struct{})
	var fields []string
	for _, col := range columns {
		field, ok := owner[col]
		if !ok {
			field = col
			if i := strings.Index(col, "_"); i > 0 {
				field = col[:i]
			}
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		fields = append(fields, field)
	}
	return fields
}

// FeatureColumns returns the ordered feature column names
func (c *Contract) FeatureColumns() []string {
	return append([]string(nil), c.featureColumns...)
}

// NumFeatures returns the width of every encoded vector
func (c *Contract) NumFeatures() int {
	return len(c.featureColumns)
}

// Target returns the label field name
func (c *Contract) Target() string {
	return c.target
}

// RawFields returns the raw fields an inference record must carry
func (c *Contract) RawFields() []string {
	return append([]string(nil), c.rawFields...)
}

// Binary returns the 0/1 mapping of a binary field
func (c *Contract) Binary(field string) (BinaryMapping, bool) {
	m, ok := c.binary[field]
	return m, ok
}

// Categories returns the kept (non-reference) categories of a one-hot field
func (c *Contract) Categories(field string) ([]string, bool) {
	kept, ok := c.categorical[field]
	if !ok {
		return nil, false
	}
	return append([]string(nil), kept...), true
}

// HasColumn reports whether a feature column is part of the contract
func (c *Contract) HasColumn(name string) bool {
	_, ok := c.columnIndex[name]
	return ok
}

// IsMinimal reports whether the contract carries only the column list and
// target, without per-field encoding tables
func (c *Contract) IsMinimal() bool {
	return len(c.binary) == 0 && len(c.categorical) == 0
}

func (c *Contract) document() contractDocument {
	doc := contractDocument{
		FeatureColumns: c.FeatureColumns(),
		Target:         c.target,
		RawFields:      c.RawFields(),
	}
	if len(c.binary) > 0 {
		doc.Binary = make(map[string]BinaryMapping, len(c.binary))
		for k, v := range c.binary {
			doc.Binary[k] = v
		}
	}
	if len(c.categorical) > 0 {
		doc.Categorical = make(map[string][]string, len(c.categorical))
		for k, v := range c.categorical {
			doc.Categorical[k] = append([]string(nil), v...)
		}
	}
	return doc
}

// MarshalJSON encodes the contract as its persisted document
func (c *Contract) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.document())
}

// ParseContract decodes and validates a persisted contract
func ParseContract(data []byte) (*Contract, error) {
	var doc contractDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContractInvalid, err)
	}
	return newContract(doc)
}

// LoadContract reads a contract written by Save
func LoadContract(path string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContractInvalid, err)
	}
	return ParseContract(data)
}

// Save writes the contract as indented JSON
func (c *Contract) Save(path string) error {
	data, err := json.MarshalIndent(c.document(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode contract: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write contract: %w", err)
	}
	return nil
}
