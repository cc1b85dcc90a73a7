// pkg/converter/converter.go
package converter

import (
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/model"
)

// TypeConverter handles typing of raw cell values and columns
type TypeConverter struct {
	logger *zap.Logger
	// Configuration options
	config TypeConverterConfig
}

// TypeConverterConfig provides configuration options for type conversion
type TypeConverterConfig struct {
	// Whether to treat empty (or blank) strings as missing
	EmptyStringAsNull bool
	// Tokens that are read as missing
	NullTokens []string
	// Share of non-missing cells that must parse as numbers before a column
	// is typed numeric; the rest are coerced to missing
	NumericRatio float64
}

// DefaultConfig returns the default configuration
func DefaultConfig() TypeConverterConfig {
	return TypeConverterConfig{
		EmptyStringAsNull: true,
		NullTokens:        []string{"null", "NULL", "nil", "NIL", "NaN", "nan", "NA"},
		NumericRatio:      0.95,
	}
}

// NewTypeConverter creates a new TypeConverter with default configuration
func NewTypeConverter(logger *zap.Logger) *TypeConverter {
	return NewTypeConverterWithConfig(logger, DefaultConfig())
}

// NewTypeConverterWithConfig creates a TypeConverter with custom configuration
func NewTypeConverterWithConfig(logger *zap.Logger, config TypeConverterConfig) *TypeConverter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypeConverter{
		logger: logger,
		config: config,
	}
}

// InferKind decides the kind of a column from its raw text cells
func (c *TypeConverter) InferKind(raw []string) model.Kind {
	var present, ints, floats, bools int
	for _, s := range raw {
		if c.IsNullString(s) {
			continue
		}
		present++
		s = strings.TrimSpace(s)
		if _, err := parseInt(s); err == nil {
			ints++
			floats++
			continue
		}
		if _, err := parseFloat(s); err == nil {
			floats++
			continue
		}
		if _, err := parseBoolLiteral(s); err == nil {
			bools++
		}
	}

	if present == 0 {
		return model.KindText
	}

	ratio := c.config.NumericRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	switch {
	case ints == present:
		return model.KindInt
	case float64(floats) >= ratio*float64(present):
		return model.KindFloat
	case bools == present:
		return model.KindBool
	default:
		return model.KindText
	}
}

// ParseValue converts a raw cell into a typed value. Cells that do not parse
// as the requested numeric kind become missing instead of failing.
func (c *TypeConverter) ParseValue(raw string, kind model.Kind) model.Value {
	if c.IsNullString(raw) {
		return model.Missing(kind)
	}
	trimmed := strings.TrimSpace(raw)

	switch kind {
	case model.KindInt:
		if i, err := parseInt(trimmed); err == nil {
			return model.Int(i)
		}
		if f, err := parseFloat(trimmed); err == nil {
			return model.Int(int64(f))
		}
		return model.Missing(kind)
	case model.KindFloat:
		f, err := parseFloat(trimmed)
		if err != nil {
			return model.Missing(kind)
		}
		return model.Float(f)
	case model.KindBool:
		b, err := parseBoolLiteral(trimmed)
		if err != nil {
			return model.Missing(kind)
		}
		return model.Bool(b)
	default:
		return model.Text(trimmed)
	}
}

// IsNullString determines if a raw string should be treated as missing
func (c *TypeConverter) IsNullString(s string) bool {
	if strings.TrimSpace(s) == "" {
		return c.config.EmptyStringAsNull
	}
	for _, token := range c.config.NullTokens {
		if s == token {
			return true
		}
	}
	return false
}
