// pkg/converter/converter_test.go
package converter

import (
	"testing"

	"go.uber.org/zap"

	"github.com/David-Botos/churn-pipeline/pkg/model"
)

// cells returns n copies of s followed by extra
func cells(s string, n int, extra ...string) []string {
	out := make([]string, 0, n+len(extra))
	for i := 0; i < n; i++ {
		out = append(out, s)
	}
	return append(out, extra...)
}

func TestInferKind(t *testing.T) {
	tests := []struct {
		name   string
		config TypeConverterConfig
		raw    []string
		want   model.Kind
	}{
		{"integers", DefaultConfig(), []string{"1", "34", " 2 "}, model.KindInt},
		{"decimals", DefaultConfig(), []string{"1", "29.85", "1889.5"}, model.KindFloat},
		{"blank cells skipped", DefaultConfig(), cells("12", 19, " "), model.KindInt},
		{"null tokens skipped", DefaultConfig(), []string{"NA", "NaN", "null", "3", "4"}, model.KindInt},
		{"at numeric ratio", DefaultConfig(), cells("29.85", 19, "abc"), model.KindFloat},
		{"below numeric ratio", DefaultConfig(), cells("29.85", 18, "abc", "def"), model.KindText},
		{"all missing", DefaultConfig(), []string{"", "NA", "null"}, model.KindText},
		{"boolean literals", DefaultConfig(), []string{"true", "F", "false"}, model.KindBool},
		{"yes no stays text", DefaultConfig(), []string{"Yes", "No"}, model.KindText},
		{"categorical", DefaultConfig(), []string{"Month-to-month", "One year"}, model.KindText},
		{
			"lower ratio",
			TypeConverterConfig{EmptyStringAsNull: true, NumericRatio: 0.5},
			[]string{"1.5", "x"},
			model.KindFloat,
		},
		{
			"out of range ratio needs every cell",
			TypeConverterConfig{EmptyStringAsNull: true, NumericRatio: 2},
			cells("1.5", 99, "x"),
			model.KindText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewTypeConverterWithConfig(zap.NewNop(), tt.config)
			if got := c.InferKind(tt.raw); got != tt.want {
				t.Errorf("InferKind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseValue(t *testing.T) {
	c := NewTypeConverter(zap.NewNop())

	tests := []struct {
		name string
		raw  string
		kind model.Kind
		want model.Value
	}{
		{"float", "29.85", model.KindFloat, model.Float(29.85)},
		{"blank float", " ", model.KindFloat, model.Missing(model.KindFloat)},
		{"empty float", "", model.KindFloat, model.Missing(model.KindFloat)},
		{"unparseable float", "abc", model.KindFloat, model.Missing(model.KindFloat)},
		{"null token float", "NaN", model.KindFloat, model.Missing(model.KindFloat)},
		{"infinite float", "Inf", model.KindFloat, model.Missing(model.KindFloat)},
		{"int", " 12 ", model.KindInt, model.Int(12)},
		{"int from decimal", "12.7", model.KindInt, model.Int(12)},
		{"unparseable int", "twelve", model.KindInt, model.Missing(model.KindInt)},
		{"bool", "true", model.KindBool, model.Bool(true)},
		{"yes is not a bool", "Yes", model.KindBool, model.Missing(model.KindBool)},
		{"text trimmed", " Fiber optic ", model.KindText, model.Text("Fiber optic")},
		{"null token text", "NA", model.KindText, model.Missing(model.KindText)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.ParseValue(tt.raw, tt.kind); got != tt.want {
				t.Errorf("ParseValue(%q, %v) = %+v, want %+v", tt.raw, tt.kind, got, tt.want)
			}
		})
	}
}

func TestIsNullString(t *testing.T) {
	keepEmpty := DefaultConfig()
	keepEmpty.EmptyStringAsNull = false

	tests := []struct {
		name   string
		config TypeConverterConfig
		raw    string
		want   bool
	}{
		{"blank", DefaultConfig(), "  ", true},
		{"token", DefaultConfig(), "NULL", true},
		{"token is case sensitive", DefaultConfig(), "Null", false},
		{"value", DefaultConfig(), "0", false},
		{"blank kept", keepEmpty, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewTypeConverterWithConfig(nil, tt.config)
			if got := c.IsNullString(tt.raw); got != tt.want {
				t.Errorf("IsNullString(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestKindForDatabaseType(t *testing.T) {
	c := NewTypeConverter(zap.NewNop())

	tests := []struct {
		dbType string
		scale  int64
		want   model.Kind
	}{
		{"int8", -1, model.KindInt},
		{"NUMBER(38,0)", -1, model.KindInt},
		{"NUMBER(10,2)", -1, model.KindFloat},
		{"NUMERIC", -1, model.KindFloat},
		{"NUMERIC", 0, model.KindInt},
		{"float8", -1, model.KindFloat},
		{"bool", -1, model.KindBool},
		{"VARCHAR(255)", -1, model.KindText},
		{"GEOGRAPHY", -1, model.KindText},
	}

	for _, tt := range tests {
		t.Run(tt.dbType, func(t *testing.T) {
			if got := c.KindForDatabaseType(tt.dbType, tt.scale); got != tt.want {
				t.Errorf("KindForDatabaseType(%q, %d) = %v, want %v", tt.dbType, tt.scale, got, tt.want)
			}
		})
	}
}
