// pkg/features/binary.go
package features

import (
	"sort"

	"github.com/David-Botos/churn-pipeline/pkg/model"
)

// BinaryMapping maps a two-valued categorical field onto {0,1}
type BinaryMapping struct {
	Zero string `json:"zero"`
	One  string `json:"one"`
}

// Encode returns the code for a category and whether the category belongs to
// the mapping
func (m BinaryMapping) Encode(value string) (float64, bool) {
	switch value {
	case m.Zero:
		return 0, true
	case m.One:
		return 1, true
	default:
		return 0, false
	}
}

// Matches reports whether the mapping covers exactly this pair of values,
// regardless of order
func (m BinaryMapping) Matches(a, b string) bool {
	return (a == m.Zero && b == m.One) || (a == m.One && b == m.Zero)
}

// Mappings holds the special-cased binary mappings, checked in order before
// the lexicographic fallback
type Mappings struct {
	Special []BinaryMapping
}

// DefaultMappings returns the fixed Yes/No and Male/Female mappings
func DefaultMappings() Mappings {
	return Mappings{
		Special: []BinaryMapping{
			{Zero: "No", One: "Yes"},
			{Zero: "Female", One: "Male"},
		},
	}
}

// Resolve picks the mapping for a set of distinct values. It reports false
// unless exactly two values are given.
func (m Mappings) Resolve(distinct []string) (BinaryMapping, bool) {
	if len(distinct) != 2 || distinct[0] == distinct[1] {
		return BinaryMapping{}, false
	}
	for _, special := range m.Special {
		if special.Matches(distinct[0], distinct[1]) {
			return special, true
		}
	}

	sorted := []string{distinct[0], distinct[1]}
	sort.Strings(sorted)
	return BinaryMapping{Zero: sorted[0], One: sorted[1]}, true
}

// lookup finds the special mapping a single value belongs to. Used only for
// contracts that do not carry their binary tables.
func (m Mappings) lookup(value string) (float64, bool) {
	for _, special := range m.Special {
		if code, ok := special.Encode(value); ok {
			return code, true
		}
	}
	return 0, false
}

// distinctText returns the distinct non-missing text values of a column, in
// first-seen order
func distinctText(values []model.Value) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, v := range values {
		if v.Missing || v.Kind != model.KindText {
			continue
		}
		if _, ok := seen[v.Str]; ok {
			continue
		}
		seen[v.Str] = struct{}{}
		out = append(out, v.Str)
	}
	return out
}

// EncodeBinaryColumn encodes a two-valued text column into 0/1 integers.
// Missing cells stay missing. Columns without exactly two distinct values are
// returned unchanged with ok=false.
func EncodeBinaryColumn(values []model.Value, mappings Mappings) ([]model.Value, BinaryMapping, bool) {
	mapping, ok := mappings.Resolve(distinctText(values))
	if !ok {
		return values, BinaryMapping{}, false
	}

	out := make([]model.Value, len(values))
	for i, v := range values {
		if v.Missing {
			out[i] = model.Missing(model.KindInt)
			continue
		}
		code, _ := mapping.Encode(v.Str)
		out[i] = model.Int(int64(code))
	}
	return out, mapping, true
}
