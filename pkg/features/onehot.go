// pkg/features/onehot.go
package features

import (
	"sort"

	"github.com/David-Botos/churn-pipeline/pkg/model"
)

// IndicatorName is the column name of the indicator for one category
func IndicatorName(field, category string) string {
	return field + "_" + category
}

// OneHotCategories sorts the distinct categories of a field and splits off
// the reference level (lexicographically first), which gets no column.
func OneHotCategories(values []model.Value) (reference string, kept []string) {
	distinct := distinctText(values)
	if len(distinct) == 0 {
		return "", nil
	}
	sort.Strings(distinct)
	return distinct[0], distinct[1:]
}

// EncodeOneHotColumn expands a multi-category column into indicator columns,
// one per kept category, in kept order. Missing cells and categories outside
// kept produce all-zero indicators.
func EncodeOneHotColumn(values []model.Value, kept []string) [][]float64 {
	index := make(map[string]int, len(kept))
	for i, category := range kept {
		index[category] = i
	}

	out := make([][]float64, len(values))
	for i, v := range values {
		row := make([]float64, len(kept))
		if !v.Missing {
			if j, ok := index[v.Str]; ok {
				row[j] = 1
			}
		}
		out[i] = row
	}
	return out
}
