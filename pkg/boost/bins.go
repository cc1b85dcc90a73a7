// pkg/boost/bins.go
package boost

import (
	"sort"
)

// binner quantizes each feature into at most maxBins ordered bins. A value
// falls in bin b when it is <= cuts[b] and > cuts[b-1]; the last bin holds
// everything above the last cut.
type binner struct {
	cuts  [][]float64 // per feature, ascending
	codes [][]uint16  // column-major bin codes, codes[feature][row]
}

func newBinner(X [][]float64, maxBins int) *binner {
	n, p := len(X), len(X[0])
	b := &binner{
		cuts:  make([][]float64, p),
		codes: make([][]uint16, p),
	}

	column := make([]float64, n)
	for f := 0; f < p; f++ {
		for i := range X {
			column[i] = X[i][f]
		}
		b.cuts[f] = featureCuts(column, maxBins)

		codes := make([]uint16, n)
		for i, v := range column {
			codes[i] = uint16(sort.SearchFloat64s(b.cuts[f], v))
		}
		b.codes[f] = codes
	}
	return b
}

// featureCuts picks split candidates for one feature. Few distinct values
// get a cut halfway between each neighbouring pair; otherwise cuts sit at
// evenly spaced quantiles.
func featureCuts(values []float64, maxBins int) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	distinct := sorted[:0:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			distinct = append(distinct, v)
		}
	}
	if len(distinct) < 2 {
		return nil
	}

	if len(distinct) <= maxBins {
		cuts := make([]float64, len(distinct)-1)
		for i := range cuts {
			cuts[i] = distinct[i] + (distinct[i+1]-distinct[i])/2
		}
		return cuts
	}

	cuts := make([]float64, 0, maxBins-1)
	for k := 1; k < maxBins; k++ {
		v := sorted[k*len(sorted)/maxBins]
		if len(cuts) > 0 && v <= cuts[len(cuts)-1] {
			continue
		}
		// The maximum value can never be a useful cut
		if v >= distinct[len(distinct)-1] {
			break
		}
		cuts = append(cuts, v)
	}
	return cuts
}
