package stats

import (
	"math"

	"scoregate/domain/core"
)

// KS returns the two-sample Kolmogorov-Smirnov statistic of a and b: the
// largest absolute gap between their empirical CDFs over all sample points.
// Both inputs must already be sorted ascending. Ties are handled exactly by
// advancing each side past every value equal to the current point, so the
// CDFs are right-continuous rank counts and KS(a, a) == 0.
func KS(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		if len(a) == len(b) {
			return 0
		}
		return 1
	}

	n1, n2 := float64(len(a)), float64(len(b))
	var d float64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		x := math.Min(a[i], b[j])
		for i < len(a) && a[i] <= x {
			i++
		}
		for j < len(b) && b[j] <= x {
			j++
		}
		if gap := math.Abs(float64(i)/n1 - float64(j)/n2); gap > d {
			d = gap
		}
	}
	return d
}

// OriginalityScore is KS restricted to equal-length samples, the contract
// the duplicate thresholds were calibrated against.
func OriginalityScore(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, core.NewDataShapeError("ks samples differ in length: %d vs %d", len(a), len(b))
	}
	return KS(a, b), nil
}
