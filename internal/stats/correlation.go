package stats

import (
	"math"
	"sort"

	mfstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Pearson returns the sample correlation of x and y. x and y must have the
// same length.
func Pearson(x, y []float64) float64 {
	return stat.Correlation(x, y, nil)
}

// IsConstant reports whether x has zero variance. Fewer than two values count as constant.
func IsConstant(x []float64) bool {
	if len(x) < 2 {
		return true
	}
	return floats.Max(x) == floats.Min(x)
}

// PercentileRank returns average-tie ranks scaled into (0, 1].
func PercentileRank(x []float64) []float64 {
	n := len(x)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return x[order[i]] < x[order[j]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i + 1
		for j < n && x[order[j]] == x[order[i]] {
			j++
		}
		// ranks are 1-based; tied values share the mean of their positions
		avg := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			ranks[order[k]] = avg / float64(n)
		}
		i = j
	}
	return ranks
}

// RankCorrelation is the Pearson correlation of the percentile ranks of x
// and y. Constant inputs correlate at 0.
func RankCorrelation(x, y []float64) (float64, error) {
	r, err := mfstats.Pearson(PercentileRank(x), PercentileRank(y))
	if err != nil {
		return 0, err
	}
	if math.IsNaN(r) {
		return 0, nil
	}
	return r, nil
}
