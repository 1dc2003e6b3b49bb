package stats

import (
	"math"

	mfstats "github.com/montanaflynn/stats"

	"scoregate/domain/core"
)

const logLossEpsilon = 1e-15

// LogLoss returns the mean binary cross-entropy of probabilities p against
// labels y, with p clipped away from 0 and 1.
func LogLoss(y, p []float64) (float64, error) {
	if len(y) != len(p) {
		return 0, core.NewDataShapeError("logloss: %d labels vs %d predictions", len(y), len(p))
	}
	if len(y) == 0 {
		return 0, core.NewEmptyError("logloss input")
	}
	losses := make([]float64, len(y))
	for i := range y {
		q := math.Min(math.Max(p[i], logLossEpsilon), 1-logLossEpsilon)
		losses[i] = -(y[i]*math.Log(q) + (1-y[i])*math.Log(1-q))
	}
	return mfstats.Mean(losses)
}

// AUROC returns the area under the ROC curve using the rank-sum identity.
// Labels >= 0.5 are positive. Both classes must be present.
func AUROC(y, p []float64) (float64, error) {
	if len(y) != len(p) {
		return 0, core.NewDataShapeError("auroc: %d labels vs %d predictions", len(y), len(p))
	}
	ranks := PercentileRank(p)
	n := float64(len(p))

	var positives, negatives, rankSum float64
	for i := range y {
		if y[i] >= 0.5 {
			positives++
			rankSum += ranks[i] * n
		} else {
			negatives++
		}
	}
	if positives == 0 || negatives == 0 {
		return 0, core.NewDataShapeError("auroc needs both classes, got %v positive and %v negative", positives, negatives)
	}
	return (rankSum - positives*(positives+1)/2) / (positives * negatives), nil
}
