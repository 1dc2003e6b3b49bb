package scoring

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoregate/domain/core"
	"scoregate/domain/verdict"
)

func uniform(n int, shift float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)/float64(n) + shift
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func newOriginalityFixture(t *testing.T, n int) (*fakeVectors, *OriginalityEngine, []string) {
	t.Helper()
	vectors := newFakeVectors()
	return vectors, NewOriginalityEngine(vectors, DefaultOriginalityConfig(), testLogger()), seqIDs(n)
}

func TestOriginality_CorrelatedCopyIsRejected(t *testing.T) {
	vectors, engine, ids := newOriginalityFixture(t, 1000)
	candidate := mustVector(t, ids, uniform(1000, 0))
	vectors.vectors["other"] = mustVector(t, ids, uniform(1000, 0))

	got, err := engine.Check(context.Background(), "mine", candidate, []core.SubmissionID{"other"})
	require.NoError(t, err)
	assert.False(t, got.IsOriginal)
	assert.Equal(t, verdict.ReasonCorrelated, got.Reason)
	assert.Equal(t, core.SubmissionID("other"), got.MatchedID)
	assert.InDelta(t, 1.0, got.Statistic, 1e-9)
}

func TestOriginality_DifferentDistributionIsOriginal(t *testing.T) {
	vectors, engine, ids := newOriginalityFixture(t, 1000)
	candidate := mustVector(t, ids, uniform(1000, 0))
	steps := make([]float64, 1000)
	for i := 500; i < 1000; i++ {
		steps[i] = 1
	}
	vectors.vectors["other"] = mustVector(t, ids, steps)

	got, err := engine.Check(context.Background(), "mine", candidate, []core.SubmissionID{"other"})
	require.NoError(t, err)
	assert.True(t, got.IsOriginal)
	assert.Equal(t, verdict.ReasonOriginal, got.Reason)
	assert.Zero(t, got.Skipped)
}

func TestOriginality_ConstantSubmissionsAreExactDuplicates(t *testing.T) {
	vectors, engine, ids := newOriginalityFixture(t, 200)
	candidate := mustVector(t, ids, constant(200, 0.5))
	vectors.vectors["other"] = mustVector(t, ids, constant(200, 0.5))

	got, err := engine.Check(context.Background(), "mine", candidate, []core.SubmissionID{"other"})
	require.NoError(t, err)
	assert.False(t, got.IsOriginal)
	assert.Equal(t, verdict.ReasonExactDuplicate, got.Reason)
	assert.Equal(t, 0.0, got.Statistic)
}

func TestOriginality_ShiftedShuffleIsTooSimilar(t *testing.T) {
	vectors, engine, ids := newOriginalityFixture(t, 1000)
	candidate := mustVector(t, ids, uniform(1000, 0))

	shifted := uniform(1000, 0.02)
	rng := rand.New(rand.NewSource(3))
	rng.Shuffle(len(shifted), func(i, j int) { shifted[i], shifted[j] = shifted[j], shifted[i] })
	vectors.vectors["other"] = mustVector(t, ids, shifted)

	got, err := engine.Check(context.Background(), "mine", candidate, []core.SubmissionID{"other"})
	require.NoError(t, err)
	assert.False(t, got.IsOriginal)
	assert.Equal(t, verdict.ReasonTooSimilar, got.Reason)
	assert.Equal(t, []core.SubmissionID{"other"}, got.SimilarIDs)
	assert.GreaterOrEqual(t, got.Statistic, 0.005)
	assert.LessOrEqual(t, got.Statistic, 0.03)
}

func TestOriginality_SimilarBelowLimitStaysOriginal(t *testing.T) {
	vectors := newFakeVectors()
	cfg := DefaultOriginalityConfig()
	cfg.MaxSimilar = 2
	engine := NewOriginalityEngine(vectors, cfg, testLogger())
	ids := seqIDs(1000)
	candidate := mustVector(t, ids, uniform(1000, 0))

	shifted := uniform(1000, 0.02)
	rand.New(rand.NewSource(5)).Shuffle(len(shifted), func(i, j int) { shifted[i], shifted[j] = shifted[j], shifted[i] })
	vectors.vectors["other"] = mustVector(t, ids, shifted)

	got, err := engine.Check(context.Background(), "mine", candidate, []core.SubmissionID{"other"})
	require.NoError(t, err)
	assert.True(t, got.IsOriginal)
	assert.Len(t, got.SimilarIDs, 1)
}

func TestOriginality_SkipsUnusableCompetitors(t *testing.T) {
	vectors, engine, ids := newOriginalityFixture(t, 100)
	candidate := mustVector(t, ids, uniform(100, 0))
	vectors.vectors["short"] = mustVector(t, ids[:99], uniform(99, 0))
	vectors.errs["broken"] = core.NewSchemaError("broken.csv", "missing probability column")
	// "gone" has no entry and resolves to a not-found error

	got, err := engine.Check(context.Background(), "mine", candidate, []core.SubmissionID{"mine", "short", "broken", "gone"})
	require.NoError(t, err)
	assert.True(t, got.IsOriginal)
	assert.Equal(t, 3, got.Skipped)
	assert.Zero(t, vectors.calls["mine"], "own submission is never loaded")
	for _, cid := range []core.SubmissionID{"short", "broken", "gone"} {
		assert.Equal(t, 1, vectors.calls[cid], "%s is loaded once across both passes", cid)
	}
}

func TestOriginality_HardLoadErrorAborts(t *testing.T) {
	vectors, engine, ids := newOriginalityFixture(t, 100)
	candidate := mustVector(t, ids, uniform(100, 0))
	boom := core.NewTransientIOError("get object", errors.New("connection reset"))
	vectors.errs["flaky"] = boom

	_, err := engine.Check(context.Background(), "mine", candidate, []core.SubmissionID{"flaky"})
	require.Error(t, err)
	assert.True(t, core.IsTransientIOError(err))
}

func TestOriginality_NoCompetitors(t *testing.T) {
	_, engine, ids := newOriginalityFixture(t, 10)
	got, err := engine.Check(context.Background(), "mine", mustVector(t, ids, uniform(10, 0)), nil)
	require.NoError(t, err)
	assert.True(t, got.IsOriginal)
	assert.Equal(t, core.SubmissionID("mine"), got.SubmissionID)
}
