package stats

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoregate/domain/core"
)

var blobCenters = [][]float64{{0, 0}, {10, 10}, {-10, 10}}

func blobs(seed int64, perBlob int) Matrix {
	rng := rand.New(rand.NewSource(seed))
	var rows Matrix
	for _, c := range blobCenters {
		for i := 0; i < perBlob; i++ {
			rows = append(rows, []float64{c[0] + rng.NormFloat64()*0.5, c[1] + rng.NormFloat64()*0.5})
		}
	}
	return rows
}

func TestMiniBatchKMeansSeparatesBlobs(t *testing.T) {
	rows := blobs(1, 60)
	model, err := FitMiniBatchKMeans(context.Background(), rows, KMeansConfig{K: 3, Seed: 1337, BatchSize: 30, MaxIter: 50})
	require.NoError(t, err)
	require.Len(t, model.Centers, 3)

	labels := make([]int, len(blobCenters))
	for i, c := range blobCenters {
		labels[i] = model.Predict(c)
	}
	assert.NotEqual(t, labels[0], labels[1])
	assert.NotEqual(t, labels[0], labels[2])
	assert.NotEqual(t, labels[1], labels[2])

	indexes := make([]int, rows.Len())
	for i := range indexes {
		indexes[i] = i
	}
	predicted := model.PredictRows(rows, indexes)
	for i, label := range predicted {
		assert.Equal(t, labels[i/60], label, "row %d", i)
	}
}

func TestMiniBatchKMeansDeterministic(t *testing.T) {
	rows := blobs(2, 40)
	cfg := KMeansConfig{K: 3, Seed: 1337, BatchSize: 20, MaxIter: 30}

	a, err := FitMiniBatchKMeans(context.Background(), rows, cfg)
	require.NoError(t, err)
	b, err := FitMiniBatchKMeans(context.Background(), rows, cfg)
	require.NoError(t, err)
	assert.Equal(t, a.Centers, b.Centers)
}

func TestMiniBatchKMeansSkipsIncompleteRows(t *testing.T) {
	rows := blobs(3, 30)
	rows = append(rows, []float64{math.NaN(), 1e9}, []float64{1e9, math.NaN()})

	model, err := FitMiniBatchKMeans(context.Background(), rows, KMeansConfig{K: 3, Seed: 1, BatchSize: 30, MaxIter: 40})
	require.NoError(t, err)
	for _, c := range model.Centers {
		assert.Less(t, math.Abs(c[0]), 100.0)
		assert.Less(t, math.Abs(c[1]), 100.0)
	}

	// a partial row is labelled by its usable dimensions only
	assert.Equal(t, model.Predict([]float64{10, 10}), model.Predict([]float64{9.5, math.NaN()}))
}

func TestMiniBatchKMeansErrors(t *testing.T) {
	_, err := FitMiniBatchKMeans(context.Background(), Matrix{{1, 2}}, KMeansConfig{K: 5})
	assert.True(t, core.IsDataShapeError(err))

	_, err = FitMiniBatchKMeans(context.Background(), Matrix{}, KMeansConfig{K: 5})
	assert.True(t, core.IsDataShapeError(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FitMiniBatchKMeans(ctx, blobs(4, 10), KMeansConfig{K: 3})
	assert.ErrorIs(t, err, context.Canceled)
}
