package stats

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"scoregate/domain/core"
)

// KMeansConfig controls a mini-batch k-means fit.
type KMeansConfig struct {
	K         int
	Seed      int64
	BatchSize int
	MaxIter   int
	// Tol stops the fit once the mean squared center shift of an iteration
	// drops below it. Zero runs all iterations.
	Tol float64
}

func (c KMeansConfig) withDefaults() KMeansConfig {
	out := c
	if out.K <= 0 {
		out.K = 5
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 100
	}
	if out.MaxIter <= 0 {
		out.MaxIter = 100
	}
	return out
}

// KMeans is a fitted clustering model.
type KMeans struct {
	Centers [][]float64
	// Iterations is the number of mini-batch steps the fit ran.
	Iterations int
}

// Rows gives random access to a row-major view of a feature table.
type Rows interface {
	Len() int
	Width() int
	// Row copies row i into dst, which has length Width, and returns it.
	Row(i int, dst []float64) []float64
}

// Matrix adapts an in-memory [][]float64 to Rows.
type Matrix [][]float64

func (m Matrix) Len() int { return len(m) }

func (m Matrix) Width() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

func (m Matrix) Row(i int, dst []float64) []float64 {
	copy(dst, m[i])
	return dst
}

// FitMiniBatchKMeans fits centers on rows using k-means++ seeding followed
// by mini-batch updates with a per-center learning rate of 1/count. Rows
// holding any NaN are left out of the fit. The random source is derived
// from cfg.Seed only, so equal inputs give equal centers.
func FitMiniBatchKMeans(ctx context.Context, rows Rows, cfg KMeansConfig) (*KMeans, error) {
	cfg = cfg.withDefaults()
	dim := rows.Width()
	if dim == 0 {
		return nil, core.NewDataShapeError("kmeans needs at least one feature column")
	}

	buf := make([]float64, dim)
	complete := make([]int, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		if !hasNaN(rows.Row(i, buf)) {
			complete = append(complete, i)
		}
	}
	if len(complete) < cfg.K {
		return nil, core.NewDataShapeError("kmeans needs at least %d complete rows, got %d", cfg.K, len(complete))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	initSize := min(len(complete), max(3*cfg.BatchSize, cfg.K))
	sample := make([][]float64, initSize)
	for i, idx := range rng.Perm(len(complete))[:initSize] {
		sample[i] = rows.Row(complete[idx], make([]float64, dim))
	}
	centers := seedPlusPlus(sample, cfg.K, rng)

	counts := make([]float64, cfg.K)
	batch := min(cfg.BatchSize, len(complete))
	picked := make([][]float64, batch)
	for i := range picked {
		picked[i] = make([]float64, dim)
	}
	assign := make([]int, batch)
	prev := make([]float64, dim)

	model := &KMeans{Centers: centers}
	for iter := 0; iter < cfg.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i := range picked {
			rows.Row(complete[rng.Intn(len(complete))], picked[i])
			assign[i] = nearest(centers, picked[i])
		}

		var shift float64
		for i, x := range picked {
			c := assign[i]
			copy(prev, centers[c])
			counts[c]++
			eta := 1 / counts[c]
			floats.Scale(1-eta, centers[c])
			floats.AddScaled(centers[c], eta, x)
			d := floats.Distance(prev, centers[c], 2)
			shift += d * d
		}
		model.Iterations = iter + 1

		if cfg.Tol > 0 && shift/float64(batch) < cfg.Tol {
			break
		}
	}
	return model, nil
}

// Predict returns the nearest center for row. Dimensions that are NaN in
// row are ignored; a row with no usable dimension is assigned cluster 0.
func (m *KMeans) Predict(row []float64) int {
	if !hasNaN(row) {
		return nearest(m.Centers, row)
	}
	best, bestDist := 0, math.Inf(1)
	for c, center := range m.Centers {
		var d float64
		used := 0
		for i, v := range row {
			if math.IsNaN(v) {
				continue
			}
			diff := v - center[i]
			d += diff * diff
			used++
		}
		if used == 0 {
			return 0
		}
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// PredictRows labels the given row indexes of rows, in order.
func (m *KMeans) PredictRows(rows Rows, indexes []int) []int {
	buf := make([]float64, rows.Width())
	labels := make([]int, len(indexes))
	for i, idx := range indexes {
		labels[i] = m.Predict(rows.Row(idx, buf))
	}
	return labels
}

func seedPlusPlus(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	first := rows[rng.Intn(len(rows))]
	centers = append(centers, append([]float64(nil), first...))

	dist := make([]float64, len(rows))
	for i, r := range rows {
		d := floats.Distance(r, centers[0], 2)
		dist[i] = d * d
	}
	for len(centers) < k {
		total := floats.Sum(dist)
		var pick int
		if total == 0 {
			pick = rng.Intn(len(rows))
		} else {
			target := rng.Float64() * total
			for pick = 0; pick < len(rows)-1; pick++ {
				target -= dist[pick]
				if target <= 0 {
					break
				}
			}
		}
		center := append([]float64(nil), rows[pick]...)
		centers = append(centers, center)
		for i, r := range rows {
			d := floats.Distance(r, center, 2)
			if d*d < dist[i] {
				dist[i] = d * d
			}
		}
	}
	return centers
}

func nearest(centers [][]float64, row []float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, center := range centers {
		if d := floats.Distance(row, center, 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func hasNaN(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
