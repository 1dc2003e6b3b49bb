package scoring

import (
	"context"
	"sort"
	"time"

	"scoregate/domain/core"
	"scoregate/domain/dataset"
	"scoregate/domain/submission"
	"scoregate/domain/verdict"
	"scoregate/internal"
	"scoregate/internal/cache"
	"scoregate/internal/stats"
)

// ConcordanceConfig controls clustering and the concordance threshold
type ConcordanceConfig struct {
	Threshold float64
	Clusters  stats.KMeansConfig
	// BuildTimeout bounds one clustering fit. Zero means no deadline.
	BuildTimeout time.Duration
}

// DefaultConcordanceConfig returns the production settings
func DefaultConcordanceConfig() ConcordanceConfig {
	return ConcordanceConfig{
		Threshold: 0.12,
		Clusters: stats.KMeansConfig{
			K:         5,
			Seed:      1337,
			BatchSize: 100,
			MaxIter:   100,
		},
		BuildTimeout: 30 * time.Minute,
	}
}

// ClusterAssignment holds one cluster label per id of each partition,
// aligned with the partition's id order.
type ClusterAssignment struct {
	Key        core.RoundKey
	Validation []int
	Test       []int
	Live       []int
	Iterations int
}

// ConcordanceStatistic returns the mean over validation clusters of the
// largest pairwise KS statistic between the validation, test and live
// values of that cluster. Each values slice must align with its labels;
// a mismatch means the assignment belongs to a different partitioning and
// is reported as a stale cache error.
func ConcordanceStatistic(validation, test, live []float64, labels ClusterAssignment) (float64, map[int]float64, error) {
	if len(validation) != len(labels.Validation) ||
		len(test) != len(labels.Test) ||
		len(live) != len(labels.Live) {
		return 0, nil, core.NewStaleCacheError(labels.Key.String(), "cluster labels do not align with submission partitions")
	}

	valByCluster := groupByCluster(validation, labels.Validation)
	testByCluster := groupByCluster(test, labels.Test)
	liveByCluster := groupByCluster(live, labels.Live)

	clusters := make([]int, 0, len(valByCluster))
	for c := range valByCluster {
		clusters = append(clusters, c)
	}
	if len(clusters) == 0 {
		return 0, nil, core.NewDataShapeError("no validation rows to compare")
	}
	sort.Ints(clusters)

	perCluster := make(map[int]float64, len(clusters))
	var sum float64
	for _, c := range clusters {
		v, t, l := valByCluster[c], testByCluster[c], liveByCluster[c]
		worst := max(pairKS(v, t), pairKS(v, l), pairKS(t, l))
		perCluster[c] = worst
		sum += worst
	}
	return sum / float64(len(clusters)), perCluster, nil
}

// IsConcordant reports whether the concordance statistic is below threshold.
func IsConcordant(validation, test, live []float64, labels ClusterAssignment, threshold float64) (bool, error) {
	mean, _, err := ConcordanceStatistic(validation, test, live, labels)
	if err != nil {
		return false, err
	}
	return mean < threshold, nil
}

// pairKS treats a cluster absent from either side as maximally divergent.
func pairKS(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 1
	}
	return stats.KS(a, b)
}

func groupByCluster(values []float64, labels []int) map[int][]float64 {
	out := make(map[int][]float64)
	for i, v := range values {
		out[labels[i]] = append(out[labels[i]], v)
	}
	for _, vs := range out {
		sort.Float64s(vs)
	}
	return out
}

// ConcordanceEngine scores submissions against the round's clustering.
type ConcordanceEngine struct {
	rounds   *RoundData
	vectors  VectorSource
	clusters *cache.Cache[core.RoundKey, *ClusterAssignment]
	cfg      ConcordanceConfig
	log      *internal.Logger

	// OnBuild is called after every successful clustering fit.
	OnBuild func(key core.RoundKey, elapsed time.Duration)
}

// NewConcordanceEngine creates a concordance engine caching size cluster assignments
func NewConcordanceEngine(rounds *RoundData, vectors VectorSource, cfg ConcordanceConfig, size int, recorder cache.Recorder, log *internal.Logger) (*ConcordanceEngine, error) {
	clusters, err := cache.New[core.RoundKey, *ClusterAssignment]("clusters", size, recorder)
	if err != nil {
		return nil, err
	}
	return &ConcordanceEngine{
		rounds:   rounds,
		vectors:  vectors,
		clusters: clusters,
		cfg:      cfg,
		log:      log.Component("concordance"),
	}, nil
}

// Score computes the concordance verdict of one submission. If the cached
// clustering no longer lines up with the round's partitions, the dataset
// and cluster entries are invalidated and scoring is retried exactly once.
func (e *ConcordanceEngine) Score(ctx context.Context, id core.SubmissionID, round submission.Round) (verdict.Concordance, error) {
	vec, err := e.vectors.Vector(ctx, id)
	if err != nil {
		return verdict.Concordance{}, err
	}

	key := round.Key()
	const attempts = 2
	for attempt := 1; ; attempt++ {
		mean, perCluster, err := e.score(ctx, vec, round)
		if err == nil {
			return verdict.Concordance{
				SubmissionID: id,
				IsConcordant: mean < e.cfg.Threshold,
				MeanKS:       mean,
				PerCluster:   perCluster,
			}, nil
		}
		if !core.IsStaleCacheError(err) {
			return verdict.Concordance{}, err
		}
		if attempt == attempts {
			return verdict.Concordance{}, core.NewDataShapeError("submission %s still misaligned with %s after refresh: %v", id, key, err)
		}
		e.log.Warn("stale clustering for %s while scoring %s, rebuilding", key, id)
		e.rounds.Invalidate(key)
		e.clusters.Invalidate(key)
	}
}

func (e *ConcordanceEngine) score(ctx context.Context, vec *submission.Vector, round submission.Round) (float64, map[int]float64, error) {
	data, err := e.rounds.Get(ctx, round)
	if err != nil {
		return 0, nil, err
	}
	labels, err := e.Clusters(ctx, round)
	if err != nil {
		return 0, nil, err
	}
	parts := data.Partitions
	return ConcordanceStatistic(
		vec.Restrict(parts.Validation.IDs),
		vec.Restrict(parts.Test.IDs),
		vec.Restrict(parts.Live.IDs),
		*labels,
	)
}

// Clusters returns the cached cluster assignment of a round, building it
// once across concurrent callers.
func (e *ConcordanceEngine) Clusters(ctx context.Context, round submission.Round) (*ClusterAssignment, error) {
	return e.clusters.GetOrCompute(ctx, round.Key(), func(ctx context.Context) (*ClusterAssignment, error) {
		data, err := e.rounds.Get(ctx, round)
		if err != nil {
			return nil, err
		}
		return e.BuildClusters(ctx, round.Key(), data)
	})
}

// BuildClusters fits the clustering on the training and tournament feature
// rows and labels each partition's rows in id order.
func (e *ConcordanceEngine) BuildClusters(ctx context.Context, key core.RoundKey, data *dataset.Round) (*ClusterAssignment, error) {
	if e.cfg.BuildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.BuildTimeout)
		defer cancel()
	}

	started := time.Now()
	assignment, err := FitClusters(ctx, key, data, e.cfg.Clusters)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(started)
	e.log.Info("clustered %s in %s (%d iterations)", key, elapsed.Round(time.Millisecond), assignment.Iterations)
	if e.OnBuild != nil {
		e.OnBuild(key, elapsed)
	}
	return assignment, nil
}

// FitClusters is the cache-free clustering step.
func FitClusters(ctx context.Context, key core.RoundKey, data *dataset.Round, cfg stats.KMeansConfig) (*ClusterAssignment, error) {
	features := data.Tournament.FeatureNames()
	if len(features) == 0 {
		return nil, core.NewSchemaError("tournament data", "no feature columns")
	}
	training, err := newFeatureRows(data.Training, features)
	if err != nil {
		return nil, err
	}
	tournament, err := newFeatureRows(data.Tournament, features)
	if err != nil {
		return nil, err
	}

	model, err := stats.FitMiniBatchKMeans(ctx, stackedRows{training, tournament}, cfg)
	if err != nil {
		return nil, err
	}

	parts := data.Partitions
	return &ClusterAssignment{
		Key:        key,
		Validation: model.PredictRows(tournament, parts.Validation.Rows),
		Test:       model.PredictRows(tournament, parts.Test.Rows),
		Live:       model.PredictRows(tournament, parts.Live.Rows),
		Iterations: model.Iterations,
	}, nil
}

// featureRows is a row view over a frame's feature columns.
type featureRows struct {
	cols [][]float64
	n    int
}

func newFeatureRows(frame *dataset.Frame, features []string) (featureRows, error) {
	cols := make([][]float64, len(features))
	for i, name := range features {
		col, ok := frame.Number(name)
		if !ok {
			return featureRows{}, core.NewSchemaError("dataset", "missing feature column "+name)
		}
		cols[i] = col
	}
	return featureRows{cols: cols, n: frame.Len()}, nil
}

func (f featureRows) Len() int   { return f.n }
func (f featureRows) Width() int { return len(f.cols) }

func (f featureRows) Row(i int, dst []float64) []float64 {
	for j, col := range f.cols {
		dst[j] = col[i]
	}
	return dst
}

// stackedRows concatenates row views of equal width.
type stackedRows []featureRows

func (s stackedRows) Len() int {
	n := 0
	for _, part := range s {
		n += part.Len()
	}
	return n
}

func (s stackedRows) Width() int {
	if len(s) == 0 {
		return 0
	}
	return s[0].Width()
}

func (s stackedRows) Row(i int, dst []float64) []float64 {
	for _, part := range s {
		if i < part.Len() {
			return part.Row(i, dst)
		}
		i -= part.Len()
	}
	panic("row index out of range")
}
