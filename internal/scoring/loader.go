package scoring

import (
	"context"
	"math"

	"scoregate/domain/core"
	"scoregate/domain/dataset"
	"scoregate/domain/submission"
	"scoregate/internal"
	"scoregate/internal/cache"
	datasetio "scoregate/internal/dataset"
	"scoregate/ports"
)

// VectorSource yields a submission's probability vector.
type VectorSource interface {
	Vector(ctx context.Context, id core.SubmissionID) (*submission.Vector, error)
}

// Loader resolves a submission to its file, downloads and parses it.
type Loader struct {
	store ports.SubmissionStore
	files ports.FileStore
	log   *internal.Logger
}

// NewLoader creates a submission loader
func NewLoader(store ports.SubmissionStore, files ports.FileStore, log *internal.Logger) *Loader {
	return &Loader{store: store, files: files, log: log.Component("loader")}
}

// Vector loads one submission. Missing files, empty files and files without
// numeric id and probability columns fail with a soft error (see core.IsSoft)
// and are logged; the caller treats them as "no vector".
func (l *Loader) Vector(ctx context.Context, id core.SubmissionID) (*submission.Vector, error) {
	v, err := l.load(ctx, id)
	if err != nil && core.IsSoft(err) {
		l.log.Warn("submission %s unavailable: %v", id, err)
	}
	return v, err
}

func (l *Loader) load(ctx context.Context, id core.SubmissionID) (*submission.Vector, error) {
	loc, err := l.store.ResolveFileLocation(ctx, id)
	if err != nil {
		return nil, err
	}
	path, err := l.files.DownloadSubmission(ctx, loc)
	if err != nil {
		return nil, err
	}
	frame, err := datasetio.ReadFrameFile(path)
	if err != nil {
		return nil, err
	}
	return VectorFromFrame(frame, loc.Key())
}

// VectorFromFrame validates a parsed prediction file and builds its vector.
func VectorFromFrame(frame *dataset.Frame, source string) (*submission.Vector, error) {
	if frame.Len() == 0 {
		return nil, core.NewEmptyError(source)
	}
	ids, ok := frame.Text(dataset.ColumnID)
	if !ok {
		return nil, core.NewSchemaError(source, "missing id column")
	}
	probs, ok := frame.Number(dataset.ColumnProbability)
	if !ok {
		return nil, core.NewSchemaError(source, "missing probability column")
	}
	for i, p := range probs {
		if math.IsNaN(p) {
			return nil, core.NewSchemaError(source, "missing probability for id "+ids[i])
		}
	}
	v, err := submission.NewVector(ids, probs)
	if err != nil && core.IsDataShapeError(err) {
		// duplicate ids make the file unusable, not the worker
		return nil, core.NewSchemaError(source, err.Error())
	}
	return v, err
}

// CachedVectors serves vectors from a bounded single-flight cache in front
// of another source.
type CachedVectors struct {
	source VectorSource
	cache  *cache.Cache[core.SubmissionID, *submission.Vector]
}

// NewCachedVectors wraps source with a cache of the given capacity
func NewCachedVectors(source VectorSource, size int, recorder cache.Recorder) (*CachedVectors, error) {
	c, err := cache.New[core.SubmissionID, *submission.Vector]("submissions", size, recorder)
	if err != nil {
		return nil, err
	}
	return &CachedVectors{source: source, cache: c}, nil
}

// Vector returns the cached vector for id, loading it at most once across
// concurrent callers.
func (c *CachedVectors) Vector(ctx context.Context, id core.SubmissionID) (*submission.Vector, error) {
	return c.cache.GetOrCompute(ctx, id, func(ctx context.Context) (*submission.Vector, error) {
		return c.source.Vector(ctx, id)
	})
}

// Invalidate drops a cached vector, e.g. after the submission file changed.
func (c *CachedVectors) Invalidate(id core.SubmissionID) {
	c.cache.Invalidate(id)
}
