package scoring

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"scoregate/domain/core"
	"scoregate/domain/submission"
	"scoregate/internal"
)

// fakeVectors is a VectorSource backed by maps.
type fakeVectors struct {
	mu      sync.Mutex
	vectors map[core.SubmissionID]*submission.Vector
	errs    map[core.SubmissionID]error
	calls   map[core.SubmissionID]int
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{
		vectors: make(map[core.SubmissionID]*submission.Vector),
		errs:    make(map[core.SubmissionID]error),
		calls:   make(map[core.SubmissionID]int),
	}
}

func (f *fakeVectors) Vector(ctx context.Context, id core.SubmissionID) (*submission.Vector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	v, ok := f.vectors[id]
	if !ok {
		return nil, core.NewNotFoundError("submission", id.String())
	}
	return v, nil
}

func seqIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("id%05d", i)
	}
	return ids
}

func mustVector(t *testing.T, ids []string, probs []float64) *submission.Vector {
	t.Helper()
	v, err := submission.NewVector(ids, probs)
	require.NoError(t, err)
	return v
}

func testLogger() *internal.Logger {
	return internal.Discard()
}
