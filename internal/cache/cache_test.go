package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testKey int

func (k testKey) String() string { return "k" + strconv.Itoa(int(k)) }

type payload struct {
	values []float64
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) CacheRequest(cache, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[result]++
}

func newTestCache(t *testing.T, size int, rec Recorder) *Cache[testKey, *payload] {
	t.Helper()
	c, err := New[testKey, *payload]("test", size, rec)
	require.NoError(t, err)
	return c
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := newTestCache(t, 4, nil)
	var calls atomic.Int32
	release := make(chan struct{})

	compute := func(ctx context.Context) (*payload, error) {
		calls.Add(1)
		<-release
		return &payload{values: []float64{1, 2, 3}}, nil
	}

	const callers = 8
	results := make([]*payload, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCompute(context.Background(), 1, compute)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	c := newTestCache(t, 4, nil)
	var calls int
	boom := errors.New("download failed")

	_, err := c.GetOrCompute(context.Background(), 1, func(ctx context.Context) (*payload, error) {
		calls++
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	v, err := c.GetOrCompute(context.Background(), 1, func(ctx context.Context) (*payload, error) {
		calls++
		return &payload{}, nil
	})
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, c.Len())
}

func TestLRUEvictionKeepsCallerReference(t *testing.T) {
	rec := &countingRecorder{}
	c := newTestCache(t, 2, rec)
	ctx := context.Background()
	var calls int
	build := func(v float64) func(context.Context) (*payload, error) {
		return func(context.Context) (*payload, error) {
			calls++
			return &payload{values: []float64{v}}, nil
		}
	}

	first, err := c.GetOrCompute(ctx, 1, build(1))
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, 2, build(2))
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, 3, build(3))
	require.NoError(t, err)

	_, ok := c.Get(1)
	assert.False(t, ok, "least recently used entry should be evicted")
	assert.Equal(t, []float64{1}, first.values, "evicted value stays usable")

	_, err = c.GetOrCompute(ctx, 3, build(3))
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, rec.counts[ResultMiss])
	assert.Equal(t, 1, rec.counts[ResultHit])
}

func TestInvalidateForcesRecompute(t *testing.T) {
	c := newTestCache(t, 2, nil)
	ctx := context.Background()
	var calls int
	compute := func(context.Context) (*payload, error) {
		calls++
		return &payload{values: []float64{float64(calls)}}, nil
	}

	a, err := c.GetOrCompute(ctx, 7, compute)
	require.NoError(t, err)
	c.Invalidate(7)
	b, err := c.GetOrCompute(ctx, 7, compute)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.NotSame(t, a, b)
}

func TestInvalidateDuringFlightDiscardsResult(t *testing.T) {
	c := newTestCache(t, 2, nil)
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan *payload)
	go func() {
		v, err := c.GetOrCompute(context.Background(), 5, func(context.Context) (*payload, error) {
			close(started)
			<-release
			return &payload{values: []float64{42}}, nil
		})
		assert.NoError(t, err)
		done <- v
	}()

	<-started
	c.Invalidate(5)
	close(release)

	v := <-done
	assert.Equal(t, []float64{42}, v.values, "waiter still receives the result")
	_, ok := c.Get(5)
	assert.False(t, ok, "stale flight must not repopulate the cache")
}

func TestInvalidateLeavesOtherKeysInFlight(t *testing.T) {
	c := newTestCache(t, 4, nil)
	ctx := context.Background()
	_, err := c.GetOrCompute(ctx, 1, func(context.Context) (*payload, error) {
		return &payload{}, nil
	})
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	var calls atomic.Int32
	go func() {
		_, err := c.GetOrCompute(ctx, 2, func(context.Context) (*payload, error) {
			calls.Add(1)
			close(started)
			<-release
			return &payload{values: []float64{2}}, nil
		})
		done <- err
	}()

	<-started
	c.Invalidate(1)
	close(release)
	require.NoError(t, <-done)

	v, ok := c.Get(2)
	require.True(t, ok, "flight for key 2 must be stored after key 1 is invalidated")
	assert.Equal(t, []float64{2}, v.values)
	_, ok = c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPurgeDuringFlightDiscardsResult(t *testing.T) {
	c := newTestCache(t, 2, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		_, err := c.GetOrCompute(context.Background(), 3, func(context.Context) (*payload, error) {
			close(started)
			<-release
			return &payload{}, nil
		})
		done <- err
	}()

	<-started
	c.Purge()
	close(release)
	require.NoError(t, <-done)
	_, ok := c.Get(3)
	assert.False(t, ok)
}

func TestCancelledWaiterDoesNotPoisonFlight(t *testing.T) {
	c := newTestCache(t, 2, nil)
	started := make(chan struct{})
	release := make(chan struct{})

	owner := make(chan error)
	go func() {
		_, err := c.GetOrCompute(context.Background(), 9, func(ctx context.Context) (*payload, error) {
			close(started)
			<-release
			return &payload{}, ctx.Err()
		})
		owner <- err
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetOrCompute(ctx, 9, func(context.Context) (*payload, error) {
		t.Fatal("second caller must not compute")
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	assert.NoError(t, <-owner)
	_, ok := c.Get(9)
	assert.True(t, ok)
}

func TestPurge(t *testing.T) {
	c := newTestCache(t, 3, nil)
	for i := 0; i < 3; i++ {
		_, err := c.GetOrCompute(context.Background(), testKey(i), func(context.Context) (*payload, error) {
			return &payload{}, nil
		})
		require.NoError(t, err)
	}
	c.Purge()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, "test", c.Name())
}
