package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameColumns(t *testing.T) {
	f := NewFrame([]string{"id", "era", "data_type", "feature_a", "target_bernie", "feature_b"})
	f.Strings["id"] = []string{"x", "y"}
	f.Numbers["feature_a"] = []float64{0.1, math.NaN()}
	f.Numbers["feature_b"] = []float64{0.2, 0.3}
	f.SetRows(2)

	assert.Equal(t, 2, f.Len())
	assert.True(t, f.Has("era"))
	assert.True(t, f.Has("target_bernie"))
	assert.False(t, f.Has("probability"))
	assert.Equal(t, []string{"feature_a", "feature_b"}, f.FeatureNames())

	row := f.Row(0, f.FeatureNames(), nil)
	assert.Equal(t, []float64{0.1, 0.2}, row)
}

func TestPartitionContains(t *testing.T) {
	p := Partition{IDs: []string{"a", "c", "e"}, Rows: []int{0, 1, 2}}
	assert.True(t, p.Contains("c"))
	assert.False(t, p.Contains("d"))
	assert.Equal(t, 3, p.Len())

	ps := Partitions{Test: p}
	assert.Equal(t, p, ps.Of(LabelTest))
}
