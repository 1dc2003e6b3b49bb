package dataset

import (
	"sort"
	"strings"
)

// File names inside a round's dataset directory
const (
	TrainingFile   = "numerai_training_data.csv"
	TournamentFile = "numerai_tournament_data.csv"
)

// Well-known column names
const (
	ColumnID          = "id"
	ColumnEra         = "era"
	ColumnDataType    = "data_type"
	ColumnProbability = "probability"
	featureMarker     = "feature"
)

// Partition labels found in the data_type column
const (
	LabelValidation = "validation"
	LabelTest       = "test"
	LabelLive       = "live"
)

// Labels lists the three scoring partitions in comparison order.
var Labels = []string{LabelValidation, LabelTest, LabelLive}

// IsStringColumn reports whether a column is kept as text rather than parsed as a number.
func IsStringColumn(name string) bool {
	return name == ColumnID || name == ColumnEra || name == ColumnDataType
}

// Frame is a columnar table read from one CSV file.
// Numeric cells that are empty hold NaN.
type Frame struct {
	Strings map[string][]string
	Numbers map[string][]float64
	// Header keeps the file's column order.
	Header []string
	rows   int
}

// NewFrame creates an empty frame for the given header.
func NewFrame(header []string) *Frame {
	f := &Frame{
		Strings: make(map[string][]string),
		Numbers: make(map[string][]float64),
		Header:  append([]string(nil), header...),
	}
	for _, name := range header {
		if IsStringColumn(name) {
			f.Strings[name] = nil
		} else {
			f.Numbers[name] = nil
		}
	}
	return f
}

// SetRows records the row count after all columns are filled.
func (f *Frame) SetRows(n int) { f.rows = n }

// Len returns the row count.
func (f *Frame) Len() int { return f.rows }

// Has reports whether the frame carries the named column.
func (f *Frame) Has(name string) bool {
	if _, ok := f.Strings[name]; ok {
		return true
	}
	_, ok := f.Numbers[name]
	return ok
}

// Text returns a string column.
func (f *Frame) Text(name string) ([]string, bool) {
	c, ok := f.Strings[name]
	return c, ok
}

// Number returns a numeric column.
func (f *Frame) Number(name string) ([]float64, bool) {
	c, ok := f.Numbers[name]
	return c, ok
}

// FeatureNames returns the feature columns in header order.
func (f *Frame) FeatureNames() []string {
	var out []string
	for _, name := range f.Header {
		if strings.Contains(name, featureMarker) {
			if _, ok := f.Numbers[name]; ok {
				out = append(out, name)
			}
		}
	}
	return out
}

// Row copies the named numeric columns of row i into dst and returns it.
func (f *Frame) Row(i int, columns []string, dst []float64) []float64 {
	dst = dst[:0]
	for _, name := range columns {
		dst = append(dst, f.Numbers[name][i])
	}
	return dst
}

// Partition is one data_type slice of the tournament file, ordered by id.
type Partition struct {
	IDs []string
	// Rows holds the frame row of each id.
	Rows []int
}

// Len returns the number of ids.
func (p Partition) Len() int { return len(p.IDs) }

// Contains reports whether id belongs to the partition.
func (p Partition) Contains(id string) bool {
	i := sort.SearchStrings(p.IDs, id)
	return i < len(p.IDs) && p.IDs[i] == id
}

// Partitions holds the three disjoint id sets of a round.
type Partitions struct {
	Validation Partition
	Test       Partition
	Live       Partition
}

// Of returns the partition for a label.
func (p Partitions) Of(label string) Partition {
	switch label {
	case LabelValidation:
		return p.Validation
	case LabelTest:
		return p.Test
	default:
		return p.Live
	}
}

// Round bundles the parsed files and partitions of one round.
type Round struct {
	Training   *Frame
	Tournament *Frame
	Partitions Partitions
}
