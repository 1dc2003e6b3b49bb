package dataset

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoregate/domain/core"
)

const tournamentCSV = `id,era,data_type,feature_1,feature_2,target_bernie
a,era1,validation,0.25,0.5,1
b,era1,test,,0.75,
c,eraX,live,1,0,
`

func TestReadFrame(t *testing.T) {
	frame, err := ReadFrame(strings.NewReader(tournamentCSV))
	require.NoError(t, err)

	assert.Equal(t, 3, frame.Len())
	ids, ok := frame.Text("id")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	f1, ok := frame.Number("feature_1")
	require.True(t, ok)
	assert.Equal(t, 0.25, f1[0])
	assert.True(t, math.IsNaN(f1[1]))

	assert.Equal(t, []string{"feature_1", "feature_2"}, frame.FeatureNames())
}

func TestReadFrameRejectsNonNumeric(t *testing.T) {
	_, err := ReadFrame(strings.NewReader("id,probability\na,high\n"))
	assert.True(t, core.IsSchemaError(err))
}

func TestReadFrameEmptyInput(t *testing.T) {
	_, err := ReadFrame(strings.NewReader(""))
	assert.ErrorIs(t, err, core.ErrEmpty)
}

func TestReadFrameRaggedRows(t *testing.T) {
	_, err := ReadFrame(strings.NewReader("id,probability\na,0.1,0.2\n"))
	assert.True(t, core.IsSchemaError(err))
}

func TestReadFrameFileMissing(t *testing.T) {
	_, err := ReadFrameFile(filepath.Join(t.TempDir(), "absent.csv"))
	assert.True(t, core.IsNotFoundError(err))
}

func TestWriteFrameRoundTrip(t *testing.T) {
	frame, err := ReadFrame(strings.NewReader(tournamentCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, frame))

	again, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, frame.Header, again.Header)
	assert.Equal(t, frame.Strings, again.Strings)
	col, _ := again.Number("feature_2")
	assert.Equal(t, []float64{0.5, 0.75, 0}, col)

	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	require.NoError(t, WriteFrameFile(path, frame))
	fromFile, err := ReadFrameFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, fromFile.Len())
}
