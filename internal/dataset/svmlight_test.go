package dataset

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svmbridge/internal/feature"
)

const sample = `# training data
+1 1:0.5 3:1.25
-1 qid:7 2:1 # trailing comment
2 cost:0.5 1:1e-3 4:-2

0.5
-1 10:3
`

func TestRead(t *testing.T) {
	data, err := Read(strings.NewReader(sample), 0)
	require.NoError(t, err)
	require.Len(t, data, 4)

	assert.Equal(t, 1.0, data[0].Label)
	assert.Equal(t, []int{1, 3}, data[0].Dims)
	assert.Equal(t, []float64{0.5, 1.25}, data[0].Vals)
	assert.Equal(t, 1.0, data[0].Factor)

	assert.Equal(t, 7, data[1].QueryID)
	assert.Equal(t, []int{2}, data[1].Dims)

	assert.Equal(t, 0.5, data[2].Factor)
	assert.Equal(t, []float64{1e-3, -2}, data[2].Vals)

	assert.Equal(t, []int{10}, data[3].Dims)
}

func TestReadSkipsDataLinesOnly(t *testing.T) {
	data, err := Read(strings.NewReader(sample), 2)
	require.NoError(t, err)
	require.Len(t, data, 2)
	assert.Equal(t, 2.0, data[0].Label)
}

func TestReadErrors(t *testing.T) {
	for _, in := range []string{
		"x 1:1\n",
		"1 1:1 2\n",
		"1 a:1\n",
		"1 1:b\n",
		"1 0:1\n",
		"1 qid:x 1:1\n",
		"1 cost:x 1:1\n",
		"1 1:\n",
	} {
		_, err := Read(strings.NewReader("+1 1:1\n"+in), 0)
		require.Error(t, err, "%q", in)
		var pe *ParseError
		require.True(t, errors.As(err, &pe), "%q: %v", in, err)
		assert.Equal(t, 2, pe.Line, "%q", in)
	}

	_, err := Read(strings.NewReader("# nothing\n\n"), 0)
	assert.True(t, errors.Is(err, ErrNoVectors))
}

func TestParseErrorNamesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.dat")
	mustWrite(t, path, "1 1:1\n1 oops\n")
	_, err := ReadFile(path, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.dat:2")
}

func TestWriteReadRoundTrip(t *testing.T) {
	data, err := Read(strings.NewReader(sample), 0)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.dat")
	require.NoError(t, WriteFile(path, data))
	again, err := ReadFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.dat")
	mustWrite(t, path, sample)

	vectors, errCh := Stream(context.Background(), path, 0)
	var got []*feature.Labeled
	for v := range vectors {
		got = append(got, v)
	}
	require.NoError(t, <-errCh)
	assert.Len(t, got, 4)
}

func TestStreamReportsParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.dat")
	mustWrite(t, path, "1 1:1\nbad\n")

	vectors, errCh := Stream(context.Background(), path, 0)
	for range vectors {
	}
	err := <-errCh
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Line)
}

func TestStreamCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.dat")
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("1 1:1\n")
	}
	mustWrite(t, path, b.String())

	ctx, cancel := context.WithCancel(context.Background())
	vectors, errCh := Stream(ctx, path, 0)
	<-vectors
	cancel()

	select {
	case err := <-errCh:
		for range vectors {
		}
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}

func TestLoadKeepsPathOrder(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i, label := range []string{"1", "2", "3", "4"} {
		p := filepath.Join(dir, label+".dat")
		mustWrite(t, p, strings.Repeat(label+" 1:1\n", i+1))
		paths = append(paths, p)
	}

	data, err := Load(context.Background(), paths, 3, 0)
	require.NoError(t, err)
	require.Len(t, data, 10)
	var labels []float64
	for _, v := range data {
		labels = append(labels, v.Label)
	}
	assert.Equal(t, []float64{1, 2, 2, 3, 3, 3, 4, 4, 4, 4}, labels)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, data[:1]))
	assert.Equal(t, "1 1:1\n", buf.String())
}

func TestLoadFailsOnBadFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.dat")
	bad := filepath.Join(dir, "bad.dat")
	mustWrite(t, good, "1 1:1\n")
	mustWrite(t, bad, "1 nope\n")

	_, err := Load(context.Background(), []string{good, bad}, 2, 0)
	require.Error(t, err)

	_, err = Load(context.Background(), nil, 2, 0)
	require.Error(t, err)
}
