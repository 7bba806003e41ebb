package trainer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"svmbridge/internal/feature"
	"svmbridge/internal/metrics"
	"svmbridge/internal/model"
	"svmbridge/internal/svm"
	"svmbridge/internal/svm/svmtest"
)

func writeData(t *testing.T, path string, points [][3]float64) {
	t.Helper()
	var b strings.Builder
	b.WriteString("# label x y\n")
	for _, p := range points {
		// dimensions deliberately unsorted
		fmt.Fprintf(&b, "%g 2:%g 1:%g\n", p[0], p[2], p[1])
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func fixture(t *testing.T) (train, test string) {
	t.Helper()
	dir := t.TempDir()
	writeData(t, filepath.Join(dir, "train", "pos.dat"), [][3]float64{{1, 2, 2}, {1, 3, 3}, {1, 2, 3}, {1, 3, 2}})
	writeData(t, filepath.Join(dir, "train", "neg.dat"), [][3]float64{{-1, -2, -2}, {-1, -3, -3}, {-1, -2, -3}, {-1, -3, -2}})
	test = filepath.Join(dir, "test.dat")
	writeData(t, test, [][3]float64{{1, 4, 4}, {-1, -4, -4}, {1, 1.5, 2.5}})
	return filepath.Join(dir, "train"), test
}

func TestTrain(t *testing.T) {
	trainDir, test := fixture(t)
	engine := svmtest.New()
	params, err := svm.ParseArgs([]string{"-t", "0", "-c", "10"})
	require.NoError(t, err)
	modelPath := filepath.Join(t.TempDir(), "out", "model.bin")

	res, err := Train(context.Background(), RunConfig{
		Engine:     engine,
		Params:     params,
		TrainData:  []string{trainDir},
		TestData:   []string{test},
		ModelPath:  modelPath,
		SortInput:  true,
		NumWorkers: 2,
		LogEvery:   3,
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, engine.Open(), "engine model must be released")

	assert.Equal(t, 8, res.Train.Count)
	assert.Equal(t, 1.0, res.Train.Accuracy)
	assert.True(t, res.Train.MaxScoreDiff < 1e-7)
	require.NotNil(t, res.Test)
	assert.Equal(t, 3, res.Test.Count)
	assert.Equal(t, 1.0, res.Test.Accuracy)

	saved, err := model.Load(modelPath)
	require.NoError(t, err)
	assert.Equal(t, res.Model.TotalSV(), saved.TotalSV())
	assert.Equal(t, res.Model.Rho, saved.Rho)
}

func TestTrainUnsortedInputWithoutSorting(t *testing.T) {
	trainDir, _ := fixture(t)
	_, err := Train(context.Background(), RunConfig{
		Engine:    svmtest.New(),
		TrainData: []string{trainDir},
		ModelPath: filepath.Join(t.TempDir(), "model.txt"),
		SortInput: false,
	})
	assert.Equal(t, svm.KindMalformedVector, svm.KindOf(err))
}

func TestTrainErrors(t *testing.T) {
	_, err := Train(context.Background(), RunConfig{ModelPath: "m.txt"})
	assert.Error(t, err)

	_, err = Train(context.Background(), RunConfig{
		Engine:    svmtest.New(),
		TrainData: []string{filepath.Join(t.TempDir(), "missing.dat")},
		ModelPath: "m.txt",
	})
	assert.Error(t, err)

	trainDir, _ := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Train(ctx, RunConfig{
		Engine:    svmtest.New(),
		TrainData: []string{trainDir},
		ModelPath: filepath.Join(t.TempDir(), "m.txt"),
		SortInput: true,
	})
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	trainDir, test := fixture(t)
	modelPath := filepath.Join(t.TempDir(), "model.txt")
	res, err := Train(context.Background(), RunConfig{
		Engine:    svmtest.New(),
		TrainData: []string{trainDir},
		ModelPath: modelPath,
		SortInput: true,
	})
	require.NoError(t, err)

	var out bytes.Buffer
	calls := 0
	report, err := Classify(context.Background(), ClassifyConfig{
		ModelPath: modelPath,
		Input:     test,
		Output:    &out,
		LogEvery:  1,
		Logger:    zaptest.NewLogger(t),
		Progress:  func() { calls++ },
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, report.Count)
	assert.Equal(t, 1.0, report.Accuracy)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.False(t, strings.HasPrefix(lines[0], "-"))
	assert.True(t, strings.HasPrefix(lines[1], "-"))
	assert.NotNil(t, res.Model)
}

func TestClassifyErrors(t *testing.T) {
	var out bytes.Buffer
	_, err := Classify(context.Background(), ClassifyConfig{ModelPath: filepath.Join(t.TempDir(), "none.txt"), Output: &out})
	assert.Error(t, err)

	_, err = Classify(context.Background(), ClassifyConfig{})
	assert.Error(t, err)
}

func TestClassifyMultiClassCountsExactLabels(t *testing.T) {
	dir := t.TempDir()
	unit := func(d int) *feature.Vector {
		v, err := feature.NewVector([]int{d}, []float64{1})
		require.NoError(t, err)
		return v
	}
	m := &model.Model{
		SVMType: model.CSVC,
		Kernel:  model.Kernel{Type: model.Linear},
		NrClass: 3,
		Labels:  []int{1, 2, 3},
		NrSV:    []int{1, 1, 1},
		Rho:     []float64{0, 0, 0},
		SV:      []*feature.Vector{unit(1), unit(2), unit(3)},
		Coef:    [][]float64{{1, -1, -1}, {1, 1, -1}},
	}
	modelPath := filepath.Join(dir, "three.model")
	require.NoError(t, model.Save(modelPath, m))
	input := filepath.Join(dir, "three.dat")
	// the last line is labelled 2 but lies on class 1's support vector
	require.NoError(t, os.WriteFile(input, []byte("1 1:1\n2 2:1\n3 3:1\n2 1:1\n"), 0o644))

	var out bytes.Buffer
	report, err := Classify(context.Background(), ClassifyConfig{ModelPath: modelPath, Input: input, Output: &out})
	require.NoError(t, err)
	assert.Equal(t, metrics.MultiClass, report.Task)
	assert.InDelta(t, 0.75, report.Accuracy, 1e-12)
	assert.Equal(t, "1\n2\n3\n1\n", out.String())
}

func TestTaskOf(t *testing.T) {
	assert.Equal(t, metrics.TwoClass, taskOf(&model.Model{SVMType: model.CSVC, NrClass: 2}))
	assert.Equal(t, metrics.TwoClass, taskOf(&model.Model{SVMType: model.OneClass, NrClass: 2}))
	assert.Equal(t, metrics.MultiClass, taskOf(&model.Model{SVMType: model.NuSVC, NrClass: 4}))
	assert.Equal(t, metrics.Regression, taskOf(&model.Model{SVMType: model.EpsilonSVR, NrClass: 2}))
	assert.Equal(t, metrics.Regression, taskOf(&model.Model{SVMType: model.NuSVR, NrClass: 2}))
}
