package trainer

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"svmbridge/internal/dataset"
	"svmbridge/internal/metrics"
	"svmbridge/internal/model"
)

// ClassifyConfig configures scoring a data file with a saved model.
type ClassifyConfig struct {
	ModelPath string
	Input     string
	Output    io.Writer
	SkipLines int
	LogEvery  int
	Logger    *zap.Logger
	// Progress, if set, is called once per scored vector.
	Progress func()
}

// Classify streams vectors from cfg.Input, scores each with the saved model
// and writes one score per line to cfg.Output. Labels in the input are used
// for the returned report only.
func Classify(ctx context.Context, cfg ClassifyConfig) (metrics.Report, error) {
	if cfg.Output == nil {
		return metrics.Report{}, errors.New("trainer: no output")
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 1000
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m, err := model.Load(cfg.ModelPath)
	if err != nil {
		return metrics.Report{}, err
	}
	if err := m.Validate(); err != nil {
		return metrics.Report{}, err
	}
	logger.Info("loaded model",
		zap.String("path", cfg.ModelPath),
		zap.Stringer("svm_type", m.SVMType),
		zap.Int("support_vectors", m.TotalSV()),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	vectors, errCh := dataset.Stream(ctx, cfg.Input, cfg.SkipLines)

	out := bufio.NewWriter(cfg.Output)
	eval := metrics.Evaluation{Task: taskOf(m)}
	var (
		window metrics.Window
		buf    []byte
	)
	step := 0
	startData := time.Now()
	for v := range vectors {
		dataTime := time.Since(startData)

		startCompute := time.Now()
		score, err := m.Classify(&v.Vector)
		if err != nil {
			return metrics.Report{}, errors.Wrapf(err, "trainer: vector %d", step+1)
		}
		computeTime := time.Since(startCompute)

		buf = strconv.AppendFloat(buf[:0], score, 'g', -1, 64)
		buf = append(buf, '\n')
		if _, err := out.Write(buf); err != nil {
			return metrics.Report{}, errors.Wrap(err, "trainer: write scores")
		}

		step++
		eval.Add(v.Label, score)
		window.Record(dataTime, computeTime, score)
		if cfg.Progress != nil {
			cfg.Progress()
		}
		if step%cfg.LogEvery == 0 {
			snap := window.Snapshot()
			logger.Debug("classifying",
				zap.Int("step", step),
				zap.Float64("vectors_per_sec", snap.VectorsPerSec),
				zap.Float64("read_ms", snap.AvgReadMS),
				zap.Float64("score_ms", snap.AvgScoreMS),
				zap.Float64("positive_rate", snap.PositiveRate),
			)
		}
		startData = time.Now()
	}
	if err := <-errCh; err != nil {
		return metrics.Report{}, err
	}
	if err := out.Flush(); err != nil {
		return metrics.Report{}, errors.Wrap(err, "trainer: write scores")
	}

	r := eval.Report()
	logger.Info("classified", reportFields(r)...)
	return r, nil
}
