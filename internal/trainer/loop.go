package trainer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"svmbridge/internal/dataset"
	"svmbridge/internal/feature"
	"svmbridge/internal/metrics"
	"svmbridge/internal/model"
	"svmbridge/internal/svm"
)

// RunConfig captures the knobs required by a training run.
type RunConfig struct {
	Engine     svm.Engine
	Params     *svm.Params
	TrainData  []string
	TestData   []string
	ModelPath  string
	SkipLines  int
	SortInput  bool
	NumWorkers int
	LogEvery   int
	Logger     *zap.Logger
}

// Result is the outcome of a training run. Test is nil without test data.
type Result struct {
	Model *model.Model
	Train metrics.Report
	Test  *metrics.Report
}

// Train loads the training data, trains through the engine, saves the
// exported model and scores the training and test sets with both the engine
// and the exported model.
func Train(ctx context.Context, cfg RunConfig) (*Result, error) {
	if cfg.Engine == nil {
		return nil, errors.New("trainer: no engine")
	}
	if cfg.Params == nil {
		cfg.Params = svm.DefaultParams()
	}
	if cfg.ModelPath == "" {
		return nil, errors.New("trainer: model path must be set")
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 1000
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := load(ctx, cfg.TrainData, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "trainer: training data")
	}
	logger.Info("loaded training data", zap.Int("files", len(cfg.TrainData)), zap.Int("vectors", len(data)))

	iface := svm.NewInterface(cfg.Engine,
		svm.WithLogger(logger),
		svm.WithSortInputVectors(cfg.SortInput),
	)
	defer iface.Close()

	start := time.Now()
	m, err := iface.TrainModel(ctx, data, cfg.Params)
	if err != nil {
		return nil, err
	}
	logger.Info("training finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("support_vectors", m.TotalSV()),
	)

	if err := model.Save(cfg.ModelPath, m); err != nil {
		return nil, err
	}
	logger.Info("saved model", zap.String("path", cfg.ModelPath))

	res := &Result{Model: m}
	if res.Train, err = evaluate(ctx, "train", iface, m, data, cfg.LogEvery, logger); err != nil {
		return nil, err
	}
	if len(cfg.TestData) > 0 {
		test, err := load(ctx, cfg.TestData, cfg)
		if err != nil {
			return nil, errors.Wrap(err, "trainer: test data")
		}
		report, err := evaluate(ctx, "test", iface, m, test, cfg.LogEvery, logger)
		if err != nil {
			return nil, err
		}
		res.Test = &report
	}
	return res, nil
}

func load(ctx context.Context, paths []string, cfg RunConfig) ([]*feature.Labeled, error) {
	files, err := dataset.Expand(paths)
	if err != nil {
		return nil, err
	}
	return dataset.Load(ctx, files, cfg.NumWorkers, cfg.SkipLines)
}

// evaluate scores every vector with the engine and with the exported model.
func evaluate(ctx context.Context, set string, iface *svm.Interface, m *model.Model, data []*feature.Labeled, logEvery int, logger *zap.Logger) (metrics.Report, error) {
	eval := metrics.Evaluation{Task: taskOf(m)}
	var window metrics.Window
	for step, v := range data {
		if err := ctx.Err(); err != nil {
			return metrics.Report{}, err
		}
		startCompute := time.Now()
		native, err := iface.ClassifyNative(&v.Vector)
		if err != nil {
			return metrics.Report{}, err
		}
		computeTime := time.Since(startCompute)

		startLocal := time.Now()
		local, err := m.Classify(&v.Vector)
		if err != nil {
			return metrics.Report{}, errors.Wrap(err, "trainer: exported model")
		}
		localTime := time.Since(startLocal)

		eval.Add(v.Label, native)
		eval.Compare(native, local)
		window.Record(0, computeTime, native)
		window.Verify(localTime)

		if (step+1)%logEvery == 0 {
			snap := window.Snapshot()
			logger.Info("scoring",
				zap.String("set", set),
				zap.Int("step", step+1),
				zap.Float64("vectors_per_sec", snap.VectorsPerSec),
				zap.Float64("native_ms", snap.AvgScoreMS),
				zap.Float64("model_ms", snap.AvgVerifyMS),
				zap.Float64("positive_rate", snap.PositiveRate),
			)
		}
	}

	r := eval.Report()
	fields := append([]zap.Field{zap.String("set", set)}, reportFields(r)...)
	fields = append(fields,
		zap.Float64("score_mean", r.ScoreMean),
		zap.Float64("score_stddev", r.ScoreStdDev),
		zap.Float64("max_score_diff", r.MaxScoreDiff),
	)
	logger.Info("evaluation", fields...)
	return r, nil
}

// taskOf picks how scores from m are evaluated.
func taskOf(m *model.Model) metrics.Task {
	switch {
	case m.SVMType == model.EpsilonSVR || m.SVMType == model.NuSVR:
		return metrics.Regression
	case m.SVMType.IsClassification() && m.NrClass > 2:
		return metrics.MultiClass
	}
	return metrics.TwoClass
}

// reportFields returns the quality fields that mean something for r.Task.
func reportFields(r metrics.Report) []zap.Field {
	fields := []zap.Field{zap.Int("vectors", r.Count)}
	switch r.Task {
	case metrics.Regression:
		return append(fields, zap.Float64("mse", r.MSE))
	case metrics.MultiClass:
		return append(fields, zap.Float64("accuracy", r.Accuracy))
	}
	return append(fields,
		zap.Float64("accuracy", r.Accuracy),
		zap.Float64("precision", r.Precision),
		zap.Float64("recall", r.Recall),
		zap.Float64("f1", r.F1),
	)
}
