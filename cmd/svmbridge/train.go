package main

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"svmbridge/internal/config"
	"svmbridge/internal/native"
	"svmbridge/internal/trainer"
)

type trainArgs struct {
	Config     string   `arg:"-c,--config" help:"path to YAML config"`
	Train      []string `arg:"--train" help:"training data files or directories"`
	Test       []string `arg:"--test" help:"test data files or directories"`
	Model      string   `arg:"-m,--model" help:"output model path; a .bin extension selects the binary format"`
	Library    string   `arg:"--library" help:"path to the libsvm shared library"`
	SkipLines  int      `arg:"--skip-lines" help:"data lines to skip at the top of every file"`
	NumWorkers int      `arg:"--num-workers" help:"files read in parallel"`
	LogEvery   int      `arg:"--log-every" help:"log scoring progress every N vectors"`
	EngineArgs string   `arg:"--engine-args" help:"libsvm training options, e.g. \"-t 0 -c 10\""`
	Verbose    bool     `arg:"-v,--verbose" help:"debug logging"`
}

func (a *trainArgs) verbose() bool { return a.Verbose }

func (a *trainArgs) Run(ctx context.Context, logger *zap.Logger) error {
	cfg := &config.Config{}
	if a.Config != "" {
		var err error
		if cfg, err = config.Load(a.Config); err != nil {
			return err
		}
	}
	cfg.ApplyOverrides(config.Overrides{
		TrainData:  a.Train,
		TestData:   a.Test,
		ModelPath:  a.Model,
		Library:    a.Library,
		SkipLines:  a.SkipLines,
		NumWorkers: a.NumWorkers,
		LogEvery:   a.LogEvery,
		EngineArgs: strings.Fields(a.EngineArgs),
	})
	if err := cfg.Validate(); err != nil {
		return err
	}
	params, err := cfg.SVMParams()
	if err != nil {
		return err
	}

	engine, err := native.New(native.WithLibrary(cfg.Library), native.WithLogger(logger))
	if err != nil {
		return err
	}

	res, err := trainer.Train(ctx, trainer.RunConfig{
		Engine:     engine,
		Params:     params,
		TrainData:  cfg.TrainData,
		TestData:   cfg.TestData,
		ModelPath:  cfg.ModelPath,
		SkipLines:  cfg.SkipLines,
		SortInput:  cfg.SortInput(),
		NumWorkers: cfg.NumWorkers,
		LogEvery:   cfg.LogEvery,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	if n := engine.Open(); n != 0 {
		logger.Warn("native models still open", zap.Int("open", n))
	}
	logger.Info("done",
		zap.String("model", cfg.ModelPath),
		zap.Float64("train_accuracy", res.Train.Accuracy),
	)
	return nil
}
