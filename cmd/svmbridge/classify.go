package main

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"svmbridge/internal/trainer"
)

type classifyArgs struct {
	Model     string `arg:"-m,--model,required" help:"saved model"`
	Input     string `arg:"positional,required" help:"data file to score"`
	Output    string `arg:"-o,--output" help:"score file; stdout when empty"`
	SkipLines int    `arg:"--skip-lines" help:"data lines to skip at the top of the file"`
	Progress  bool   `arg:"--progress" help:"show a progress bar on stderr"`
	Verbose   bool   `arg:"-v,--verbose" help:"debug logging"`
}

func (a *classifyArgs) verbose() bool { return a.Verbose }

func (a *classifyArgs) Run(ctx context.Context, logger *zap.Logger) error {
	var out io.Writer = os.Stdout
	if a.Output != "" {
		f, err := os.Create(a.Output)
		if err != nil {
			return errors.Wrap(err, "create output")
		}
		defer f.Close()
		out = f
	}

	cfg := trainer.ClassifyConfig{
		ModelPath: a.Model,
		Input:     a.Input,
		Output:    out,
		SkipLines: a.SkipLines,
		Logger:    logger,
	}
	var bar *progressbar.ProgressBar
	if a.Progress {
		bar = progressbar.Default(-1, "classifying")
		cfg.Progress = func() { bar.Add(1) }
	}

	report, err := trainer.Classify(ctx, cfg)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}
	logger.Info("scored",
		zap.Int("vectors", report.Count),
		zap.Float64("accuracy", report.Accuracy),
		zap.Float64("score_p90", report.ScoreP90),
	)
	return nil
}
