package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"svmbridge/internal/model"
)

type inspectArgs struct {
	Model   string `arg:"positional,required" help:"saved model"`
	Convert string `arg:"--convert" help:"write the model to this path; the extension picks the format"`
}

func (a *inspectArgs) Run(ctx context.Context, logger *zap.Logger) error {
	info, err := os.Stat(a.Model)
	if err != nil {
		return errors.Wrap(err, "stat model")
	}
	m, err := model.Load(a.Model)
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}

	fmt.Printf("file:            %s (%s)\n", a.Model, humanize.Bytes(uint64(info.Size())))
	fmt.Printf("svm_type:        %s\n", m.SVMType)
	fmt.Printf("kernel:          %s", m.Kernel.Type)
	switch m.Kernel.Type {
	case model.Poly:
		fmt.Printf(" degree=%d gamma=%g coef0=%g", m.Kernel.Degree, m.Kernel.Gamma, m.Kernel.Coef0)
	case model.RBF:
		fmt.Printf(" gamma=%g", m.Kernel.Gamma)
	case model.Sigmoid:
		fmt.Printf(" gamma=%g coef0=%g", m.Kernel.Gamma, m.Kernel.Coef0)
	}
	fmt.Println()
	fmt.Printf("classes:         %d\n", m.NrClass)
	if len(m.Labels) > 0 {
		fmt.Printf("labels:          %v\n", m.Labels)
		fmt.Printf("nr_sv:           %v\n", m.NrSV)
	}
	fmt.Printf("support vectors: %s\n", humanize.Comma(int64(m.TotalSV())))
	fmt.Printf("rho:             %v\n", m.Rho)

	if a.Convert != "" {
		if err := model.Save(a.Convert, m); err != nil {
			return err
		}
		logger.Info("converted model", zap.String("from", a.Model), zap.String("to", a.Convert))
	}
	return nil
}
