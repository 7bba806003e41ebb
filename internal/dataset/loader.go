package dataset

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"svmbridge/internal/feature"
)

// Load reads every file in paths with at most workers files in flight and
// concatenates the vectors in path order, so the result does not depend on
// scheduling.
func Load(ctx context.Context, paths []string, workers, skip int) ([]*feature.Labeled, error) {
	if len(paths) == 0 {
		return nil, errors.New("dataset: no data files")
	}
	if workers <= 0 {
		workers = 1
	}

	parts := make([][]*feature.Labeled, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := ReadFile(path, skip)
			if err != nil {
				return err
			}
			parts[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]*feature.Labeled, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}
