package dataset

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"svmbridge/internal/feature"
)

var errStop = errors.New("stream stopped")

// Stream parses the file at path in a goroutine and sends each vector on the
// returned channel. The error channel yields at most one error and both
// channels are closed when the file is exhausted or ctx is done.
func Stream(ctx context.Context, path string, skip int) (<-chan *feature.Labeled, <-chan error) {
	out := make(chan *feature.Labeled)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		f, err := os.Open(path)
		if err != nil {
			errCh <- errors.Wrap(err, "dataset: open")
			return
		}
		defer f.Close()

		err = scan(f, path, skip, func(v *feature.Labeled) error {
			select {
			case <-ctx.Done():
				return errStop
			case out <- v:
				return nil
			}
		})
		switch {
		case errors.Is(err, errStop):
			errCh <- ctx.Err()
		case err != nil:
			errCh <- err
		}
	}()

	return out, errCh
}
