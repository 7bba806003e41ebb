package model

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// BinaryExt selects the binary encoding in Save and Load; every other
// extension uses the text format.
const BinaryExt = ".bin"

// Save writes m to path, choosing the encoding from the extension.
func Save(path string, m *Model) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "model: mkdir")
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "model: create")
	}
	defer f.Close()

	if isBinary(path) {
		b, err := m.MarshalBinary()
		if err != nil {
			return err
		}
		if _, err := f.Write(b); err != nil {
			return errors.Wrap(err, "model: write")
		}
	} else if err := WriteText(f, m); err != nil {
		return err
	}
	return errors.Wrap(f.Close(), "model: close")
}

// Load reads a model from path, choosing the encoding from the extension.
func Load(path string) (*Model, error) {
	if isBinary(path) {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "model: open")
		}
		m := &Model{}
		if err := m.UnmarshalBinary(b); err != nil {
			return nil, err
		}
		return m, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "model: open")
	}
	defer f.Close()
	return ReadText(bufio.NewReader(f))
}

func isBinary(path string) bool {
	return strings.EqualFold(filepath.Ext(path), BinaryExt)
}
