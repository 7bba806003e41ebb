package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"svmbridge/internal/feature"
)

// ErrNoVectors is returned when a data file holds no labeled vectors.
var ErrNoVectors = errors.New("dataset: no labeled vectors")

const maxLineBytes = 16 << 20

// ParseError locates a malformed data line.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("dataset: line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("dataset: %s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseLine parses one line of SVM-light data:
//
//	<label> [qid:<n>] [cost:<factor>] <dim>:<value> ... [# comment]
//
// It returns nil without error for blank lines, comments and lines that carry
// no features.
func ParseLine(line string) (*feature.Labeled, error) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	label, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, errors.Errorf("bad label %q", fields[0])
	}

	factor := 1.0
	qid := 0
	dims := make([]int, 0, len(fields)-1)
	vals := make([]float64, 0, len(fields)-1)
	for n, tok := range fields[1:] {
		idx := strings.IndexByte(tok, ':')
		if idx <= 0 || idx == len(tok)-1 {
			return nil, errors.Errorf("token %d: want dim:value, got %q", n+1, tok)
		}
		key, val := tok[:idx], tok[idx+1:]
		switch key {
		case "qid":
			if qid, err = strconv.Atoi(val); err != nil {
				return nil, errors.Errorf("bad qid %q", val)
			}
			continue
		case "cost":
			if factor, err = strconv.ParseFloat(val, 64); err != nil {
				return nil, errors.Errorf("bad cost %q", val)
			}
			continue
		}
		d, err := strconv.Atoi(key)
		if err != nil {
			return nil, errors.Errorf("token %d: bad dimension %q", n+1, key)
		}
		x, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, errors.Errorf("token %d: bad value %q", n+1, val)
		}
		dims = append(dims, d)
		vals = append(vals, x)
	}
	if len(dims) == 0 {
		return nil, nil
	}
	v, err := feature.NewVectorWithFactor(factor, dims, vals)
	if err != nil {
		return nil, err
	}
	return &feature.Labeled{Vector: *v, Label: label, QueryID: qid}, nil
}

// scan calls emit for every vector in r after skipping the first skip data
// lines. Comment lines do not count towards skip.
func scan(r io.Reader, path string, skip int, emit func(*feature.Labeled) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo, dataLines := 0, 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		dataLines++
		if dataLines <= skip {
			continue
		}
		v, err := ParseLine(line)
		if err != nil {
			return &ParseError{Path: path, Line: lineNo, Err: err}
		}
		if v == nil {
			continue
		}
		if err := emit(v); err != nil {
			return err
		}
	}
	return errors.Wrap(sc.Err(), "dataset: read")
}

// Read parses all vectors from r.
func Read(r io.Reader, skip int) ([]*feature.Labeled, error) {
	return read(r, "", skip)
}

// ReadFile parses all vectors from the file at path.
func ReadFile(path string, skip int) ([]*feature.Labeled, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "dataset: open")
	}
	defer f.Close()
	return read(f, path, skip)
}

func read(r io.Reader, path string, skip int) ([]*feature.Labeled, error) {
	var out []*feature.Labeled
	err := scan(r, path, skip, func(v *feature.Labeled) error {
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		if path != "" {
			return nil, errors.Wrap(ErrNoVectors, path)
		}
		return nil, ErrNoVectors
	}
	return out, nil
}

// Write renders data in SVM-light format, one vector per line.
func Write(w io.Writer, data []*feature.Labeled) error {
	bw := bufio.NewWriter(w)
	for _, v := range data {
		if _, err := bw.WriteString(v.String()); err != nil {
			return errors.Wrap(err, "dataset: write")
		}
		if err := bw.WriteByte('\n'); err != nil {
			return errors.Wrap(err, "dataset: write")
		}
	}
	return errors.Wrap(bw.Flush(), "dataset: write")
}

// WriteFile writes data to path, replacing any existing file.
func WriteFile(path string, data []*feature.Labeled) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "dataset: create")
	}
	if err := Write(f, data); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "dataset: close")
}
