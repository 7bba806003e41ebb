package model

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"svmbridge/internal/feature"
)

// WriteText writes m in the engine's plain-text model format.
func WriteText(w io.Writer, m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	p := func(s string) { bw.WriteString(s) }
	ff := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

	p("svm_type " + m.SVMType.String() + "\n")
	p("kernel_type " + m.Kernel.Type.String() + "\n")
	if m.Kernel.Type == Poly {
		p("degree " + strconv.Itoa(m.Kernel.Degree) + "\n")
	}
	if m.Kernel.Type == Poly || m.Kernel.Type == RBF || m.Kernel.Type == Sigmoid {
		p("gamma " + ff(m.Kernel.Gamma) + "\n")
	}
	if m.Kernel.Type == Poly || m.Kernel.Type == Sigmoid {
		p("coef0 " + ff(m.Kernel.Coef0) + "\n")
	}
	p("nr_class " + strconv.Itoa(m.NrClass) + "\n")
	p("total_sv " + strconv.Itoa(len(m.SV)) + "\n")

	floats := func(key string, vals []float64) {
		if vals == nil {
			return
		}
		p(key)
		for _, v := range vals {
			p(" " + ff(v))
		}
		p("\n")
	}
	ints := func(key string, vals []int) {
		if vals == nil {
			return
		}
		p(key)
		for _, v := range vals {
			p(" " + strconv.Itoa(v))
		}
		p("\n")
	}
	floats("rho", m.Rho)
	ints("label", m.Labels)
	floats("probA", m.ProbA)
	floats("probB", m.ProbB)
	ints("nr_sv", m.NrSV)

	p("SV\n")
	for i, sv := range m.SV {
		for j := range m.Coef {
			p(ff(m.Coef[j][i]) + " ")
		}
		for k := range sv.Dims {
			p(strconv.Itoa(sv.Dims[k]) + ":" + ff(sv.Vals[k]) + " ")
		}
		p("\n")
	}
	return errors.Wrap(bw.Flush(), "model: write")
}

// ReadText parses the engine's plain-text model format.
func ReadText(r io.Reader) (*Model, error) {
	m := &Model{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	lineNo := 0
	totalSV := -1
	inSV := false

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if inSV {
			if err := m.parseSV(line); err != nil {
				return nil, errors.Wrapf(err, "model: line %d", lineNo)
			}
			continue
		}
		fields := strings.Fields(line)
		key, args := fields[0], fields[1:]
		var err error
		switch key {
		case "svm_type":
			m.SVMType, err = ParseSVMType(arg(args))
		case "kernel_type":
			m.Kernel.Type, err = ParseKernelType(arg(args))
		case "degree":
			m.Kernel.Degree, err = strconv.Atoi(arg(args))
		case "gamma":
			m.Kernel.Gamma, err = strconv.ParseFloat(arg(args), 64)
		case "coef0":
			m.Kernel.Coef0, err = strconv.ParseFloat(arg(args), 64)
		case "nr_class":
			m.NrClass, err = strconv.Atoi(arg(args))
		case "total_sv":
			totalSV, err = strconv.Atoi(arg(args))
		case "rho":
			m.Rho, err = parseFloats(args)
		case "label":
			m.Labels, err = parseInts(args)
		case "probA":
			m.ProbA, err = parseFloats(args)
		case "probB":
			m.ProbB, err = parseFloats(args)
		case "nr_sv":
			m.NrSV, err = parseInts(args)
		case "prob_density_marks":
			// one-class probability marks; not used for scoring
		case "SV":
			if m.NrClass < 2 {
				return nil, errors.Errorf("model: line %d: SV section before nr_class", lineNo)
			}
			if m.NrClass > MaxClasses {
				return nil, errors.Errorf("model: line %d: nr_class %d exceeds %d", lineNo, m.NrClass, MaxClasses)
			}
			m.Coef = make([][]float64, m.NrClass-1)
			inSV = true
		default:
			return nil, errors.Errorf("model: line %d: unknown key %s", lineNo, key)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "model: line %d: %s", lineNo, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "model: read")
	}
	if !inSV {
		return nil, errors.New("model: missing SV section")
	}
	if totalSV >= 0 && totalSV != len(m.SV) {
		return nil, errors.Errorf("model: total_sv is %d but %d support vectors were read", totalSV, len(m.SV))
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) parseSV(line string) error {
	fields := strings.Fields(line)
	rows := len(m.Coef)
	if len(fields) < rows {
		return errors.Errorf("want %d coefficients, got %d fields", rows, len(fields))
	}
	for j := 0; j < rows; j++ {
		c, err := strconv.ParseFloat(fields[j], 64)
		if err != nil {
			return errors.Wrap(err, "coefficient")
		}
		m.Coef[j] = append(m.Coef[j], c)
	}
	sv := &feature.Vector{Factor: 1}
	for _, tok := range fields[rows:] {
		idx := strings.IndexByte(tok, ':')
		if idx < 0 {
			return errors.Errorf("token %q is not index:value", tok)
		}
		d, err := strconv.Atoi(tok[:idx])
		if err != nil {
			return errors.Wrap(err, "index")
		}
		v, err := strconv.ParseFloat(tok[idx+1:], 64)
		if err != nil {
			return errors.Wrap(err, "value")
		}
		sv.Dims = append(sv.Dims, d)
		sv.Vals = append(sv.Vals, v)
	}
	m.SV = append(m.SV, sv)
	return nil
}

func arg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseInts(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
