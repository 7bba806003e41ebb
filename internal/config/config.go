package config

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"svmbridge/internal/model"
	"svmbridge/internal/svm"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	TrainData        []string `yaml:"train_data"`
	TestData         []string `yaml:"test_data"`
	ModelPath        string   `yaml:"model_path"`
	Library          string   `yaml:"library"`
	SkipLines        int      `yaml:"skip_lines"`
	SortInputVectors *bool    `yaml:"sort_input_vectors"`
	NumWorkers       int      `yaml:"num_workers"`
	LogEvery         int      `yaml:"log_every"`
	Params           Params   `yaml:"params"`
	EngineArgs       []string `yaml:"engine_args"`
}

// Params is the YAML form of svm.Params. Unset fields keep the engine
// defaults.
type Params struct {
	SVMType     string          `yaml:"svm_type"`
	Kernel      string          `yaml:"kernel"`
	Degree      *int            `yaml:"degree"`
	Gamma       *float64        `yaml:"gamma"`
	Coef0       *float64        `yaml:"coef0"`
	C           *float64        `yaml:"c"`
	Nu          *float64        `yaml:"nu"`
	P           *float64        `yaml:"p"`
	CacheSizeMB *float64        `yaml:"cache_size_mb"`
	Eps         *float64        `yaml:"eps"`
	Shrinking   *bool           `yaml:"shrinking"`
	Probability *bool           `yaml:"probability"`
	Weights     map[int]float64 `yaml:"weights"`
}

func (p Params) empty() bool {
	return p.SVMType == "" && p.Kernel == "" && p.Degree == nil && p.Gamma == nil &&
		p.Coef0 == nil && p.C == nil && p.Nu == nil && p.P == nil && p.CacheSizeMB == nil &&
		p.Eps == nil && p.Shrinking == nil && p.Probability == nil && len(p.Weights) == 0
}

// Overrides captures CLI supplied values.
type Overrides struct {
	TrainData  []string
	TestData   []string
	ModelPath  string
	Library    string
	SkipLines  int
	NumWorkers int
	LogEvery   int
	EngineArgs []string
}

// Load reads a Config from YAML. Call Validate once overrides are applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

// Parse decodes YAML from r. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if len(o.TrainData) > 0 {
		c.TrainData = o.TrainData
	}
	if len(o.TestData) > 0 {
		c.TestData = o.TestData
	}
	if o.ModelPath != "" {
		c.ModelPath = o.ModelPath
	}
	if o.Library != "" {
		c.Library = o.Library
	}
	if o.SkipLines > 0 {
		c.SkipLines = o.SkipLines
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if len(o.EngineArgs) > 0 {
		c.EngineArgs = o.EngineArgs
	}
}

// Validate verifies the config is runnable and fills defaults.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if len(c.TrainData) == 0 {
		return errors.New("train_data must list at least one file or directory")
	}
	if c.ModelPath == "" {
		return errors.New("model_path must be set")
	}
	if c.SkipLines < 0 {
		return errors.Errorf("skip_lines must be >= 0 (got %d)", c.SkipLines)
	}
	if c.NumWorkers < 0 {
		return errors.Errorf("num_workers must be >= 0 (got %d)", c.NumWorkers)
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = 4
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 1000
	}
	if len(c.EngineArgs) > 0 && !c.Params.empty() {
		return errors.New("set either params or engine_args, not both")
	}
	if _, err := c.SVMParams(); err != nil {
		return err
	}
	return nil
}

// SortInput reports whether input vectors are sorted before training;
// defaults to true.
func (c *Config) SortInput() bool {
	return c.SortInputVectors == nil || *c.SortInputVectors
}

// SVMParams builds the training parameters from engine_args or params.
func (c *Config) SVMParams() (*svm.Params, error) {
	if len(c.EngineArgs) > 0 {
		return svm.ParseArgs(c.EngineArgs)
	}
	p := svm.DefaultParams()
	y := c.Params
	if y.SVMType != "" {
		t, err := model.ParseSVMType(y.SVMType)
		if err != nil {
			return nil, errors.Wrap(err, "params.svm_type")
		}
		p.SVMType = t
	}
	if y.Kernel != "" {
		k, err := model.ParseKernelType(y.Kernel)
		if err != nil {
			return nil, errors.Wrap(err, "params.kernel")
		}
		p.Kernel = k
	}
	if y.Degree != nil {
		p.Degree = *y.Degree
	}
	setFloat(&p.Gamma, y.Gamma)
	setFloat(&p.Coef0, y.Coef0)
	setFloat(&p.C, y.C)
	setFloat(&p.Nu, y.Nu)
	setFloat(&p.P, y.P)
	setFloat(&p.CacheSizeMB, y.CacheSizeMB)
	setFloat(&p.Eps, y.Eps)
	if y.Shrinking != nil {
		p.Shrinking = *y.Shrinking
	}
	if y.Probability != nil {
		p.Probability = *y.Probability
	}
	if len(y.Weights) > 0 {
		p.Weights = make(map[int]float64, len(y.Weights))
		for l, w := range y.Weights {
			p.Weights[l] = w
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
