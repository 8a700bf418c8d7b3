package config

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config captures the runtime knobs for a classification run.
type Config struct {
	// InputDim is (height, width, channels) of the model input.
	InputDim   [3]int  `yaml:"input_dim"`
	HiddenDim  int     `yaml:"hidden_dim"`
	LinearDim  int     `yaml:"linear_dim"`
	NumClasses int     `yaml:"n_classes"`
	Device     string  `yaml:"device"`
	LR         float64 `yaml:"lr"`
	Epochs     int     `yaml:"n_epochs"`
	BatchSize  int     `yaml:"batch_size"`
	NumWorkers int     `yaml:"num_workers"`
	Seed       int64   `yaml:"seed"`
	DataRoot   string  `yaml:"data_root"`
	// FineGrained selects the two-token category taxonomy.
	FineGrained bool `yaml:"fine_grained"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	DataRoot    string
	Device      string
	Epochs      int
	BatchSize   int
	NumWorkers  int
	Seed        int64
	LR          float64
	FineGrained bool
}

// Load reads and validates a Config from YAML.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataRoot != "" {
		c.DataRoot = o.DataRoot
	}
	if o.Device != "" {
		c.Device = o.Device
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LR > 0 {
		c.LR = o.LR
	}
	if o.FineGrained {
		c.FineGrained = true
	}
}

func (c *Config) applyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = 4
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	if c.Device == "" {
		c.Device = "cpu"
	}
}

// Validate verifies the config describes a runnable pipeline. Shape
// arithmetic that would otherwise surface as a runtime tensor error is
// rejected here, before any model is built.
func (c *Config) Validate() error {
	if c == nil {
		return errors.Wrap(ErrInvalid, "config is nil")
	}
	h, w, ch := c.InputDim[0], c.InputDim[1], c.InputDim[2]
	if h <= 0 || w <= 0 {
		return fmt.Errorf("%w: input height and width must be > 0 (got %dx%d)", ErrInvalid, h, w)
	}
	// Two 2x2 pooling stages each halve the spatial dims; anything not
	// divisible by 4 only blows up at the flatten boundary.
	if h%4 != 0 || w%4 != 0 {
		return fmt.Errorf("%w: input height and width must be divisible by 4 (got %dx%d)", ErrInvalid, h, w)
	}
	if ch != 1 && ch != 3 {
		return fmt.Errorf("%w: input channels must be 1 or 3 (got %d)", ErrInvalid, ch)
	}
	if c.HiddenDim < 1 {
		return fmt.Errorf("%w: hidden_dim must be >= 1 (got %d)", ErrInvalid, c.HiddenDim)
	}
	if c.LinearDim < 1 {
		return fmt.Errorf("%w: linear_dim must be >= 1 (got %d)", ErrInvalid, c.LinearDim)
	}
	if c.NumClasses < 1 {
		return fmt.Errorf("%w: n_classes must be >= 1 (got %d)", ErrInvalid, c.NumClasses)
	}
	if c.LR <= 0 {
		return fmt.Errorf("%w: lr must be > 0 (got %g)", ErrInvalid, c.LR)
	}
	if c.Epochs < 1 {
		return fmt.Errorf("%w: n_epochs must be >= 1 (got %d)", ErrInvalid, c.Epochs)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batch_size must be >= 1 (got %d)", ErrInvalid, c.BatchSize)
	}
	if c.NumWorkers < 1 {
		return fmt.Errorf("%w: num_workers must be >= 1 (got %d)", ErrInvalid, c.NumWorkers)
	}
	if c.DataRoot == "" {
		return fmt.Errorf("%w: data_root must be set", ErrInvalid)
	}
	return nil
}
