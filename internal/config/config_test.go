package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		InputDim:   [3]int{20, 20, 3},
		HiddenDim:  16,
		LinearDim:  32,
		NumClasses: 3,
		Device:     "cpu",
		LR:         0.001,
		Epochs:     2,
		BatchSize:  32,
		NumWorkers: 2,
		Seed:       7,
		DataRoot:   "/data/flying",
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	doc := `
input_dim: [32, 32, 3]
hidden_dim: 16
linear_dim: 64
n_classes: 5
device: cpu
lr: 0.001
n_epochs: 3
data_root: /data/flying
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, [3]int{32, 32, 3}, cfg.InputDim)
	assert.Equal(t, 5, cfg.NumClasses)
	// Defaults fill in anything the file omits.
	assert.Equal(t, 32, cfg.BatchSize)
	assert.Equal(t, 4, cfg.NumWorkers)
	assert.Equal(t, int64(42), cfg.Seed)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero height", func(c *Config) { c.InputDim[0] = 0 }},
		{"negative width", func(c *Config) { c.InputDim[1] = -8 }},
		{"height not divisible by 4", func(c *Config) { c.InputDim[0] = 30 }},
		{"width not divisible by 4", func(c *Config) { c.InputDim[1] = 18 }},
		{"bad channels", func(c *Config) { c.InputDim[2] = 4 }},
		{"zero hidden", func(c *Config) { c.HiddenDim = 0 }},
		{"zero linear", func(c *Config) { c.LinearDim = 0 }},
		{"zero classes", func(c *Config) { c.NumClasses = 0 }},
		{"zero lr", func(c *Config) { c.LR = 0 }},
		{"zero epochs", func(c *Config) { c.Epochs = 0 }},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"empty data root", func(c *Config) { c.DataRoot = "" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	require.NoError(t, validConfig().Validate())
}

func TestApplyOverrides(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyOverrides(Overrides{
		DataRoot:    "/elsewhere",
		Epochs:      9,
		LR:          0.01,
		FineGrained: true,
	})
	assert.Equal(t, "/elsewhere", cfg.DataRoot)
	assert.Equal(t, 9, cfg.Epochs)
	assert.Equal(t, 0.01, cfg.LR)
	assert.True(t, cfg.FineGrained)
	// Untouched overrides leave existing values alone.
	assert.Equal(t, 32, cfg.BatchSize)
	assert.Equal(t, int64(7), cfg.Seed)
}
