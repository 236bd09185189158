// Package config loads harness configuration from defaults, an optional
// YAML file, and SIMREGRESS_* environment variables, in that order, and
// validates the result against an embedded CUE schema.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete harness configuration.
type Config struct {
	SrcDir      string `yaml:"srcdir" json:"srcdir"`
	BuildDir    string `yaml:"builddir" json:"builddir"`
	SimBinary   string `yaml:"sim_binary" json:"sim_binary"`
	StatsBinary string `yaml:"stats_binary" json:"stats_binary"`
	SimParams   string `yaml:"sim_params" json:"sim_params"`

	UpdateExact bool `yaml:"update_exact" json:"update_exact"`
	UpdateStoch bool `yaml:"update_stoch" json:"update_stoch"`
	ForceStoch  bool `yaml:"force_stoch" json:"force_stoch"`

	NSimsExact  int     `yaml:"nsims_exact" json:"nsims_exact"`
	NSimsStoch  int     `yaml:"nsims_stoch" json:"nsims_stoch"`
	MaxMinutes  float64 `yaml:"max_minutes" json:"max_minutes"`
	MaxSlowdown float64 `yaml:"max_slowdown" json:"max_slowdown"`
	UseOrigSeed bool    `yaml:"use_orig_seed" json:"use_orig_seed"`

	KeepTmp bool   `yaml:"keep_tmp" json:"keep_tmp"`
	TmpDir  string `yaml:"tmp_dir" json:"tmp_dir"`

	// SummaryFormat is the table format new stochastic references are
	// recorded in.
	SummaryFormat string `yaml:"summary_format" json:"summary_format"`

	Equivalence Equivalence `yaml:"equivalence" json:"equivalence"`
	Lock        Lock        `yaml:"lock" json:"lock"`
	History     History     `yaml:"history" json:"history"`
	Metrics     Metrics     `yaml:"metrics" json:"metrics"`
}

// Equivalence configures the distribution comparison.
type Equivalence struct {
	Threshold  float64  `yaml:"threshold" json:"threshold"`
	Exclude    []string `yaml:"exclude" json:"exclude"`
	CollectAll bool     `yaml:"collect_all" json:"collect_all"`
}

// Lock configures the update lock.
type Lock struct {
	Backend     string        `yaml:"backend" json:"backend"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MinInterval time.Duration `yaml:"min_interval" json:"min_interval"`
	MaxInterval time.Duration `yaml:"max_interval" json:"max_interval"`
	MaxJitter   time.Duration `yaml:"max_jitter" json:"max_jitter"`
}

// History configures the sqlite run history. An empty path disables it.
type History struct {
	Path string `yaml:"path" json:"path"`
}

// Metrics configures the Prometheus textfile export. An empty path
// disables it.
type Metrics struct {
	Textfile string `yaml:"textfile" json:"textfile"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SrcDir:        "../../../cosi",
		BuildDir:      ".",
		SimBinary:     "./coalescent",
		StatsBinary:   "./sample_stats_extra",
		NSimsExact:    3,
		NSimsStoch:    1000,
		MaxSlowdown:   2,
		SummaryFormat: "tsv.gz",
		Equivalence: Equivalence{
			Threshold: 1e-4,
			Exclude:   []string{"time"},
		},
		Lock: Lock{
			Backend:     "flock",
			Timeout:     0,
			MinInterval: 100 * time.Millisecond,
			MaxInterval: 10 * time.Second,
			MaxJitter:   time.Second,
		},
	}
}

// Updating reports whether either reference is being regenerated.
func (c *Config) Updating() bool {
	return c.UpdateExact || c.UpdateStoch
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty), and the process environment, then validates it.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// LoadWithEnv is Load with an explicit environment.
func LoadWithEnv(path string, lookup LookupFunc) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
