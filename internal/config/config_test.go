package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "simregress.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 3, cfg.NSimsExact)
	assert.Equal(t, 1000, cfg.NSimsStoch)
	assert.Equal(t, 2.0, cfg.MaxSlowdown)
	assert.Equal(t, 1e-4, cfg.Equivalence.Threshold)
	assert.Equal(t, []string{"time"}, cfg.Equivalence.Exclude)
	assert.Equal(t, time.Duration(0), cfg.Lock.Timeout)
	assert.False(t, cfg.Updating())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
sim_binary: /opt/sim/coalescent
nsims_stoch: 250
update_stoch: true
max_slowdown: 1.5
summary_format: colz
equivalence:
  threshold: 0.001
  exclude: ["time", "ld_.*"]
  collect_all: true
lock:
  backend: fcntl
  timeout: 30s
  min_interval: 50ms
  max_interval: 5s
history:
  path: /var/lib/simregress/history.db
`)
	cfg, err := LoadWithEnv(path, env(nil))
	require.NoError(t, err)

	assert.Equal(t, "/opt/sim/coalescent", cfg.SimBinary)
	assert.Equal(t, 250, cfg.NSimsStoch)
	assert.True(t, cfg.UpdateStoch)
	assert.True(t, cfg.Updating())
	assert.Equal(t, 1.5, cfg.MaxSlowdown)
	assert.Equal(t, "colz", cfg.SummaryFormat)
	assert.Equal(t, 0.001, cfg.Equivalence.Threshold)
	assert.Equal(t, []string{"time", "ld_.*"}, cfg.Equivalence.Exclude)
	assert.True(t, cfg.Equivalence.CollectAll)
	assert.Equal(t, "fcntl", cfg.Lock.Backend)
	assert.Equal(t, 30*time.Second, cfg.Lock.Timeout)
	assert.Equal(t, 50*time.Millisecond, cfg.Lock.MinInterval)
	assert.Equal(t, time.Second, cfg.Lock.MaxJitter, "unset keys keep defaults")
	assert.Equal(t, "/var/lib/simregress/history.db", cfg.History.Path)
	// Untouched fields keep their defaults.
	assert.Equal(t, 3, cfg.NSimsExact)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "nsims_stoch: 250\n")
	cfg, err := LoadWithEnv(path, env(map[string]string{
		"SIMREGRESS_NSIMS_STOCH":   "40",
		"SIMREGRESS_UPDATE_EXACT":  "1",
		"SIMREGRESS_P":             "0.01",
		"SIMREGRESS_MAX_MINUTES":   "2.5",
		"SIMREGRESS_LOCK_TIMEOUT":  "-1ns",
		"SIMREGRESS_KEEP_TMP":      "true",
		"SIMREGRESS_STATS_BINARY":  "/bin/stats",
		"SIMREGRESS_USE_ORIG_SEED": "0",
	}))
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.NSimsStoch)
	assert.True(t, cfg.UpdateExact)
	assert.Equal(t, 0.01, cfg.Equivalence.Threshold)
	assert.Equal(t, 2.5, cfg.MaxMinutes)
	assert.Equal(t, time.Duration(-1), cfg.Lock.Timeout)
	assert.True(t, cfg.KeepTmp)
	assert.Equal(t, "/bin/stats", cfg.StatsBinary)
	assert.False(t, cfg.UseOrigSeed)
}

func TestLoad_BadEnvValue(t *testing.T) {
	_, err := LoadWithEnv("", env(map[string]string{"SIMREGRESS_NSIMS_EXACT": "many"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIMREGRESS_NSIMS_EXACT")
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, "nsims_stochastic: 5\n")
	_, err := LoadWithEnv(path, env(nil))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "nope.yaml"), env(nil))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := LoadWithEnv(writeConfig(t, ""), env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate_Constraints(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"threshold too high", func(c *Config) { c.Equivalence.Threshold = 1 }, "threshold"},
		{"threshold zero", func(c *Config) { c.Equivalence.Threshold = 0 }, "threshold"},
		{"slowdown below one", func(c *Config) { c.MaxSlowdown = 0.5 }, "max_slowdown"},
		{"negative sims", func(c *Config) { c.NSimsStoch = -1 }, "nsims_stoch"},
		{"negative minutes", func(c *Config) { c.MaxMinutes = -1 }, "max_minutes"},
		{"unknown backend", func(c *Config) { c.Lock.Backend = "zookeeper" }, "backend"},
		{"interval order", func(c *Config) { c.Lock.MaxInterval = time.Millisecond }, "max_interval"},
		{"unknown format", func(c *Config) { c.SummaryFormat = "npz" }, "summary_format"},
		{"empty binary", func(c *Config) { c.SimBinary = "" }, "sim_binary"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestEnvNames(t *testing.T) {
	names := EnvNames()
	assert.Contains(t, names, "SIMREGRESS_UPDATE_EXACT")
	assert.Contains(t, names, "SIMREGRESS_P")
	for _, n := range names {
		assert.Regexp(t, `^SIMREGRESS_[A-Z_]+$`, n)
	}
}
