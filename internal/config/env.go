package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SIMREGRESS_"

type envVar struct {
	name  string
	apply func(c *Config, v string) error
}

func setString(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func setBool(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

func setInt(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func setFloat(dst func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*dst(c) = f
		return nil
	}
}

func setDuration(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = d
		return nil
	}
}

// envVars lists the recognized overrides, without the prefix.
var envVars = []envVar{
	{"SRCDIR", setString(func(c *Config) *string { return &c.SrcDir })},
	{"BUILDDIR", setString(func(c *Config) *string { return &c.BuildDir })},
	{"SIM_BINARY", setString(func(c *Config) *string { return &c.SimBinary })},
	{"STATS_BINARY", setString(func(c *Config) *string { return &c.StatsBinary })},
	{"SIM_PARAMS", setString(func(c *Config) *string { return &c.SimParams })},
	{"UPDATE_EXACT", setBool(func(c *Config) *bool { return &c.UpdateExact })},
	{"UPDATE_STOCH", setBool(func(c *Config) *bool { return &c.UpdateStoch })},
	{"FORCE_STOCH", setBool(func(c *Config) *bool { return &c.ForceStoch })},
	{"NSIMS_EXACT", setInt(func(c *Config) *int { return &c.NSimsExact })},
	{"NSIMS_STOCH", setInt(func(c *Config) *int { return &c.NSimsStoch })},
	{"MAX_MINUTES", setFloat(func(c *Config) *float64 { return &c.MaxMinutes })},
	{"MAX_SLOWDOWN", setFloat(func(c *Config) *float64 { return &c.MaxSlowdown })},
	{"USE_ORIG_SEED", setBool(func(c *Config) *bool { return &c.UseOrigSeed })},
	{"KEEP_TMP", setBool(func(c *Config) *bool { return &c.KeepTmp })},
	{"TMP_DIR", setString(func(c *Config) *string { return &c.TmpDir })},
	{"SUMMARY_FORMAT", setString(func(c *Config) *string { return &c.SummaryFormat })},
	{"P", setFloat(func(c *Config) *float64 { return &c.Equivalence.Threshold })},
	{"LOCK_BACKEND", setString(func(c *Config) *string { return &c.Lock.Backend })},
	{"LOCK_TIMEOUT", setDuration(func(c *Config) *time.Duration { return &c.Lock.Timeout })},
	{"HISTORY", setString(func(c *Config) *string { return &c.History.Path })},
	{"METRICS_TEXTFILE", setString(func(c *Config) *string { return &c.Metrics.Textfile })},
}

// EnvNames returns the full names of every recognized variable.
func EnvNames() []string {
	out := make([]string, len(envVars))
	for i, ev := range envVars {
		out[i] = EnvPrefix + ev.name
	}
	return out
}

func applyEnv(c *Config, lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}
	for _, ev := range envVars {
		v, ok := lookup(EnvPrefix + ev.name)
		if !ok {
			continue
		}
		if err := ev.apply(c, v); err != nil {
			return fmt.Errorf("%s%s=%q: %w", EnvPrefix, ev.name, v, err)
		}
	}
	return nil
}
