package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/simregress/internal/config"
)

// configOverride copies one flag's value over the loaded configuration.
type configOverride struct {
	flag string
	copy func(dst, src *config.Config)
}

// configOverrides apply in order after the file and environment, so a
// flag the user set always wins.
var configOverrides = []configOverride{
	{"srcdir", func(d, s *config.Config) { d.SrcDir = s.SrcDir }},
	{"builddir", func(d, s *config.Config) { d.BuildDir = s.BuildDir }},
	{"sim-binary", func(d, s *config.Config) { d.SimBinary = s.SimBinary }},
	{"stats-binary", func(d, s *config.Config) { d.StatsBinary = s.StatsBinary }},
	{"sim-params", func(d, s *config.Config) { d.SimParams = s.SimParams }},
	{"update-exact", func(d, s *config.Config) { d.UpdateExact = s.UpdateExact }},
	{"update-stoch", func(d, s *config.Config) { d.UpdateStoch = s.UpdateStoch }},
	{"force-stoch", func(d, s *config.Config) { d.ForceStoch = s.ForceStoch }},
	{"nsims-exact", func(d, s *config.Config) { d.NSimsExact = s.NSimsExact }},
	{"nsims-stoch", func(d, s *config.Config) { d.NSimsStoch = s.NSimsStoch }},
	{"max-minutes", func(d, s *config.Config) { d.MaxMinutes = s.MaxMinutes }},
	{"max-slowdown", func(d, s *config.Config) { d.MaxSlowdown = s.MaxSlowdown }},
	{"use-orig-seed", func(d, s *config.Config) { d.UseOrigSeed = s.UseOrigSeed }},
	{"keep-tmp", func(d, s *config.Config) { d.KeepTmp = s.KeepTmp }},
	{"tmp-dir", func(d, s *config.Config) { d.TmpDir = s.TmpDir }},
	{"summary-format", func(d, s *config.Config) { d.SummaryFormat = s.SummaryFormat }},
	{"threshold", func(d, s *config.Config) { d.Equivalence.Threshold = s.Equivalence.Threshold }},
	{"collect-all", func(d, s *config.Config) { d.Equivalence.CollectAll = s.Equivalence.CollectAll }},
	{"lock-timeout", func(d, s *config.Config) { d.Lock.Timeout = s.Lock.Timeout }},
	{"history", func(d, s *config.Config) { d.History.Path = s.History.Path }},
	{"metrics-textfile", func(d, s *config.Config) { d.Metrics.Textfile = s.Metrics.Textfile }},
}

// addConfigFlags registers the configuration flags, writing into c.
func addConfigFlags(cmd *cobra.Command, c *config.Config) {
	d := config.Default()
	f := cmd.Flags()

	f.StringVar(&c.SrcDir, "srcdir", d.SrcDir, "source tree holding tests/dist")
	f.StringVar(&c.BuildDir, "builddir", d.BuildDir, "directory relative binary paths are resolved against")
	f.StringVar(&c.SimBinary, "sim-binary", d.SimBinary, "simulator binary")
	f.StringVar(&c.StatsBinary, "stats-binary", d.StatsBinary, "summary statistics binary")
	f.StringVar(&c.SimParams, "sim-params", d.SimParams, "extra simulator arguments recorded with new references")
	f.BoolVar(&c.UpdateExact, "update-exact", false, "record new exact references")
	f.BoolVar(&c.UpdateStoch, "update-stoch", false, "record new stochastic references")
	f.BoolVar(&c.ForceStoch, "force-stoch", false, "run the stochastic check without updating")
	f.IntVar(&c.NSimsExact, "nsims-exact", d.NSimsExact, "simulations in the exact check (0 skips it)")
	f.IntVar(&c.NSimsStoch, "nsims-stoch", d.NSimsStoch, "simulations in the stochastic check (0 skips it)")
	f.Float64Var(&c.MaxMinutes, "max-minutes", d.MaxMinutes, "stop each check after this many minutes (0 means no cap)")
	f.Float64Var(&c.MaxSlowdown, "max-slowdown", d.MaxSlowdown, "largest tolerated candidate/reference CPU time ratio")
	f.BoolVar(&c.UseOrigSeed, "use-orig-seed", false, "check with the seed the reference was recorded with")
	f.BoolVar(&c.KeepTmp, "keep-tmp", false, "keep temporary files")
	f.StringVar(&c.TmpDir, "tmp-dir", d.TmpDir, "directory for temporary files")
	f.StringVar(&c.SummaryFormat, "summary-format", d.SummaryFormat, "format of recorded summary tables (tsv|tsv.gz|colz)")
	f.Float64VarP(&c.Equivalence.Threshold, "threshold", "p", d.Equivalence.Threshold, "p-value below which distributions differ")
	f.BoolVar(&c.Equivalence.CollectAll, "collect-all", false, "report every diverging column instead of stopping at the first")
	f.DurationVar(&c.Lock.Timeout, "lock-timeout", d.Lock.Timeout, "how long to wait for the update lock (negative waits forever)")
	f.StringVar(&c.History.Path, "history", d.History.Path, "sqlite run history database")
	f.StringVar(&c.Metrics.Textfile, "metrics-textfile", d.Metrics.Textfile, "Prometheus textfile to write metrics to")
}

// applyConfigFlags copies the flags the user set from flagged into cfg and
// validates the result.
func applyConfigFlags(cmd *cobra.Command, cfg, flagged *config.Config) error {
	for _, o := range configOverrides {
		if cmd.Flags().Changed(o.flag) {
			o.copy(cfg, flagged)
		}
	}
	if err := config.Validate(cfg); err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	return nil
}
