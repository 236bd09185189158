package harness

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/simregress/internal/config"
	"github.com/roach88/simregress/internal/equiv"
	"github.com/roach88/simregress/internal/flock"
	"github.com/roach88/simregress/internal/manifest"
	"github.com/roach88/simregress/internal/metrics"
	"github.com/roach88/simregress/internal/runner"
	"github.com/roach88/simregress/internal/store"
	"github.com/roach88/simregress/internal/table"
	"github.com/roach88/simregress/internal/timing"
)

// Locker takes the update lock of a test directory.
type Locker interface {
	Lock(ctx context.Context, path string) (Unlocker, error)
}

// Unlocker releases a lock taken by a Locker. Release must be safe to call
// more than once.
type Unlocker interface {
	Release() error
}

// FileLocker takes exclusive advisory file locks.
type FileLocker struct {
	Options flock.Options
}

// NewFileLocker builds a FileLocker from the lock configuration.
func NewFileLocker(c config.Lock, logger *slog.Logger) (*FileLocker, error) {
	backend, ok := flock.BackendByName(c.Backend)
	if !ok {
		return nil, fmt.Errorf("unknown lock backend %q", c.Backend)
	}
	return &FileLocker{Options: flock.Options{
		Mode:        flock.Exclusive,
		Timeout:     c.Timeout,
		MinInterval: c.MinInterval,
		MaxInterval: c.MaxInterval,
		MaxJitter:   c.MaxJitter,
		Backend:     backend,
		Logger:      logger,
	}}, nil
}

// Lock implements Locker.
func (l *FileLocker) Lock(ctx context.Context, path string) (Unlocker, error) {
	h, err := flock.New(path, l.Options).Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Deps are the collaborators of an Orchestrator. Zero values select
// production defaults; Store and Metrics are optional.
type Deps struct {
	Runner  runner.Runner
	Locker  Locker
	Store   *store.Store
	Metrics *metrics.Collector
	Logger  *slog.Logger
	Rand    *rand.Rand
	Now     func() time.Time
}

// Orchestrator runs test cases.
type Orchestrator struct {
	cfg     *config.Config
	runner  runner.Runner
	tester  *equiv.Tester
	locker  Locker
	store   *store.Store
	metrics *metrics.Collector
	logger  *slog.Logger
	rand    *rand.Rand
	now     func() time.Time
}

// New creates an orchestrator for cfg.
func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	tester, err := equiv.New(equiv.Options{
		Threshold:  cfg.Equivalence.Threshold,
		Exclude:    cfg.Equivalence.Exclude,
		CollectAll: cfg.Equivalence.CollectAll,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("equivalence options: %w", err)
	}

	o := &Orchestrator{
		cfg:     cfg,
		runner:  deps.Runner,
		tester:  tester,
		locker:  deps.Locker,
		store:   deps.Store,
		metrics: deps.Metrics,
		logger:  logger,
		rand:    deps.Rand,
		now:     deps.Now,
	}
	if o.runner == nil {
		o.runner = runner.NewShell(logger)
	}
	if o.locker == nil {
		fl, err := NewFileLocker(cfg.Lock, logger)
		if err != nil {
			return nil, err
		}
		o.locker = fl
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Run drives tc through the state machine. A failed run returns the result
// together with a *Failure; the update lock is already released by then.
func (o *Orchestrator) Run(ctx context.Context, tc TestCase) (*Result, error) {
	res := NewResult(tc.Name, tc.Mode)
	res.StartedAt = o.now()

	err := o.run(ctx, tc, res)
	res.FinishedAt = o.now()

	logger := o.logger.With("test", tc.Name, "mode", tc.Mode.String())
	if err != nil {
		var f *Failure
		if !errors.As(err, &f) {
			f = o.failure(res, KindExecution, err)
		}
		res.fail(f)
		logger.Error("test case failed",
			"state", f.State.String(),
			"kind", string(f.Kind),
			"error", f.Err)
	} else {
		res.advance(Done, "")
		logger.Info("test case passed", "seed", res.Seed)
	}

	o.record(ctx, tc, res)

	if res.Failure != nil {
		return res, res.Failure
	}
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, tc TestCase, res *Result) (err error) {
	if tc.Dir == "" {
		return o.failure(res, KindConfig, errors.New("test case has no directory"))
	}
	seed := tc.Seed
	if seed == nil {
		seed = EntropySeed()
	}
	res.Seed = seed.resolve(o.rand)

	logger := o.logger.With("test", tc.Name, "mode", tc.Mode.String())
	logger.Info("running test case", "dir", tc.Dir, "seed", res.Seed)

	vars, err := o.vars(tc)
	if err != nil {
		return o.failure(res, KindConfig, err)
	}

	if tc.Mode.Updating() {
		dirs := []string{tc.Dir}
		if tc.Mode.UpdatesExact() {
			dirs = append(dirs, tc.ExactDir())
		}
		if tc.Mode.UpdatesStoch() {
			dirs = append(dirs, tc.StochDir())
		}
		for _, d := range dirs {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return o.failure(res, KindExecution, fmt.Errorf("create test dir: %w", err))
			}
		}

		start := o.now()
		h, lockErr := o.locker.Lock(ctx, tc.LockPath())
		if lockErr != nil {
			return o.failure(res, KindExecution, lockErr)
		}
		if o.metrics != nil {
			o.metrics.LockWaited(tc.Name, o.now().Sub(start))
		}
		defer func() {
			if rerr := h.Release(); rerr != nil {
				logger.Error("releasing lock failed", "path", tc.LockPath(), "error", rerr)
				if err == nil {
					err = o.failure(res, KindExecution, rerr)
				}
			}
		}()
		res.advance(LockAcquired, "exclusive")
	} else {
		res.advance(LockAcquired, "not locked")
	}

	temps := &runner.TempFiles{Dir: o.cfg.TmpDir, Keep: o.cfg.KeepTmp, Logger: logger}
	defer func() {
		if cerr := temps.Cleanup(); cerr != nil {
			logger.Warn("temp file cleanup failed", "error", cerr)
		}
	}()

	if err := o.exact(ctx, tc, vars, res, logger); err != nil {
		return err
	}
	if err := o.stochastic(ctx, tc, vars, temps, res, logger); err != nil {
		return err
	}

	if !tc.Mode.Updating() {
		res.advance(ChecksumFinalized, "skipped")
		return nil
	}
	start := o.now()
	entries, err := manifest.Write(tc.Dir)
	if err != nil {
		return o.failure(res, KindExecution, err)
	}
	o.stageDone(tc.Name, "checksum", start)
	logger.Info("wrote checksums", "path", filepath.Join(tc.Dir, manifest.FileName), "files", len(entries))
	res.advance(ChecksumFinalized, fmt.Sprintf("%d files", len(entries)))
	return nil
}

// exact runs the short fixed-seed simulation and records or checks the
// SHA-512 of its output.
func (o *Orchestrator) exact(ctx context.Context, tc TestCase, vars map[string]string, res *Result, logger *slog.Logger) error {
	if o.cfg.NSimsExact <= 0 {
		res.advance(ExactChecked, "skipped")
		return nil
	}
	start := o.now()
	dir := tc.ExactDir()
	cmdPath := filepath.Join(dir, ExactCmdFile)
	update := tc.Mode.UpdatesExact()

	var line string
	if update {
		if err := archiveBinaries(dir, vars[VarSimBinary]); err != nil {
			return o.failure(res, KindExecution, err)
		}
		line = ExactCommand(SimCommand(o.cfg.SimParams), o.cfg.NSimsExact, res.Seed)
		if err := writeCommand(cmdPath, line); err != nil {
			return o.failure(res, KindExecution, err)
		}
	} else {
		var err error
		if line, err = readCommand(cmdPath); err != nil {
			return o.failure(res, KindConfig, err)
		}
	}
	res.Commands = append(res.Commands, line)

	expanded, err := runner.Expand(line, vars)
	if err != nil {
		return o.failure(res, KindConfig, err)
	}
	h := sha512.New()
	if _, err := o.runner.Run(ctx, runner.Command{Line: expanded, Dir: o.cfg.BuildDir, Stdout: h}); err != nil {
		return o.failure(res, KindExecution, err)
	}
	res.ExactSum = hex.EncodeToString(h.Sum(nil))

	sumPath := filepath.Join(dir, ExactSumFile)
	note := "matched"
	if update {
		if err := manifest.WriteStreamSum(sumPath, res.ExactSum); err != nil {
			return o.failure(res, KindExecution, err)
		}
		note = "recorded"
	} else {
		want, err := manifest.ReadStreamSum(sumPath)
		if err != nil {
			return o.failure(res, KindConfig, err)
		}
		if want != res.ExactSum {
			return o.failure(res, KindExactMismatch, fmt.Errorf("%w: %s", ErrExactMismatch, sumPath))
		}
	}
	logger.Info("exact check done", "result", note, "sum", res.ExactSum[:16])
	o.stageDone(tc.Name, "exact", start)
	res.advance(ExactChecked, note)
	return nil
}

// stochastic runs many seeded simulations through the stats tool and
// records or compares the summary table and CPU time.
func (o *Orchestrator) stochastic(ctx context.Context, tc TestCase, vars map[string]string, temps *runner.TempFiles, res *Result, logger *slog.Logger) error {
	update := tc.Mode.UpdatesStoch()
	nsims := o.cfg.NSimsStoch
	if !(update || o.cfg.ForceStoch) || nsims <= 0 {
		res.advance(StochasticChecked, "skipped")
		return nil
	}
	start := o.now()
	dir := tc.StochDir()
	cmdPath := filepath.Join(dir, StochCmdFile)

	var line string
	if update {
		if err := archiveBinaries(dir, vars[VarSimBinary], vars[VarStatsBinary]); err != nil {
			return o.failure(res, KindExecution, err)
		}
		total, err := SampleSize(tc.ParamPath())
		if err != nil {
			return o.failure(res, KindConfig, err)
		}
		line = StochCommand(SimCommand(o.cfg.SimParams), StatsCommand(total), res.Seed)
		if err := writeCommand(cmdPath, line); err != nil {
			return o.failure(res, KindExecution, err)
		}
		if err := timing.WriteCount(dir, nsims); err != nil {
			return o.failure(res, KindExecution, err)
		}
	} else {
		var err error
		if line, err = readCommand(cmdPath); err != nil {
			return o.failure(res, KindConfig, err)
		}
		line = CapMinutes(line, o.cfg.MaxMinutes)
		if !o.cfg.UseOrigSeed {
			line = ReseedCommand(line, res.Seed)
		}
	}
	res.Commands = append(res.Commands, line)

	expanded, err := runner.Expand(line, vars)
	if err != nil {
		return o.failure(res, KindConfig, err)
	}
	out, err := o.runner.Run(ctx, runner.Command{Line: expanded, Dir: o.cfg.BuildDir})
	if err != nil {
		return o.failure(res, KindExecution, err)
	}
	cand, err := table.ReadTSV(bytes.NewReader(out.Stdout))
	if err != nil {
		return o.failure(res, KindExecution, fmt.Errorf("parse summary output: %w", err))
	}
	rec := timing.Record{User: out.User, Sys: out.Sys, Runs: nsims}

	if update {
		if err := o.recordStochastic(dir, cand, rec, out.Wall); err != nil {
			return o.failure(res, KindExecution, err)
		}
		logger.Info("recorded stochastic reference", "dir", dir, "rows", cand.Len(), "columns", len(cand.Columns))
		o.stageDone(tc.Name, "stochastic", start)
		res.advance(StochasticChecked, "recorded")
		return nil
	}

	refPath, err := table.Find(filepath.Join(dir, StochSummaries))
	if err != nil {
		return o.failure(res, KindConfig, err)
	}
	ref, err := table.Load(refPath)
	if err != nil {
		return o.failure(res, KindConfig, err)
	}
	report, err := o.tester.Compare(ref, cand)
	if err != nil {
		return o.failure(res, KindStatistical, err)
	}
	res.Report = report
	if o.metrics != nil && len(report.Verdicts) > 0 {
		o.metrics.Compared(tc.Name, len(report.Verdicts), report.Verdicts[0].P)
	}

	cmp, err := o.checkTiming(dir, rec, out.Wall, temps)
	if cmp != nil {
		res.Timing = cmp
		logger.Info("timing",
			"ref_per_run", cmp.ReferencePerRun,
			"cand_per_run", cmp.CandidatePerRun,
			"ratio", cmp.Ratio)
		if o.metrics != nil {
			o.metrics.Timed(tc.Name, cmp.ReferencePerRun, cmp.CandidatePerRun, cmp.Ratio)
		}
	}
	if err != nil {
		return o.failure(res, KindConfig, err)
	}
	o.stageDone(tc.Name, "stochastic", start)
	res.advance(StochasticChecked, fmt.Sprintf("%d columns", len(report.Verdicts)))
	return nil
}

// recordStochastic saves a new stochastic reference. Summaries in other
// formats are removed so that lookups find only the new one.
func (o *Orchestrator) recordStochastic(dir string, t *table.Table, rec timing.Record, wall time.Duration) error {
	format, err := table.ParseFormat(o.cfg.SummaryFormat)
	if err != nil {
		return err
	}
	base := filepath.Join(dir, StochSummaries)
	for _, f := range table.Formats {
		if f == format {
			continue
		}
		if err := os.Remove(base + f.Ext()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale summary: %w", err)
		}
	}
	if err := table.Save(base+format.Ext(), t); err != nil {
		return err
	}
	return timing.WriteFile(filepath.Join(dir, StochTimeFile), rec, wall)
}

// checkTiming compares the candidate's CPU time per run against the
// recorded one. The candidate timing passes through a temp file in the
// same format as the reference.
func (o *Orchestrator) checkTiming(dir string, rec timing.Record, wall time.Duration, temps *runner.TempFiles) (*timing.Comparison, error) {
	ref, err := timing.ReadFile(filepath.Join(dir, StochTimeFile))
	if err != nil {
		return nil, err
	}
	if ref.Runs, _, err = timing.ReadCount(dir); err != nil {
		return nil, err
	}

	path, err := temps.Reserve("stochtime", ".txt")
	if err != nil {
		return nil, err
	}
	if err := timing.WriteFile(path, rec, wall); err != nil {
		return nil, err
	}
	cand, err := timing.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cand.Runs = rec.Runs

	cmp, err := timing.Check(ref, cand, o.cfg.MaxSlowdown)
	var reg *timing.RegressionError
	if err != nil && !errors.As(err, &reg) {
		return nil, err
	}
	return &cmp, err
}

// vars are the values substituted into recorded command lines.
func (o *Orchestrator) vars(tc TestCase) (map[string]string, error) {
	sim, err := o.binaryPath(o.cfg.SimBinary)
	if err != nil {
		return nil, err
	}
	stats, err := o.binaryPath(o.cfg.StatsBinary)
	if err != nil {
		return nil, err
	}
	params, err := filepath.Abs(tc.ParamPath())
	if err != nil {
		return nil, err
	}
	genMap, err := filepath.Abs(tc.GenMapPath())
	if err != nil {
		return nil, err
	}
	return map[string]string{
		VarSimBinary:   sim,
		VarStatsBinary: stats,
		VarParamFile:   params,
		VarGenMapFile:  genMap,
		VarNSimsStoch:  strconv.Itoa(o.cfg.NSimsStoch),
	}, nil
}

// binaryPath makes p absolute. Relative paths are taken from the build
// dir; bare names are looked up on PATH.
func (o *Orchestrator) binaryPath(p string) (string, error) {
	if !strings.ContainsRune(p, filepath.Separator) {
		found, err := exec.LookPath(p)
		if err != nil {
			return "", fmt.Errorf("binary %s: %w", p, err)
		}
		p = found
	} else if !filepath.IsAbs(p) {
		p = filepath.Join(o.cfg.BuildDir, p)
	}
	return filepath.Abs(p)
}

func (o *Orchestrator) failure(res *Result, fallback FailureKind, err error) *Failure {
	return &Failure{Kind: classify(err, fallback), State: res.State, Err: err}
}

func (o *Orchestrator) stageDone(test, stage string, start time.Time) {
	if o.metrics != nil {
		o.metrics.StageDone(test, stage, o.now().Sub(start))
	}
}

// record saves the outcome to the run history and metrics, when enabled.
// Errors are logged; they never change the verdict.
func (o *Orchestrator) record(ctx context.Context, tc TestCase, res *Result) {
	var runErr error
	if res.Failure != nil {
		runErr = res.Failure
	}
	if o.metrics != nil {
		o.metrics.RunFinished(tc.Name, tc.Mode.String(), runErr, res.FinishedAt)
		if path := o.cfg.Metrics.Textfile; path != "" {
			if err := o.metrics.WriteTextfile(path); err != nil {
				o.logger.Warn("could not write metrics", "path", path, "error", err)
			}
		}
	}
	if o.store == nil {
		return
	}
	id, err := o.store.WriteRun(ctx, o.historyRun(tc, res))
	if err != nil {
		o.logger.Warn("could not record run history", "test", tc.Name, "error", err)
		return
	}
	res.RunID = id
}

func (o *Orchestrator) historyRun(tc TestCase, res *Result) store.Run {
	run := store.Run{
		TestName:     tc.Name,
		TestDir:      tc.Dir,
		Mode:         tc.Mode.String(),
		ExactVariant: tc.ExactVariant,
		StochVariant: tc.StochVariant,
		Seed:         res.Seed,
		FinalState:   res.State.String(),
		Outcome:      store.OutcomePass,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
		Params: map[string]string{
			"nsims_exact":  strconv.Itoa(o.cfg.NSimsExact),
			"nsims_stoch":  strconv.Itoa(o.cfg.NSimsStoch),
			"max_slowdown": strconv.FormatFloat(o.cfg.MaxSlowdown, 'g', -1, 64),
			"threshold":    strconv.FormatFloat(o.tester.Threshold(), 'g', -1, 64),
			"sim_params":   o.cfg.SimParams,
		},
	}
	if f := res.Failure; f != nil {
		run.Outcome = store.OutcomeFail
		run.FailureKind = string(f.Kind)
		run.Message = f.Err.Error()
	}
	if res.Report != nil {
		for _, v := range res.Report.Verdicts {
			run.Verdicts = append(run.Verdicts, store.Verdict{
				Column:     v.Column,
				P:          v.P,
				D:          v.D,
				NReference: v.N1,
				NCandidate: v.N2,
			})
		}
	}
	if t := res.Timing; t != nil {
		run.Timing = &store.Timing{
			ReferencePerRun: t.ReferencePerRun,
			CandidatePerRun: t.CandidatePerRun,
			Ratio:           t.Ratio,
			MaxSlowdown:     t.MaxSlowdown,
		}
	}
	return run
}

func readCommand(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read recorded command: %w", err)
	}
	line := strings.TrimSpace(string(data))
	if line == "" {
		return "", fmt.Errorf("recorded command %s is empty", path)
	}
	return line, nil
}

func writeCommand(path, line string) error {
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}
