// Package equiv decides whether two batches of simulator summary statistics
// are drawn from the same distributions, column by column.
//
// Each column present in both tables and not matched by an exclusion pattern
// is compared with a two-sample Kolmogorov-Smirnov test. A p-value below the
// threshold is a hard failure. No multiple-testing correction is applied, so
// the threshold is kept small.
package equiv

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/simregress/internal/stats"
	"github.com/roach88/simregress/internal/table"
)

const (
	// DefaultThreshold is the p-value floor below which a column fails.
	DefaultThreshold = 1e-4

	// DefaultTopN is how many verdicts a non-verbose report shows.
	DefaultTopN = 5
)

// Verdict is the KS outcome for one column.
type Verdict struct {
	Column string  `json:"column"`
	P      float64 `json:"p"`
	D      float64 `json:"d"`
	N1     int     `json:"n_reference"`
	N2     int     `json:"n_candidate"`
}

// DivergenceError reports columns whose distributions differ.
type DivergenceError struct {
	Threshold float64
	Failures  []Verdict
}

func (e *DivergenceError) Error() string {
	if len(e.Failures) == 1 {
		v := e.Failures[0]
		return fmt.Sprintf("distribution of column %s does not match: p=%g, D=%g (threshold %g)",
			v.Column, v.P, v.D, e.Threshold)
	}
	parts := make([]string, len(e.Failures))
	for i, v := range e.Failures {
		parts[i] = fmt.Sprintf("%s (p=%g, D=%g)", v.Column, v.P, v.D)
	}
	return fmt.Sprintf("distributions of %d columns do not match (threshold %g): %s",
		len(e.Failures), e.Threshold, strings.Join(parts, ", "))
}

// Options configures a Tester.
type Options struct {
	// Threshold is the p-value floor; zero selects DefaultThreshold.
	Threshold float64

	// Exclude holds regular expressions matched against the start of each
	// column name. Matching columns are never compared.
	Exclude []string

	// CollectAll checks every column and reports all failures together
	// instead of stopping at the first.
	CollectAll bool

	Logger *slog.Logger
}

// Tester compares summary-statistic tables.
type Tester struct {
	threshold  float64
	exclude    []*regexp.Regexp
	collectAll bool
	logger     *slog.Logger
}

// New compiles the exclusion patterns and returns a Tester.
func New(opts Options) (*Tester, error) {
	t := &Tester{
		threshold:  opts.Threshold,
		collectAll: opts.CollectAll,
		logger:     opts.Logger,
	}
	if t.threshold == 0 {
		t.threshold = DefaultThreshold
	}
	if t.threshold < 0 || t.threshold >= 1 {
		return nil, fmt.Errorf("threshold %g outside (0, 1)", t.threshold)
	}
	if t.logger == nil {
		t.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	for _, pat := range opts.Exclude {
		re, err := regexp.Compile(`^(?:` + pat + `)`)
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", pat, err)
		}
		t.exclude = append(t.exclude, re)
	}
	return t, nil
}

// Threshold returns the effective p-value floor.
func (t *Tester) Threshold() float64 { return t.threshold }

// Excluded reports whether column is filtered out by an exclusion pattern.
func (t *Tester) Excluded(column string) bool {
	for _, re := range t.exclude {
		if re.MatchString(column) {
			return true
		}
	}
	return false
}

// Compare tests every shared, non-excluded column of ref against cand.
// On success the report's verdicts are sorted ascending by p-value. Any
// column below the threshold yields a *DivergenceError and no report.
func (t *Tester) Compare(ref, cand *table.Table) (*Report, error) {
	diff := table.Diff(ref, cand)
	for _, c := range diff.OnlyA {
		t.logger.Warn("column only in reference", "column", c)
	}
	for _, c := range diff.OnlyB {
		t.logger.Warn("column only in candidate", "column", c)
	}
	t.logger.Info("comparing tables",
		"reference_rows", ref.Len(),
		"candidate_rows", cand.Len(),
		"common_columns", len(diff.Common))

	report := &Report{
		Threshold:       t.threshold,
		OnlyInReference: diff.OnlyA,
		OnlyInCandidate: diff.OnlyB,
	}
	var failures []Verdict
	for _, c := range diff.Common {
		if t.Excluded(c) {
			report.Excluded = append(report.Excluded, c)
			continue
		}
		x, _ := ref.Column(c)
		y, _ := cand.Column(c)
		res, err := stats.KS2Samp(x, y)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c, err)
		}
		v := Verdict{Column: c, P: res.P, D: res.D, N1: res.N1, N2: res.N2}
		t.logger.Debug("compared column", "column", c, "p", v.P, "D", v.D)

		if v.P < t.threshold {
			t.logger.Error("column distribution differs", "column", c, "p", v.P, "D", v.D)
			failures = append(failures, v)
			if !t.collectAll {
				break
			}
			continue
		}
		report.Verdicts = append(report.Verdicts, v)
	}
	if len(failures) > 0 {
		Rank(failures)
		return nil, &DivergenceError{Threshold: t.threshold, Failures: failures}
	}

	Rank(report.Verdicts)
	return report, nil
}

// Rank sorts verdicts ascending by p-value, ties broken by column name.
func Rank(vs []Verdict) {
	slices.SortStableFunc(vs, func(a, b Verdict) int {
		if c := cmp.Compare(a.P, b.P); c != 0 {
			return c
		}
		return strings.Compare(a.Column, b.Column)
	})
}

// IsDivergence reports whether err is or wraps a *DivergenceError.
func IsDivergence(err error) bool {
	var de *DivergenceError
	return errors.As(err, &de)
}
