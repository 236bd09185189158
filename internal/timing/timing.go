// Package timing records CPU time for batches of simulator runs and detects
// slowdowns between a reference build and a candidate build.
package timing

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxSlowdown is the largest tolerated candidate/reference ratio of
// per-run CPU time.
const DefaultMaxSlowdown = 2.0

// Record is the user and system CPU time spent on Runs simulations.
type Record struct {
	User time.Duration `json:"user"`
	Sys  time.Duration `json:"sys"`
	Runs int           `json:"runs"`
}

// Total returns user+sys CPU seconds.
func (r Record) Total() float64 {
	return (r.User + r.Sys).Seconds()
}

// PerRun returns the CPU seconds per simulation.
func (r Record) PerRun() (float64, error) {
	if r.Runs <= 0 {
		return 0, fmt.Errorf("run count %d is not positive", r.Runs)
	}
	return r.Total() / float64(r.Runs), nil
}

var clockToken = regexp.MustCompile(`^(\d+\.?\d*)m(\d+\.?\d*)s`)

// ParseClock parses a "<minutes>m<seconds>s" token such as "1m2.500s".
func ParseClock(tok string) (time.Duration, error) {
	m := clockToken.FindStringSubmatch(tok)
	if m == nil {
		return 0, fmt.Errorf("malformed time %q", tok)
	}
	mins, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, err
	}
	secs, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, err
	}
	return time.Duration((mins*60 + secs) * float64(time.Second)), nil
}

// FormatClock renders d as "<minutes>m<seconds>s" with millisecond precision.
func FormatClock(d time.Duration) string {
	mins := int64(d / time.Minute)
	secs := (d - time.Duration(mins)*time.Minute).Seconds()
	return fmt.Sprintf("%dm%.3fs", mins, secs)
}

// Parse reads user and sys times from the output of the shell's time
// keyword. Lines other than "user ..." and "sys ..." are ignored. The
// returned record has no run count.
func Parse(r io.Reader) (Record, error) {
	var rec Record
	var haveUser, haveSys bool
	sc := bufio.NewScanner(r)
	for sc.Scan() && !(haveUser && haveSys) {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		isUser := strings.HasPrefix(fields[0], "user")
		isSys := strings.HasPrefix(fields[0], "sys")
		if !isUser && !isSys {
			continue
		}
		d, err := ParseClock(fields[1])
		if err != nil {
			return Record{}, err
		}
		if isUser {
			rec.User, haveUser = d, true
		} else {
			rec.Sys, haveSys = d, true
		}
	}
	if err := sc.Err(); err != nil {
		return Record{}, err
	}
	if !haveUser || !haveSys {
		return Record{}, errors.New("timing file needs both user and sys lines")
	}
	return rec, nil
}

// ReadFile parses the timing file at path.
func ReadFile(path string) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, fmt.Errorf("read timing: %w", err)
	}
	defer f.Close()
	rec, err := Parse(f)
	if err != nil {
		return Record{}, fmt.Errorf("read timing %s: %w", path, err)
	}
	return rec, nil
}

// Write emits rec in the format Parse reads, with wall time as the real line.
func Write(w io.Writer, rec Record, wall time.Duration) error {
	_, err := fmt.Fprintf(w, "\nreal\t%s\nuser\t%s\nsys\t%s\n",
		FormatClock(wall), FormatClock(rec.User), FormatClock(rec.Sys))
	return err
}

// WriteFile writes rec to path.
func WriteFile(path string, rec Record, wall time.Duration) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write timing: %w", err)
	}
	if err := Write(f, rec, wall); err != nil {
		f.Close()
		return fmt.Errorf("write timing: %w", err)
	}
	return f.Close()
}

// Comparison is the outcome of a timing check.
type Comparison struct {
	ReferencePerRun float64 `json:"reference_per_run"`
	CandidatePerRun float64 `json:"candidate_per_run"`
	Ratio           float64 `json:"ratio"`
	MaxSlowdown     float64 `json:"max_slowdown"`
}

// MarshalJSON writes an infinite ratio as null.
func (c Comparison) MarshalJSON() ([]byte, error) {
	type plain Comparison
	out := struct {
		plain
		Ratio *float64 `json:"ratio"`
	}{plain: plain(c)}
	if !math.IsInf(c.Ratio, 0) && !math.IsNaN(c.Ratio) {
		out.Ratio = &c.Ratio
	}
	return json.Marshal(out)
}

// RegressionError reports a candidate that is too slow.
type RegressionError struct {
	Comparison
}

func (e *RegressionError) Error() string {
	return fmt.Sprintf("timing regression: %.6gs per run vs reference %.6gs per run (ratio %.3f > %g)",
		e.CandidatePerRun, e.ReferencePerRun, e.Ratio, e.MaxSlowdown)
}

// Check compares per-run CPU times. It fails with *RegressionError when the
// candidate per-run time exceeds the reference per-run time times
// maxSlowdown. A non-positive maxSlowdown selects DefaultMaxSlowdown.
func Check(ref, cand Record, maxSlowdown float64) (Comparison, error) {
	if maxSlowdown <= 0 {
		maxSlowdown = DefaultMaxSlowdown
	}
	refPer, err := ref.PerRun()
	if err != nil {
		return Comparison{}, fmt.Errorf("reference timing: %w", err)
	}
	candPer, err := cand.PerRun()
	if err != nil {
		return Comparison{}, fmt.Errorf("candidate timing: %w", err)
	}

	c := Comparison{
		ReferencePerRun: refPer,
		CandidatePerRun: candPer,
		MaxSlowdown:     maxSlowdown,
	}
	switch {
	case refPer > 0:
		c.Ratio = candPer / refPer
	case candPer > 0:
		c.Ratio = math.Inf(1)
	default:
		c.Ratio = 1
	}
	if candPer > refPer*maxSlowdown {
		return c, &RegressionError{Comparison: c}
	}
	return c, nil
}
