package harness

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Mode says which references a run regenerates.
type Mode int

const (
	Check Mode = iota
	UpdateExact
	UpdateStoch
	UpdateBoth
)

var modeNames = [...]string{
	Check:       "check",
	UpdateExact: "update-exact",
	UpdateStoch: "update-stoch",
	UpdateBoth:  "update-both",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return "unknown"
	}
	return modeNames[m]
}

// MarshalText renders the mode name in JSON output.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ModeFor combines the two update switches.
func ModeFor(updateExact, updateStoch bool) Mode {
	switch {
	case updateExact && updateStoch:
		return UpdateBoth
	case updateExact:
		return UpdateExact
	case updateStoch:
		return UpdateStoch
	}
	return Check
}

// Updating reports whether any reference is regenerated.
func (m Mode) Updating() bool { return m != Check }

// UpdatesExact reports whether the exact reference is regenerated.
func (m Mode) UpdatesExact() bool { return m == UpdateExact || m == UpdateBoth }

// UpdatesStoch reports whether the stochastic reference is regenerated.
func (m Mode) UpdatesStoch() bool { return m == UpdateStoch || m == UpdateBoth }

// File names inside a test directory.
const (
	LockFile       = "updating.lck"
	ExactCmdFile   = "exactcmd.txt"
	ExactSumFile   = "exactsum.sha512"
	StochCmdFile   = "stochcmd.txt"
	StochTimeFile  = "stochtime.txt"
	StochSummaries = "stochsumm"
	ParamFile      = "test.cosiParams"
	GenMapFile     = "test.genmap"

	DefaultStochVariant = "dflt"
)

// TestCase identifies one test directory and how to run it.
type TestCase struct {
	Name string
	Dir  string

	ExactVariant string
	StochVariant string

	Seed Seed
	Mode Mode
}

// ResolveTestCase fills in the name and directory of a test case. An
// explicit dir wins; otherwise the directory is <srcDir>/tests/dist/<name>,
// with name defaulting to t%03d of num.
func ResolveTestCase(srcDir, name string, num int, dir string) (TestCase, error) {
	if name == "" && num > 0 {
		name = fmt.Sprintf("t%03d", num)
	}
	if dir == "" {
		if name == "" {
			return TestCase{}, errors.New("no test given: need a test dir, name or number")
		}
		dir = filepath.Join(srcDir, "tests", "dist", name)
	}
	if name == "" {
		name = filepath.Base(filepath.Clean(dir))
	}
	return TestCase{
		Name:         name,
		Dir:          dir,
		ExactVariant: DefaultExactVariant(),
		StochVariant: DefaultStochVariant,
		Seed:         EntropySeed(),
	}, nil
}

// LockPath is the update lock target.
func (tc TestCase) LockPath() string { return filepath.Join(tc.Dir, LockFile) }

// ExactDir holds the exact references for the exact variant.
func (tc TestCase) ExactDir() string { return filepath.Join(tc.Dir, "exact", tc.ExactVariant) }

// StochDir holds the stochastic references for the stochastic variant.
func (tc TestCase) StochDir() string { return filepath.Join(tc.Dir, "stoch", tc.StochVariant) }

// ParamPath is the simulator parameter file shared by the tests in a suite.
func (tc TestCase) ParamPath() string { return filepath.Join(tc.Dir, "..", ParamFile) }

// GenMapPath is the genetic map shared by the tests in a suite.
func (tc TestCase) GenMapPath() string { return filepath.Join(tc.Dir, "..", GenMapFile) }

// DefaultExactVariant identifies the platform and compiler whose exact
// output is bit-reproducible, e.g. "x86_64-linux_g++".
func DefaultExactVariant() string {
	cxx := os.Getenv("CXX")
	if cxx == "" {
		cxx = "g++"
	}
	return SysType() + "_" + cxx
}

// SysType names the processor and OS as uname does, e.g. "x86_64-linux".
func SysType() string {
	if runtime.GOOS == "darwin" {
		return "i386-darwin"
	}
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	case "386":
		arch = "i686"
	}
	return arch + "-" + strings.ToLower(runtime.GOOS)
}
