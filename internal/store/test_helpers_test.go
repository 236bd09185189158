package store

import (
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a passing check run with minimal required fields.
func createTestRun(testName string, started time.Time) Run {
	return Run{
		TestName:     testName,
		TestDir:      "/src/tests/" + testName,
		Mode:         "check",
		ExactVariant: "x86_64-linux_g++",
		StochVariant: "dflt",
		Seed:         373737,
		FinalState:   "Done",
		Outcome:      OutcomePass,
		StartedAt:    started,
		FinishedAt:   started.Add(3 * time.Second),
	}
}
