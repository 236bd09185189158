// Package table holds named numeric columns of simulator summary statistics
// and reads and writes them in the supported on-disk formats.
//
// Supported formats, selected by file extension:
//
//	.tsv      tab-separated text with a header row; '#' starts a comment line
//	.tsv.bz2  bzip2-compressed .tsv (read only)
//	.tsv.gz   gzip-compressed .tsv
//	.colz     snappy-compressed msgpack column arrays
package table

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrUnknownFormat is returned for a path whose extension names no
	// supported format.
	ErrUnknownFormat = errors.New("unknown table format")

	// ErrReadOnlyFormat is returned when saving to a format that can only
	// be read.
	ErrReadOnlyFormat = errors.New("table format is read only")
)

// Table is a set of equal-length named float64 columns. Column order is the
// order of the header in the source file.
type Table struct {
	Columns []string
	Data    map[string][]float64
}

// New creates an empty table with the given columns. Names are NFC
// normalized and trimmed; duplicates are rejected.
func New(columns []string) (*Table, error) {
	t := &Table{
		Columns: make([]string, 0, len(columns)),
		Data:    make(map[string][]float64, len(columns)),
	}
	for i, c := range columns {
		name := NormalizeName(c)
		if name == "" {
			return nil, fmt.Errorf("column %d has an empty name", i+1)
		}
		if _, dup := t.Data[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		t.Columns = append(t.Columns, name)
		t.Data[name] = nil
	}
	return t, nil
}

// NormalizeName returns the canonical form of a column name.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Data[t.Columns[0]])
}

// Column returns the values of the named column.
func (t *Table) Column(name string) ([]float64, bool) {
	v, ok := t.Data[NormalizeName(name)]
	return v, ok
}

// Has reports whether the table has the named column.
func (t *Table) Has(name string) bool {
	_, ok := t.Data[NormalizeName(name)]
	return ok
}

// AppendRow appends one value per column, in column order.
func (t *Table) AppendRow(row []float64) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(row), len(t.Columns))
	}
	for i, c := range t.Columns {
		t.Data[c] = append(t.Data[c], row[i])
	}
	return nil
}

// Validate checks that every listed column exists and all have equal length.
func (t *Table) Validate() error {
	if len(t.Data) != len(t.Columns) {
		return fmt.Errorf("table lists %d columns but holds %d", len(t.Columns), len(t.Data))
	}
	n := -1
	for _, c := range t.Columns {
		v, ok := t.Data[c]
		if !ok {
			return fmt.Errorf("column %q has no data", c)
		}
		if n >= 0 && len(v) != n {
			return fmt.Errorf("column %q has %d rows, expected %d", c, len(v), n)
		}
		n = len(v)
	}
	return nil
}

// ColumnDiff describes how the column sets of two tables relate.
type ColumnDiff struct {
	Common []string // in a's column order
	OnlyA  []string
	OnlyB  []string
}

// Diff compares the column names of a and b.
func Diff(a, b *Table) ColumnDiff {
	var d ColumnDiff
	for _, c := range a.Columns {
		if b.Has(c) {
			d.Common = append(d.Common, c)
		} else {
			d.OnlyA = append(d.OnlyA, c)
		}
	}
	for _, c := range b.Columns {
		if !a.Has(c) {
			d.OnlyB = append(d.OnlyB, c)
		}
	}
	return d
}

// Equal reports whether two tables have the same columns in the same order
// and identical values. NaNs compare equal to each other.
func Equal(a, b *Table) bool {
	if !slices.Equal(a.Columns, b.Columns) {
		return false
	}
	for _, c := range a.Columns {
		if !slices.EqualFunc(a.Data[c], b.Data[c], func(x, y float64) bool {
			return x == y || (x != x && y != y)
		}) {
			return false
		}
	}
	return true
}
