package table

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ParseError reports a malformed line in a delimited-text table.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ReadTSV parses a tab-separated table. Blank lines and lines starting with
// '#' are skipped; the first remaining line is the header. Empty fields
// read as NaN.
func ReadTSV(r io.Reader) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var t *Table
	var row []float64
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")

		if t == nil {
			var err error
			if t, err = New(fields); err != nil {
				return nil, &ParseError{Line: lineNo, Err: err}
			}
			row = make([]float64, len(t.Columns))
			continue
		}

		if len(fields) != len(t.Columns) {
			return nil, &ParseError{
				Line: lineNo,
				Err:  fmt.Errorf("got %d fields, header has %d", len(fields), len(t.Columns)),
			}
		}
		for i, f := range fields {
			v, err := parseField(f)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Err: fmt.Errorf("column %q: %w", t.Columns[i], err)}
			}
			row[i] = v
		}
		if err := t.AppendRow(row); err != nil {
			return nil, &ParseError{Line: lineNo, Err: err}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("read table: no header row")
	}
	return t, nil
}

func parseField(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// WriteTSV writes t as tab-separated text with a header row.
func WriteTSV(w io.Writer, t *Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	bw.WriteString(strings.Join(t.Columns, "\t"))
	bw.WriteByte('\n')

	var buf []byte
	for r := 0; r < t.Len(); r++ {
		for i, c := range t.Columns {
			if i > 0 {
				bw.WriteByte('\t')
			}
			buf = strconv.AppendFloat(buf[:0], t.Data[c][r], 'g', -1, 64)
			bw.Write(buf)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
