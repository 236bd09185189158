package table

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"
)

var colzMagic = []byte("COLZ1\n")

const colzVersion = 1

type colzPayload struct {
	Version int         `msgpack:"v"`
	Columns []string    `msgpack:"cols"`
	Data    [][]float64 `msgpack:"data"`
}

// ReadColz decodes a .colz table.
func ReadColz(r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read colz: %w", err)
	}
	if !bytes.HasPrefix(raw, colzMagic) {
		return nil, errors.New("read colz: bad magic")
	}
	plain, err := snappy.Decode(nil, raw[len(colzMagic):])
	if err != nil {
		return nil, fmt.Errorf("read colz: %w", err)
	}

	var p colzPayload
	if err := msgpack.Unmarshal(plain, &p); err != nil {
		return nil, fmt.Errorf("read colz: %w", err)
	}
	if p.Version != colzVersion {
		return nil, fmt.Errorf("read colz: unsupported version %d", p.Version)
	}
	if len(p.Data) != len(p.Columns) {
		return nil, fmt.Errorf("read colz: %d columns but %d arrays", len(p.Columns), len(p.Data))
	}

	t, err := New(p.Columns)
	if err != nil {
		return nil, fmt.Errorf("read colz: %w", err)
	}
	for i, c := range t.Columns {
		t.Data[c] = p.Data[i]
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("read colz: %w", err)
	}
	return t, nil
}

// WriteColz encodes t as a .colz table.
func WriteColz(w io.Writer, t *Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	p := colzPayload{
		Version: colzVersion,
		Columns: t.Columns,
		Data:    make([][]float64, len(t.Columns)),
	}
	for i, c := range t.Columns {
		p.Data[i] = t.Data[c]
	}
	plain, err := msgpack.Marshal(&p)
	if err != nil {
		return fmt.Errorf("write colz: %w", err)
	}
	if _, err := w.Write(colzMagic); err != nil {
		return err
	}
	_, err = w.Write(snappy.Encode(nil, plain))
	return err
}
