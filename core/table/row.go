package table

import (
	"bytes"
	"encoding/json"
)

// Row is one dataset row: cells in schema order. Rows are produced freshly
// per request and never cached, so they are safe to hand to the encoder
// without copying.
type Row struct {
	names []string
	cells []Value
}

// NewRow builds a row over the given column names. The names slice is
// shared, not copied: callers pass the same slice for every row of a page.
func NewRow(names []string, cells []Value) Row {
	return Row{names: names, cells: cells}
}

// Len returns the number of cells.
func (r Row) Len() int { return len(r.cells) }

// Cell returns the i'th cell.
func (r Row) Cell(i int) Value { return r.cells[i] }

// Get returns the cell for the named column.
func (r Row) Get(name string) (Value, bool) {
	for i, n := range r.names {
		if n == name {
			return r.cells[i], true
		}
	}
	return Value{}, false
}

// MarshalJSON encodes the row as a JSON object with keys in schema order.
// encoding/json sorts map keys, so the object is built by hand.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		cell, err := r.cells[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(cell)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
