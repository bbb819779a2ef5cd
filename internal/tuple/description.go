// Package tuple implements the fixed-width tuple model governed by a
// TupleDesc: the column schema, the record identifier, and the tuple value
// itself. Grounded on the teacher's pkg/tuple, narrowed to the closed
// {INT, STRING(k)} type set.
package tuple

import (
	"fmt"
	"io"

	"coursedb/internal/types"
)

// ColumnDesc names one column's kind and, for STRING columns, its fixed
// payload capacity.
type ColumnDesc struct {
	Name    string
	Kind    types.Kind
	MaxSize int // meaningful only when Kind == types.StringKind
}

// Width returns this column's fixed serialized width in bytes.
func (c ColumnDesc) Width() int {
	switch c.Kind {
	case types.IntKind:
		return types.IntFieldWidth
	case types.StringKind:
		return 4 + c.MaxSize
	default:
		return 0
	}
}

// Description is the ordered schema governing a tuple's layout. Total
// serialized width is deterministic from the column list.
type Description struct {
	columns []ColumnDesc
	width   int
}

// NewDescription builds a Description from an ordered column list.
func NewDescription(columns ...ColumnDesc) *Description {
	width := 0
	for _, c := range columns {
		width += c.Width()
	}
	return &Description{columns: columns, width: width}
}

// NumFields returns the number of columns in this schema.
func (d *Description) NumFields() int {
	return len(d.columns)
}

// Width returns the total fixed serialized width of a tuple under this
// schema, in bytes.
func (d *Description) Width() int {
	return d.width
}

// ColumnAt returns the column descriptor at index i.
func (d *Description) ColumnAt(i int) (ColumnDesc, error) {
	if i < 0 || i >= len(d.columns) {
		return ColumnDesc{}, fmt.Errorf("column index %d out of bounds [0,%d)", i, len(d.columns))
	}
	return d.columns[i], nil
}

// Equals reports whether two schemas have the same column kinds and sizes
// in the same order (names are not compared: a STRING(10) column named "a"
// and one named "b" have equal on-disk layout).
func (d *Description) Equals(other *Description) bool {
	if d == nil || other == nil {
		return d == other
	}
	if len(d.columns) != len(other.columns) {
		return false
	}
	for i, c := range d.columns {
		o := other.columns[i]
		if c.Kind != o.Kind || c.MaxSize != o.MaxSize {
			return false
		}
	}
	return true
}

// Parse decodes one tuple of this schema from r.
func (d *Description) Parse(r io.Reader) (*Tuple, error) {
	t := NewTuple(d)
	for i, c := range d.columns {
		var f types.Field
		var err error
		switch c.Kind {
		case types.IntKind:
			f, err = types.ParseIntField(r)
		case types.StringKind:
			f, err = types.ParseStringField(r, c.MaxSize)
		default:
			return nil, fmt.Errorf("unknown column kind %v", c.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("parse column %d: %w", i, err)
		}
		t.fields[i] = f
	}
	return t, nil
}
