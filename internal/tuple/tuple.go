package tuple

import (
	"fmt"
	"io"
	"strings"

	"coursedb/internal/types"
)

// Tuple is a fixed-width record governed by a Description. A tuple
// returned by an iterator carries the RecordID of its physical location; a
// freshly constructed tuple does not (RecordID is the zero value until the
// caller sets it, e.g. on insert).
type Tuple struct {
	Desc     *Description
	fields   []types.Field
	RecordID RecordID
	hasRID   bool
}

// NewTuple allocates a tuple with nil fields, ready for SetField calls.
func NewTuple(desc *Description) *Tuple {
	return &Tuple{Desc: desc, fields: make([]types.Field, desc.NumFields())}
}

// SetField assigns the value at column i, validating kind compatibility.
func (t *Tuple) SetField(i int, f types.Field) error {
	if i < 0 || i >= len(t.fields) {
		return fmt.Errorf("field index %d out of bounds [0,%d)", i, len(t.fields))
	}
	col, err := t.Desc.ColumnAt(i)
	if err != nil {
		return err
	}
	if f.Kind() != col.Kind {
		return fmt.Errorf("field kind mismatch at column %d: expected %v, got %v", i, col.Kind, f.Kind())
	}
	t.fields[i] = f
	return nil
}

// Field returns the value at column i.
func (t *Tuple) Field(i int) (types.Field, error) {
	if i < 0 || i >= len(t.fields) {
		return nil, fmt.Errorf("field index %d out of bounds [0,%d)", i, len(t.fields))
	}
	return t.fields[i], nil
}

// SetRecordID attaches a physical location to this tuple.
func (t *Tuple) SetRecordID(rid RecordID) {
	t.RecordID = rid
	t.hasRID = true
}

// ClearRecordID detaches this tuple from any physical location, as happens
// after a successful delete.
func (t *Tuple) ClearRecordID() {
	t.RecordID = RecordID{}
	t.hasRID = false
}

// HasRecordID reports whether SetRecordID has been called since
// construction (or since the last ClearRecordID).
func (t *Tuple) HasRecordID() bool {
	return t.hasRID
}

// Serialize writes this tuple's fields, in column order, to w.
func (t *Tuple) Serialize(w io.Writer) error {
	for i, f := range t.fields {
		if f == nil {
			return fmt.Errorf("field %d is unset", i)
		}
		if err := f.Serialize(w); err != nil {
			return fmt.Errorf("serialize field %d: %w", i, err)
		}
	}
	return nil
}

// String renders the tuple as tab-separated field values.
func (t *Tuple) String() string {
	parts := make([]string, len(t.fields))
	for i, f := range t.fields {
		if f == nil {
			parts[i] = "null"
		} else {
			parts[i] = f.String()
		}
	}
	return strings.Join(parts, "\t")
}
