// Package types implements the closed set of tuple field kinds: INT and
// STRING(k). Grounded on the teacher's pkg/types, trimmed to the two kinds
// the spec admits.
package types

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Kind identifies a field's runtime type.
type Kind int

const (
	IntKind Kind = iota
	StringKind
)

func (k Kind) String() string {
	switch k {
	case IntKind:
		return "INT"
	case StringKind:
		return "STRING"
	default:
		return "UNKNOWN"
	}
}

// Field is implemented by every value that can occupy a tuple column.
type Field interface {
	Kind() Kind
	// Serialize writes the field's on-disk byte representation to w.
	Serialize(w io.Writer) error
	String() string
}

// IntField is a 4-byte big-endian signed integer field.
type IntField struct {
	Value int32
}

// IntFieldWidth is the fixed serialized width of an IntField.
const IntFieldWidth = 4

func (f IntField) Kind() Kind { return IntKind }

func (f IntField) Serialize(w io.Writer) error {
	var buf [IntFieldWidth]byte
	binary.BigEndian.PutUint32(buf[:], uint32(f.Value))
	_, err := w.Write(buf[:])
	return err
}

func (f IntField) String() string {
	return fmt.Sprintf("%d", f.Value)
}

// ParseIntField reads IntFieldWidth bytes from r and decodes them.
func ParseIntField(r io.Reader) (IntField, error) {
	var buf [IntFieldWidth]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return IntField{}, fmt.Errorf("read int field: %w", err)
	}
	return IntField{Value: int32(binary.BigEndian.Uint32(buf[:]))}, nil
}

// StringField is a fixed-capacity string field: a 4-byte length prefix
// followed by MaxSize payload bytes, space-padded past the actual length.
// Spec §6 mandates space-padding, which diverges from the teacher's own
// StringField (which zero-pads) — this follows the spec.
type StringField struct {
	Value   string
	MaxSize int
}

// NewStringField constructs a StringField, truncating value if it exceeds
// maxSize.
func NewStringField(value string, maxSize int) StringField {
	if len(value) > maxSize {
		value = value[:maxSize]
	}
	return StringField{Value: value, MaxSize: maxSize}
}

func (f StringField) Kind() Kind { return StringKind }

// Width returns this field's fixed serialized width: 4-byte length prefix
// plus MaxSize payload bytes.
func (f StringField) Width() int {
	return 4 + f.MaxSize
}

func (f StringField) Serialize(w io.Writer) error {
	length := len(f.Value)
	if length > f.MaxSize {
		length = f.MaxSize
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(length))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}

	if _, err := w.Write([]byte(f.Value[:length])); err != nil {
		return err
	}

	padding := make([]byte, f.MaxSize-length)
	for i := range padding {
		padding[i] = ' '
	}
	_, err := w.Write(padding)
	return err
}

func (f StringField) String() string {
	return f.Value
}

// ParseStringField reads a StringField of the given maxSize from r.
func ParseStringField(r io.Reader, maxSize int) (StringField, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return StringField{}, fmt.Errorf("read string length prefix: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if int(length) > maxSize {
		return StringField{}, fmt.Errorf("string length %d exceeds max size %d", length, maxSize)
	}

	payload := make([]byte, maxSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return StringField{}, fmt.Errorf("read string payload: %w", err)
	}

	return StringField{Value: string(payload[:length]), MaxSize: maxSize}, nil
}
