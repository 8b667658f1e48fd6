package palm

import (
	"fmt"
)

// Value is a decoded field value. The set of implementations is closed:
// Uint, Float, Bool, Text, Null, *RepeatSpec, Record and Records.
type Value interface {
	valueKind() string
}

// Uint holds integer, date and bit-flag fields as well as fixed-layout
// short and long fields.
type Uint uint32

// Float holds a 4-byte IEEE float field.
type Float float32

// Bool holds a boolean field (stored on the wire as a 4-byte integer).
type Bool bool

// Text holds the raw bytes of a Palm string. Use DecodeText to turn it
// into a Go string in the file's code page.
type Text []byte

// Null is the value of a field whose type tag is "none".
type Null struct{}

// Records is a list of nested records.
type Records []Record

func (Uint) valueKind() string        { return "uint" }
func (Float) valueKind() string       { return "float" }
func (Bool) valueKind() string        { return "bool" }
func (Text) valueKind() string        { return "text" }
func (Null) valueKind() string        { return "null" }
func (Records) valueKind() string     { return "records" }
func (Record) valueKind() string      { return "record" }
func (*RepeatSpec) valueKind() string { return "repeat" }

// Field is a named value.
type Field struct {
	Name  string
	Value Value
}

// Record is an ordered, immutable mapping from field name to value.
type Record struct {
	fields []Field
	index  map[string]int
}

// NewRecord builds a record from fields in order. A repeated name
// replaces the earlier value in place.
func NewRecord(fields ...Field) Record {
	var b recordBuilder
	for _, f := range fields {
		b.set(f.Name, f.Value)
	}
	return b.record()
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.fields) }

// Fields returns a copy of the fields in decode order.
func (r Record) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Get returns the value stored under name.
func (r Record) Get(name string) (Value, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.fields[i].Value, true
}

// Uint returns an integer field.
func (r Record) Uint(name string) (uint32, error) {
	v, err := r.lookup(name)
	if err != nil {
		return 0, err
	}
	u, ok := v.(Uint)
	if !ok {
		return 0, typeErr(name, v, "uint")
	}
	return uint32(u), nil
}

// Bool returns a boolean field. Integer fields are accepted and read as
// non-zero = true, since some files tag flags as integers.
func (r Record) Bool(name string) (bool, error) {
	v, err := r.lookup(name)
	if err != nil {
		return false, err
	}
	switch b := v.(type) {
	case Bool:
		return bool(b), nil
	case Uint:
		return b != 0, nil
	default:
		return false, typeErr(name, v, "bool")
	}
}

// Text returns a string field's raw bytes. A null field reads as empty.
func (r Record) Text(name string) ([]byte, error) {
	v, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case Text:
		return []byte(t), nil
	case Null:
		return nil, nil
	default:
		return nil, typeErr(name, v, "text")
	}
}

// Records returns a nested record list.
func (r Record) Records(name string) (Records, error) {
	v, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	rs, ok := v.(Records)
	if !ok {
		return nil, typeErr(name, v, "records")
	}
	return rs, nil
}

// Repeat returns a repeat-block field.
func (r Record) Repeat(name string) (*RepeatSpec, error) {
	v, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	rs, ok := v.(*RepeatSpec)
	if !ok {
		return nil, typeErr(name, v, "repeat")
	}
	return rs, nil
}

func (r Record) lookup(name string) (Value, error) {
	v, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return v, nil
}

func typeErr(name string, v Value, want string) error {
	return fmt.Errorf("%w: %s is %s, want %s", ErrValueType, name, kindOf(v), want)
}

func kindOf(v Value) string {
	if v == nil {
		return "nil"
	}
	return v.valueKind()
}

// recordBuilder accumulates fields while a record is being decoded.
type recordBuilder struct {
	fields []Field
	index  map[string]int
}

func (b *recordBuilder) set(name string, v Value) {
	if b.index == nil {
		b.index = make(map[string]int)
	}
	if i, ok := b.index[name]; ok {
		b.fields[i].Value = v
		return
	}
	b.index[name] = len(b.fields)
	b.fields = append(b.fields, Field{Name: name, Value: v})
}

// count returns a previously decoded integer sibling, used as a repeat
// count by nested and tagged layouts.
func (b *recordBuilder) count(name string) (int, error) {
	i, ok := b.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: count field %s not decoded yet", ErrSchemaMismatch, name)
	}
	u, ok := b.fields[i].Value.(Uint)
	if !ok {
		return 0, typeErr(name, b.fields[i].Value, "uint")
	}
	return int(u), nil
}

func (b *recordBuilder) record() Record {
	r := Record{fields: b.fields, index: b.index}
	b.fields, b.index = nil, nil
	return r
}
