package palm

import (
	"fmt"
)

// FieldType is the inline type tag that precedes every value in a tagged
// record run.
type FieldType uint32

const (
	TypeNone    FieldType = 0
	TypeInteger FieldType = 1
	TypeFloat   FieldType = 2
	TypeDate    FieldType = 3
	TypeAlpha   FieldType = 4
	TypeCString FieldType = 5
	TypeBoolean FieldType = 6
	TypeBitFlag FieldType = 7
	TypeRepeat  FieldType = 8
)

func (t FieldType) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeDate:
		return "date"
	case TypeAlpha:
		return "alpha"
	case TypeCString:
		return "cstring"
	case TypeBoolean:
		return "boolean"
	case TypeBitFlag:
		return "bitflag"
	case TypeRepeat:
		return "repeat"
	default:
		return fmt.Sprintf("FieldType(%d)", uint32(t))
	}
}

type fieldReader func(*Reader) (Value, error)

// fieldReaders is the closed dispatch table for ReadField. Alpha has no
// known wire encoding and is deliberately absent.
var fieldReaders = map[FieldType]fieldReader{
	TypeNone:    func(*Reader) (Value, error) { return Null{}, nil },
	TypeInteger: readUintField,
	TypeFloat: func(r *Reader) (Value, error) {
		f, err := r.ReadFloat32()
		return Float(f), err
	},
	TypeDate: readUintField,
	TypeCString: func(r *Reader) (Value, error) {
		// A 4-byte pad precedes the string.
		if _, err := r.ReadUint32(); err != nil {
			return nil, err
		}
		s, err := r.ReadPString()
		return Text(s), err
	},
	TypeBoolean: func(r *Reader) (Value, error) {
		u, err := r.ReadUint32()
		return Bool(u != 0), err
	},
	TypeBitFlag: readUintField,
	TypeRepeat: func(r *Reader) (Value, error) {
		spec, err := r.ReadRepeatBlock()
		if err != nil {
			return nil, err
		}
		return spec, nil
	},
}

func readUintField(r *Reader) (Value, error) {
	u, err := r.ReadUint32()
	return Uint(u), err
}

// ReadField reads one value of type t.
func (r *Reader) ReadField(t FieldType) (Value, error) {
	read, ok := fieldReaders[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFieldType, t)
	}
	return read(r)
}

// ReadTaggedRun reads count records of len(labels) fields each, where every
// field is a uint32 type tag followed by a value of that type.
// fieldCount is the per-record field count declared by the file; it must
// equal len(labels), and no bytes are consumed when it does not.
func (r *Reader) ReadTaggedRun(count, fieldCount int, labels []string) (Records, error) {
	if fieldCount != len(labels) {
		return nil, fmt.Errorf("%w: file declares %d fields per record, layout has %d",
			ErrSchemaMismatch, fieldCount, len(labels))
	}
	out := make(Records, 0, initialCap(count))
	for i := 0; i < count; i++ {
		var b recordBuilder
		for _, label := range labels {
			start := r.off
			tag, err := r.ReadUint32()
			if err != nil {
				return nil, wrapAt(err, fmt.Sprintf("[%d].%s", i, label), start)
			}
			v, err := r.ReadField(FieldType(tag))
			if err != nil {
				return nil, wrapAt(err, fmt.Sprintf("[%d].%s", i, label), start)
			}
			r.trace("palm field", "record", i, "label", label, "type", FieldType(tag))
			b.set(label, v)
		}
		out = append(out, b.record())
	}
	return out, nil
}
