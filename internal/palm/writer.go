package palm

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Writer encodes Palm primitives. It is the inverse of Reader.
type Writer struct {
	w   io.Writer
	off int64
	buf [4]byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() int64 { return w.off }

func (w *Writer) write(p []byte) error {
	n, err := w.w.Write(p)
	w.off += int64(n)
	return err
}

func (w *Writer) WriteByte(c byte) error {
	w.buf[0] = c
	return w.write(w.buf[:1])
}

func (w *Writer) WriteUint16(v uint16) error {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	return w.write(w.buf[:2])
}

func (w *Writer) WriteUint32(v uint32) error {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	return w.write(w.buf[:4])
}

func (w *Writer) WriteFloat32(v float32) error {
	return w.WriteUint32(math.Float32bits(v))
}

// WritePString writes s with a 1-byte length, or 0xFF plus a uint16
// length when s is 255 bytes or longer.
func (w *Writer) WritePString(s []byte) error {
	switch {
	case len(s) > math.MaxUint16:
		return fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s))
	case len(s) >= pstringLong:
		if err := w.WriteByte(pstringLong); err != nil {
			return err
		}
		if err := w.WriteUint16(uint16(len(s))); err != nil {
			return err
		}
	default:
		if err := w.WriteByte(byte(len(s))); err != nil {
			return err
		}
	}
	return w.write(s)
}

// WriteField writes v with the wire encoding of t. The type tag itself is
// not written.
func (w *Writer) WriteField(t FieldType, v Value) error {
	switch t {
	case TypeNone:
		if v != nil {
			if _, ok := v.(Null); !ok {
				return fmt.Errorf("%w: %s for type %s", ErrValueType, kindOf(v), t)
			}
		}
		return nil
	case TypeInteger, TypeDate, TypeBitFlag:
		u, ok := v.(Uint)
		if !ok {
			return fmt.Errorf("%w: %s for type %s", ErrValueType, kindOf(v), t)
		}
		return w.WriteUint32(uint32(u))
	case TypeFloat:
		f, ok := v.(Float)
		if !ok {
			return fmt.Errorf("%w: %s for type %s", ErrValueType, kindOf(v), t)
		}
		return w.WriteFloat32(float32(f))
	case TypeCString:
		var s []byte
		switch tv := v.(type) {
		case Text:
			s = tv
		case Null:
		default:
			return fmt.Errorf("%w: %s for type %s", ErrValueType, kindOf(v), t)
		}
		if err := w.WriteUint32(0); err != nil {
			return err
		}
		return w.WritePString(s)
	case TypeBoolean:
		var on bool
		switch tv := v.(type) {
		case Bool:
			on = bool(tv)
		case Uint:
			on = tv != 0
		default:
			return fmt.Errorf("%w: %s for type %s", ErrValueType, kindOf(v), t)
		}
		var u uint32
		if on {
			u = 1
		}
		return w.WriteUint32(u)
	case TypeRepeat:
		spec, ok := v.(*RepeatSpec)
		if !ok || spec == nil {
			return fmt.Errorf("%w: %s for type %s", ErrValueType, kindOf(v), t)
		}
		return w.WriteRepeatBlock(spec)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFieldType, t)
	}
}

// WriteRepeatBlock writes spec in the layout ReadRepeatBlock expects.
func (w *Writer) WriteRepeatBlock(spec *RepeatSpec) error {
	if len(spec.Exceptions) > math.MaxUint16 {
		return fmt.Errorf("%w: %d exception dates", ErrValueType, len(spec.Exceptions))
	}
	if err := w.WriteUint16(uint16(len(spec.Exceptions))); err != nil {
		return err
	}
	for _, ex := range spec.Exceptions {
		if err := w.WriteUint32(ex); err != nil {
			return err
		}
	}
	if err := w.WriteUint16(spec.Flag); err != nil {
		return err
	}
	if spec.Flag == FlagNone {
		return nil
	}

	if spec.Flag == FlagClassTag {
		if spec.Class == nil {
			return fmt.Errorf("%w: class tag", ErrMissingField)
		}
		if len(spec.Class.Name) > math.MaxUint16 {
			return fmt.Errorf("%w: class name %d bytes", ErrStringTooLong, len(spec.Class.Name))
		}
		if err := w.WriteUint16(spec.Class.Constant); err != nil {
			return err
		}
		if err := w.WriteUint16(uint16(len(spec.Class.Name))); err != nil {
			return err
		}
		if err := w.write(spec.Class.Name); err != nil {
			return err
		}
	}

	for _, v := range []uint32{uint32(spec.Brand), spec.Interval, spec.EndDate, spec.FirstDayOfWeek} {
		if err := w.WriteUint32(v); err != nil {
			return err
		}
	}

	switch spec.Brand {
	case BrandDaily, BrandWeekly, BrandMonthlyByDay:
		if err := w.writeOpt("DayIndex", spec.DayIndex); err != nil {
			return err
		}
	}
	switch spec.Brand {
	case BrandWeekly:
		if spec.DaysMask == nil {
			return fmt.Errorf("%w: DaysMask for %s", ErrMissingField, spec.Brand)
		}
		if err := w.WriteByte(*spec.DaysMask); err != nil {
			return err
		}
	case BrandMonthlyByDay:
		if err := w.writeOpt("WeekIndex", spec.WeekIndex); err != nil {
			return err
		}
	case BrandMonthlyByDate, BrandYearlyByDate:
		if err := w.writeOpt("DayNumber", spec.DayNumber); err != nil {
			return err
		}
	}
	if spec.Brand == BrandYearlyByDate {
		if err := w.writeOpt("MonthIndex", spec.MonthIndex); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeOpt(name string, v *uint32) error {
	if v == nil {
		return fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return w.WriteUint32(*v)
}

// Encode writes f: its signature followed by its header record.
func Encode(w io.Writer, f *File) error {
	pw := NewWriter(w)
	id, err := f.Kind.Layout()
	if err != nil {
		return wrapAt(err, "signature", 0)
	}
	if err := pw.WriteUint32(uint32(f.Kind)); err != nil {
		return wrapAt(err, "signature", 0)
	}
	return pw.EncodeLayout(id, f.Header)
}

// EncodeLayout writes rec with the layout identified by id.
func (w *Writer) EncodeLayout(id LayoutID, rec Record) error {
	layout, err := LayoutFor(id)
	if err != nil {
		return wrapAt(err, "", w.off)
	}
	return w.encodeRecord(layout, rec)
}

func (w *Writer) encodeRecord(layout Layout, rec Record) error {
	for _, fd := range layout {
		start := w.off
		if err := w.encodeField(fd, rec); err != nil {
			return wrapAt(err, fd.Name, start)
		}
	}
	return nil
}

func (w *Writer) encodeField(fd FieldDef, rec Record) error {
	switch fd.Kind {
	case KindShort:
		u, err := rec.Uint(fd.Name)
		if err != nil {
			return err
		}
		if u > math.MaxUint16 {
			return fmt.Errorf("%w: %d does not fit in 16 bits", ErrValueType, u)
		}
		return w.WriteUint16(uint16(u))

	case KindLong:
		u, err := rec.Uint(fd.Name)
		if err != nil {
			return err
		}
		return w.WriteUint32(u)

	case KindPString:
		s, err := rec.Text(fd.Name)
		if err != nil {
			return err
		}
		return w.WritePString(s)

	case KindRecords:
		subs, err := rec.Records(fd.Name)
		if err != nil {
			return err
		}
		n, err := rec.Uint(fd.Count)
		if err != nil {
			return err
		}
		if int(n) != len(subs) {
			return fmt.Errorf("%w: %s is %d, have %d records", ErrSchemaMismatch, fd.Count, n, len(subs))
		}
		layout, err := LayoutFor(fd.Sub)
		if err != nil {
			return err
		}
		for i, sub := range subs {
			start := w.off
			if err := w.encodeRecord(layout, sub); err != nil {
				return wrapAt(err, fmt.Sprintf("[%d]", i), start)
			}
		}
		return nil

	case KindTaggedRun:
		return w.encodeTaggedRun(fd, rec)

	default:
		return fmt.Errorf("%w: field kind %d", ErrSchemaMismatch, int(fd.Kind))
	}
}

func (w *Writer) encodeTaggedRun(fd FieldDef, rec Record) error {
	labels, err := fd.Labels.Labels()
	if err != nil {
		return err
	}
	fieldCount, err := rec.Uint(fd.FieldCount)
	if err != nil {
		return err
	}
	total, err := rec.Uint(fd.Count)
	if err != nil {
		return err
	}
	schema, err := rec.Records(fd.Types)
	if err != nil {
		return err
	}
	entries, err := rec.Records(fd.Name)
	if err != nil {
		return err
	}

	if int(fieldCount) != len(labels) || len(schema) != len(labels) {
		return fmt.Errorf("%w: %d labels, %s=%d, %d column types",
			ErrSchemaMismatch, len(labels), fd.FieldCount, fieldCount, len(schema))
	}
	if int(total) != len(entries)*len(labels) {
		return fmt.Errorf("%w: %s=%d, have %d records of %d fields",
			ErrSchemaMismatch, fd.Count, total, len(entries), len(labels))
	}

	types := make([]FieldType, len(schema))
	for i, col := range schema {
		t, err := col.Uint(FieldSchemaType)
		if err != nil {
			return wrapAt(err, fmt.Sprintf("%s[%d]", fd.Types, i), w.off)
		}
		types[i] = FieldType(t)
	}

	for i, entry := range entries {
		for j, label := range labels {
			start := w.off
			v, ok := entry.Get(label)
			if !ok {
				return wrapAt(fmt.Errorf("%w: %s", ErrMissingField, label),
					fmt.Sprintf("[%d].%s", i, label), start)
			}
			if err := w.WriteUint32(uint32(types[j])); err != nil {
				return wrapAt(err, fmt.Sprintf("[%d].%s", i, label), start)
			}
			if err := w.WriteField(types[j], v); err != nil {
				return wrapAt(err, fmt.Sprintf("[%d].%s", i, label), start)
			}
		}
	}
	return nil
}
