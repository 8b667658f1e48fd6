package palm

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FileKind identifies a Palm Desktop database by its signature.
type FileKind uint32

const (
	// KindAddressBook is the signature 00 01 42 41 ("\x00\x01BA").
	KindAddressBook FileKind = 0x41420100
	// KindDatebook is the signature 00 01 42 44 ("\x00\x01BD").
	KindDatebook FileKind = 0x44420100
)

func (k FileKind) String() string {
	switch k {
	case KindAddressBook:
		return "address"
	case KindDatebook:
		return "datebook"
	default:
		return fmt.Sprintf("FileKind(%#08x)", uint32(k))
	}
}

// Layout returns the header layout of the file kind.
func (k FileKind) Layout() (LayoutID, error) {
	switch k {
	case KindAddressBook:
		return LayoutAddressHeader, nil
	case KindDatebook:
		return LayoutDatebookHeader, nil
	default:
		var sig [4]byte
		binary.LittleEndian.PutUint32(sig[:], uint32(k))
		return 0, fmt.Errorf("%w: signature % x", ErrUnsupportedFormat, sig)
	}
}

// File is a decoded Palm Desktop database.
type File struct {
	Kind   FileKind
	Header Record
}

// Decode reads a whole database from r: the 4-byte signature, then the
// header layout it selects. r is left positioned after the last entry.
func Decode(r io.Reader, opts ...Option) (*File, error) {
	pr := NewReader(r, opts...)
	return pr.DecodeFile()
}

// DecodeFile reads a signature and the layout it selects.
func (r *Reader) DecodeFile() (*File, error) {
	start := r.off
	sig, err := r.ReadUint32()
	if err != nil {
		return nil, wrapAt(err, "signature", start)
	}
	kind := FileKind(sig)
	id, err := kind.Layout()
	if err != nil {
		return nil, wrapAt(err, "signature", start)
	}
	r.trace("palm file", "kind", kind)

	header, err := r.DecodeLayout(id)
	if err != nil {
		return nil, err
	}
	return &File{Kind: kind, Header: header}, nil
}

// DecodeLayout decodes one record with the layout identified by id.
func (r *Reader) DecodeLayout(id LayoutID) (Record, error) {
	layout, err := LayoutFor(id)
	if err != nil {
		return Record{}, wrapAt(err, "", r.off)
	}
	return r.decodeRecord(layout)
}

// DecodeRecords decodes count consecutive records with the same layout.
func (r *Reader) DecodeRecords(id LayoutID, count int) (Records, error) {
	layout, err := LayoutFor(id)
	if err != nil {
		return nil, wrapAt(err, "", r.off)
	}
	out := make(Records, 0, initialCap(count))
	for i := 0; i < count; i++ {
		rec, err := r.decodeRecord(layout)
		if err != nil {
			return nil, wrapAt(err, fmt.Sprintf("[%d]", i), r.off)
		}
		out = append(out, rec)
	}
	return out, nil
}

// maxInitialRecords bounds slice preallocation. Counts come from the
// file and are only trusted once the records have actually been read.
const maxInitialRecords = 1024

func initialCap(count int) int {
	return min(max(count, 0), maxInitialRecords)
}

func (r *Reader) decodeRecord(layout Layout) (Record, error) {
	var b recordBuilder
	for _, fd := range layout {
		start := r.off
		v, err := r.decodeField(fd, &b)
		if err != nil {
			return Record{}, wrapAt(err, fd.Name, start)
		}
		b.set(fd.Name, v)
	}
	return b.record(), nil
}

func (r *Reader) decodeField(fd FieldDef, b *recordBuilder) (Value, error) {
	switch fd.Kind {
	case KindShort:
		u, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		r.trace("palm field", "name", fd.Name, "value", u)
		return Uint(u), nil

	case KindLong:
		u, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		r.trace("palm field", "name", fd.Name, "value", u)
		return Uint(u), nil

	case KindPString:
		s, err := r.ReadPString()
		if err != nil {
			return nil, err
		}
		r.trace("palm field", "name", fd.Name, "len", len(s))
		return Text(s), nil

	case KindRecords:
		n, err := b.count(fd.Count)
		if err != nil {
			return nil, err
		}
		r.trace("palm records", "name", fd.Name, "layout", fd.Sub, "count", n)
		return r.DecodeRecords(fd.Sub, n)

	case KindTaggedRun:
		labels, err := fd.Labels.Labels()
		if err != nil {
			return nil, err
		}
		fieldCount, err := b.count(fd.FieldCount)
		if err != nil {
			return nil, err
		}
		total, err := b.count(fd.Count)
		if err != nil {
			return nil, err
		}
		count, err := taggedRecordCount(total, fieldCount, len(labels))
		if err != nil {
			return nil, err
		}
		r.trace("palm tagged run", "name", fd.Name, "records", count, "fields", fieldCount)
		return r.ReadTaggedRun(count, fieldCount, labels)

	default:
		return nil, fmt.Errorf("%w: field kind %d", ErrSchemaMismatch, int(fd.Kind))
	}
}

// taggedRecordCount turns the file's total field count into a record
// count. The file must declare as many fields per record as the layout
// has labels, and the total must be a whole number of records.
func taggedRecordCount(total, fieldCount, labels int) (int, error) {
	if fieldCount != labels {
		return 0, fmt.Errorf("%w: file declares %d fields per record, layout has %d",
			ErrSchemaMismatch, fieldCount, labels)
	}
	if fieldCount == 0 {
		return 0, fmt.Errorf("%w: empty label set", ErrSchemaMismatch)
	}
	if total%fieldCount != 0 {
		return 0, fmt.Errorf("%w: %d fields is not a multiple of %d",
			ErrSchemaMismatch, total, fieldCount)
	}
	return total / fieldCount, nil
}
