package palm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wire builds little-endian byte streams by hand.
type wire struct {
	bytes.Buffer
}

func (w *wire) u8(v byte) *wire {
	w.WriteByte(v)
	return w
}

func (w *wire) u16(v uint16) *wire {
	_ = binary.Write(&w.Buffer, binary.LittleEndian, v)
	return w
}

func (w *wire) u32(v uint32) *wire {
	_ = binary.Write(&w.Buffer, binary.LittleEndian, v)
	return w
}

func (w *wire) raw(p []byte) *wire {
	w.Write(p)
	return w
}

func (w *wire) pstr(s string) *wire {
	if len(s) >= 255 {
		w.u8(0xFF).u16(uint16(len(s)))
	} else {
		w.u8(byte(len(s)))
	}
	w.WriteString(s)
	return w
}

func TestReadFixedWidth(t *testing.T) {
	var w wire
	w.u16(0xBEEF).u32(0xDEADBEEF).u32(math.Float32bits(1.5)).u8(0x7F)

	r := NewReader(bytes.NewReader(w.Bytes()))

	u16, err := r.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), u16)

	u32, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u32)

	f, err := r.ReadFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f)

	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x7F), b)
	assert.Equal(t, int64(11), r.Offset())
}

func TestReadTruncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		read func(*Reader) error
	}{
		{"uint16 empty", nil, func(r *Reader) error { _, err := r.ReadUint16(); return err }},
		{"uint16 short", []byte{1}, func(r *Reader) error { _, err := r.ReadUint16(); return err }},
		{"uint32 short", []byte{1, 2, 3}, func(r *Reader) error { _, err := r.ReadUint32(); return err }},
		{"float short", []byte{1, 2}, func(r *Reader) error { _, err := r.ReadFloat32(); return err }},
		{"pstring body short", []byte{5, 'a', 'b'}, func(r *Reader) error { _, err := r.ReadPString(); return err }},
		{"pstring long length short", []byte{0xFF, 1}, func(r *Reader) error { _, err := r.ReadPString(); return err }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReader(bytes.NewReader(tc.data))
			err := tc.read(r)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrTruncatedInput), "got %v", err)
		})
	}
}

func TestReadPStringLengths(t *testing.T) {
	for _, n := range []int{0, 1, 254, 255, 256, 65535} {
		payload := bytes.Repeat([]byte{'x'}, n)
		var w wire
		w.pstr(string(payload)).u8(0xAB)

		prefix := 1
		if n >= 255 {
			prefix = 3
		}

		src := bytes.NewReader(w.Bytes())
		r := NewReader(src)
		got, err := r.ReadPString()
		require.NoError(t, err, "len %d", n)
		assert.Len(t, got, n)
		assert.Equal(t, payload, got)
		assert.Equal(t, int64(prefix+n), r.Offset(), "len %d", n)

		// The cursor sits on the byte right after the string.
		next, err := src.ReadByte()
		require.NoError(t, err)
		assert.Equal(t, byte(0xAB), next, "len %d", n)
	}
}

func TestReadPStringLongFormShortLength(t *testing.T) {
	// The 0xFF form may carry any length, including small ones.
	var w wire
	w.u8(0xFF).u16(3).raw([]byte("abc"))
	r := NewReader(bytes.NewReader(w.Bytes()))
	got, err := r.ReadPString()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestReaderDoesNotReadAhead(t *testing.T) {
	var w wire
	w.u32(7).u32(8)
	src := bytes.NewReader(w.Bytes())

	r := NewReader(src)
	v, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), v)
	assert.Equal(t, 4, src.Len())
}
