package palm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	appLog "palm2ical/internal/log"
)

// pstringLong marks a Palm string whose length follows as a uint16.
const pstringLong = 0xFF

// Reader decodes Palm primitives from a stream. It reads exactly the bytes
// it needs and never buffers ahead, so after any call the underlying
// stream is positioned right after the last consumed byte.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	r   io.Reader
	off int64
	log *appLog.Logger
	buf [4]byte
}

// Option configures a Reader or a Decode call.
type Option func(*Reader)

// WithLogger routes per-field tracing to l at DEBUG level.
func WithLogger(l *appLog.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.log = l
		}
	}
}

// NewReader wraps r. Pass an unbuffered reader (or a bufio.Reader the
// caller owns) if the stream is shared with other consumers.
func NewReader(r io.Reader, opts ...Option) *Reader {
	pr := &Reader{r: r, log: appLog.Nop()}
	for _, opt := range opts {
		opt(pr)
	}
	return pr
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 { return r.off }

func (r *Reader) fill(p []byte) error {
	n, err := io.ReadFull(r.r, p)
	r.off += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: need %d bytes at offset %d, got %d",
				ErrTruncatedInput, len(p), r.off-int64(n), n)
		}
		return err
	}
	return nil
}

// ReadByte reads a single raw byte.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.fill(r.buf[:1]); err != nil {
		return 0, err
	}
	return r.buf[0], nil
}

// ReadUint16 reads a little-endian 2-byte unsigned integer.
func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.fill(r.buf[:2]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(r.buf[:2]), nil
}

// ReadUint32 reads a little-endian 4-byte unsigned integer.
func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.fill(r.buf[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.buf[:4]), nil
}

// ReadFloat32 reads a little-endian IEEE-754 single.
func (r *Reader) ReadFloat32() (float32, error) {
	u, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(u), nil
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	p := make([]byte, n)
	if err := r.fill(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ReadPString reads a Palm string: one length byte, or 0xFF followed by a
// uint16 length, then that many bytes. No terminator is consumed.
func (r *Reader) ReadPString() ([]byte, error) {
	first, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	n := int(first)
	if first == pstringLong {
		long, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		n = int(long)
	}
	return r.ReadBytes(n)
}

func (r *Reader) trace(msg string, kv ...any) {
	if !r.log.DebugEnabled() {
		return
	}
	r.log.Debug(msg, append([]any{"offset", r.off}, kv...)...)
}
