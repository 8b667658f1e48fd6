package palm

import (
	"errors"
	"fmt"
)

// Sentinel errors. Decode failures are wrapped in *DecodeError and can be
// matched with errors.Is.
var (
	// ErrTruncatedInput is returned when the stream ends before the layout
	// is satisfied.
	ErrTruncatedInput = errors.New("truncated input")

	// ErrUnknownFieldType is returned for a type tag outside the field
	// type enumeration.
	ErrUnknownFieldType = errors.New("unknown field type")

	// ErrSchemaMismatch is returned when a declared field count disagrees
	// with the layout's label set.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrUnsupportedFormat is returned for an unrecognized file signature.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrMissingField is returned when a record or repeat specification
	// lacks a field that its shape requires.
	ErrMissingField = errors.New("missing field")

	// ErrValueType is returned when a value does not have the type its
	// field requires.
	ErrValueType = errors.New("value has wrong type")

	// ErrStringTooLong is returned when writing a string longer than the
	// 16-bit length prefix allows.
	ErrStringTooLong = errors.New("string too long")
)

// DecodeError reports where in the layout a decode or encode failed.
type DecodeError struct {
	// Path is the dotted field path, e.g. "entries[3].repeatEvent".
	Path string
	// Offset is the stream offset at which the failing field started.
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("palm: offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("palm: %s (offset %d): %v", e.Path, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// wrapAt attaches the path segment to err. When err already carries a
// path, the segment is prepended and the original offset kept.
func wrapAt(err error, segment string, offset int64) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return &DecodeError{Path: joinPath(segment, de.Path), Offset: de.Offset, Err: de.Err}
	}
	return &DecodeError{Path: segment, Offset: offset, Err: err}
}

func joinPath(prefix, rest string) string {
	switch {
	case prefix == "":
		return rest
	case rest == "":
		return prefix
	case rest[0] == '[':
		return prefix + rest
	default:
		return prefix + "." + rest
	}
}
