package palm

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// DefaultCharset is the code page Palm Desktop for Windows writes.
const DefaultCharset = "windows-1252"

// Charset resolves a code page name such as "windows-1252", "cp1252",
// "latin1" or "macintosh". WHATWG labels are tried first, then IANA names.
func Charset(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return charmap.Windows1252, nil
	}
	if enc, err := htmlindex.Get(name); err == nil {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("palm: unknown code page %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("palm: code page %q is not supported", name)
	}
	return enc, nil
}

// DecodeText converts raw Palm string bytes to UTF-8.
func DecodeText(enc encoding.Encoding, t []byte) (string, error) {
	if len(t) == 0 {
		return "", nil
	}
	out, err := enc.NewDecoder().Bytes(t)
	if err != nil {
		return "", fmt.Errorf("palm: decode text: %w", err)
	}
	return string(out), nil
}
