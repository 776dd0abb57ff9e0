// Package encoding converts names from legacy code pages to the UTF-8 text
// stored in model string tables.
package encoding

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// ErrUnknownEncoding is returned for an encoding name Lookup does not know.
var ErrUnknownEncoding = errors.New("unknown name encoding")

// Names accepted by Lookup. UTF-8 is the identity encoding.
const (
	UTF8     = "utf-8"
	EUCKR    = "euc-kr"
	ShiftJIS = "shift-jis"
	Latin1   = "latin1"
)

var decoders = map[string]encoding.Encoding{
	EUCKR:    korean.EUCKR,
	ShiftJIS: japanese.ShiftJIS,
	Latin1:   charmap.ISO8859_1,
}

// Valid reports whether name is an encoding Lookup accepts.
func Valid(name string) bool {
	name = canonical(name)
	if name == UTF8 {
		return true
	}
	_, ok := decoders[name]
	return ok
}

// Decoder converts strings in one source encoding to UTF-8.
type Decoder struct {
	enc encoding.Encoding
}

// Lookup returns a decoder for the named source encoding.
func Lookup(name string) (*Decoder, error) {
	name = canonical(name)
	if name == UTF8 {
		return &Decoder{}, nil
	}
	enc, ok := decoders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	return &Decoder{enc: enc}, nil
}

// Decode converts s to UTF-8. Invalid UTF-8 input in identity mode has its
// bad bytes replaced with U+FFFD so the string table always holds UTF-8.
func (d *Decoder) Decode(s string) (string, error) {
	if d == nil || d.enc == nil {
		return strings.ToValidUTF8(s, "�"), nil
	}
	result, _, err := transform.String(d.enc.NewDecoder(), s)
	if err != nil {
		return "", fmt.Errorf("decoding %q: %w", s, err)
	}
	return result, nil
}

// canonical lowercases and folds common aliases.
func canonical(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", "utf8":
		return UTF8
	case "euckr", "cp949":
		return EUCKR
	case "sjis", "shiftjis":
		return ShiftJIS
	case "iso-8859-1", "latin-1":
		return Latin1
	}
	return name
}

// CString returns the NUL-terminated string starting at offset in data.
// Out-of-range offsets yield the empty string.
func CString(data []byte, offset uint32) string {
	if int64(offset) >= int64(len(data)) {
		return ""
	}
	data = data[offset:]
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(data)
}
