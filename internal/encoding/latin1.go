// Package encoding provides the text-encoding helpers backing
// --input-enc/--output-enc. Only latin-1 (ISO-8859-1) and UTF-8 are
// supported, matching the reference tool's defaults; latin-1 is a
// trivial one-byte-per-codepoint mapping onto the first 256 Unicode
// scalar values, so this stays on the standard library rather than
// pulling in golang.org/x/text/encoding/charmap for a single codec.
package encoding

import (
	"fmt"
	"unicode/utf8"
)

// Name identifies a supported text encoding.
type Name string

const (
	Latin1 Name = "latin-1"
	UTF8   Name = "utf-8"
)

// Decode converts raw bytes in the given encoding to a Go string
// (always UTF-8 internally).
func Decode(b []byte, enc Name) (string, error) {
	switch enc {
	case Latin1, "":
		return decodeLatin1(b), nil
	case UTF8:
		if !utf8.Valid(b) {
			return "", fmt.Errorf("input is not valid utf-8")
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", enc)
	}
}

// Encode converts a Go string to raw bytes in the given encoding.
// Encoding to latin-1 fails if any rune falls outside U+0000-U+00FF.
func Encode(s string, enc Name) ([]byte, error) {
	switch enc {
	case Latin1, "":
		return encodeLatin1(s)
	case UTF8:
		return []byte(s), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}
}

func decodeLatin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

func encodeLatin1(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return nil, fmt.Errorf("rune %q cannot be represented in latin-1", r)
		}
		out = append(out, byte(r))
	}
	return out, nil
}
