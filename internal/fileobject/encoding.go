package fileobject

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// DefaultEncoding is used when no -encoding option is given.
const DefaultEncoding = "UTF-8"

// LookupEncoding resolves a charset name. The empty name means UTF-8.
func LookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, compiler.IllegalArgument("unsupported encoding %q", name)
	}
	return enc, nil
}

// Decode converts raw bytes into text using the named charset. Malformed
// input is an error unless ignoreErrors is set, in which case invalid
// sequences become U+FFFD.
func Decode(data []byte, charset string, ignoreErrors bool) (string, error) {
	enc, err := LookupEncoding(charset)
	if err != nil {
		return "", err
	}
	if enc == unicode.UTF8 {
		if utf8.Valid(data) {
			return string(data), nil
		}
		if !ignoreErrors {
			return "", fmt.Errorf("malformed input for encoding %s", charsetName(charset))
		}
		return strings.ToValidUTF8(string(data), "�"), nil
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		if !ignoreErrors {
			return "", fmt.Errorf("decoding %s: %w", charsetName(charset), err)
		}
		return strings.ToValidUTF8(string(out), "�"), nil
	}
	return string(out), nil
}

func charsetName(name string) string {
	if name == "" {
		return DefaultEncoding
	}
	return name
}
