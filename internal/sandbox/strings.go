package sandbox

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// EncodeUTF16 converts a Go string to UTF-16 code units.
func EncodeUTF16(s string) ([]uint16, error) {
	b, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode utf-16: %w", err)
	}
	chars := make([]uint16, len(b)/2)
	for i := range chars {
		chars[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return chars, nil
}

// DecodeUTF16 converts UTF-16 code units to a Go string. Unpaired
// surrogates become U+FFFD.
func DecodeUTF16(chars []uint16) (string, error) {
	b := make([]byte, len(chars)*2)
	for i, c := range chars {
		binary.LittleEndian.PutUint16(b[i*2:], c)
	}
	s, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode utf-16: %w", err)
	}
	return string(s), nil
}
