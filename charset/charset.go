// Package charset converts the Shift-JIS text stored in quest headers
// to and from UTF-8. The Gamecube edition stores all of its header
// strings as Shift-JIS in fixed-width NUL-padded fields; everything up
// to the first NUL (or the field width) is text.
package charset

import (
	"fmt"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// Unpad returns the prefix of data up to (not including) the first NUL
// byte. Fixed-width string fields are NUL-padded to their full width.
func Unpad(data []byte) []byte {
	for i, b := range data {
		if b == 0 {
			return data[:i]
		}
	}
	return data
}

// ToUTF8 decodes a Shift-JIS byte string into UTF-8.
func ToUTF8(data []byte) (string, error) {
	result, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("shift-jis decode failed: %w", err)
	}
	return string(result), nil
}

// FromUTF8 encodes a UTF-8 string as Shift-JIS.
func FromUTF8(text string) ([]byte, error) {
	result, _, err := transform.Bytes(japanese.ShiftJIS.NewEncoder(), []byte(text))
	if err != nil {
		return nil, fmt.Errorf("shift-jis encode failed: %w", err)
	}
	return result, nil
}

// DecodeField decodes a fixed-width NUL-padded Shift-JIS field.
func DecodeField(field []byte) (string, error) {
	return ToUTF8(Unpad(field))
}

// EncodeField encodes text as Shift-JIS into a NUL-padded field of the
// given width. The encoded text must fit.
func EncodeField(text string, width int) ([]byte, error) {
	encoded, err := FromUTF8(text)
	if err != nil {
		return nil, err
	}
	if len(encoded) > width {
		return nil, fmt.Errorf("encoded text is %d bytes, larger than the %d byte field", len(encoded), width)
	}
	field := make([]byte, width)
	copy(field, encoded)
	return field, nil
}
