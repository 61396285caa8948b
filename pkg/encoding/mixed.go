// Package encoding repairs text that mixes Windows-1252 bytes with UTF-8.
//
// Legacy databases and documents re-saved by different clients often carry
// both encodings in the same value. Valid UTF-8 sequences are kept as they
// are; every other byte is read as Windows-1252.
package encoding

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalidLegacyByte is matched by every InvalidByteError
var ErrInvalidLegacyByte = errors.New("encoding: invalid windows-1252 byte")

// InvalidByteError reports a byte that is neither part of a valid UTF-8
// sequence nor assigned in Windows-1252 (0x81, 0x8D, 0x8F, 0x90, 0x9D).
type InvalidByteError struct {
	Offset int
	Byte   byte
}

func (e *InvalidByteError) Error() string {
	return fmt.Sprintf("encoding: byte 0x%02X at offset %d is not defined in windows-1252", e.Byte, e.Offset)
}

func (e *InvalidByteError) Unwrap() error {
	return ErrInvalidLegacyByte
}

// Convert decodes a mix of Windows-1252 and UTF-8 into a UTF-8 string.
//
// A lead byte followed by a complete, valid UTF-8 sequence is always read
// as that sequence. Otherwise the lead byte alone is decoded as Windows-1252
// and scanning resumes at the next byte. Convert fails with an
// *InvalidByteError on the first byte unassigned in Windows-1252; no
// partial output is returned.
func Convert(input []byte) (string, error) {
	return decode(input, func(_ *strings.Builder, offset int, b byte) error {
		return &InvalidByteError{Offset: offset, Byte: b}
	})
}

// decode is the single scan behind Convert and ToUTF8.
// onInvalid sees every byte unassigned in Windows-1252; a non-nil error stops the scan.
func decode(input []byte, onInvalid func(sb *strings.Builder, offset int, b byte) error) (string, error) {
	var sb strings.Builder
	sb.Grow(len(input))

	i := 0
	for i < len(input) {
		lead := input[i]

		if n := sequenceLen(lead); n > 0 {
			end := min(i+n, len(input))
			if seq := input[i:end]; utf8.Valid(seq) {
				sb.Write(seq)
				i = end
				continue
			}
		}

		if r, ok := legacyRune(lead); ok {
			sb.WriteRune(r)
		} else if err := onInvalid(&sb, i, lead); err != nil {
			return "", err
		}
		i++
	}

	return sb.String(), nil
}

// MustConvert is like Convert but panics on an undefined Windows-1252 byte.
// Use it where such a byte means corrupted data that must stop processing.
func MustConvert(input []byte) string {
	s, err := Convert(input)
	if err != nil {
		panic(err)
	}
	return s
}
