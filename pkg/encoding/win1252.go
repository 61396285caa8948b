package encoding

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Policy decides what ToUTF8 does with bytes undefined in Windows-1252
type Policy int

const (
	// PolicyStrict fails on the first undefined byte
	PolicyStrict Policy = iota
	// PolicyReplace writes U+FFFD in place of each undefined byte
	PolicyReplace
	// PolicySkip drops undefined bytes
	PolicySkip
)

func (p Policy) String() string {
	switch p {
	case PolicyStrict:
		return "strict"
	case PolicyReplace:
		return "replace"
	case PolicySkip:
		return "skip"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy accepts "strict", "replace" or "skip", case-insensitively
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return PolicyStrict, nil
	case "replace":
		return PolicyReplace, nil
	case "skip":
		return PolicySkip, nil
	default:
		return PolicyStrict, fmt.Errorf("encoding: unknown policy %q", s)
	}
}

// ToUTF8 converts legacy text (Windows-1252 mixed with UTF-8) to a UTF-8 string,
// handling undefined bytes according to p. Unknown policies behave as PolicyStrict.
func ToUTF8(b []byte, p Policy) (string, error) {
	return decode(b, func(sb *strings.Builder, offset int, c byte) error {
		switch p {
		case PolicyReplace:
			sb.WriteRune(utf8.RuneError)
			return nil
		case PolicySkip:
			return nil
		default:
			return &InvalidByteError{Offset: offset, Byte: c}
		}
	})
}
