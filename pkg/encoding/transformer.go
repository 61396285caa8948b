package encoding

import (
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Decoder is a streaming form of ToUTF8; the zero value decodes like Convert.
// It carries the stream offset, so a Decoder must not be shared between goroutines.
type Decoder struct {
	offset int
	policy Policy
}

var _ transform.Transformer = (*Decoder)(nil)

// NewDecoder returns a strict Decoder positioned at offset zero
func NewDecoder() *Decoder {
	return &Decoder{}
}

// NewPolicyDecoder returns a Decoder that handles undefined bytes according to p
func NewPolicyDecoder(p Policy) *Decoder {
	return &Decoder{policy: p}
}

// NewReader returns a Reader that yields UTF-8 decoded from the mixed text read from r
func NewReader(r io.Reader) io.Reader {
	return transform.NewReader(r, NewDecoder())
}

// NewPolicyReader is NewReader with the undefined-byte handling of p
func NewPolicyReader(r io.Reader, p Policy) io.Reader {
	return transform.NewReader(r, NewPolicyDecoder(p))
}

// Reset implements transform.Transformer
func (d *Decoder) Reset() {
	d.offset = 0
}

// Transform implements transform.Transformer.
// A multi-byte candidate cut by the end of src is held back with
// transform.ErrShortSrc until more input or EOF decides it.
func (d *Decoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	defer func() { d.offset += nSrc }()

	for nSrc < len(src) {
		lead := src[nSrc]

		if lead < utf8.RuneSelf {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = lead
			nDst++
			nSrc++
			continue
		}

		if n := sequenceLen(lead); n > 0 {
			end := nSrc + n
			if end > len(src) {
				if !atEOF && !utf8.FullRune(src[nSrc:]) {
					return nDst, nSrc, transform.ErrShortSrc
				}
				end = len(src)
			}
			if seq := src[nSrc:end]; utf8.Valid(seq) {
				if nDst+len(seq) > len(dst) {
					return nDst, nSrc, transform.ErrShortDst
				}
				nDst += copy(dst[nDst:], seq)
				nSrc = end
				continue
			}
		}

		r, ok := legacyRune(lead)
		if !ok {
			switch d.policy {
			case PolicyReplace:
				r = utf8.RuneError
			case PolicySkip:
				nSrc++
				continue
			default:
				return nDst, nSrc, &InvalidByteError{Offset: d.offset + nSrc, Byte: lead}
			}
		}
		if nDst+utf8.RuneLen(r) > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += utf8.EncodeRune(dst[nDst:], r)
		nSrc++
	}

	return nDst, nSrc, nil
}

type mixed1252 struct{}

// Mixed1252 is the mixed Windows-1252/UTF-8 encoding.
// Its encoder produces plain Windows-1252.
var Mixed1252 encoding.Encoding = mixed1252{}

func (mixed1252) NewDecoder() *encoding.Decoder {
	return &encoding.Decoder{Transformer: NewDecoder()}
}

func (mixed1252) NewEncoder() *encoding.Encoder {
	return charmap.Windows1252.NewEncoder()
}

func (mixed1252) String() string {
	return "Windows-1252+UTF-8"
}
