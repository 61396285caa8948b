package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWin1252Table(t *testing.T) {
	var undefinedSlots []byte
	for i, r := range win1252 {
		b := byte(i + 0x80)
		if r == undefined {
			undefinedSlots = append(undefinedSlots, b)
			continue
		}
		if b >= 0xA0 {
			assert.Equal(t, rune(b), r, "0x%02X should map to itself in the Latin-1 range", b)
		}
	}

	assert.Equal(t, []byte{0x81, 0x8D, 0x8F, 0x90, 0x9D}, undefinedSlots)
}

func TestSequenceLen(t *testing.T) {
	cases := map[byte]int{
		0x00: 0, 0x7F: 0, 0x80: 0, 0xBF: 0,
		0xC0: 2, 0xC3: 2, 0xDF: 2,
		0xE0: 3, 0xE2: 3, 0xEF: 3,
		0xF0: 4, 0xF4: 4, 0xF7: 4,
		0xF8: 0, 0xFF: 0,
	}
	for b, want := range cases {
		assert.Equal(t, want, sequenceLen(b), "lead 0x%02X", b)
	}
}

func TestLegacyRune(t *testing.T) {
	r, ok := legacyRune('a')
	assert.True(t, ok)
	assert.Equal(t, 'a', r)

	r, ok = legacyRune(0x80)
	assert.True(t, ok)
	assert.Equal(t, '€', r)

	_, ok = legacyRune(0x8F)
	assert.False(t, ok)
}
