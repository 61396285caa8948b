package encoding

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToUTF8(t *testing.T) {
	input := []byte{0x81, 0x61, 0xE9, 0x8D, 0xE2, 0x84, 0xA2, 0x9D}

	tests := []struct {
		policy Policy
		want   string
	}{
		{PolicyReplace, "�aé�™�"},
		{PolicySkip, "aé™"},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			got, err := ToUTF8(input, tt.policy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToUTF8Strict(t *testing.T) {
	got, err := ToUTF8([]byte("caf\xe9"), PolicyStrict)
	require.NoError(t, err)
	assert.Equal(t, "café", got)

	_, err = ToUTF8([]byte{0x61, 0x62, 0x8F}, PolicyStrict)
	var ibe *InvalidByteError
	require.ErrorAs(t, err, &ibe)
	assert.Equal(t, 2, ibe.Offset)
	assert.Equal(t, byte(0x8F), ibe.Byte)
}

func TestToUTF8Empty(t *testing.T) {
	got, err := ToUTF8(nil, PolicyStrict)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = ToUTF8([]byte{0x90, 0x90}, PolicySkip)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestToUTF8MatchesConvertOnValidInput(t *testing.T) {
	input := []byte{0x99, 0xE2, 0x84, 0xA2, 0x99}
	want := MustConvert(input)

	for _, p := range []Policy{PolicyStrict, PolicyReplace, PolicySkip} {
		got, err := ToUTF8(input, p)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestToUTF8SinglePass(t *testing.T) {
	chunk := append(bytes.Repeat([]byte{'a'}, 99), 0x81)
	input := bytes.Repeat(chunk, 10000)

	got, err := ToUTF8(input, PolicyReplace)
	require.NoError(t, err)
	assert.Len(t, got, 10000*(99+3))

	for _, p := range []Policy{PolicyReplace, PolicySkip} {
		allocs := testing.AllocsPerRun(3, func() {
			_, _ = ToUTF8(input, p)
		})
		// one buffer plus growth, however many bytes are undefined
		assert.LessOrEqual(t, allocs, float64(16), p.String())
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("REPLACE")
	require.NoError(t, err)
	assert.Equal(t, PolicyReplace, p)

	p, err = ParsePolicy(" skip ")
	require.NoError(t, err)
	assert.Equal(t, PolicySkip, p)

	p, err = ParsePolicy("strict")
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, p)

	_, err = ParsePolicy("lenient")
	assert.Error(t, err)
}
